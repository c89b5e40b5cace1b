// Package assistant answers messages sent to the AI agent.
package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/utils/logutil"
)

// Apology is posted in place of a reply when the pipeline fails.
const Apology = "Sorry, I couldn't process that request right now. Please try again later."

const (
	defaultReplyTimeout = 60 * time.Second
	maxLoggedMessage    = 120
)

// Pipeline turns a user message into the agent's reply text.
type Pipeline interface {
	Respond(ctx context.Context, text string) (string, error)
}

// MessageCreator persists a message. clientstate.Store satisfies it, as
// does a table adapter on the server.
type MessageCreator interface {
	Create(ctx context.Context, m message.Message) error
}

// Augmenter sends messages into conversations and, when the recipient is
// the AI agent, posts exactly one reply per message.
type Augmenter struct {
	pipeline Pipeline
	timeout  time.Duration
	logger   logger.Interface
}

func NewAugmenter(pipeline Pipeline, timeout time.Duration, log logger.Interface) *Augmenter {
	if timeout <= 0 {
		timeout = defaultReplyTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Augmenter{
		pipeline: pipeline,
		timeout:  timeout,
		logger:   log.Named("assistant"),
	}
}

// Send creates the sender's message, then the agent's reply if the
// conversation is with the agent. Only failures to create a message are
// returned; pipeline failures become the apology.
func (a *Augmenter) Send(ctx context.Context, out MessageCreator, dm message.DirectMessage, senderID, text string) error {
	if !dm.Involves(senderID) {
		return fmt.Errorf("user %s is not part of conversation %s", senderID, dm.ID)
	}
	msg, err := message.NewMessage(dm.ID, senderID, strings.TrimSpace(text))
	if err != nil {
		return err
	}
	if err := out.Create(ctx, msg); err != nil {
		return err
	}

	if !dm.IsAIConversation() || senderID == message.AIAgentID {
		return nil
	}

	reply, err := message.NewMessage(dm.ID, message.AIAgentID, a.respond(ctx, msg.Content))
	if err != nil {
		return err
	}
	return out.Create(ctx, reply)
}

func (a *Augmenter) respond(ctx context.Context, text string) string {
	if a.pipeline == nil {
		return Apology
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	reply, err := a.pipeline.Respond(ctx, text)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = fmt.Errorf("empty reply")
	}
	if err != nil {
		a.logger.Warnw("assistant pipeline failed, sending apology",
			"error", err,
			"elapsed", time.Since(start),
			"message", logutil.TruncateForLog(text, maxLoggedMessage),
		)
		return Apology
	}

	a.logger.Debugw("assistant replied", "elapsed", time.Since(start))
	return reply
}
