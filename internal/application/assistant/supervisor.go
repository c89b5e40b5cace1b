package assistant

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
	apperrors "github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

// Route is the branch the supervisor picked for a message.
type Route string

const (
	RouteRAG    Route = "RAG"
	RouteUser   Route = "USER"
	RouteTicket Route = "TICKET"
	RouteChat   Route = "CHAT"
)

const defaultTopK = 4

const routerPrompt = `You route messages for a customer support assistant.
Reply with exactly one line, starting with one of these words:
RAG <question>  when the message asks about products, policies or how-to topics covered by the knowledge base
USER <name or email>  when the message asks to find a user
TICKET <search text>  when the message asks to find tickets
Otherwise reply with anything else.`

const ragPrompt = `You are a customer support assistant. Answer the question using only the
knowledge base excerpts below. If they do not contain the answer, say so.

%s`

const chatPrompt = "You are a helpful customer support assistant."

// Completer runs a single-turn chat completion.
type Completer interface {
	Ask(ctx context.Context, system, prompt string) (string, error)
}

// KnowledgeSearcher returns the knowledge base chunks closest to q.
type KnowledgeSearcher interface {
	SearchKnowledge(ctx context.Context, q string, k int) ([]knowledge.Chunk, error)
}

// ToolRunner executes the search tools and returns their JSON results.
type ToolRunner interface {
	SearchTickets(ctx context.Context, q string) string
	SearchUsers(ctx context.Context, q string) string
}

// Supervisor is the default Pipeline. One routing completion picks a branch
// and the branch produces the reply.
type Supervisor struct {
	llm       Completer
	knowledge KnowledgeSearcher
	tools     ToolRunner
	topK      int
	logger    logger.Interface
}

func NewSupervisor(llm Completer, knowledge KnowledgeSearcher, tools ToolRunner, topK int, log logger.Interface) *Supervisor {
	if topK <= 0 {
		topK = defaultTopK
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Supervisor{
		llm:       llm,
		knowledge: knowledge,
		tools:     tools,
		topK:      topK,
		logger:    log.Named("supervisor"),
	}
}

func (s *Supervisor) Respond(ctx context.Context, text string) (string, error) {
	decision, err := s.llm.Ask(ctx, routerPrompt, text)
	if err != nil {
		return "", fmt.Errorf("routing failed: %w", err)
	}

	route, arg := ParseRoute(decision, text)
	s.logger.Debugw("message routed", "route", route)

	switch route {
	case RouteRAG:
		if s.knowledge != nil {
			return s.answerFromKnowledge(ctx, arg)
		}
	case RouteUser:
		if s.tools != nil {
			return s.tools.SearchUsers(ctx, arg), nil
		}
	case RouteTicket:
		if s.tools != nil {
			return s.tools.SearchTickets(ctx, arg), nil
		}
	}
	return s.llm.Ask(ctx, chatPrompt, text)
}

func (s *Supervisor) answerFromKnowledge(ctx context.Context, question string) (string, error) {
	chunks, err := s.knowledge.SearchKnowledge(ctx, question, s.topK)
	if err != nil {
		return "", fmt.Errorf("knowledge search failed: %w", err)
	}

	excerpts := make([]string, len(chunks))
	for i, c := range chunks {
		excerpts[i] = fmt.Sprintf("[%d] %s", i+1, c.Text)
	}
	if len(excerpts) == 0 {
		excerpts = append(excerpts, "(no matching excerpts)")
	}

	return s.llm.Ask(ctx, fmt.Sprintf(ragPrompt, strings.Join(excerpts, "\n\n")), question)
}

// ParseRoute matches decision against the route prefixes. The text after
// the prefix becomes the branch argument, or fallback when it is empty.
func ParseRoute(decision, fallback string) (Route, string) {
	decision = strings.TrimSpace(decision)
	for _, r := range []Route{RouteRAG, RouteUser, RouteTicket} {
		rest, ok := cutPrefixFold(decision, string(r))
		if !ok {
			continue
		}
		arg := strings.TrimSpace(strings.TrimLeft(rest, ":- "))
		if arg == "" {
			arg = fallback
		}
		return r, arg
	}
	return RouteChat, fallback
}

// cutPrefixFold requires prefix to end at a word boundary.
func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
		return "", false
	}
	rest := s[len(prefix):]
	if rest != "" {
		r := []rune(rest)[0]
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return "", false
		}
	}
	return rest, true
}

func errorMessage(err error) string {
	return apperrors.Message(err, "Search failed")
}
