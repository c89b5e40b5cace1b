// Package message holds direct message conversations and their messages.
package message

import (
	"fmt"
	"strings"
	"time"
)

const (
	DirectMessageTable = "direct_messages"
	Table              = "messages"
)

// AIAgentID is the user id of the AI chat agent. A conversation whose
// recipient is this id gets an automated reply for every message sent.
const AIAgentID = "2c5dea55-3904-4aef-9439-048a4df68fba"

// DirectMessage is a conversation thread between two users.
type DirectMessage struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id"`
	RecipientID string    `json:"recipient_id"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewDirectMessage(senderID, recipientID string) (DirectMessage, error) {
	dm := DirectMessage{SenderID: senderID, RecipientID: recipientID}
	if err := dm.Validate(); err != nil {
		return DirectMessage{}, err
	}
	return dm, nil
}

func (d DirectMessage) GetID() string {
	return d.ID
}

func (d DirectMessage) Validate() error {
	if d.SenderID == "" || d.RecipientID == "" {
		return fmt.Errorf("sender_id and recipient_id are required")
	}
	if d.SenderID == d.RecipientID {
		return fmt.Errorf("cannot open a conversation with yourself")
	}
	return nil
}

// IsAIConversation reports whether replies are generated by the AI agent.
func (d DirectMessage) IsAIConversation() bool {
	return d.RecipientID == AIAgentID
}

// Involves reports whether userID is one of the two participants.
func (d DirectMessage) Involves(userID string) bool {
	return d.SenderID == userID || d.RecipientID == userID
}

// Counterpart returns the other participant from userID's point of view.
func (d DirectMessage) Counterpart(userID string) string {
	if d.SenderID == userID {
		return d.RecipientID
	}
	return d.SenderID
}

type Message struct {
	ID              string    `json:"id"`
	SenderID        string    `json:"sender_id"`
	DirectMessageID *string   `json:"direct_message_id"`
	ChannelID       *string   `json:"channel_id"`
	Content         string    `json:"content"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewMessage builds a message posted into a direct message conversation.
func NewMessage(directMessageID, senderID, content string) (Message, error) {
	m := Message{
		SenderID:        senderID,
		DirectMessageID: &directMessageID,
		Content:         content,
	}
	if err := m.Validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

func (m Message) GetID() string {
	return m.ID
}

// ConversationID returns the direct message id or "" for channel messages.
func (m Message) ConversationID() string {
	if m.DirectMessageID == nil {
		return ""
	}
	return *m.DirectMessageID
}

func (m Message) Validate() error {
	if m.SenderID == "" {
		return fmt.Errorf("sender_id is required")
	}
	if strings.TrimSpace(m.Content) == "" {
		return fmt.Errorf("message content is required")
	}
	hasDM := m.DirectMessageID != nil && *m.DirectMessageID != ""
	hasChannel := m.ChannelID != nil && *m.ChannelID != ""
	if hasDM == hasChannel {
		return fmt.Errorf("message must belong to exactly one of direct_message_id or channel_id")
	}
	return nil
}
