// Package note holds internal notes agents attach to tickets.
package note

import (
	"fmt"
	"strings"
	"time"
)

const Table = "internal_notes"

type InternalNote struct {
	ID          string    `json:"id"`
	TicketID    string    `json:"ticket_id"`
	UserID      string    `json:"user_id"`
	NoteContent string    `json:"note_content"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewInternalNote(ticketID, userID, content string) (InternalNote, error) {
	n := InternalNote{TicketID: ticketID, UserID: userID, NoteContent: content}
	if err := n.Validate(); err != nil {
		return InternalNote{}, err
	}
	return n, nil
}

func (n InternalNote) GetID() string {
	return n.ID
}

func (n InternalNote) Validate() error {
	if n.TicketID == "" {
		return fmt.Errorf("ticket_id is required")
	}
	if n.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if strings.TrimSpace(n.NoteContent) == "" {
		return fmt.Errorf("note content is required")
	}
	return nil
}
