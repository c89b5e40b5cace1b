// Package ticket holds the support ticket entity.
package ticket

import (
	"fmt"
	"strings"
	"time"

	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
)

// Table is the backend table name, also used as the change feed topic.
const Table = "tickets"

const maxTitleLength = 200

type Ticket struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Status      vo.TicketStatus `json:"status"`
	Priority    vo.Priority     `json:"priority"`
	CustomerID  string          `json:"customer_id"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NewTicket builds an unsaved ticket. Empty status and priority default to
// open and medium.
func NewTicket(title, description, customerID string, status vo.TicketStatus, priority vo.Priority) (Ticket, error) {
	if status == "" {
		status = vo.StatusOpen
	}
	if priority == "" {
		priority = vo.PriorityMedium
	}

	t := Ticket{
		Title:       strings.TrimSpace(title),
		Description: description,
		Status:      status,
		Priority:    priority,
		CustomerID:  customerID,
	}
	if err := t.Validate(); err != nil {
		return Ticket{}, err
	}
	return t, nil
}

func (t Ticket) GetID() string {
	return t.ID
}

func (t Ticket) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > maxTitleLength {
		return fmt.Errorf("title exceeds maximum length of %d characters", maxTitleLength)
	}
	if t.CustomerID == "" {
		return fmt.Errorf("customer_id is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid ticket status: %s", t.Status)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("invalid priority: %s", t.Priority)
	}
	return nil
}
