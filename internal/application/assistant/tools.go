package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	apperrors "github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

const (
	ResultTicketSearch = "ticket_search_results"
	ResultUserSearch   = "user_search_results"
	ResultError        = "error"

	NoTicketsFound = "No matching tickets found."
	NoUsersFound   = "No matching users found."
)

var (
	statusOptions   = []vo.TicketStatus{vo.StatusOpen, vo.StatusPending, vo.StatusResolved}
	priorityOptions = []vo.Priority{vo.PriorityLow, vo.PriorityMedium, vo.PriorityHigh}
)

// ToolResult is the JSON document a tool returns to the agent and, through
// the reply, to the user.
type ToolResult struct {
	Type    string `json:"type"`
	Data    any    `json:"data,omitempty"`
	Display string `json:"display,omitempty"`
	Message string `json:"message,omitempty"`
}

type TicketSummary struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Status     vo.TicketStatus `json:"status"`
	Priority   vo.Priority     `json:"priority"`
	CustomerID string          `json:"customer_id"`
	CreatedAt  time.Time       `json:"created_at"`
}

type UserSummary struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      user.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateTicketInput is the argument of the createTicket tool.
type CreateTicketInput struct {
	Title      string `json:"title" jsonschema:"the title of the ticket"`
	Status     string `json:"status" jsonschema:"one of open, pending, resolved"`
	Priority   string `json:"priority" jsonschema:"one of low, medium, high"`
	CustomerID string `json:"customer_id" jsonschema:"the unique identifier of the customer"`
}

// Tools are the structured actions available to the agent. The same tools
// back the MCP server.
type Tools struct {
	tickets clientstate.Table[ticket.Ticket]
	users   clientstate.Table[user.User]
	mode    query.SearchMode
	logger  logger.Interface
}

func NewTools(tickets clientstate.Table[ticket.Ticket], users clientstate.Table[user.User], mode query.SearchMode, log logger.Interface) *Tools {
	if log == nil {
		log = logger.NewNop()
	}
	return &Tools{
		tickets: tickets,
		users:   users,
		mode:    mode,
		logger:  log.Named("tools"),
	}
}

// SearchTickets finds tickets whose title matches every term of q.
func (t *Tools) SearchTickets(ctx context.Context, q string) string {
	tickets, err := t.tickets.List(ctx, query.New(clientstate.SearchQuery("title", q, t.mode)))
	if err != nil {
		t.logger.Warnw("ticket search failed", "query", q, "error", err)
		return encodeResult(ToolResult{Type: ResultError, Message: errorMessage(err)})
	}
	if len(tickets) == 0 {
		return NoTicketsFound
	}

	data := make([]TicketSummary, len(tickets))
	lines := make([]string, len(tickets))
	for i, tk := range tickets {
		data[i] = TicketSummary{
			ID:         tk.ID,
			Title:      tk.Title,
			Status:     tk.Status,
			Priority:   tk.Priority,
			CustomerID: tk.CustomerID,
			CreatedAt:  tk.CreatedAt,
		}
		lines[i] = fmt.Sprintf("• **%s**\n  Status: %s | Priority: %s\n  Created: %s",
			tk.Title, tk.Status, tk.Priority, tk.CreatedAt.Format("2006-01-02"))
	}

	return encodeResult(ToolResult{
		Type:    ResultTicketSearch,
		Data:    data,
		Display: fmt.Sprintf("🎫 Found %d ticket(s):\n\n%s", len(tickets), strings.Join(lines, "\n\n")),
	})
}

// SearchUsers finds users whose email matches every term of q.
func (t *Tools) SearchUsers(ctx context.Context, q string) string {
	users, err := t.users.List(ctx, query.New(clientstate.SearchQuery("email", q, t.mode)))
	if err != nil {
		t.logger.Warnw("user search failed", "query", q, "error", err)
		return encodeResult(ToolResult{Type: ResultError, Message: errorMessage(err)})
	}
	if len(users) == 0 {
		return NoUsersFound
	}

	data := make([]UserSummary, len(users))
	lines := make([]string, len(users))
	for i, u := range users {
		data[i] = UserSummary{ID: u.ID, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
		lines[i] = fmt.Sprintf("• **%s** (%s)\n  Created: %s", u.Email, u.Role, u.CreatedAt.Format("2006-01-02"))
	}

	return encodeResult(ToolResult{
		Type:    ResultUserSearch,
		Data:    data,
		Display: fmt.Sprintf("🔍 Found %d user(s):\n\n%s", len(users), strings.Join(lines, "\n")),
	})
}

// CreateTicket validates in and inserts a ticket. Failures are reported in
// the returned text, not as an error, so the agent can relay them.
func (t *Tools) CreateTicket(ctx context.Context, in CreateTicketInput) string {
	if err := validateTicketInput(in); err != nil {
		return "Failed to create ticket: " + err.Error()
	}

	tk, err := ticket.NewTicket(in.Title, "", strings.TrimSpace(in.CustomerID),
		vo.TicketStatus(in.Status), vo.Priority(in.Priority))
	if err != nil {
		return "Failed to create ticket: " + err.Error()
	}
	created, err := t.tickets.Insert(ctx, tk)
	if err != nil {
		t.logger.Warnw("ticket creation failed", "title", tk.Title, "error", err)
		return "Failed to create ticket: " + apperrors.Message(err, "")
	}

	t.logger.Infow("ticket created by assistant", "ticket_id", created.ID)
	return "Successfully created ticket: " + created.Title
}

func validateTicketInput(in CreateTicketInput) error {
	if !vo.TicketStatus(in.Status).IsValid() {
		return fmt.Errorf("Invalid status. Must be one of: %s", joinOptions(statusOptions))
	}
	if !vo.Priority(in.Priority).IsValid() {
		return fmt.Errorf("Invalid priority. Must be one of: %s", joinOptions(priorityOptions))
	}
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("Title is required")
	}
	if strings.TrimSpace(in.CustomerID) == "" {
		return fmt.Errorf("Customer ID is required")
	}
	return nil
}

func joinOptions[T ~string](opts []T) string {
	s := make([]string, len(opts))
	for i, o := range opts {
		s[i] = string(o)
	}
	return strings.Join(s, ", ")
}

func encodeResult(r ToolResult) string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"type":"error","message":%q}`, err.Error())
	}
	return string(b)
}
