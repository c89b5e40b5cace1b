package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	apperrors "github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

func TestTools_SearchTickets(t *testing.T) {
	created := time.Date(2026, 3, 4, 9, 0, 0, 0, time.UTC)
	var got query.Query
	tickets := &mockTable[ticket.Ticket]{ListFunc: func(_ context.Context, q query.Query) ([]ticket.Ticket, error) {
		got = q
		return []ticket.Ticket{{
			ID: "t1", Title: "Printer jam", Status: vo.StatusOpen, Priority: vo.PriorityHigh,
			CustomerID: "c1", CreatedAt: created,
		}}, nil
	}}
	tools := NewTools(tickets, nil, query.SearchPerTerm, nil)

	out := tools.SearchTickets(context.Background(), " printer  jam ")

	require.NotNil(t, got.Search)
	assert.Equal(t, "title", got.Search.Column)
	assert.Equal(t, []string{"printer", "jam"}, got.Search.Terms)
	assert.Equal(t, "created_at DESC", got.OrderClause())

	var result struct {
		Type    string          `json:"type"`
		Data    []TicketSummary `json:"data"`
		Display string          `json:"display"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, ResultTicketSearch, result.Type)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "t1", result.Data[0].ID)
	assert.Equal(t, vo.PriorityHigh, result.Data[0].Priority)
	assert.Contains(t, result.Display, "Found 1 ticket(s)")
	assert.Contains(t, result.Display, "**Printer jam**")
	assert.Contains(t, result.Display, "Created: 2026-03-04")
}

func TestTools_SearchEmptyAndFailing(t *testing.T) {
	empty := &mockTable[ticket.Ticket]{ListFunc: func(context.Context, query.Query) ([]ticket.Ticket, error) {
		return nil, nil
	}}
	noUsers := &mockTable[user.User]{ListFunc: func(context.Context, query.Query) ([]user.User, error) {
		return nil, nil
	}}
	tools := NewTools(empty, noUsers, query.SearchPerTerm, nil)
	assert.Equal(t, NoTicketsFound, tools.SearchTickets(context.Background(), "nothing"))
	assert.Equal(t, NoUsersFound, tools.SearchUsers(context.Background(), "nobody"))

	failing := &mockTable[user.User]{ListFunc: func(context.Context, query.Query) ([]user.User, error) {
		return nil, errors.New("connection refused")
	}}
	tools = NewTools(empty, failing, query.SearchPerTerm, nil)
	assert.JSONEq(t, `{"type":"error","message":"Search failed: connection refused"}`,
		tools.SearchUsers(context.Background(), "alice"))
}

func TestTools_SearchUsers(t *testing.T) {
	users := &mockTable[user.User]{ListFunc: func(_ context.Context, q query.Query) ([]user.User, error) {
		assert.Equal(t, "email", q.Search.Column)
		return []user.User{
			{ID: "u1", Email: "alice@example.com", Role: user.RoleAdmin},
			{ID: "u2", Email: "alicia@example.com", Role: user.RoleCustomer},
		}, nil
	}}
	out := NewTools(nil, users, query.SearchPerTerm, nil).SearchUsers(context.Background(), "ali")

	var result ToolResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, ResultUserSearch, result.Type)
	assert.Len(t, result.Data, 2)
	assert.Contains(t, result.Display, "Found 2 user(s)")
	assert.Contains(t, result.Display, "**alicia@example.com** (customer)")
}

func TestTools_CreateTicket(t *testing.T) {
	tests := []struct {
		name      string
		in        CreateTicketInput
		insertErr error
		want      string
	}{
		{
			name: "created",
			in:   CreateTicketInput{Title: " Printer jam ", Status: "open", Priority: "high", CustomerID: " c1 "},
			want: "Successfully created ticket: Printer jam",
		},
		{
			name: "bad status",
			in:   CreateTicketInput{Title: "x", Status: "closed", Priority: "high", CustomerID: "c1"},
			want: "Failed to create ticket: Invalid status. Must be one of: open, pending, resolved",
		},
		{
			name: "bad priority",
			in:   CreateTicketInput{Title: "x", Status: "open", Priority: "urgent", CustomerID: "c1"},
			want: "Failed to create ticket: Invalid priority. Must be one of: low, medium, high",
		},
		{
			name: "missing title",
			in:   CreateTicketInput{Title: " ", Status: "open", Priority: "low", CustomerID: "c1"},
			want: "Failed to create ticket: Title is required",
		},
		{
			name: "missing customer",
			in:   CreateTicketInput{Title: "x", Status: "open", Priority: "low"},
			want: "Failed to create ticket: Customer ID is required",
		},
		{
			name:      "insert fails",
			in:        CreateTicketInput{Title: "x", Status: "open", Priority: "low", CustomerID: "c1"},
			insertErr: apperrors.NewConflictError("ticket already exists"),
			want:      "Failed to create ticket: ticket already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inserted *ticket.Ticket
			tickets := &mockTable[ticket.Ticket]{InsertFunc: func(_ context.Context, tk ticket.Ticket) (ticket.Ticket, error) {
				if tt.insertErr != nil {
					return ticket.Ticket{}, tt.insertErr
				}
				inserted = &tk
				tk.ID = "t-new"
				return tk, nil
			}}

			got := NewTools(tickets, nil, query.SearchPerTerm, nil).CreateTicket(context.Background(), tt.in)
			assert.Equal(t, tt.want, got)
			if tt.name == "created" {
				require.NotNil(t, inserted)
				assert.Equal(t, "c1", inserted.CustomerID)
				assert.Equal(t, vo.PriorityHigh, inserted.Priority)
			}
		})
	}
}
