package ticket

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/domain/note"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/testutil"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

const (
	customerID = "7f0c8a1e-1111-4a55-9c7e-000000000001"
	otherID    = "7f0c8a1e-1111-4a55-9c7e-000000000002"
	staffID    = "7f0c8a1e-1111-4a55-9c7e-000000000003"
	ticketID   = "2b9d6f3c-2222-4b66-8d8f-000000000010"
	noteID     = "2b9d6f3c-2222-4b66-8d8f-000000000020"
)

func init() {
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
}

func newHandler() (*TicketHandler, *testutil.MockTable[ticket.Ticket], *testutil.MockTable[note.InternalNote]) {
	tickets := &testutil.MockTable[ticket.Ticket]{TableName: "tickets"}
	notes := &testutil.MockTable[note.InternalNote]{TableName: "internal_notes"}
	return NewTicketHandler(tickets, notes, query.SearchPerTerm, logger.NewNop()), tickets, notes
}

func storedTicket(owner string) ticket.Ticket {
	return ticket.Ticket{
		ID:         ticketID,
		Title:      "Printer on fire",
		Status:     vo.StatusOpen,
		Priority:   vo.PriorityHigh,
		CustomerID: owner,
		CreatedAt:  time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestCreateTicket(t *testing.T) {
	tests := []struct {
		name         string
		role         user.Role
		body         map[string]any
		wantStatus   int
		wantCustomer string
	}{
		{
			name:         "customer files for themselves",
			role:         user.RoleCustomer,
			body:         map[string]any{"title": "  Printer on fire ", "customer_id": otherID},
			wantStatus:   http.StatusCreated,
			wantCustomer: customerID,
		},
		{
			name:         "staff files for a customer",
			role:         user.RoleEmployee,
			body:         map[string]any{"title": "Refund", "customer_id": otherID, "priority": "high"},
			wantStatus:   http.StatusCreated,
			wantCustomer: otherID,
		},
		{
			name:       "missing title",
			role:       user.RoleCustomer,
			body:       map[string]any{"description": "no title"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid status",
			role:       user.RoleCustomer,
			body:       map[string]any{"title": "x", "status": "closed"},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, tickets, _ := newHandler()
			var inserted ticket.Ticket
			tickets.InsertFunc = func(_ context.Context, v ticket.Ticket) (ticket.Ticket, error) {
				inserted = v
				v.ID = ticketID
				return v, nil
			}

			c, w := testutil.NewTestContext(http.MethodPost, "/tickets", tt.body)
			callerID := customerID
			if tt.role.IsStaff() {
				callerID = staffID
			}
			testutil.SetAuthContext(c, callerID, tt.role)

			h.CreateTicket(c)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus != http.StatusCreated {
				return
			}
			assert.Equal(t, tt.wantCustomer, inserted.CustomerID)
			assert.Equal(t, vo.StatusOpen, inserted.Status)
			got, err := testutil.DecodeData[ticket.Ticket](w)
			require.NoError(t, err)
			assert.Equal(t, ticketID, got.ID)
		})
	}
}

func TestCreateTicket_ValidationDetails(t *testing.T) {
	h, _, _ := newHandler()
	c, w := testutil.NewTestContext(http.MethodPost, "/tickets", map[string]any{"title": "x", "priority": "urgent"})
	testutil.SetAuthContext(c, customerID, user.RoleCustomer)

	h.CreateTicket(c)

	var resp testutil.APIResponse
	require.NoError(t, testutil.ParseResponse(w, &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "priority must be one of: low, medium, high", resp.Error.Details)
}

func TestListTickets_ScopesCustomers(t *testing.T) {
	h, tickets, _ := newHandler()
	tickets.ListFunc = func(context.Context, query.Query) ([]ticket.Ticket, error) {
		return []ticket.Ticket{storedTicket(customerID)}, nil
	}

	c, w := testutil.NewTestContext(http.MethodGet, "/tickets", nil)
	testutil.SetQueryParams(c, map[string]string{"search": "  printer   fire ", "status": "open"})
	testutil.SetAuthContext(c, customerID, user.RoleCustomer)

	h.ListTickets(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, tickets.Queries, 1)
	q := tickets.Queries[0]
	require.NotNil(t, q.Search)
	assert.Equal(t, []string{"printer", "fire"}, q.Search.Terms)
	assert.Equal(t, "title", q.Search.Column)
	assert.Contains(t, q.Conditions, query.Condition{Column: "status", Value: "open"})
	assert.Contains(t, q.Conditions, query.Condition{Column: "customer_id", Value: customerID})
	assert.False(t, q.Paged())

	list, err := testutil.DecodeData[testutil.ListData[ticket.Ticket]](w)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Count)
}

func TestListTickets_StaffSeesAllAndPages(t *testing.T) {
	h, tickets, _ := newHandler()

	c, w := testutil.NewTestContext(http.MethodGet, "/tickets", nil)
	testutil.SetQueryParams(c, map[string]string{"page": "2", "page_size": "10"})
	testutil.SetAuthContext(c, staffID, user.RoleEmployee)

	h.ListTickets(c)

	require.Equal(t, http.StatusOK, w.Code)
	q := tickets.Queries[0]
	assert.Empty(t, q.Conditions)
	assert.Nil(t, q.Search)
	assert.Equal(t, 10, q.Offset())

	list, err := testutil.DecodeData[testutil.ListData[ticket.Ticket]](w)
	require.NoError(t, err)
	assert.Empty(t, list.Items)
	assert.Equal(t, 2, list.Page)
}

func TestListTickets_RejectsUnknownPriority(t *testing.T) {
	h, tickets, _ := newHandler()
	c, w := testutil.NewTestContext(http.MethodGet, "/tickets", nil)
	testutil.SetQueryParams(c, map[string]string{"priority": "urgent"})
	testutil.SetAuthContext(c, staffID, user.RoleEmployee)

	h.ListTickets(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, tickets.Queries)
}

func TestGetTicket(t *testing.T) {
	tests := []struct {
		name       string
		callerID   string
		role       user.Role
		param      string
		wantStatus int
	}{
		{name: "owner", callerID: customerID, role: user.RoleCustomer, param: ticketID, wantStatus: http.StatusOK},
		{name: "other customer", callerID: otherID, role: user.RoleCustomer, param: ticketID, wantStatus: http.StatusNotFound},
		{name: "staff", callerID: staffID, role: user.RoleAdmin, param: ticketID, wantStatus: http.StatusOK},
		{name: "bad id", callerID: customerID, role: user.RoleCustomer, param: "42", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, tickets, _ := newHandler()
			tickets.GetFunc = func(context.Context, string) (ticket.Ticket, error) {
				return storedTicket(customerID), nil
			}

			c, w := testutil.NewTestContext(http.MethodGet, "/tickets/"+tt.param, nil)
			testutil.SetURLParam(c, "id", tt.param)
			testutil.SetAuthContext(c, tt.callerID, tt.role)

			h.GetTicket(c)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestUpdateTicket(t *testing.T) {
	h, tickets, _ := newHandler()
	var gotPatch map[string]any
	tickets.UpdateFunc = func(_ context.Context, id string, patch map[string]any) (ticket.Ticket, error) {
		gotPatch = patch
		tk := storedTicket(customerID)
		tk.Status = vo.StatusResolved
		return tk, nil
	}

	c, w := testutil.NewTestContext(http.MethodPatch, "/tickets/"+ticketID, map[string]any{"status": "resolved"})
	testutil.SetURLParam(c, "id", ticketID)
	testutil.SetAuthContext(c, staffID, user.RoleEmployee)

	h.UpdateTicket(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "resolved"}, gotPatch)

	c, w = testutil.NewTestContext(http.MethodPatch, "/tickets/"+ticketID, map[string]any{})
	testutil.SetURLParam(c, "id", ticketID)
	h.UpdateTicket(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Any status may follow any other, but it must be one of the three.
	gotPatch = nil
	c, w = testutil.NewTestContext(http.MethodPatch, "/tickets/"+ticketID, map[string]any{"status": "open"})
	testutil.SetURLParam(c, "id", ticketID)
	testutil.SetAuthContext(c, staffID, user.RoleEmployee)
	h.UpdateTicket(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "open"}, gotPatch)

	gotPatch = nil
	c, w = testutil.NewTestContext(http.MethodPatch, "/tickets/"+ticketID, map[string]any{"status": "archived"})
	testutil.SetURLParam(c, "id", ticketID)
	testutil.SetAuthContext(c, staffID, user.RoleEmployee)
	h.UpdateTicket(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, gotPatch)
}

func TestNotes(t *testing.T) {
	h, tickets, notes := newHandler()
	tickets.GetFunc = func(context.Context, string) (ticket.Ticket, error) {
		return storedTicket(customerID), nil
	}
	notes.InsertFunc = func(_ context.Context, n note.InternalNote) (note.InternalNote, error) {
		n.ID = noteID
		return n, nil
	}
	notes.GetFunc = func(context.Context, string) (note.InternalNote, error) {
		return note.InternalNote{ID: noteID, TicketID: "2b9d6f3c-2222-4b66-8d8f-999999999999"}, nil
	}

	c, w := testutil.NewTestContext(http.MethodPost, "/tickets/"+ticketID+"/notes", map[string]any{"note_content": "Called the customer"})
	testutil.SetURLParam(c, "id", ticketID)
	testutil.SetAuthContext(c, staffID, user.RoleEmployee)
	h.AddNote(c)
	require.Equal(t, http.StatusCreated, w.Code)
	created, err := testutil.DecodeData[note.InternalNote](w)
	require.NoError(t, err)
	assert.Equal(t, staffID, created.UserID)
	assert.Equal(t, ticketID, created.TicketID)

	c, w = testutil.NewTestContext(http.MethodGet, "/tickets/"+ticketID+"/notes", nil)
	testutil.SetURLParam(c, "id", ticketID)
	testutil.SetAuthContext(c, staffID, user.RoleEmployee)
	h.ListNotes(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, notes.Queries[0].Conditions, query.Condition{Column: "ticket_id", Value: ticketID})

	// A note of another ticket is not deleted through this ticket.
	deleted := false
	notes.DeleteFunc = func(context.Context, string) error {
		deleted = true
		return nil
	}
	c, w = testutil.NewTestContext(http.MethodDelete, "/tickets/"+ticketID+"/notes/"+noteID, nil)
	testutil.SetURLParam(c, "id", ticketID)
	testutil.SetURLParam(c, "note_id", noteID)
	testutil.SetAuthContext(c, staffID, user.RoleEmployee)
	h.DeleteNote(c)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, deleted)
}
