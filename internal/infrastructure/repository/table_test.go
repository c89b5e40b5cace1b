package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/autocrm-inc/autocrm/internal/domain/audit"
	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/shared/actor"
	db "github.com/autocrm-inc/autocrm/internal/shared/db"
	apperrors "github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []changefeed.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e changefeed.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) tables() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Table + ":" + string(e.Operation)
	}
	return out
}

func (p *recordingPublisher) last(table string) changefeed.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.events) - 1; i >= 0; i-- {
		if p.events[i].Table == table {
			return p.events[i]
		}
	}
	return changefeed.Event{}
}

func setupTestDB(t *testing.T) *gorm.DB {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	// Every connection to :memory: is its own database.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, gdb.AutoMigrate(AllModels()...))
	return gdb
}

func setupTables(t *testing.T) (*Tables, *recordingPublisher, *gorm.DB) {
	gdb := setupTestDB(t)
	pub := &recordingPublisher{}
	return NewTables(gdb, pub, nil), pub, gdb
}

func newTicket(title string, createdAt time.Time) ticket.Ticket {
	return ticket.Ticket{
		Title:      title,
		Status:     vo.StatusOpen,
		Priority:   vo.PriorityMedium,
		CustomerID: "c1",
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

func TestTable_Insert(t *testing.T) {
	tables, pub, _ := setupTables(t)
	ctx := actor.WithUserID(context.Background(), "agent-1")

	created, err := tables.Tickets.Insert(ctx, newTicket("Printer on fire", time.Time{}))
	require.NoError(t, err)

	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, []string{"tickets:INSERT", "audit_logs:INSERT"}, pub.tables())

	e := pub.last(ticket.Table)
	decoded, err := changefeed.Decode[ticket.Ticket](ticket.Table, e)
	require.NoError(t, err)
	assert.Equal(t, changefeed.Inserted, decoded.Kind)
	assert.Equal(t, created.ID, decoded.ID)

	logs, err := tables.AuditLogs.List(ctx, query.New())
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "tickets", logs[0].TableName)
	assert.Equal(t, audit.OperationInsert, logs[0].Operation)
	assert.Equal(t, "agent-1", logs[0].ChangedBy)
	assert.Nil(t, logs[0].OldData)
	assert.Contains(t, string(logs[0].NewData), "Printer on fire")
}

func TestTable_InsertValidation(t *testing.T) {
	tables, pub, _ := setupTables(t)

	_, err := tables.Tickets.Insert(context.Background(), ticket.Ticket{Title: "no customer", Status: vo.StatusOpen, Priority: vo.PriorityLow})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidationError(err))
	assert.Equal(t, "invalid ticket: customer_id is required", apperrors.Message(err, ""))
	assert.Empty(t, pub.tables())
}

func TestTable_Update(t *testing.T) {
	tables, pub, _ := setupTables(t)
	ctx := context.Background()

	created, err := tables.Tickets.Insert(ctx, newTicket("T1", time.Time{}))
	require.NoError(t, err)

	t.Run("applies patch", func(t *testing.T) {
		updated, err := tables.Tickets.Update(ctx, created.ID, map[string]any{"status": "resolved"})
		require.NoError(t, err)
		assert.Equal(t, vo.StatusResolved, updated.Status)
		assert.Equal(t, "T1", updated.Title)

		e := pub.last(ticket.Table)
		assert.Equal(t, changefeed.OperationUpdate, e.Operation)
		c, err := changefeed.Decode[ticket.Ticket](ticket.Table, e)
		require.NoError(t, err)
		assert.Equal(t, vo.StatusOpen, c.Old.Status)
		assert.Equal(t, vo.StatusResolved, c.New.Status)
	})

	t.Run("rejects column outside the updatable set", func(t *testing.T) {
		_, err := tables.Tickets.Update(ctx, created.ID, map[string]any{"id": "other"})
		assert.True(t, apperrors.IsValidationError(err))
	})

	t.Run("rejects invalid value", func(t *testing.T) {
		before := len(pub.tables())
		_, err := tables.Tickets.Update(ctx, created.ID, map[string]any{"status": "closed"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidationError(err))
		assert.Len(t, pub.tables(), before)

		got, err := tables.Tickets.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, vo.StatusResolved, got.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := tables.Tickets.Update(ctx, "missing", map[string]any{"title": "x"})
		assert.True(t, apperrors.IsNotFoundError(err))
	})
}

func TestTable_Delete(t *testing.T) {
	tables, pub, _ := setupTables(t)
	ctx := context.Background()

	created, err := tables.Tickets.Insert(ctx, newTicket("T1", time.Time{}))
	require.NoError(t, err)

	require.NoError(t, tables.Tickets.Delete(ctx, created.ID))

	e := pub.last(ticket.Table)
	assert.Equal(t, changefeed.OperationDelete, e.Operation)
	assert.Empty(t, e.New)
	assert.Equal(t, created.ID, e.RowID())

	_, err = tables.Tickets.Get(ctx, created.ID)
	assert.True(t, apperrors.IsNotFoundError(err))
	assert.True(t, apperrors.IsNotFoundError(tables.Tickets.Delete(ctx, created.ID)))
}

func TestTable_List(t *testing.T) {
	tables, _, _ := setupTables(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, title := range []string{"Login fails on mobile", "Billing question", "Mobile app crash", "Login page typo"} {
		_, err := tables.Tickets.Insert(ctx, newTicket(title, base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	titles := func(ts []ticket.Ticket) []string {
		out := make([]string, len(ts))
		for i, tk := range ts {
			out[i] = tk.Title
		}
		return out
	}

	tests := []struct {
		name string
		q    query.Query
		want []string
	}{
		{
			name: "newest first",
			q:    query.New(),
			want: []string{"Login page typo", "Mobile app crash", "Billing question", "Login fails on mobile"},
		},
		{
			name: "every term must match",
			q:    query.New(query.WithSearch("title", []string{"login", "MOBILE"}, query.SearchPerTerm)),
			want: []string{"Login fails on mobile"},
		},
		{
			name: "single term",
			q:    query.New(query.WithSearch("title", []string{"login"}, query.SearchPerTerm)),
			want: []string{"Login page typo", "Login fails on mobile"},
		},
		{
			name: "full text falls back to the combined string",
			q:    query.New(query.WithSearch("title", []string{"app", "crash"}, query.SearchFullText)),
			want: []string{"Mobile app crash"},
		},
		{
			name: "wildcards are literal",
			q:    query.New(query.WithSearch("title", []string{"%"}, query.SearchPerTerm)),
			want: []string{},
		},
		{
			name: "paged",
			q:    query.New(query.WithPage(2, 3)),
			want: []string{"Login fails on mobile"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tables.Tickets.List(ctx, tt.q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(got))
		})
	}

	t.Run("unknown column is rejected", func(t *testing.T) {
		_, err := tables.Tickets.List(ctx, query.New(query.Where("password", "x")))
		assert.Error(t, err)
	})
}

func TestTable_ListAnyOf(t *testing.T) {
	tables, _, _ := setupTables(t)
	ctx := context.Background()

	for _, dm := range []message.DirectMessage{
		{SenderID: "u1", RecipientID: "u2"},
		{SenderID: "u3", RecipientID: "u1"},
		{SenderID: "u2", RecipientID: "u3"},
	} {
		_, err := tables.DirectMessages.Insert(ctx, dm)
		require.NoError(t, err)
	}

	got, err := tables.DirectMessages.List(ctx, query.New(query.WhereAny(
		query.Condition{Column: "sender_id", Value: "u1"},
		query.Condition{Column: "recipient_id", Value: "u1"},
	)))
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, dm := range got {
		assert.True(t, dm.Involves("u1"))
	}
}

func TestTable_AuditLogsOrderedByChangeTime(t *testing.T) {
	tables, _, _ := setupTables(t)
	ctx := context.Background()

	first, err := tables.Tickets.Insert(ctx, newTicket("T1", time.Time{}))
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = tables.Tickets.Update(ctx, first.ID, map[string]any{"title": "T1 renamed"})
	require.NoError(t, err)

	logs, err := tables.AuditLogs.List(ctx, query.New())
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, audit.OperationUpdate, logs[0].Operation)
	assert.Contains(t, logs[0].ChangedFields(), "title")
	assert.Equal(t, audit.OperationInsert, logs[1].Operation)
}

func TestTable_AuditLogsAreReadOnly(t *testing.T) {
	tables, _, _ := setupTables(t)

	_, err := tables.AuditLogs.Insert(context.Background(), audit.AuditLog{TableName: "tickets", Operation: audit.OperationInsert})
	appErr := apperrors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.ErrorTypeForbidden, appErr.Type)
}

func TestTable_EventsWaitForCommit(t *testing.T) {
	tables, pub, gdb := setupTables(t)
	tm := db.NewTransactionManager(gdb)
	ctx := context.Background()
	errAbort := errors.New("abort")

	err := tm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := tables.Tickets.Insert(ctx, newTicket("rolled back", time.Time{})); err != nil {
			return err
		}
		assert.Empty(t, pub.tables())
		return errAbort
	})
	require.ErrorIs(t, err, errAbort)
	assert.Empty(t, pub.tables())

	got, err := tables.Tickets.List(ctx, query.New())
	require.NoError(t, err)
	assert.Empty(t, got)

	err = tm.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := tables.Tickets.Insert(ctx, newTicket("kept", time.Time{}))
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tickets:INSERT", "audit_logs:INSERT"}, pub.tables())
}

func TestTable_NoPublisher(t *testing.T) {
	gdb := setupTestDB(t)
	tables := NewTables(gdb, nil, nil)
	ctx := context.Background()

	_, err := tables.Users.Insert(ctx, newUser(t, "a@example.com"))
	require.NoError(t, err)

	logs, err := tables.AuditLogs.List(ctx, query.New())
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestTable_DeleteBefore(t *testing.T) {
	tables, _, _ := setupTables(t)
	ctx := context.Background()

	_, err := tables.Users.Insert(ctx, newUser(t, "a@example.com"))
	require.NoError(t, err)

	n, err := tables.AuditLogs.DeleteBefore(ctx, "changed_at", time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = tables.AuditLogs.DeleteBefore(ctx, "changed_at", time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = tables.AuditLogs.DeleteBefore(ctx, "new_data", time.Now())
	assert.Error(t, err)
}

func newUser(t *testing.T, email string) user.User {
	t.Helper()
	u, err := user.NewUser(email, user.RoleCustomer)
	require.NoError(t, err)
	return u
}

func TestPatchEntity(t *testing.T) {
	dm := "dm1"
	m := message.Message{ID: "m1", SenderID: "u1", DirectMessageID: &dm, Content: "hi"}

	got, err := patchEntity(m, map[string]any{"content": "edited"})
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Content)
	assert.Equal(t, "dm1", got.ConversationID())

	_, err = patchEntity(m, map[string]any{"content": 42})
	var typeErr *json.UnmarshalTypeError
	assert.ErrorAs(t, err, &typeErr)
}
