package clientstate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

const waitFor = 2 * time.Second

type recordingMetrics struct {
	nopMetrics
	mu          sync.Mutex
	dropped     map[string]int
	reconnected int
	opened      int
	closed      int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{dropped: map[string]int{}}
}

func (m *recordingMetrics) EventDropped(_, reason string) {
	m.mu.Lock()
	m.dropped[reason]++
	m.mu.Unlock()
}

func (m *recordingMetrics) StreamReconnected(string) {
	m.mu.Lock()
	m.reconnected++
	m.mu.Unlock()
}

func (m *recordingMetrics) SubscriptionOpened(string) {
	m.mu.Lock()
	m.opened++
	m.mu.Unlock()
}

func (m *recordingMetrics) SubscriptionClosed(string) {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
}

func (m *recordingMetrics) droppedFor(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped[reason]
}

func (m *recordingMetrics) closedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *recordingMetrics) reconnects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnected
}

func ticketIDsAndStatus(items []ticket.Ticket) map[string]vo.TicketStatus {
	out := make(map[string]vo.TicketStatus, len(items))
	for _, t := range items {
		out[t.ID] = t.Status
	}
	return out
}

func TestSubscription_CreateThenResolvedEvent(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	table := newFakeTable[ticket.Ticket](ticket.Table, feed)
	store := NewStore[ticket.Ticket](table, StoreOptions{DeletePolicy: DeleteIgnore})

	sub, err := Subscribe(ctx, store, feed, SubscriptionConfig{
		Requests: []changefeed.Request{{Table: ticket.Table}},
	}, logger.NewNop())
	require.NoError(t, err)
	defer sub.Close()

	assert.True(t, sub.Live())
	assert.Empty(t, store.Items())

	require.NoError(t, store.Create(ctx, mkTicket("T1", "X", vo.StatusOpen)))
	require.NoError(t, store.Update(ctx, "T1", map[string]any{"status": "resolved"}))

	require.Eventually(t, func() bool {
		items := store.Items()
		return len(items) == 1 && items[0].ID == "T1" && items[0].Status == vo.StatusResolved
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, "X", store.Items()[0].Title)
}

func TestSubscription_InitialFetchThenEvents(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	table := newFakeTable(ticket.Table, feed, mkTicket("t1", "a", vo.StatusOpen))
	store := NewStore[ticket.Ticket](table, StoreOptions{})

	sub, err := Subscribe(ctx, store, feed, SubscriptionConfig{
		Requests: []changefeed.Request{{Table: ticket.Table}},
	}, nil)
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, []string{"t1"}, ids(store.Items()))

	_, err = table.Insert(ctx, mkTicket("t2", "b", vo.StatusOpen))
	require.NoError(t, err)
	require.NoError(t, table.Delete(ctx, "t1"))

	require.Eventually(t, func() bool {
		got := ids(store.Items())
		return len(got) == 1 && got[0] == "t2"
	}, waitFor, 5*time.Millisecond)
}

func TestSubscription_TicketDeleteIgnored(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	metrics := newRecordingMetrics()
	table := newFakeTable(ticket.Table, feed, mkTicket("t1", "a", vo.StatusOpen))
	store := NewStore[ticket.Ticket](table, StoreOptions{DeletePolicy: DeleteIgnore, Metrics: metrics})

	sub, err := Subscribe(ctx, store, feed, SubscriptionConfig{
		Requests: []changefeed.Request{{Table: ticket.Table}},
	}, nil)
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, table.Delete(ctx, "t1"))

	require.Eventually(t, func() bool { return metrics.droppedFor("delete_ignored") == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"t1"}, ids(store.Items()))
}

func TestSubscription_FanInDeduplicates(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	metrics := newRecordingMetrics()
	table := newFakeTable[message.DirectMessage](message.DirectMessageTable, feed)
	store := NewStore[message.DirectMessage](table, StoreOptions{Metrics: metrics})

	inserts := []changefeed.Operation{changefeed.OperationInsert}
	sub, err := Subscribe(ctx, store, feed, SubscriptionConfig{
		Requests: []changefeed.Request{
			{Table: message.DirectMessageTable, Operations: inserts, Filter: changefeed.Eq("sender_id", "u1")},
			{Table: message.DirectMessageTable, Operations: inserts, Filter: changefeed.Eq("recipient_id", "u1")},
		},
	}, nil)
	require.NoError(t, err)
	defer sub.Close()

	// Matches both filters, so both streams deliver the same event.
	_, err = table.Insert(ctx, message.DirectMessage{ID: "dm1", SenderID: "u1", RecipientID: "u1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return metrics.droppedFor("duplicate") == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return store.Len() == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "dm1", store.Items()[0].ID)
}

func TestSubscription_SearchIsOneShot(t *testing.T) {
	feed := newFakeFeed()
	table := newFakeTable(ticket.Table, feed,
		mkTicket("t2", "login bug", vo.StatusOpen),
		mkTicket("t1", "billing", vo.StatusOpen),
	)
	store := NewStore[ticket.Ticket](table, StoreOptions{SearchColumn: "title"})

	sub, err := Subscribe(context.Background(), store, feed, SubscriptionConfig{
		Requests: []changefeed.Request{{Table: ticket.Table}},
		Search:   "bug",
	}, nil)
	require.NoError(t, err)
	defer sub.Close()

	assert.False(t, sub.Live())
	assert.Equal(t, 0, feed.openCount())
	assert.Equal(t, []string{"t2"}, ids(store.Items()))
}

func TestSubscription_RejectsForeignTable(t *testing.T) {
	store := NewStore[ticket.Ticket](newFakeTable[ticket.Ticket](ticket.Table, nil), StoreOptions{})

	_, err := Subscribe(context.Background(), store, newFakeFeed(), SubscriptionConfig{
		Requests: []changefeed.Request{{Table: "users"}},
	}, nil)

	require.Error(t, err)
}

func TestSubscription_FeedRefusal(t *testing.T) {
	feed := newFakeFeed()
	feed.setSubscribeErr(errors.New("hub closed"))
	store := NewStore[ticket.Ticket](newFakeTable[ticket.Ticket](ticket.Table, feed), StoreOptions{})

	_, err := Subscribe(context.Background(), store, feed, SubscriptionConfig{
		Requests: []changefeed.Request{{Table: ticket.Table}},
	}, nil)

	require.Error(t, err)
	assert.Contains(t, store.Err(), "hub closed")
}

func TestSubscription_ReconnectsAndResyncs(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	metrics := newRecordingMetrics()
	table := newFakeTable(ticket.Table, feed, mkTicket("t1", "a", vo.StatusOpen))
	store := NewStore[ticket.Ticket](table, StoreOptions{Metrics: metrics})

	sub, err := Subscribe(ctx, store, feed, SubscriptionConfig{
		Requests:     []changefeed.Request{{Table: ticket.Table}},
		ReconnectMin: 5 * time.Millisecond,
		ReconnectMax: 20 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	defer sub.Close()

	// A row committed without an event is only visible through the refetch.
	table.mu.Lock()
	table.rows = append([]ticket.Ticket{mkTicket("t2", "missed", vo.StatusOpen)}, table.rows...)
	table.mu.Unlock()
	feed.drop(errors.New("evicted"))

	require.Eventually(t, func() bool { return metrics.reconnects() == 1 }, waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool { return store.Len() == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 2, feed.openCount())

	_, err = table.Update(ctx, "t1", map[string]any{"status": "pending"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return ticketIDsAndStatus(store.Items())["t1"] == vo.StatusPending
	}, waitFor, 5*time.Millisecond)
}

func TestSubscription_ReconnectBacksOffWhileFeedRefuses(t *testing.T) {
	feed := newFakeFeed()
	metrics := newRecordingMetrics()
	table := newFakeTable[ticket.Ticket](ticket.Table, feed)
	store := NewStore[ticket.Ticket](table, StoreOptions{Metrics: metrics})

	sub, err := Subscribe(context.Background(), store, feed, SubscriptionConfig{
		Requests:     []changefeed.Request{{Table: ticket.Table}},
		ReconnectMin: 2 * time.Millisecond,
		ReconnectMax: 8 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	defer sub.Close()

	feed.setSubscribeErr(errors.New("unavailable"))
	feed.drop(errors.New("connection reset"))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, metrics.reconnects())

	feed.setSubscribeErr(nil)
	require.Eventually(t, func() bool { return metrics.reconnects() == 1 }, waitFor, 5*time.Millisecond)
}

func TestSubscription_Close(t *testing.T) {
	ctx := context.Background()
	feed := newFakeFeed()
	metrics := newRecordingMetrics()
	table := newFakeTable[ticket.Ticket](ticket.Table, feed)
	store := NewStore[ticket.Ticket](table, StoreOptions{Metrics: metrics})

	sub, err := Subscribe(ctx, store, feed, SubscriptionConfig{
		Requests: []changefeed.Request{{Table: ticket.Table}},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, feed.liveStreams())

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	assert.Equal(t, 0, feed.liveStreams())
	assert.Equal(t, 1, metrics.closedCount())

	_, err = table.Insert(ctx, mkTicket("late", "x", vo.StatusOpen))
	require.NoError(t, err)
	assert.Empty(t, store.Items())
}

func TestSubscription_CloseDiscardsLateFetch(t *testing.T) {
	feed := newFakeFeed()
	table := newFakeTable(ticket.Table, feed, mkTicket("t1", "a", vo.StatusOpen))
	table.block = make(chan struct{})
	store := NewStore[ticket.Ticket](table, StoreOptions{SearchColumn: "title"})

	result := make(chan *Subscription[ticket.Ticket], 1)
	go func() {
		sub, _ := Subscribe(context.Background(), store, feed, SubscriptionConfig{
			Requests: []changefeed.Request{{Table: ticket.Table}},
			Search:   "a",
		}, nil)
		result <- sub
	}()

	// The owner goes away while the search is still in flight.
	require.Eventually(t, store.IsLoading, waitFor, time.Millisecond)
	store.Invalidate()
	close(table.block)

	sub := <-result
	require.NotNil(t, sub)
	require.NoError(t, sub.Close())
	assert.Empty(t, store.Items())
}

func TestSubscription_ParentContextEndsSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := newFakeFeed()
	metrics := newRecordingMetrics()
	table := newFakeTable(ticket.Table, feed, mkTicket("t1", "a", vo.StatusOpen))
	store := NewStore[ticket.Ticket](table, StoreOptions{Metrics: metrics})

	sub, err := Subscribe(ctx, store, feed, SubscriptionConfig{
		Requests: []changefeed.Request{{Table: ticket.Table}},
	}, nil)
	require.NoError(t, err)
	require.True(t, sub.Live())
	assert.Equal(t, []string{"t1"}, ids(store.Items()))

	table.mu.Lock()
	table.block = make(chan struct{})
	table.mu.Unlock()
	fetched := make(chan struct{})
	go func() {
		defer close(fetched)
		_ = store.FetchAll(context.Background())
	}()
	require.Eventually(t, store.IsLoading, waitFor, time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return !sub.Live() }, waitFor, time.Millisecond)
	assert.Equal(t, 0, feed.liveStreams())
	assert.Equal(t, 1, metrics.closedCount())

	_, err = table.Insert(context.Background(), mkTicket("t2", "b", vo.StatusOpen))
	require.NoError(t, err)
	close(table.block)
	<-fetched
	assert.Equal(t, []string{"t1"}, ids(store.Items()))

	require.NoError(t, sub.Close())
	assert.Equal(t, 1, metrics.closedCount())
}
