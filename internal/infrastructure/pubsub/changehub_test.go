package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
)

type testRow struct {
	ID       string `json:"id"`
	TicketID string `json:"ticket_id"`
}

func mustEvent(t *testing.T, table string, op changefeed.Operation, row testRow) changefeed.Event {
	t.Helper()
	var e changefeed.Event
	var err error
	if op == changefeed.OperationDelete {
		e, err = changefeed.NewEvent(table, op, nil, row)
	} else {
		e, err = changefeed.NewEvent(table, op, row, nil)
	}
	require.NoError(t, err)
	return e
}

func receive(t *testing.T, s changefeed.Stream) changefeed.Event {
	t.Helper()
	select {
	case e, ok := <-s.Events():
		require.True(t, ok, "stream ended: %v", s.Err())
		return e
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
	return changefeed.Event{}
}

func assertNothing(t *testing.T, s changefeed.Stream) {
	t.Helper()
	select {
	case e := <-s.Events():
		t.Fatalf("unexpected event %s on %s", e.Operation, e.Table)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestChangeHub_RoutesByRequest(t *testing.T) {
	ctx := context.Background()
	hub := NewChangeHub(8, nil, nil)
	defer hub.Close()

	all, err := hub.Subscribe(ctx, changefeed.Request{Table: "internal_notes"})
	require.NoError(t, err)
	ticket1, err := hub.Subscribe(ctx, changefeed.Request{Table: "internal_notes", Filter: changefeed.Eq("ticket_id", "t1")})
	require.NoError(t, err)
	inserts, err := hub.Subscribe(ctx, changefeed.Request{Table: "internal_notes", Operations: []changefeed.Operation{changefeed.OperationInsert}})
	require.NoError(t, err)

	require.NoError(t, hub.Publish(ctx, mustEvent(t, "internal_notes", changefeed.OperationInsert, testRow{ID: "n1", TicketID: "t2"})))
	require.NoError(t, hub.Publish(ctx, mustEvent(t, "internal_notes", changefeed.OperationDelete, testRow{ID: "n2", TicketID: "t1"})))
	require.NoError(t, hub.Publish(ctx, mustEvent(t, "tickets", changefeed.OperationInsert, testRow{ID: "t9"})))

	assert.Equal(t, "n1", receive(t, all).RowID())
	assert.Equal(t, "n2", receive(t, all).RowID())
	assertNothing(t, all)

	// Deletes are matched against the old row.
	assert.Equal(t, "n2", receive(t, ticket1).RowID())
	assertNothing(t, ticket1)

	assert.Equal(t, "n1", receive(t, inserts).RowID())
	assertNothing(t, inserts)
}

func TestChangeHub_EvictsSlowSubscriber(t *testing.T) {
	ctx := context.Background()
	metrics := &countingHubMetrics{}
	hub := NewChangeHub(2, metrics, nil)
	defer hub.Close()

	slow, err := hub.Subscribe(ctx, changefeed.Request{Table: "tickets"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.Publish(ctx, mustEvent(t, "tickets", changefeed.OperationInsert, testRow{ID: "t"})))
	}

	// The buffered events are still readable, then the stream ends.
	n := 0
	for range slow.Events() {
		n++
	}
	assert.Equal(t, 2, n)
	assert.ErrorIs(t, slow.Err(), ErrSlowConsumer)
	assert.Equal(t, 0, hub.Subscribers())
	assert.Equal(t, 1, metrics.evicted())
}

func TestChangeHub_StreamEnds(t *testing.T) {
	hub := NewChangeHub(8, nil, nil)

	t.Run("close", func(t *testing.T) {
		s, err := hub.Subscribe(context.Background(), changefeed.Request{Table: "tickets"})
		require.NoError(t, err)
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		_, ok := <-s.Events()
		assert.False(t, ok)
		assert.NoError(t, s.Err())
	})

	t.Run("context cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		s, err := hub.Subscribe(ctx, changefeed.Request{Table: "tickets"})
		require.NoError(t, err)
		cancel()

		require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
		_, ok := <-s.Events()
		assert.False(t, ok)
		assert.ErrorIs(t, s.Err(), context.Canceled)
	})

	t.Run("hub closed", func(t *testing.T) {
		s, err := hub.Subscribe(context.Background(), changefeed.Request{Table: "tickets"})
		require.NoError(t, err)
		require.NoError(t, hub.Close())

		_, ok := <-s.Events()
		assert.False(t, ok)
		assert.ErrorIs(t, s.Err(), ErrHubClosed)

		_, err = hub.Subscribe(context.Background(), changefeed.Request{Table: "tickets"})
		assert.ErrorIs(t, err, ErrHubClosed)
		assert.ErrorIs(t, hub.Publish(context.Background(), mustEvent(t, "tickets", changefeed.OperationInsert, testRow{ID: "t"})), ErrHubClosed)
	})
}

func TestChangeHub_RejectsInvalidInput(t *testing.T) {
	hub := NewChangeHub(8, nil, nil)
	defer hub.Close()

	_, err := hub.Subscribe(context.Background(), changefeed.Request{})
	assert.Error(t, err)

	err = hub.Publish(context.Background(), changefeed.Event{Table: "tickets", Operation: changefeed.OperationInsert})
	assert.Error(t, err)
}

func TestChangeHub_ConcurrentPublishAndClose(t *testing.T) {
	ctx := context.Background()
	hub := NewChangeHub(1, nil, nil)
	defer hub.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = hub.Publish(ctx, mustEvent(t, "tickets", changefeed.OperationInsert, testRow{ID: "t"}))
			}
		}()
	}
	for i := 0; i < 20; i++ {
		s, err := hub.Subscribe(ctx, changefeed.Request{Table: "tickets"})
		require.NoError(t, err)
		_ = s.Close()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers())
}

func TestFanout(t *testing.T) {
	ctx := context.Background()
	hub := NewChangeHub(8, nil, nil)
	defer hub.Close()
	s, err := hub.Subscribe(ctx, changefeed.Request{Table: "tickets"})
	require.NoError(t, err)

	failing := publisherFunc(func(context.Context, changefeed.Event) error { return errors.New("broker down") })
	err = Fanout{failing, nil, hub}.Publish(ctx, mustEvent(t, "tickets", changefeed.OperationInsert, testRow{ID: "t1"}))

	assert.EqualError(t, err, "broker down")
	assert.Equal(t, "t1", receive(t, s).RowID())
}

type publisherFunc func(ctx context.Context, e changefeed.Event) error

func (f publisherFunc) Publish(ctx context.Context, e changefeed.Event) error {
	return f(ctx, e)
}

type countingHubMetrics struct {
	mu       sync.Mutex
	evictedN int
}

func (m *countingHubMetrics) EventPublished(string) {}
func (m *countingHubMetrics) SubscriberEvicted(string) {
	m.mu.Lock()
	m.evictedN++
	m.mu.Unlock()
}
func (m *countingHubMetrics) SubscribersChanged(int) {}

func (m *countingHubMetrics) evicted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evictedN
}
