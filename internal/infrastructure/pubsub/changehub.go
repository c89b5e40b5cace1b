package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

const defaultSubscriberBuffer = 256

var (
	// ErrSlowConsumer ends a stream whose buffer was full when an event
	// arrived. The hub never blocks a publisher.
	ErrSlowConsumer = errors.New("change stream evicted: consumer too slow")
	ErrHubClosed    = errors.New("change hub closed")
)

// HubMetrics receives hub activity.
type HubMetrics interface {
	EventPublished(table string)
	SubscriberEvicted(table string)
	SubscribersChanged(n int)
}

type nopHubMetrics struct{}

func (nopHubMetrics) EventPublished(string)    {}
func (nopHubMetrics) SubscriberEvicted(string) {}
func (nopHubMetrics) SubscribersChanged(int)   {}

// ChangeHub fans change events out to in-process subscribers. It
// implements both changefeed.Publisher and changefeed.Subscriber.
type ChangeHub struct {
	mu     sync.RWMutex
	subs   map[uint64]*hubStream
	nextID uint64
	closed bool

	buffer  int
	metrics HubMetrics
	logger  logger.Interface
}

// NewChangeHub creates a hub whose subscribers buffer up to buffer events.
func NewChangeHub(buffer int, metrics HubMetrics, log logger.Interface) *ChangeHub {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	if metrics == nil {
		metrics = nopHubMetrics{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &ChangeHub{
		subs:    make(map[uint64]*hubStream),
		buffer:  buffer,
		metrics: metrics,
		logger:  log,
	}
}

// Publish delivers e to every matching subscriber without blocking.
// Subscribers that cannot take the event are evicted.
func (h *ChangeHub) Publish(_ context.Context, e changefeed.Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("invalid change event: %w", err)
	}

	var slow []uint64
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrHubClosed
	}
	for id, s := range h.subs {
		if !s.req.Matches(e) {
			continue
		}
		select {
		case s.events <- e:
		default:
			slow = append(slow, id)
		}
	}
	h.mu.RUnlock()
	h.metrics.EventPublished(e.Table)

	for _, id := range slow {
		if s := h.remove(id, ErrSlowConsumer); s != nil {
			h.metrics.SubscriberEvicted(s.req.Table)
			h.logger.Warnw("evicted slow change subscriber",
				"request", s.req.String(),
				"buffer", h.buffer,
			)
		}
	}
	return nil
}

// Subscribe opens a stream for req. The stream ends when ctx is done, when
// it is closed, or when the subscriber falls behind.
func (h *ChangeHub) Subscribe(ctx context.Context, req changefeed.Request) (changefeed.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.nextID++
	s := &hubStream{
		id:     h.nextID,
		hub:    h,
		req:    req,
		events: make(chan changefeed.Event, h.buffer),
	}
	h.subs[s.id] = s
	// Set under the lock so remove, which takes it, always sees stop.
	s.stop = context.AfterFunc(ctx, func() {
		h.remove(s.id, ctx.Err())
	})
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.SubscribersChanged(n)

	h.logger.Debugw("change subscriber added", "request", req.String())
	return s, nil
}

// Subscribers returns the number of open streams.
func (h *ChangeHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every stream with ErrHubClosed and rejects further use.
func (h *ChangeHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*hubStream)
	for _, s := range subs {
		s.finish(ErrHubClosed)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}

	h.metrics.SubscribersChanged(0)
	return nil
}

// remove detaches and ends a stream. It returns nil when the stream was
// already gone.
func (h *ChangeHub) remove(id uint64, err error) *hubStream {
	h.mu.Lock()
	s, ok := h.subs[id]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	delete(h.subs, id)
	// Closing under the write lock: publishers send under the read lock.
	s.finish(err)
	n := len(h.subs)
	h.mu.Unlock()

	s.stop()
	h.metrics.SubscribersChanged(n)
	return s
}

type hubStream struct {
	id     uint64
	hub    *ChangeHub
	req    changefeed.Request
	events chan changefeed.Event
	stop   func() bool

	mu  sync.Mutex
	err error
}

func (s *hubStream) Events() <-chan changefeed.Event {
	return s.events
}

func (s *hubStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *hubStream) Close() error {
	s.hub.remove(s.id, nil)
	return nil
}

// finish must be called with the hub write lock held.
func (s *hubStream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.events)
}
