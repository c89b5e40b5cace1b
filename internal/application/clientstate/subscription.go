package clientstate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/shared/goroutine"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

const defaultChangeBuffer = 256

type SubscriptionConfig struct {
	// Requests are alternatives: an event matching any of them is applied
	// once, however many of them deliver it.
	Requests []changefeed.Request
	// Scope and AnyOf restrict fetches to the rows Requests select.
	Scope []query.Condition
	AnyOf []query.Condition
	// Search, when not blank, makes the subscription a one-shot search
	// with no live updates.
	Search       string
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// Buffer bounds the changes waiting for the consumer loop.
	Buffer int
}

// Subscription keeps a store in sync with the change feed: it opens the
// streams, seeds the store with a fetch and then applies every change in
// arrival order from a single goroutine. A stream that ends on its own is
// reopened with exponential backoff and the store is refetched.
type Subscription[T Entity] struct {
	store   *Store[T]
	feed    changefeed.Subscriber
	cfg     SubscriptionConfig
	log     logger.Interface
	seen    *seenSet
	changes chan changefeed.Change[T]
	broken  chan uint64
	live    atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
	endOnce   sync.Once

	// Owned by the consumer loop once Subscribe returns.
	epoch       uint64
	epochCancel context.CancelFunc
	pumps       sync.WaitGroup
	streams     []changefeed.Stream
}

// Subscribe binds store to feed. Fetch failures do not fail the call; they
// surface through store.Err like any other fetch. An error is returned only
// when the request is invalid or the feed refuses the streams.
func Subscribe[T Entity](ctx context.Context, store *Store[T], feed changefeed.Subscriber, cfg SubscriptionConfig, log logger.Interface) (*Subscription[T], error) {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultChangeBuffer
	}
	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = time.Second
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = 30 * time.Second
	}
	for _, req := range cfg.Requests {
		if err := req.Validate(); err != nil {
			return nil, err
		}
		if req.Table != store.Name() {
			return nil, fmt.Errorf("subscription for %s bound to %s store", req.Table, store.Name())
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription[T]{
		store:   store,
		feed:    feed,
		cfg:     cfg,
		log:     log.With("store", store.Name()),
		seen:    newSeenSet(defaultSeenCapacity),
		changes: make(chan changefeed.Change[T], cfg.Buffer),
		broken:  make(chan uint64),
		ctx:     ctx,
		cancel:  cancel,
	}
	store.SetScope(cfg.Scope, cfg.AnyOf)

	if len(ParseTerms(cfg.Search)) > 0 || len(cfg.Requests) == 0 {
		_ = store.FetchBySearch(ctx, cfg.Search)
		return s, nil
	}

	// Streams open before the fetch so nothing committed in between is
	// missed. Events buffered meanwhile are replays at worst.
	if err := s.open(); err != nil {
		cancel()
		store.fail(err)
		return nil, err
	}
	s.live.Store(true)
	store.metrics.SubscriptionOpened(store.Name())
	s.log.Infow("subscribed to change feed", "requests", len(cfg.Requests))

	_ = store.FetchAll(ctx)

	goroutine.SafeGoGroup(&s.wg, s.log, "clientstate-"+store.Name(), s.loop)
	return s, nil
}

func (s *Subscription[T]) Store() *Store[T] {
	return s.store
}

// Live reports whether the subscription follows the change feed. It turns
// false once the subscription is closed or the context passed to Subscribe
// is done.
func (s *Subscription[T]) Live() bool {
	return s.live.Load()
}

// Close stops the consumer loop and closes the streams. Fetches still in
// flight are not applied.
func (s *Subscription[T]) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.end()
	})
	return nil
}

// end detaches the store, whichever of Close or the parent context stopped
// the subscription first.
func (s *Subscription[T]) end() {
	s.endOnce.Do(func() {
		s.store.Invalidate()
		if s.live.Swap(false) {
			s.store.metrics.SubscriptionClosed(s.store.Name())
			s.log.Infow("unsubscribed from change feed")
		}
	})
}

func (s *Subscription[T]) open() error {
	epochCtx, cancel := context.WithCancel(s.ctx)
	streams := make([]changefeed.Stream, 0, len(s.cfg.Requests))
	for _, req := range s.cfg.Requests {
		st, err := s.feed.Subscribe(epochCtx, req)
		if err != nil {
			cancel()
			for _, opened := range streams {
				_ = opened.Close()
			}
			return fmt.Errorf("failed to subscribe to %s: %w", req, err)
		}
		streams = append(streams, st)
	}

	s.epoch++
	epoch := s.epoch
	s.epochCancel = cancel
	s.streams = streams
	for i, st := range streams {
		req := s.cfg.Requests[i]
		goroutine.SafeGoGroup(&s.pumps, s.log, "clientstate-pump-"+req.String(), func() {
			s.pump(epochCtx, epoch, req, st)
		})
	}
	return nil
}

// pump decodes one stream into the shared change channel.
func (s *Subscription[T]) pump(ctx context.Context, epoch uint64, req changefeed.Request, st changefeed.Stream) {
	name := s.store.Name()
	events := st.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return
				}
				s.log.Warnw("change stream ended", "request", req.String(), "error", st.Err())
				select {
				case s.broken <- epoch:
				case <-ctx.Done():
				}
				return
			}
			if !s.seen.Add(e.ID) {
				s.store.metrics.EventDropped(name, "duplicate")
				continue
			}
			c, err := changefeed.Decode[T](name, e)
			if err != nil {
				s.store.metrics.EventDropped(name, "decode")
				s.log.Warnw("failed to decode change event", "event_id", e.ID, "error", err)
				continue
			}
			select {
			case s.changes <- c:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Subscription[T]) loop() {
	defer func() {
		s.teardown()
		s.end()
	}()
	for {
		select {
		case <-s.ctx.Done():
			return
		case c := <-s.changes:
			if s.ctx.Err() != nil {
				return
			}
			s.store.Apply(c)
		case epoch := <-s.broken:
			if epoch != s.epoch {
				continue
			}
			if !s.reconnect() {
				return
			}
		}
	}
}

// reconnect replaces the current streams and refetches the store. It
// reports false when the subscription was closed meanwhile.
func (s *Subscription[T]) reconnect() bool {
	s.teardown()
	// Queued changes predate the refetch below and could undo it.
	for drained := false; !drained; {
		select {
		case <-s.changes:
		default:
			drained = true
		}
	}

	backoff := s.cfg.ReconnectMin
	for {
		s.log.Warnw("change feed disconnected, reconnecting", "backoff", backoff)
		select {
		case <-s.ctx.Done():
			return false
		case <-time.After(backoff):
		}
		err := s.open()
		if err == nil {
			break
		}
		if s.ctx.Err() != nil {
			return false
		}
		s.log.Warnw("failed to reopen change feed", "error", err)
		backoff = min(backoff*2, s.cfg.ReconnectMax)
	}

	s.store.metrics.StreamReconnected(s.store.Name())
	s.log.Infow("change feed reconnected, resyncing")
	_ = s.store.FetchAll(s.ctx)
	return true
}

func (s *Subscription[T]) teardown() {
	if s.epochCancel != nil {
		s.epochCancel()
	}
	s.pumps.Wait()
	for _, st := range s.streams {
		if err := st.Close(); err != nil {
			s.log.Debugw("failed to close change stream", "error", err)
		}
	}
	s.streams = nil
}
