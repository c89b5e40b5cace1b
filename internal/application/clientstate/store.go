package clientstate

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	apperrors "github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

// DeletePolicy decides what a DELETE change event does to a store.
type DeletePolicy string

const (
	DeleteApply  DeletePolicy = "apply"
	DeleteIgnore DeletePolicy = "ignore"
)

// ParseDeletePolicy returns the named policy, or def when s is unknown.
func ParseDeletePolicy(s string, def DeletePolicy) DeletePolicy {
	switch DeletePolicy(s) {
	case DeleteApply, DeleteIgnore:
		return DeletePolicy(s)
	}
	return def
}

type StoreOptions struct {
	// DeletePolicy defaults to DeleteApply.
	DeletePolicy DeletePolicy
	// SearchColumn is the text column FetchBySearch matches against. Stores
	// without one reject searches.
	SearchColumn string
	SearchMode   query.SearchMode
	Metrics      Metrics
	Logger       logger.Interface
}

// State is a point in time copy of a store.
type State[T Entity] struct {
	Items    []T
	Selected *T
	Loading  bool
	Error    string
}

// Store is the in-memory collection of one entity kind, newest first.
type Store[T Entity] struct {
	name    string
	table   Table[T]
	opts    StoreOptions
	log     logger.Interface
	metrics Metrics

	mu       sync.RWMutex
	items    []T
	selected *T
	pending  int
	err      string
	scope    []query.Condition
	anyOf    []query.Condition
	gen      uint64

	wmu      sync.Mutex
	watchers map[int]chan struct{}
	nextW    int
}

func NewStore[T Entity](table Table[T], opts StoreOptions) *Store[T] {
	if opts.DeletePolicy == "" {
		opts.DeletePolicy = DeleteApply
	}
	if opts.SearchMode == "" {
		opts.SearchMode = query.SearchPerTerm
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}
	return &Store[T]{
		name:     table.Name(),
		table:    table,
		opts:     opts,
		log:      opts.Logger.With("store", table.Name()),
		metrics:  opts.Metrics,
		watchers: make(map[int]chan struct{}),
	}
}

func (s *Store[T]) Name() string {
	return s.name
}

func (s *Store[T]) Items() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store[T]) Get(id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.items[i], true
	}
	var zero T
	return zero, false
}

func (s *Store[T]) Selected() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		var zero T
		return zero, false
	}
	return *s.selected, true
}

// Select marks the entity with id as selected. It reports false, leaving
// the selection unchanged, when id is not in the collection.
func (s *Store[T]) Select(id string) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i >= 0 {
		v := s.items[i]
		s.selected = &v
	}
	s.mu.Unlock()
	if i >= 0 {
		s.notify()
	}
	return i >= 0
}

func (s *Store[T]) ClearSelection() {
	s.mu.Lock()
	s.selected = nil
	s.mu.Unlock()
	s.notify()
}

func (s *Store[T]) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending > 0
}

// Err is the message of the last failed operation, cleared when the next
// operation starts.
func (s *Store[T]) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Store[T]) State() State[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State[T]{
		Items:   slices.Clone(s.items),
		Loading: s.pending > 0,
		Error:   s.err,
	}
	if s.selected != nil {
		v := *s.selected
		st.Selected = &v
	}
	return st
}

// Watch returns a channel that receives a signal after every state change.
// Signals coalesce; readers should re-read State. Call cancel to stop.
func (s *Store[T]) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.wmu.Lock()
	id := s.nextW
	s.nextW++
	s.watchers[id] = ch
	s.wmu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.wmu.Lock()
			delete(s.watchers, id)
			s.wmu.Unlock()
		})
	}
}

func (s *Store[T]) notify() {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// SetScope restricts bulk fetches to rows matching all of conds and, when
// anyOf is not empty, at least one of anyOf. In-flight fetches for the
// previous scope are discarded.
func (s *Store[T]) SetScope(conds []query.Condition, anyOf []query.Condition) {
	s.mu.Lock()
	s.scope = slices.Clone(conds)
	s.anyOf = slices.Clone(anyOf)
	s.gen++
	s.mu.Unlock()
}

// Invalidate drops the results of every fetch still in flight. Owners call
// it when the scope that started those fetches goes away.
func (s *Store[T]) Invalidate() {
	s.mu.Lock()
	s.gen++
	s.mu.Unlock()
}

func (s *Store[T]) baseQuery(opts ...query.Option) query.Query {
	s.mu.RLock()
	base := []query.Option{query.WhereAny(s.anyOf...)}
	for _, c := range s.scope {
		base = append(base, query.Where(c.Column, c.Value))
	}
	s.mu.RUnlock()
	return query.New(append(base, opts...)...)
}

// FetchAll replaces the collection with every row in scope.
func (s *Store[T]) FetchAll(ctx context.Context) error {
	q := s.baseQuery()
	return s.replace(ctx, "fetch", func(ctx context.Context) ([]T, error) {
		return s.table.List(ctx, q)
	})
}

// FetchByID replaces the collection with the single row id and selects it.
func (s *Store[T]) FetchByID(ctx context.Context, id string) error {
	err := s.replace(ctx, "fetch", func(ctx context.Context) ([]T, error) {
		v, err := s.table.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		return []T{v}, nil
	})
	if err == nil {
		s.Select(id)
	}
	return err
}

// FetchBySearch replaces the collection with rows whose search column
// matches term. Terms are ANDed; a blank term is the plain FetchAll.
// Errors are handled like any other fetch failure.
func (s *Store[T]) FetchBySearch(ctx context.Context, term string) error {
	terms := ParseTerms(term)
	if len(terms) == 0 {
		return s.FetchAll(ctx)
	}
	if s.opts.SearchColumn == "" {
		err := apperrors.NewBadRequestError(fmt.Sprintf("%s cannot be searched", s.name))
		s.fail(err)
		return err
	}
	q := s.baseQuery(SearchQuery(s.opts.SearchColumn, term, s.opts.SearchMode))
	return s.replace(ctx, "search", func(ctx context.Context) ([]T, error) {
		return s.table.List(ctx, q)
	})
}

// replace runs load and swaps the collection for its result, unless a
// newer fetch or an Invalidate happened meanwhile.
func (s *Store[T]) replace(ctx context.Context, op string, load func(context.Context) ([]T, error)) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.pending++
	s.err = ""
	s.mu.Unlock()
	s.notify()

	start := time.Now()
	rows, err := load(ctx)
	s.metrics.ObserveFetch(s.name, time.Since(start), err)

	s.mu.Lock()
	s.pending--
	live := s.gen == gen
	if live {
		if err != nil {
			s.err = apperrors.Message(err, fmt.Sprintf("Failed to %s %s", op, s.name))
		} else {
			s.items = rows
			if s.selected != nil {
				if i := s.indexOf((*s.selected).GetID()); i >= 0 {
					v := s.items[i]
					s.selected = &v
				}
			}
		}
	}
	s.mu.Unlock()
	s.notify()

	if !live {
		s.log.Debugw("discarded stale fetch result", "op", op, "error", err)
	} else if err != nil {
		s.log.Warnw("fetch failed", "op", op, "error", err)
	}
	return err
}

// fail records err outside of any fetch or mutation.
func (s *Store[T]) fail(err error) {
	s.mu.Lock()
	s.err = apperrors.Message(err, "")
	s.mu.Unlock()
	s.notify()
}

// mutate wraps a backend write in the loading and error lifecycle.
func (s *Store[T]) mutate(ctx context.Context, op string, call func(context.Context) error) error {
	s.mu.Lock()
	s.pending++
	s.err = ""
	s.mu.Unlock()
	s.notify()

	err := call(ctx)

	s.mu.Lock()
	s.pending--
	if err != nil {
		s.err = apperrors.Message(err, fmt.Sprintf("Failed to %s %s", op, s.name))
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.log.Warnw("mutation failed", "op", op, "error", err)
	}
	return err
}

// Create inserts v. The returned row is discarded; the collection changes
// when the INSERT event arrives. The error is also kept in Err.
func (s *Store[T]) Create(ctx context.Context, v T) error {
	return s.mutate(ctx, "create", func(ctx context.Context) error {
		_, err := s.table.Insert(ctx, v)
		return err
	})
}

// Update patches the row id; see Create for how the collection changes.
func (s *Store[T]) Update(ctx context.Context, id string, patch map[string]any) error {
	return s.mutate(ctx, "update", func(ctx context.Context) error {
		_, err := s.table.Update(ctx, id, patch)
		return err
	})
}

// Delete removes the row id; see Create for how the collection changes.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete", func(ctx context.Context) error {
		return s.table.Delete(ctx, id)
	})
}

func (s *Store[T]) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].GetID() == id {
			return i
		}
	}
	return -1
}

func (s *Store[T]) syncSelected(v T) {
	if s.selected != nil && (*s.selected).GetID() == v.GetID() {
		s.selected = &v
	}
}

// HandleCreated prepends v. A row already present is replaced in place,
// which makes duplicate deliveries harmless.
func (s *Store[T]) HandleCreated(v T) {
	s.mu.Lock()
	if i := s.indexOf(v.GetID()); i >= 0 {
		s.items[i] = v
		s.syncSelected(v)
	} else {
		s.items = slices.Insert(s.items, 0, v)
	}
	s.mu.Unlock()
	s.notify()
}

// HandleUpdated replaces the row with v's id and the selection when it is
// that row. Unknown rows are not added.
func (s *Store[T]) HandleUpdated(v T) {
	s.mu.Lock()
	if i := s.indexOf(v.GetID()); i >= 0 {
		s.items[i] = v
	}
	s.syncSelected(v)
	s.mu.Unlock()
	s.notify()
}

// HandleDeleted removes the row id and clears the selection if it was it.
func (s *Store[T]) HandleDeleted(id string) {
	s.mu.Lock()
	s.items = slices.DeleteFunc(s.items, func(v T) bool { return v.GetID() == id })
	if s.selected != nil && (*s.selected).GetID() == id {
		s.selected = nil
	}
	s.mu.Unlock()
	s.notify()
}

// Apply routes a decoded change to its reducer. It reports false when the
// store's delete policy ignored the change.
func (s *Store[T]) Apply(c changefeed.Change[T]) bool {
	switch c.Kind {
	case changefeed.Inserted:
		s.HandleCreated(c.New)
	case changefeed.Updated:
		s.HandleUpdated(c.New)
	case changefeed.Deleted:
		if s.opts.DeletePolicy == DeleteIgnore {
			s.metrics.EventDropped(s.name, "delete_ignored")
			return false
		}
		s.HandleDeleted(c.ID)
	default:
		s.metrics.EventDropped(s.name, "unknown_kind")
		return false
	}
	s.metrics.EventApplied(s.name, c.Kind)
	return true
}
