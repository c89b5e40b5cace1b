package clientstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

// fakeTable is an in-memory backend table. Writes publish change events to
// feed when one is attached, the way the real repositories do on commit.
type fakeTable[T Entity] struct {
	mu      sync.Mutex
	name    string
	rows    []T
	feed    *fakeFeed
	listErr error
	getErr  error
	block   chan struct{}
	queries []query.Query
}

func newFakeTable[T Entity](name string, feed *fakeFeed, rows ...T) *fakeTable[T] {
	return &fakeTable[T]{name: name, feed: feed, rows: rows}
}

func (f *fakeTable[T]) Name() string { return f.name }

func (f *fakeTable[T]) setListErr(err error) {
	f.mu.Lock()
	f.listErr = err
	f.mu.Unlock()
}

func (f *fakeTable[T]) lastQuery() query.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return query.Query{}
	}
	return f.queries[len(f.queries)-1]
}

func (f *fakeTable[T]) List(ctx context.Context, q query.Query) ([]T, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []T
	for _, row := range f.rows {
		if rowMatches(row, q) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeTable[T]) Get(_ context.Context, id string) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var zero T
	if f.getErr != nil {
		return zero, f.getErr
	}
	for _, row := range f.rows {
		if row.GetID() == id {
			return row, nil
		}
	}
	return zero, fmt.Errorf("%s %s not found", f.name, id)
}

func (f *fakeTable[T]) Insert(ctx context.Context, v T) (T, error) {
	if v.GetID() == "" {
		return v, errors.New("fake rows need an id")
	}
	f.mu.Lock()
	f.rows = slices.Insert(f.rows, 0, v)
	f.mu.Unlock()
	f.publish(changefeed.OperationInsert, v, nil)
	return v, nil
}

func (f *fakeTable[T]) Update(ctx context.Context, id string, patch map[string]any) (T, error) {
	f.mu.Lock()
	i := slices.IndexFunc(f.rows, func(v T) bool { return v.GetID() == id })
	if i < 0 {
		f.mu.Unlock()
		var zero T
		return zero, fmt.Errorf("%s %s not found", f.name, id)
	}
	old := f.rows[i]
	updated, err := patched(old, patch)
	if err != nil {
		f.mu.Unlock()
		return old, err
	}
	f.rows[i] = updated
	f.mu.Unlock()
	f.publish(changefeed.OperationUpdate, updated, old)
	return updated, nil
}

func (f *fakeTable[T]) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	i := slices.IndexFunc(f.rows, func(v T) bool { return v.GetID() == id })
	if i < 0 {
		f.mu.Unlock()
		return fmt.Errorf("%s %s not found", f.name, id)
	}
	old := f.rows[i]
	f.rows = slices.Delete(f.rows, i, i+1)
	f.mu.Unlock()
	f.publish(changefeed.OperationDelete, nil, old)
	return nil
}

func (f *fakeTable[T]) publish(op changefeed.Operation, newRow, oldRow any) {
	if f.feed == nil {
		return
	}
	e, err := changefeed.NewEvent(f.name, op, newRow, oldRow)
	if err != nil {
		panic(err)
	}
	f.feed.Publish(e)
}

func patched[T any](v T, patch map[string]any) (T, error) {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return out, err
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return out, err
	}
	for k, val := range patch {
		fields[k] = val
	}
	raw, err = json.Marshal(fields)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}

func rowMatches(row any, q query.Query) bool {
	raw, err := json.Marshal(row)
	if err != nil {
		return false
	}
	for _, c := range q.Conditions {
		if !changefeed.Eq(c.Column, fmt.Sprint(c.Value)).Matches(raw) {
			return false
		}
	}
	if len(q.AnyOf) > 0 {
		hit := false
		for _, c := range q.AnyOf {
			if changefeed.Eq(c.Column, fmt.Sprint(c.Value)).Matches(raw) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if q.Search != nil {
		var fields map[string]any
		_ = json.Unmarshal(raw, &fields)
		text := strings.ToLower(fmt.Sprint(fields[q.Search.Column]))
		for _, term := range q.Search.Terms {
			if !strings.Contains(text, strings.ToLower(term)) {
				return false
			}
		}
	}
	return true
}

// fakeFeed delivers published events to every matching open stream.
type fakeFeed struct {
	mu           sync.Mutex
	streams      []*fakeStream
	subscribeErr error
	opened       int
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{}
}

func (f *fakeFeed) Subscribe(ctx context.Context, req changefeed.Request) (changefeed.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	st := &fakeStream{req: req, ch: make(chan changefeed.Event, 64)}
	f.streams = append(f.streams, st)
	f.opened++
	return st, nil
}

func (f *fakeFeed) setSubscribeErr(err error) {
	f.mu.Lock()
	f.subscribeErr = err
	f.mu.Unlock()
}

func (f *fakeFeed) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *fakeFeed) liveStreams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, st := range f.streams {
		if !st.isClosed() {
			n++
		}
	}
	return n
}

func (f *fakeFeed) Publish(e changefeed.Event) {
	f.mu.Lock()
	streams := slices.Clone(f.streams)
	f.mu.Unlock()
	for _, st := range streams {
		if st.req.Matches(e) {
			st.deliver(e)
		}
	}
}

// drop ends every open stream as a broken connection would.
func (f *fakeFeed) drop(err error) {
	f.mu.Lock()
	streams := f.streams
	f.streams = nil
	f.mu.Unlock()
	for _, st := range streams {
		st.end(err)
	}
}

type fakeStream struct {
	req    changefeed.Request
	mu     sync.Mutex
	ch     chan changefeed.Event
	err    error
	closed bool
}

func (s *fakeStream) Events() <-chan changefeed.Event { return s.ch }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.end(nil)
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeStream) deliver(e changefeed.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.ch <- e
}

func (s *fakeStream) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.err = err
	close(s.ch)
}
