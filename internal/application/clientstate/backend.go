package clientstate

import (
	"context"
	"time"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

// Entity is anything a store can hold.
type Entity interface {
	GetID() string
}

// Table is the backend data interface for one entity kind.
type Table[T Entity] interface {
	Name() string
	List(ctx context.Context, q query.Query) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Insert(ctx context.Context, v T) (T, error)
	Update(ctx context.Context, id string, patch map[string]any) (T, error)
	Delete(ctx context.Context, id string) error
}

// Metrics receives store and subscription activity.
type Metrics interface {
	ObserveFetch(store string, d time.Duration, err error)
	EventApplied(store string, kind changefeed.Kind)
	EventDropped(store, reason string)
	SubscriptionOpened(store string)
	SubscriptionClosed(store string)
	StreamReconnected(store string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveFetch(string, time.Duration, error)  {}
func (nopMetrics) EventApplied(string, changefeed.Kind)      {}
func (nopMetrics) EventDropped(string, string)               {}
func (nopMetrics) SubscriptionOpened(string)                 {}
func (nopMetrics) SubscriptionClosed(string)                 {}
func (nopMetrics) StreamReconnected(string)                  {}
