package pubsub

import (
	"context"
	"errors"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
)

// Fanout publishes every event to each of its publishers in order. One
// failing publisher does not stop the others.
type Fanout []changefeed.Publisher

func (f Fanout) Publish(ctx context.Context, e changefeed.Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
