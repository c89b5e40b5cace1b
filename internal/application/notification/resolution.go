package notification

import (
	"context"
	"errors"
	"time"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

// Mailer sends the resolution email.
type Mailer interface {
	SendTicketResolvedEmail(to string, t ticket.Ticket) error
}

// ResolutionNotifier emails a ticket's customer when the ticket moves to
// resolved. It follows ticket updates on the change feed.
type ResolutionNotifier struct {
	feed       changefeed.Subscriber
	users      clientstate.Table[user.User]
	mailer     Mailer
	minBackoff time.Duration
	maxBackoff time.Duration
	logger     logger.Interface
}

func NewResolutionNotifier(feed changefeed.Subscriber, users clientstate.Table[user.User], mailer Mailer, log logger.Interface) *ResolutionNotifier {
	if log == nil {
		log = logger.NewNop()
	}
	return &ResolutionNotifier{
		feed:       feed,
		users:      users,
		mailer:     mailer,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
		logger:     log.Named("resolution-notifier"),
	}
}

// Run consumes ticket updates until ctx is done, resubscribing with backoff
// when the stream ends.
func (n *ResolutionNotifier) Run(ctx context.Context) error {
	req := changefeed.Request{
		Table:      ticket.Table,
		Operations: []changefeed.Operation{changefeed.OperationUpdate},
	}

	backoff := n.minBackoff
	for {
		stream, err := n.feed.Subscribe(ctx, req)
		if err == nil {
			backoff = n.minBackoff
			err = n.consume(ctx, stream)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.logger.Warnw("ticket stream ended, resubscribing", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, n.maxBackoff)
	}
}

func (n *ResolutionNotifier) consume(ctx context.Context, stream changefeed.Stream) error {
	defer stream.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-stream.Events():
			if !ok {
				if err := stream.Err(); err != nil {
					return err
				}
				return errors.New("stream closed")
			}
			n.handle(ctx, e)
		}
	}
}

func (n *ResolutionNotifier) handle(ctx context.Context, e changefeed.Event) {
	c, err := changefeed.Decode[ticket.Ticket](ticket.Table, e)
	if err != nil {
		n.logger.Warnw("dropping undecodable ticket event", "event_id", e.ID, "error", err)
		return
	}
	if !BecameResolved(c) {
		return
	}

	customer, err := n.users.Get(ctx, c.New.CustomerID)
	if err != nil {
		n.logger.Errorw("failed to load ticket customer",
			"ticket_id", c.ID,
			"customer_id", c.New.CustomerID,
			"error", err,
		)
		return
	}
	if err := n.mailer.SendTicketResolvedEmail(customer.Email, c.New); err != nil {
		n.logger.Errorw("failed to send resolution email", "ticket_id", c.ID, "error", err)
		return
	}
	n.logger.Infow("resolution email sent", "ticket_id", c.ID, "customer_id", customer.ID, "to", utils.MaskEmail(customer.Email))
}

// BecameResolved reports an update into resolved from another status.
// Events without the previous row are ignored, which also keeps repeated
// updates of a resolved ticket quiet.
func BecameResolved(c changefeed.Change[ticket.Ticket]) bool {
	return c.Kind == changefeed.Updated &&
		c.New.Status == vo.StatusResolved &&
		c.Old.Status != "" &&
		c.Old.Status != vo.StatusResolved
}
