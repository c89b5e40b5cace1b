package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

// notification is the payload the change triggers send with pg_notify.
// Rows too large for a notification arrive truncated: only RowID is set and
// the listener reads the row back.
type notification struct {
	ID         string          `json:"id"`
	Table      string          `json:"table"`
	Operation  string          `json:"operation"`
	New        json.RawMessage `json:"new,omitempty"`
	Old        json.RawMessage `json:"old,omitempty"`
	CommitTime time.Time       `json:"commit_time"`
	Truncated  bool            `json:"truncated,omitempty"`
	RowID      string          `json:"row_id,omitempty"`
}

// PGListener turns Postgres NOTIFY payloads into change events. It holds
// one dedicated connection, since LISTEN is per session.
type PGListener struct {
	connString string
	channel    string
	out        changefeed.Publisher
	logger     logger.Interface

	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewPGListener(connString, channel string, out changefeed.Publisher, log logger.Interface) *PGListener {
	if log == nil {
		log = logger.NewNop()
	}
	return &PGListener{
		connString: connString,
		channel:    channel,
		out:        out,
		logger:     log,
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// Run listens until ctx is done, reconnecting with exponential backoff.
// Notifications sent while disconnected are lost; subscribers resync when
// their own streams reconnect.
func (l *PGListener) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		connected, err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = l.minBackoff
		}

		l.logger.Warnw("postgres change listener disconnected, reconnecting",
			"channel", l.channel,
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, l.maxBackoff)
	}
}

func (l *PGListener) listen(ctx context.Context) (bool, error) {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return false, fmt.Errorf("failed to connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return false, fmt.Errorf("failed to listen on %s: %w", l.channel, err)
	}
	l.logger.Infow("listening for postgres change notifications", "channel", l.channel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		e, err := l.resolve(ctx, conn, n.Payload)
		if err != nil {
			l.logger.Warnw("dropped postgres change notification",
				"error", err,
				"payload_bytes", len(n.Payload),
			)
			continue
		}
		if err := l.out.Publish(ctx, e); err != nil {
			l.logger.Warnw("failed to publish postgres change event",
				"event_id", e.ID,
				"error", err,
			)
		}
	}
}

// resolve builds the event for a payload, reading truncated rows back.
func (l *PGListener) resolve(ctx context.Context, conn *pgx.Conn, payload string) (changefeed.Event, error) {
	n, err := parseNotification(payload)
	if err != nil {
		return changefeed.Event{}, err
	}
	if !n.Truncated {
		return n.event()
	}

	switch changefeed.Operation(n.Operation) {
	case changefeed.OperationDelete:
		n.Old, _ = json.Marshal(map[string]string{"id": n.RowID})
	default:
		var row string
		sql := "SELECT row_to_json(t)::text FROM " + pgx.Identifier{n.Table}.Sanitize() + " t WHERE id = $1"
		if err := conn.QueryRow(ctx, sql, n.RowID).Scan(&row); err != nil {
			return changefeed.Event{}, fmt.Errorf("failed to load %s %s: %w", n.Table, n.RowID, err)
		}
		n.New = json.RawMessage(row)
		n.Old = nil
	}
	return n.event()
}

func parseNotification(payload string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return n, fmt.Errorf("invalid notification payload: %w", err)
	}
	if n.Truncated && n.RowID == "" {
		return n, fmt.Errorf("truncated %s notification without row id", n.Table)
	}
	return n, nil
}

func (n notification) event() (changefeed.Event, error) {
	e := changefeed.Event{
		ID:         n.ID,
		Table:      n.Table,
		Operation:  changefeed.Operation(n.Operation),
		New:        nullToEmpty(n.New),
		Old:        nullToEmpty(n.Old),
		CommitTime: n.CommitTime.UTC(),
	}
	if e.ID == "" {
		return e, fmt.Errorf("notification without event id")
	}
	return e, e.Validate()
}

func nullToEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
