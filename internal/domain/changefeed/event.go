// Package changefeed defines row level change events, the predicates used
// to subscribe to them and their typed decoding.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

func (o Operation) IsValid() bool {
	return o == OperationInsert || o == OperationUpdate || o == OperationDelete
}

// Event is one committed row change. New is absent for deletes and Old is
// absent for inserts.
type Event struct {
	ID         string          `json:"id"`
	Table      string          `json:"table"`
	Operation  Operation       `json:"operation"`
	New        json.RawMessage `json:"new,omitempty"`
	Old        json.RawMessage `json:"old,omitempty"`
	CommitTime time.Time       `json:"commit_time"`
	// Origin identifies the process that published the event; bridges use it
	// to avoid re-delivering their own events.
	Origin string `json:"origin,omitempty"`
}

// NewEvent marshals the row snapshots into an event with a fresh id.
// Pass nil for a snapshot that does not apply.
func NewEvent(table string, op Operation, newRow, oldRow any) (Event, error) {
	e := Event{
		ID:         uuid.NewString(),
		Table:      table,
		Operation:  op,
		CommitTime: time.Now().UTC(),
	}
	var err error
	if newRow != nil {
		if e.New, err = json.Marshal(newRow); err != nil {
			return Event{}, fmt.Errorf("failed to marshal new row: %w", err)
		}
	}
	if oldRow != nil {
		if e.Old, err = json.Marshal(oldRow); err != nil {
			return Event{}, fmt.Errorf("failed to marshal old row: %w", err)
		}
	}
	return e, e.Validate()
}

func (e Event) Validate() error {
	if e.Table == "" {
		return fmt.Errorf("change event without table")
	}
	if !e.Operation.IsValid() {
		return fmt.Errorf("invalid change operation: %s", e.Operation)
	}
	if e.Operation != OperationDelete && len(e.New) == 0 {
		return fmt.Errorf("%s event without new row", e.Operation)
	}
	if e.Operation == OperationDelete && len(e.Old) == 0 {
		return fmt.Errorf("DELETE event without old row")
	}
	return nil
}

// Row is the snapshot predicates are evaluated against: the new row, or the
// old one for deletes.
func (e Event) Row() json.RawMessage {
	if e.Operation == OperationDelete {
		return e.Old
	}
	return e.New
}

// RowID returns the "id" column of Row.
func (e Event) RowID() string {
	var row struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(e.Row(), &row); err != nil {
		return ""
	}
	return row.ID
}

// Publisher hands committed changes to the feed.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Stream is one live subscription. Events is closed when the stream ends;
// Err then tells why, and is nil when the owner called Close.
type Stream interface {
	Events() <-chan Event
	Err() error
	Close() error
}

// Subscriber opens streams for requests.
type Subscriber interface {
	Subscribe(ctx context.Context, req Request) (Stream, error)
}
