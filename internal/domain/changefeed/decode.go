package changefeed

import (
	"encoding/json"
	"fmt"
)

type Kind int

const (
	Inserted Kind = iota + 1
	Updated
	Deleted
)

func (k Kind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Deleted:
		return "deleted"
	}
	return "unknown"
}

// Change is the typed form of an Event for one entity kind. For Deleted
// only ID (and whatever Old carried) is meaningful.
type Change[T any] struct {
	Kind    Kind
	ID      string
	New     T
	Old     T
	EventID string
}

// Decode checks that e belongs to table and unmarshals its rows into T.
func Decode[T any](table string, e Event) (Change[T], error) {
	var c Change[T]
	if e.Table != table {
		return c, fmt.Errorf("event for table %q decoded as %q", e.Table, table)
	}
	if err := e.Validate(); err != nil {
		return c, err
	}

	switch e.Operation {
	case OperationInsert:
		c.Kind = Inserted
	case OperationUpdate:
		c.Kind = Updated
	case OperationDelete:
		c.Kind = Deleted
	}

	if len(e.New) > 0 {
		if err := json.Unmarshal(e.New, &c.New); err != nil {
			return c, fmt.Errorf("failed to decode %s row: %w", table, err)
		}
	}
	if len(e.Old) > 0 {
		if err := json.Unmarshal(e.Old, &c.Old); err != nil {
			return c, fmt.Errorf("failed to decode old %s row: %w", table, err)
		}
	}

	c.ID = e.RowID()
	if c.ID == "" {
		return c, fmt.Errorf("%s event on %s without row id", e.Operation, table)
	}
	c.EventID = e.ID
	return c, nil
}
