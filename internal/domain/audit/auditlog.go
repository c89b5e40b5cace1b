// Package audit holds the append-only change log written by the backend.
package audit

import (
	"encoding/json"
	"time"
)

const Table = "audit_logs"

type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

func (o Operation) IsValid() bool {
	return o == OperationInsert || o == OperationUpdate || o == OperationDelete
}

// AuditLog records one row change. OldData is null for inserts and NewData
// is null for deletes. ChangedBy is empty for system changes.
type AuditLog struct {
	ID        string          `json:"id"`
	TableName string          `json:"table_name"`
	Operation Operation       `json:"operation"`
	OldData   json.RawMessage `json:"old_data"`
	NewData   json.RawMessage `json:"new_data"`
	ChangedAt time.Time       `json:"changed_at"`
	ChangedBy string          `json:"changed_by"`
}

func (a AuditLog) GetID() string {
	return a.ID
}

// ChangedFields lists the top level keys whose values differ between the
// old and new snapshots. Inserts and deletes report every key present.
func (a AuditLog) ChangedFields() []string {
	var oldRow, newRow map[string]json.RawMessage
	_ = json.Unmarshal(a.OldData, &oldRow)
	_ = json.Unmarshal(a.NewData, &newRow)

	seen := make(map[string]bool)
	var fields []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			fields = append(fields, k)
		}
	}
	for k, nv := range newRow {
		if ov, ok := oldRow[k]; !ok || string(ov) != string(nv) {
			add(k)
		}
	}
	for k := range oldRow {
		if _, ok := newRow[k]; !ok {
			add(k)
		}
	}
	return fields
}
