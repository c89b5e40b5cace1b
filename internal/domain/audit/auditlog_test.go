package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChangedFields(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want []string
	}{
		{name: "update", old: `{"id":"1","status":"open","title":"x"}`, new: `{"id":"1","status":"resolved","title":"x"}`, want: []string{"status"}},
		{name: "insert", old: `null`, new: `{"id":"1"}`, want: []string{"id"}},
		{name: "delete", old: `{"id":"1"}`, new: `null`, want: []string{"id"}},
		{name: "no change", old: `{"id":"1"}`, new: `{"id":"1"}`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AuditLog{OldData: json.RawMessage(tt.old), NewData: json.RawMessage(tt.new)}
			assert.ElementsMatch(t, tt.want, a.ChangedFields())
		})
	}
}

func TestOperationIsValid(t *testing.T) {
	assert.True(t, OperationDelete.IsValid())
	assert.False(t, Operation("TRUNCATE").IsValid())
}
