package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPurger struct {
	DeleteBeforeFunc func(ctx context.Context, column string, cutoff time.Time) (int64, error)
}

func (m *mockPurger) DeleteBefore(ctx context.Context, column string, cutoff time.Time) (int64, error) {
	return m.DeleteBeforeFunc(ctx, column, cutoff)
}

func TestPurgeAuditLogsJob_Execute(t *testing.T) {
	now := time.Date(2026, 6, 30, 23, 0, 0, 0, time.FixedZone("UTC-5", -5*3600))

	tests := []struct {
		name      string
		deleted   int64
		deleteErr error
		wantCount int
		wantErr   string
	}{
		{name: "rows purged", deleted: 42, wantCount: 42},
		{name: "nothing to purge", deleted: 0, wantCount: 0},
		{name: "delete fails", deleteErr: errors.New("failed to purge audit_logs: locked"), wantErr: "locked"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotColumn string
			var gotCutoff time.Time
			purger := &mockPurger{DeleteBeforeFunc: func(_ context.Context, column string, cutoff time.Time) (int64, error) {
				gotColumn, gotCutoff = column, cutoff
				return tt.deleted, tt.deleteErr
			}}

			job, err := NewPurgeAuditLogsJob(purger, 90, nil)
			require.NoError(t, err)
			job.now = func() time.Time { return now }

			count, err := job.Execute(context.Background())
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCount, count)
			assert.Equal(t, "changed_at", gotColumn)
			assert.Equal(t, time.Date(2026, 4, 2, 4, 0, 0, 0, time.UTC), gotCutoff)
		})
	}
}

func TestNewPurgeAuditLogsJob_RejectsNonPositiveDays(t *testing.T) {
	_, err := NewPurgeAuditLogsJob(&mockPurger{}, 0, nil)
	assert.Error(t, err)
}
