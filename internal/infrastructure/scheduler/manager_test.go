package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchJobFunc func(ctx context.Context) (int, error)

func (f batchJobFunc) Execute(ctx context.Context) (int, error) {
	return f(ctx)
}

func TestNextRun(t *testing.T) {
	from := time.Date(2026, 5, 1, 1, 30, 0, 0, time.UTC)

	next, err := NextRun(DefaultRetentionCron, from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 2, 0, 0, 0, time.UTC), next)

	next, err = NextRun("0 2 * * *", from.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 2, 2, 0, 0, 0, time.UTC), next)

	_, err = NextRun("every day", from)
	assert.ErrorContains(t, err, "invalid cron expression")
}

func TestSchedulerManager_RegisterRetentionJob(t *testing.T) {
	m, err := NewSchedulerManager(nil)
	require.NoError(t, err)

	job := batchJobFunc(func(context.Context) (int, error) { return 0, nil })

	require.NoError(t, m.RegisterRetentionJob("", time.Minute, job))
	require.Len(t, m.Jobs(), 1)
	assert.Equal(t, "audit-retention", m.Jobs()[0].Name())
	assert.Equal(t, []string{"retention", "audit"}, m.Jobs()[0].Tags())

	assert.Error(t, m.RegisterRetentionJob("61 * * * *", time.Minute, job))
	assert.Len(t, m.Jobs(), 1)

	m.Start()
	assert.True(t, m.IsStarted())
	require.NoError(t, m.Stop())
	assert.False(t, m.IsStarted())
	require.NoError(t, m.Stop())
}

func TestSchedulerManager_RunBatchSurvivesErrors(t *testing.T) {
	m, err := NewSchedulerManager(nil)
	require.NoError(t, err)

	calls := 0
	m.runBatch(context.Background(), "failing", batchJobFunc(func(context.Context) (int, error) {
		calls++
		return 0, errors.New("db locked")
	}))
	m.runBatch(context.Background(), "ok", batchJobFunc(func(context.Context) (int, error) {
		calls++
		return 3, nil
	}))
	assert.Equal(t, 2, calls)
}
