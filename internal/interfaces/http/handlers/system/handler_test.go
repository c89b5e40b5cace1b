package system

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/testutil"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

func TestHealthCheck(t *testing.T) {
	ok := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("connection refused") })

	tests := []struct {
		name       string
		checks     map[string]Pinger
		wantStatus int
		wantState  string
	}{
		{
			name:       "all healthy",
			checks:     map[string]Pinger{"database": ok, "redis": ok},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
		{
			name:       "redis down",
			checks:     map[string]Pinger{"database": ok, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			wantState:  "unhealthy",
		},
		{
			name:       "nil checks are skipped",
			checks:     map[string]Pinger{"database": ok, "redis": nil},
			wantStatus: http.StatusOK,
			wantState:  "healthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewSystemHandler(tt.checks, logger.NewNop())
			c, w := testutil.NewTestContext(http.MethodGet, "/health", nil)

			h.HealthCheck(c)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, testutil.ParseResponse(w, &body))
			assert.Equal(t, tt.wantState, body.Status)
			assert.Equal(t, "ok", body.Checks["database"])
			_, hasRedis := body.Checks["redis"]
			assert.Equal(t, tt.checks["redis"] != nil, hasRedis)
		})
	}
}

func TestVersion(t *testing.T) {
	h := NewSystemHandler(nil, logger.NewNop())
	c, w := testutil.NewTestContext(http.MethodGet, "/version", nil)

	h.Version(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"version":"dev","release":false}`, w.Body.String())
}
