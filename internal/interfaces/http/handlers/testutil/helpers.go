package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/shared/actor"
	"github.com/autocrm-inc/autocrm/internal/shared/constants"
	"github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// NewTestContext creates a test gin.Context with the given method, path, and optional body.
func NewTestContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(jsonBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req

	return c, w
}

// SetAuthContext sets the caller the way the auth middleware does.
func SetAuthContext(c *gin.Context, userID string, role user.Role) {
	c.Set(constants.ContextKeyUserID, userID)
	c.Set(constants.ContextKeyUserRole, string(role))
	c.Request = c.Request.WithContext(actor.WithUserID(c.Request.Context(), userID))
}

// SetURLParam sets a URL parameter on the gin context.
func SetURLParam(c *gin.Context, key, value string) {
	c.Params = append(c.Params, gin.Param{Key: key, Value: value})
}

// SetQueryParams sets query parameters on the gin context.
func SetQueryParams(c *gin.Context, params map[string]string) {
	q := url.Values{}
	for k, v := range params {
		q.Set(k, v)
	}
	c.Request.URL.RawQuery = q.Encode()
}

// ParseResponse parses the JSON response body into the target struct.
func ParseResponse(w *httptest.ResponseRecorder, target interface{}) error {
	return json.Unmarshal(w.Body.Bytes(), target)
}

// APIResponse mirrors utils.APIResponse for test assertions.
type APIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *ErrorInfo      `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ErrorInfo mirrors utils.ErrorInfo for test assertions.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ListData mirrors utils.ListResponse.
type ListData[T any] struct {
	Items    []T `json:"items"`
	Count    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// DecodeData unmarshals the data field of a success response.
func DecodeData[T any](w *httptest.ResponseRecorder) (T, error) {
	var resp APIResponse
	var out T
	if err := ParseResponse(w, &resp); err != nil {
		return out, err
	}
	err := json.Unmarshal(resp.Data, &out)
	return out, err
}

// MockTable is a clientstate.Table whose behaviour is set per test. Unset
// functions return zero values, and Get returns a NotFoundError.
type MockTable[T clientstate.Entity] struct {
	TableName  string
	ListFunc   func(ctx context.Context, q query.Query) ([]T, error)
	GetFunc    func(ctx context.Context, id string) (T, error)
	InsertFunc func(ctx context.Context, v T) (T, error)
	UpdateFunc func(ctx context.Context, id string, patch map[string]any) (T, error)
	DeleteFunc func(ctx context.Context, id string) error

	// Queries records every List call.
	Queries []query.Query
}

func (m *MockTable[T]) Name() string {
	return m.TableName
}

func (m *MockTable[T]) List(ctx context.Context, q query.Query) ([]T, error) {
	m.Queries = append(m.Queries, q)
	if m.ListFunc != nil {
		return m.ListFunc(ctx, q)
	}
	return nil, nil
}

func (m *MockTable[T]) Get(ctx context.Context, id string) (T, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, id)
	}
	var zero T
	return zero, errors.NewNotFoundError(m.TableName + " not found")
}

func (m *MockTable[T]) Insert(ctx context.Context, v T) (T, error) {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, v)
	}
	return v, nil
}

func (m *MockTable[T]) Update(ctx context.Context, id string, patch map[string]any) (T, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, id, patch)
	}
	var zero T
	return zero, nil
}

func (m *MockTable[T]) Delete(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}
