package user

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/testutil"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

const (
	adminID    = "0d3f5a77-cccc-4b2a-9d10-000000000001"
	customerID = "0d3f5a77-cccc-4b2a-9d10-000000000002"
)

func newHandler() (*UserHandler, *testutil.MockTable[user.User]) {
	users := &testutil.MockTable[user.User]{TableName: "users"}
	return NewUserHandler(users, query.SearchPerTerm, logger.NewNop()), users
}

func TestGetCurrentUser(t *testing.T) {
	h, users := newHandler()
	users.GetFunc = func(_ context.Context, id string) (user.User, error) {
		return user.User{ID: id, Email: "jo@example.com", Role: user.RoleCustomer}, nil
	}

	c, w := testutil.NewTestContext(http.MethodGet, "/users/me", nil)
	testutil.SetAuthContext(c, customerID, user.RoleCustomer)
	h.GetCurrentUser(c)

	require.Equal(t, http.StatusOK, w.Code)
	u, err := testutil.DecodeData[user.User](w)
	require.NoError(t, err)
	assert.Equal(t, customerID, u.ID)
}

func TestListUsers_SearchesEmailTerms(t *testing.T) {
	h, users := newHandler()

	c, w := testutil.NewTestContext(http.MethodGet, "/users", nil)
	testutil.SetQueryParams(c, map[string]string{"search": "jo example", "role": "employee"})
	testutil.SetAuthContext(c, adminID, user.RoleAdmin)
	h.ListUsers(c)

	require.Equal(t, http.StatusOK, w.Code)
	q := users.Queries[0]
	require.NotNil(t, q.Search)
	assert.Equal(t, "email", q.Search.Column)
	assert.Equal(t, []string{"jo", "example"}, q.Search.Terms)
	assert.Equal(t, []query.Condition{{Column: "role", Value: "employee"}}, q.Conditions)

	c, w = testutil.NewTestContext(http.MethodGet, "/users", nil)
	testutil.SetQueryParams(c, map[string]string{"search": "   "})
	h.ListUsers(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, users.Queries[1].Search)
}

func TestCreateUser(t *testing.T) {
	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantRole   user.Role
		wantEmail  string
	}{
		{name: "defaults to customer", body: map[string]any{"email": "New@Example.com"}, wantStatus: http.StatusCreated, wantRole: user.RoleCustomer, wantEmail: "new@example.com"},
		{name: "employee", body: map[string]any{"email": "agent@example.com", "role": "employee"}, wantStatus: http.StatusCreated, wantRole: user.RoleEmployee, wantEmail: "agent@example.com"},
		{name: "bad email", body: map[string]any{"email": "nope"}, wantStatus: http.StatusBadRequest},
		{name: "bad role", body: map[string]any{"email": "a@example.com", "role": "owner"}, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, users := newHandler()
			var inserted user.User
			users.InsertFunc = func(_ context.Context, u user.User) (user.User, error) {
				inserted = u
				u.ID = customerID
				return u, nil
			}

			c, w := testutil.NewTestContext(http.MethodPost, "/users", tt.body)
			testutil.SetAuthContext(c, adminID, user.RoleAdmin)
			h.CreateUser(c)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusCreated {
				assert.Equal(t, tt.wantRole, inserted.Role)
				assert.Equal(t, tt.wantEmail, inserted.Email)
			}
		})
	}
}

func TestUpdateUser(t *testing.T) {
	h, users := newHandler()
	var gotPatch map[string]any
	users.UpdateFunc = func(_ context.Context, id string, patch map[string]any) (user.User, error) {
		gotPatch = patch
		return user.User{ID: id, Email: "jo@example.com", Role: user.RoleEmployee}, nil
	}

	c, w := testutil.NewTestContext(http.MethodPatch, "/users/"+customerID, map[string]any{"role": "employee", "email": " Jo@Example.com "})
	testutil.SetURLParam(c, "id", customerID)
	testutil.SetAuthContext(c, adminID, user.RoleAdmin)
	h.UpdateUser(c)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{"role": "employee", "email": "jo@example.com"}, gotPatch)
}

func TestUpdateUser_CannotDemoteSelf(t *testing.T) {
	h, users := newHandler()
	users.UpdateFunc = func(context.Context, string, map[string]any) (user.User, error) {
		t.Fatal("update must not be called")
		return user.User{}, nil
	}

	c, w := testutil.NewTestContext(http.MethodPatch, "/users/"+adminID, map[string]any{"role": "customer"})
	testutil.SetURLParam(c, "id", adminID)
	testutil.SetAuthContext(c, adminID, user.RoleAdmin)
	h.UpdateUser(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDeleteUser(t *testing.T) {
	h, users := newHandler()
	var deleted string
	users.DeleteFunc = func(_ context.Context, id string) error {
		deleted = id
		return nil
	}

	c, w := testutil.NewTestContext(http.MethodDelete, "/users/"+customerID, nil)
	testutil.SetURLParam(c, "id", customerID)
	testutil.SetAuthContext(c, adminID, user.RoleAdmin)
	h.DeleteUser(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Equal(t, customerID, deleted)

	c, w = testutil.NewTestContext(http.MethodDelete, "/users/"+adminID, nil)
	testutil.SetURLParam(c, "id", adminID)
	testutil.SetAuthContext(c, adminID, user.RoleAdmin)
	h.DeleteUser(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
