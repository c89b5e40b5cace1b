package template

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autocrm-inc/autocrm/internal/domain/template"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/testutil"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

const (
	agentID    = "63a9b1e4-eeee-4f70-9a5b-000000000001"
	otherAgent = "63a9b1e4-eeee-4f70-9a5b-000000000002"
	templateID = "63a9b1e4-eeee-4f70-9a5b-000000000010"
)

func greeting(owner string) template.Template {
	return template.Template{
		ID:       templateID,
		Name:     "Refund Approved",
		Content:  "Hi {name}, your refund of {amount} is on its way. Thanks {name}!",
		Category: template.CategorySupport,
		UserID:   owner,
	}
}

func newHandler() (*TemplateHandler, *testutil.MockTable[template.Template]) {
	templates := &testutil.MockTable[template.Template]{TableName: "templates"}
	templates.GetFunc = func(context.Context, string) (template.Template, error) {
		return greeting(agentID), nil
	}
	templates.ListFunc = func(context.Context, query.Query) ([]template.Template, error) {
		return []template.Template{greeting(agentID)}, nil
	}
	return NewTemplateHandler(templates, query.SearchPerTerm, logger.NewNop()), templates
}

func TestListTemplates_ScopedToCaller(t *testing.T) {
	h, templates := newHandler()

	c, w := testutil.NewTestContext(http.MethodGet, "/templates", nil)
	testutil.SetQueryParams(c, map[string]string{"search": "refund", "category": "support"})
	testutil.SetAuthContext(c, agentID, user.RoleEmployee)
	h.ListTemplates(c)

	require.Equal(t, http.StatusOK, w.Code)
	q := templates.Queries[0]
	assert.Equal(t, []query.Condition{
		{Column: "user_id", Value: agentID},
		{Column: "category", Value: "support"},
	}, q.Conditions)
	assert.Equal(t, "name", q.Search.Column)

	list, err := testutil.DecodeData[testutil.ListData[TemplateResponse]](w)
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, "refundapproved", list.Items[0].Shortcut)
	assert.Equal(t, []string{"name", "amount"}, list.Items[0].Placeholders)
}

func TestGetTemplate_OtherAgentsAreHidden(t *testing.T) {
	h, _ := newHandler()

	c, w := testutil.NewTestContext(http.MethodGet, "/templates/"+templateID, nil)
	testutil.SetURLParam(c, "id", templateID)
	testutil.SetAuthContext(c, otherAgent, user.RoleEmployee)
	h.GetTemplate(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateTemplate(t *testing.T) {
	h, templates := newHandler()
	var inserted template.Template
	templates.InsertFunc = func(_ context.Context, v template.Template) (template.Template, error) {
		inserted = v
		v.ID = templateID
		return v, nil
	}

	c, w := testutil.NewTestContext(http.MethodPost, "/templates", map[string]any{"name": " Welcome ", "content": "Hello {name}"})
	testutil.SetAuthContext(c, agentID, user.RoleEmployee)
	h.CreateTemplate(c)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Welcome", inserted.Name)
	assert.Equal(t, template.CategoryGeneral, inserted.Category)
	assert.Equal(t, agentID, inserted.UserID)

	c, w = testutil.NewTestContext(http.MethodPost, "/templates", map[string]any{"name": "x", "content": "y", "category": "legal"})
	testutil.SetAuthContext(c, agentID, user.RoleEmployee)
	h.CreateTemplate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExpandShortcut(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantText     string
		wantExpanded bool
	}{
		{name: "case and spaces ignored", text: "Thanks for waiting. .REFUNDapproved", wantText: "Thanks for waiting. " + greeting(agentID).Content, wantExpanded: true},
		{name: "unknown shortcut", text: "see .faq", wantText: "see .faq"},
		{name: "not last word", text: ".refundapproved please", wantText: ".refundapproved please"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, templates := newHandler()

			c, w := testutil.NewTestContext(http.MethodPost, "/templates/expand", map[string]any{"text": tt.text})
			testutil.SetAuthContext(c, agentID, user.RoleEmployee)
			h.ExpandShortcut(c)

			require.Equal(t, http.StatusOK, w.Code)
			got, err := testutil.DecodeData[ExpandResponse](w)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantExpanded, got.Expanded)
			assert.Contains(t, templates.Queries[0].Conditions, query.Condition{Column: "user_id", Value: agentID})
		})
	}
}

func TestFillTemplate(t *testing.T) {
	h, _ := newHandler()

	c, w := testutil.NewTestContext(http.MethodPost, "/templates/"+templateID+"/fill", map[string]any{
		"variables": map[string]string{"name": "Ada"},
	})
	testutil.SetURLParam(c, "id", templateID)
	testutil.SetAuthContext(c, agentID, user.RoleEmployee)
	h.FillTemplate(c)

	require.Equal(t, http.StatusOK, w.Code)
	got, err := testutil.DecodeData[FillResponse](w)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ada, your refund of {amount} is on its way. Thanks Ada!", got.Content)
	assert.Equal(t, []string{"amount"}, got.Missing)
}
