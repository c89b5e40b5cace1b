package seeds

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/repository"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

const sample = `
users:
  - email: Alice@Example.com
    role: admin
  - email: bob@example.com
tickets:
  - title: Cannot log in
    description: Password reset email never arrives
    priority: high
    customer: bob@example.com
templates:
  - name: Greeting
    content: Hi {name}, thanks for reaching out.
    category: support
    owner: alice@example.com
`

func setupTables(t *testing.T) *repository.Tables {
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, gdb.AutoMigrate(repository.AllModels()...))
	return repository.NewTables(gdb, nil, nil)
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	require.Len(t, f.Users, 2)
	assert.Equal(t, "admin", f.Users[0].Role)
	require.Len(t, f.Tickets, 1)
	assert.Equal(t, "bob@example.com", f.Tickets[0].Customer)
	require.Len(t, f.Templates, 1)
	assert.Equal(t, "Greeting", f.Templates[0].Name)

	_, err = Parse([]byte("users: ["))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	ctx := context.Background()
	tables := setupTables(t)
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	res, err := Apply(ctx, tables, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Users: 3, Tickets: 1, Templates: 1}, res)

	agent, err := tables.Users.Get(ctx, message.AIAgentID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleEmployee, agent.Role)

	bob, err := tables.Users.List(ctx, query.New(query.Where("email", "bob@example.com")))
	require.NoError(t, err)
	require.Len(t, bob, 1)
	assert.Equal(t, user.RoleCustomer, bob[0].Role)

	tickets, err := tables.Tickets.List(ctx, query.New())
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, bob[0].ID, tickets[0].CustomerID)

	// A second run finds everything in place.
	res, err = Apply(ctx, tables, f)
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
}

func TestApply_UnknownReference(t *testing.T) {
	tables := setupTables(t)

	_, err := Apply(context.Background(), tables, &File{
		Tickets: []TicketSeed{{Title: "Orphan", Customer: "nobody@example.com"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown user")
}
