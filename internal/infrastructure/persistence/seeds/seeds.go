// Package seeds loads demo and bootstrap data from a YAML file.
package seeds

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/domain/template"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/repository"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

// AIAgentEmail is the address given to the AI agent user when it has to be
// created.
const AIAgentEmail = "ai-agent@autocrm.local"

type File struct {
	Users     []UserSeed     `yaml:"users"`
	Tickets   []TicketSeed   `yaml:"tickets"`
	Templates []TemplateSeed `yaml:"templates"`
}

type UserSeed struct {
	Email string `yaml:"email"`
	Role  string `yaml:"role"`
}

// TicketSeed references its customer by email.
type TicketSeed struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
	Priority    string `yaml:"priority"`
	Customer    string `yaml:"customer"`
}

// TemplateSeed references its owner by email.
type TemplateSeed struct {
	Name     string `yaml:"name"`
	Content  string `yaml:"content"`
	Category string `yaml:"category"`
	Owner    string `yaml:"owner"`
}

// Result counts the rows Apply created.
type Result struct {
	Users     int
	Tickets   int
	Templates int
}

func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &f, nil
}

// Apply makes sure the AI agent user exists, then creates the users,
// tickets and templates in f. Users already present by email are reused,
// so applying the same file twice only duplicates tickets and templates
// when their titles or names changed.
func Apply(ctx context.Context, tables *repository.Tables, f *File) (Result, error) {
	var res Result

	created, err := ensureAIAgent(ctx, tables)
	if err != nil {
		return res, err
	}
	if created {
		res.Users++
	}

	ids := map[string]string{}
	for _, s := range f.Users {
		role, err := user.NewRole(defaultString(s.Role, string(user.RoleCustomer)))
		if err != nil {
			return res, err
		}
		u, err := user.NewUser(s.Email, role)
		if err != nil {
			return res, fmt.Errorf("user %q: %w", s.Email, err)
		}
		existing, err := tables.Users.List(ctx, query.New(query.Where("email", u.Email)))
		if err != nil {
			return res, err
		}
		if len(existing) > 0 {
			ids[u.Email] = existing[0].ID
			continue
		}
		if u, err = tables.Users.Insert(ctx, u); err != nil {
			return res, fmt.Errorf("user %q: %w", s.Email, err)
		}
		ids[u.Email] = u.ID
		res.Users++
	}

	resolve := func(email string) (string, error) {
		email = strings.ToLower(strings.TrimSpace(email))
		if id, ok := ids[email]; ok {
			return id, nil
		}
		found, err := tables.Users.List(ctx, query.New(query.Where("email", email)))
		if err != nil {
			return "", err
		}
		if len(found) == 0 {
			return "", fmt.Errorf("unknown user %q", email)
		}
		ids[email] = found[0].ID
		return found[0].ID, nil
	}

	for _, s := range f.Tickets {
		exists, err := has(ctx, tables.Tickets, "title", s.Title)
		if err != nil {
			return res, err
		}
		if exists {
			continue
		}
		customerID, err := resolve(s.Customer)
		if err != nil {
			return res, fmt.Errorf("ticket %q: %w", s.Title, err)
		}
		t, err := ticket.NewTicket(s.Title, s.Description, customerID,
			vo.TicketStatus(defaultString(s.Status, string(vo.StatusOpen))),
			vo.Priority(defaultString(s.Priority, string(vo.PriorityMedium))))
		if err != nil {
			return res, fmt.Errorf("ticket %q: %w", s.Title, err)
		}
		if _, err := tables.Tickets.Insert(ctx, t); err != nil {
			return res, fmt.Errorf("ticket %q: %w", s.Title, err)
		}
		res.Tickets++
	}

	for _, s := range f.Templates {
		exists, err := has(ctx, tables.Templates, "name", s.Name)
		if err != nil {
			return res, err
		}
		if exists {
			continue
		}
		ownerID, err := resolve(s.Owner)
		if err != nil {
			return res, fmt.Errorf("template %q: %w", s.Name, err)
		}
		t, err := template.NewTemplate(s.Name, s.Content,
			template.Category(defaultString(s.Category, string(template.CategoryGeneral))), ownerID)
		if err != nil {
			return res, fmt.Errorf("template %q: %w", s.Name, err)
		}
		if _, err := tables.Templates.Insert(ctx, t); err != nil {
			return res, fmt.Errorf("template %q: %w", s.Name, err)
		}
		res.Templates++
	}

	return res, nil
}

// ensureAIAgent creates the user the AI agent posts as, keyed by its fixed
// ID. It reports whether the user was created.
func ensureAIAgent(ctx context.Context, tables *repository.Tables) (bool, error) {
	found, err := tables.Users.List(ctx, query.New(query.Where("id", message.AIAgentID)))
	if err != nil {
		return false, err
	}
	if len(found) > 0 {
		return false, nil
	}
	agent, err := user.NewUser(AIAgentEmail, user.RoleEmployee)
	if err != nil {
		return false, err
	}
	agent.ID = message.AIAgentID
	if _, err := tables.Users.Insert(ctx, agent); err != nil {
		return false, fmt.Errorf("failed to create ai agent user: %w", err)
	}
	return true, nil
}

type lister[T any] interface {
	List(ctx context.Context, q query.Query) ([]T, error)
}

func has[T any](ctx context.Context, table lister[T], column, value string) (bool, error) {
	found, err := table.List(ctx, query.New(query.Where(column, value)))
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func defaultString(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
