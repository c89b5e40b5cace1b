package permission

import (
	"fmt"

	"github.com/autocrm-inc/autocrm/internal/domain/user"
)

// Resources, named after the tables they guard.
const (
	ResourceTickets        = "tickets"
	ResourceNotes          = "internal_notes"
	ResourceDirectMessages = "direct_messages"
	ResourceMessages       = "messages"
	ResourceAuditLogs      = "audit_logs"
	ResourceUsers          = "users"
	ResourceTemplates      = "templates"
	ResourceArticles       = "articles"
	ResourceAssistant      = "assistant"
)

const (
	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	// ActionExecute runs assistant tools directly.
	ActionExecute = "execute"
)

// DefaultPolicies grant customers their own conversations and tickets,
// employees the support workspace and admins the rest.
func DefaultPolicies() [][]string {
	customer := string(user.RoleCustomer)
	employee := string(user.RoleEmployee)
	admin := string(user.RoleAdmin)

	return [][]string{
		{customer, ResourceTickets, ActionRead},
		{customer, ResourceTickets, ActionCreate},
		{customer, ResourceDirectMessages, ActionRead},
		{customer, ResourceDirectMessages, ActionCreate},
		{customer, ResourceMessages, ActionRead},
		{customer, ResourceMessages, ActionCreate},
		{customer, ResourceArticles, ActionRead},
		{customer, ResourceAssistant, ActionRead},

		{employee, ResourceTickets, ActionUpdate},
		{employee, ResourceNotes, "*"},
		{employee, ResourceMessages, ActionUpdate},
		{employee, ResourceUsers, ActionRead},
		{employee, ResourceTemplates, "*"},
		{employee, ResourceAuditLogs, ActionRead},
		{employee, ResourceAssistant, ActionExecute},

		{admin, ResourceTickets, ActionDelete},
		{admin, ResourceMessages, ActionDelete},
		{admin, ResourceUsers, "*"},
		{admin, ResourceArticles, "*"},
	}
}

// DefaultRoleLinks make each role inherit the one below it.
func DefaultRoleLinks() [][]string {
	return [][]string{
		{string(user.RoleEmployee), string(user.RoleCustomer)},
		{string(user.RoleAdmin), string(user.RoleEmployee)},
	}
}

// InitDefaultPolicies adds any default policy or role link that is
// missing. Existing rules are left alone.
func (e *Enforcer) InitDefaultPolicies() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, policy := range DefaultPolicies() {
		if _, err := e.enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			e.logger.Errorw("failed to add default policy",
				"error", err,
				"role", policy[0],
				"resource", policy[1],
				"action", policy[2])
			return fmt.Errorf("failed to add policy [%s, %s, %s]: %w",
				policy[0], policy[1], policy[2], err)
		}
	}
	for _, link := range DefaultRoleLinks() {
		if _, err := e.enforcer.AddRoleForUser(link[0], link[1]); err != nil {
			return fmt.Errorf("failed to link role %s to %s: %w", link[0], link[1], err)
		}
	}

	e.logger.Info("default permissions initialized")
	return nil
}
