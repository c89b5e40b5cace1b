package realtime

import (
	"context"
	"fmt"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/domain/knowledge"
	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/domain/template"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/shared/errors"
)

const actionRead = "read"

type PermissionChecker interface {
	Enforce(role, resource, action string) (bool, error)
}

// ConversationLookup resolves a direct message thread for messages
// subscriptions.
type ConversationLookup interface {
	Get(ctx context.Context, id string) (message.DirectMessage, error)
}

// Access narrows a subscription request to the rows the caller may see.
// Filters are the only row scoping the feed supports, so a caller without
// global read access must subscribe through a filter naming itself.
type Access struct {
	checker       PermissionChecker
	conversations ConversationLookup
}

func NewAccess(checker PermissionChecker, conversations ConversationLookup) *Access {
	return &Access{checker: checker, conversations: conversations}
}

// Authorize returns the request to subscribe with, or a forbidden or
// validation error.
func (a *Access) Authorize(ctx context.Context, userID string, role user.Role, req changefeed.Request) (changefeed.Request, error) {
	if err := req.Validate(); err != nil {
		return req, errors.NewValidationError(err.Error())
	}

	allowed, err := a.checker.Enforce(string(role), req.Table, actionRead)
	if err != nil {
		return req, fmt.Errorf("failed to check %s read permission: %w", req.Table, err)
	}
	if !allowed {
		return req, errors.NewForbiddenError("insufficient permissions", req.Table)
	}

	switch req.Table {
	case ticket.Table:
		if !role.IsStaff() {
			return forceFilter(req, "customer_id", userID)
		}
	case template.Table:
		return forceFilter(req, "user_id", userID)
	case knowledge.Table:
		if !role.IsStaff() {
			return forceFilter(req, "published", "true")
		}
	case message.DirectMessageTable:
		if role != user.RoleAdmin {
			return requireSelfFilter(req, userID, "sender_id", "recipient_id")
		}
	case message.Table:
		if role != user.RoleAdmin {
			return a.requireConversation(ctx, req, userID)
		}
	}
	return req, nil
}

// forceFilter pins column to value. A caller supplied filter on the same
// column must agree; a filter on another column cannot be combined.
func forceFilter(req changefeed.Request, column, value string) (changefeed.Request, error) {
	if req.Filter != nil && (req.Filter.Column != column || req.Filter.Value != value) {
		return req, errors.NewForbiddenError(
			fmt.Sprintf("%s subscriptions are limited to %s", req.Table, changefeed.Eq(column, value)),
		)
	}
	req.Filter = changefeed.Eq(column, value)
	return req, nil
}

func requireSelfFilter(req changefeed.Request, userID string, columns ...string) (changefeed.Request, error) {
	if req.Filter != nil && req.Filter.Value == userID {
		for _, col := range columns {
			if req.Filter.Column == col {
				return req, nil
			}
		}
	}
	return req, errors.NewForbiddenError(
		fmt.Sprintf("%s subscriptions need a filter on one of %v equal to your user id", req.Table, columns),
	)
}

func (a *Access) requireConversation(ctx context.Context, req changefeed.Request, userID string) (changefeed.Request, error) {
	if req.Filter == nil || req.Filter.Column != "direct_message_id" {
		return req, errors.NewForbiddenError("messages subscriptions need a direct_message_id filter")
	}
	dm, err := a.conversations.Get(ctx, req.Filter.Value)
	if err != nil {
		if errors.IsNotFoundError(err) {
			return req, errors.NewForbiddenError("conversation not found")
		}
		return req, err
	}
	if !dm.Involves(userID) {
		return req, errors.NewForbiddenError("conversation not found")
	}
	return req, nil
}
