package ticket

import (
	"sync"

	"github.com/go-playground/validator/v10"

	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

type CreateTicketRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"max=5000"`
	Status      string `json:"status" binding:"omitempty,ticket_status"`
	Priority    string `json:"priority" binding:"omitempty,ticket_priority"`
	// CustomerID is honoured for staff only; customers always file for
	// themselves.
	CustomerID string `json:"customer_id" binding:"omitempty,uuid"`
}

type UpdateTicketRequest struct {
	Title       *string `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string `json:"description" binding:"omitempty,max=5000"`
	Status      *string `json:"status" binding:"omitempty,ticket_status"`
	Priority    *string `json:"priority" binding:"omitempty,ticket_priority"`
}

// Patch lists the columns the request sets.
func (r UpdateTicketRequest) Patch() map[string]any {
	patch := make(map[string]any, 4)
	if r.Title != nil {
		patch["title"] = *r.Title
	}
	if r.Description != nil {
		patch["description"] = *r.Description
	}
	if r.Status != nil {
		patch["status"] = *r.Status
	}
	if r.Priority != nil {
		patch["priority"] = *r.Priority
	}
	return patch
}

type CreateNoteRequest struct {
	NoteContent string `json:"note_content" binding:"required,max=10000"`
}

var registerOnce sync.Once

// RegisterValidators adds the ticket_status and ticket_priority binding
// tags. Safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		if err = utils.RegisterValidation("ticket_status", func(fl validator.FieldLevel) bool {
			return vo.TicketStatus(fl.Field().String()).IsValid()
		}); err != nil {
			return
		}
		err = utils.RegisterValidation("ticket_priority", func(fl validator.FieldLevel) bool {
			return vo.Priority(fl.Field().String()).IsValid()
		})
	})
	return err
}
