package mappers

import (
	"fmt"

	"github.com/autocrm-inc/autocrm/internal/domain/note"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/persistence/models"
)

// TicketMapper handles the conversion between Ticket domain entities and persistence models.
type TicketMapper interface {
	// ToModel converts a ticket domain entity to a persistence model.
	ToModel(t ticket.Ticket) *models.TicketModel

	// ToDomain converts a ticket persistence model to a domain entity.
	ToDomain(model *models.TicketModel) (ticket.Ticket, error)
}

// TicketMapperImpl is the concrete implementation of TicketMapper.
type TicketMapperImpl struct{}

// NewTicketMapper creates a new TicketMapper.
func NewTicketMapper() TicketMapper {
	return &TicketMapperImpl{}
}

// ToModel converts a ticket domain entity to a persistence model.
func (m *TicketMapperImpl) ToModel(t ticket.Ticket) *models.TicketModel {
	return &models.TicketModel{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status.String(),
		Priority:    t.Priority.String(),
		CustomerID:  t.CustomerID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// ToDomain converts a ticket persistence model to a domain entity.
func (m *TicketMapperImpl) ToDomain(model *models.TicketModel) (ticket.Ticket, error) {
	status, err := vo.NewTicketStatus(model.Status)
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("ticket %s: %w", model.ID, err)
	}
	priority, err := vo.NewPriority(model.Priority)
	if err != nil {
		return ticket.Ticket{}, fmt.Errorf("ticket %s: %w", model.ID, err)
	}

	return ticket.Ticket{
		ID:          model.ID,
		Title:       model.Title,
		Description: model.Description,
		Status:      status,
		Priority:    priority,
		CustomerID:  model.CustomerID,
		CreatedAt:   model.CreatedAt.UTC(),
		UpdatedAt:   model.UpdatedAt.UTC(),
	}, nil
}

// NoteMapper converts internal notes. Notes have no enumerated fields, so
// the conversion cannot fail.
type NoteMapper struct{}

func NewNoteMapper() *NoteMapper {
	return &NoteMapper{}
}

func (m *NoteMapper) ToModel(n note.InternalNote) *models.InternalNoteModel {
	return &models.InternalNoteModel{
		ID:          n.ID,
		TicketID:    n.TicketID,
		UserID:      n.UserID,
		NoteContent: n.NoteContent,
		CreatedAt:   n.CreatedAt,
	}
}

func (m *NoteMapper) ToDomain(model *models.InternalNoteModel) (note.InternalNote, error) {
	return note.InternalNote{
		ID:          model.ID,
		TicketID:    model.TicketID,
		UserID:      model.UserID,
		NoteContent: model.NoteContent,
		CreatedAt:   model.CreatedAt.UTC(),
	}, nil
}
