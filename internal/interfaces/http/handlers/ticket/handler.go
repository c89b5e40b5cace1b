package ticket

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/note"
	"github.com/autocrm-inc/autocrm/internal/domain/ticket"
	vo "github.com/autocrm-inc/autocrm/internal/domain/ticket/valueobjects"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/common"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
	"github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

// TicketHandler serves tickets and their internal notes. Customers only
// ever see their own tickets.
type TicketHandler struct {
	tickets clientstate.Table[ticket.Ticket]
	notes   clientstate.Table[note.InternalNote]
	mode    query.SearchMode
	logger  logger.Interface
}

func NewTicketHandler(
	tickets clientstate.Table[ticket.Ticket],
	notes clientstate.Table[note.InternalNote],
	mode query.SearchMode,
	log logger.Interface,
) *TicketHandler {
	return &TicketHandler{
		tickets: tickets,
		notes:   notes,
		mode:    mode,
		logger:  log,
	}
}

func isStaff(c *gin.Context) bool {
	return user.Role(middleware.UserRole(c)).IsStaff()
}

// CreateTicket handles POST /tickets
func (h *TicketHandler) CreateTicket(c *gin.Context) {
	var req CreateTicketRequest
	if err := utils.BindJSON(c, &req); err != nil {
		h.logger.Warnw("invalid request body for create ticket", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	customerID := middleware.UserID(c)
	if isStaff(c) && req.CustomerID != "" {
		customerID = req.CustomerID
	}

	t, err := ticket.NewTicket(req.Title, req.Description, customerID, vo.TicketStatus(req.Status), vo.Priority(req.Priority))
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid ticket", err.Error()))
		return
	}

	created, err := h.tickets.Insert(c.Request.Context(), t)
	if err != nil {
		h.logger.Errorw("failed to create ticket", "error", err, "customer_id", customerID)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, created, "Ticket created successfully")
}

// ListTickets handles GET /tickets
//
// Query: search (title terms), status, priority, customer_id and the
// common paging parameters.
func (h *TicketHandler) ListTickets(c *gin.Context) {
	req := common.ParseListRequest(c)

	var scope []query.Option
	if status := c.Query("status"); status != "" {
		if !vo.TicketStatus(status).IsValid() {
			utils.ErrorResponseWithError(c, errors.NewValidationError("Invalid status. Must be one of: open, pending, resolved"))
			return
		}
		scope = append(scope, query.Where("status", status))
	}
	if priority := c.Query("priority"); priority != "" {
		if !vo.Priority(priority).IsValid() {
			utils.ErrorResponseWithError(c, errors.NewValidationError("Invalid priority. Must be one of: low, medium, high"))
			return
		}
		scope = append(scope, query.Where("priority", priority))
	}
	if isStaff(c) {
		if customerID := c.Query("customer_id"); customerID != "" {
			scope = append(scope, query.Where("customer_id", customerID))
		}
	} else {
		scope = append(scope, query.Where("customer_id", middleware.UserID(c)))
	}

	items, err := h.tickets.List(c.Request.Context(), req.Query("title", h.mode, scope...))
	if err != nil {
		h.logger.Errorw("failed to list tickets", "error", err, "search", req.Search)
		utils.ErrorResponseWithError(c, err)
		return
	}

	common.RespondList(c, req, items)
}

// visibleTicket loads a ticket the caller may see. Other customers'
// tickets are reported as not found.
func (h *TicketHandler) visibleTicket(c *gin.Context) (ticket.Ticket, bool) {
	id, err := utils.ParseIDParam(c, "id", "ticket")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return ticket.Ticket{}, false
	}

	t, err := h.tickets.Get(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return ticket.Ticket{}, false
	}
	if !isStaff(c) && t.CustomerID != middleware.UserID(c) {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("ticket not found"))
		return ticket.Ticket{}, false
	}
	return t, true
}

// GetTicket handles GET /tickets/:id
func (h *TicketHandler) GetTicket(c *gin.Context) {
	t, ok := h.visibleTicket(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", t)
}

// UpdateTicket handles PATCH /tickets/:id
func (h *TicketHandler) UpdateTicket(c *gin.Context) {
	id, err := utils.ParseIDParam(c, "id", "ticket")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req UpdateTicketRequest
	if err := utils.BindJSON(c, &req); err != nil {
		h.logger.Warnw("invalid request body for update ticket", "error", err, "ticket_id", id)
		utils.ErrorResponseWithError(c, err)
		return
	}
	patch := req.Patch()
	if len(patch) == 0 {
		utils.ErrorResponseWithError(c, errors.NewValidationError("no fields to update"))
		return
	}

	updated, err := h.tickets.Update(c.Request.Context(), id, patch)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Ticket updated successfully", updated)
}

// DeleteTicket handles DELETE /tickets/:id
func (h *TicketHandler) DeleteTicket(c *gin.Context) {
	id, err := utils.ParseIDParam(c, "id", "ticket")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if err := h.tickets.Delete(c.Request.Context(), id); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.logger.Infow("ticket deleted", "ticket_id", id, "deleted_by", middleware.UserID(c))
	utils.NoContentResponse(c)
}

// ListNotes handles GET /tickets/:id/notes
func (h *TicketHandler) ListNotes(c *gin.Context) {
	t, ok := h.visibleTicket(c)
	if !ok {
		return
	}

	req := common.ParseListRequest(c)
	items, err := h.notes.List(c.Request.Context(), req.Query("note_content", h.mode, query.Where("ticket_id", t.ID)))
	if err != nil {
		h.logger.Errorw("failed to list notes", "error", err, "ticket_id", t.ID)
		utils.ErrorResponseWithError(c, err)
		return
	}

	common.RespondList(c, req, items)
}

// AddNote handles POST /tickets/:id/notes
func (h *TicketHandler) AddNote(c *gin.Context) {
	t, ok := h.visibleTicket(c)
	if !ok {
		return
	}

	var req CreateNoteRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	n, err := note.NewInternalNote(t.ID, middleware.UserID(c), req.NoteContent)
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid note", err.Error()))
		return
	}

	created, err := h.notes.Insert(c.Request.Context(), n)
	if err != nil {
		h.logger.Errorw("failed to add note", "error", err, "ticket_id", t.ID)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, created, "Note added successfully")
}

// DeleteNote handles DELETE /tickets/:id/notes/:note_id
func (h *TicketHandler) DeleteNote(c *gin.Context) {
	ticketID, err := utils.ParseIDParam(c, "id", "ticket")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	noteID, err := utils.ParseIDParam(c, "note_id", "note")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if err := h.deleteNote(c.Request.Context(), ticketID, noteID); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.NoContentResponse(c)
}

func (h *TicketHandler) deleteNote(ctx context.Context, ticketID, noteID string) error {
	n, err := h.notes.Get(ctx, noteID)
	if err != nil {
		return err
	}
	if n.TicketID != ticketID {
		return errors.NewNotFoundError("note not found")
	}
	return h.notes.Delete(ctx, noteID)
}
