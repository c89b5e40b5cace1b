package message

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/application/assistant"
	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/message"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/common"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
	"github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

// Sender posts a message into a conversation and answers it when the
// conversation is with the AI agent.
type Sender interface {
	Send(ctx context.Context, out assistant.MessageCreator, dm message.DirectMessage, senderID, text string) error
}

// ConversationHandler serves direct message conversations and their
// messages. Only participants can see a conversation.
type ConversationHandler struct {
	conversations clientstate.Table[message.DirectMessage]
	messages      clientstate.Table[message.Message]
	sender        Sender
	mode          query.SearchMode
	logger        logger.Interface
}

func NewConversationHandler(
	conversations clientstate.Table[message.DirectMessage],
	messages clientstate.Table[message.Message],
	sender Sender,
	mode query.SearchMode,
	log logger.Interface,
) *ConversationHandler {
	return &ConversationHandler{
		conversations: conversations,
		messages:      messages,
		sender:        sender,
		mode:          mode,
		logger:        log,
	}
}

// recordingWriter inserts messages and keeps the stored rows so the
// response can return them.
type recordingWriter struct {
	table   clientstate.Table[message.Message]
	created []message.Message
}

func (w *recordingWriter) Create(ctx context.Context, m message.Message) error {
	stored, err := w.table.Insert(ctx, m)
	if err != nil {
		return err
	}
	w.created = append(w.created, stored)
	return nil
}

// ListConversations handles GET /conversations
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	me := middleware.UserID(c)
	req := common.ParseListRequest(c)

	items, err := h.conversations.List(c.Request.Context(), req.Query("", h.mode, query.WhereAny(
		query.Condition{Column: "sender_id", Value: me},
		query.Condition{Column: "recipient_id", Value: me},
	)))
	if err != nil {
		h.logger.Errorw("failed to list conversations", "error", err, "user_id", me)
		utils.ErrorResponseWithError(c, err)
		return
	}

	common.RespondList(c, req, items)
}

// CreateConversation handles POST /conversations
//
// Opening a conversation that already exists between the two users, in
// either direction, returns the existing one with 200.
func (h *ConversationHandler) CreateConversation(c *gin.Context) {
	var req CreateConversationRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	me := middleware.UserID(c)
	ctx := c.Request.Context()

	existing, err := h.findConversation(ctx, me, req.RecipientID)
	if err != nil {
		h.logger.Errorw("failed to look up conversation", "error", err, "user_id", me)
		utils.ErrorResponseWithError(c, err)
		return
	}
	if existing != nil {
		utils.SuccessResponse(c, http.StatusOK, "Conversation already exists", existing)
		return
	}

	dm, err := message.NewDirectMessage(me, req.RecipientID)
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid conversation", err.Error()))
		return
	}
	created, err := h.conversations.Insert(ctx, dm)
	if err != nil {
		h.logger.Errorw("failed to create conversation", "error", err, "user_id", me)
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.logger.Infow("conversation opened",
		"conversation_id", created.ID,
		"ai_agent", created.IsAIConversation(),
	)
	utils.CreatedResponse(c, created, "Conversation created successfully")
}

func (h *ConversationHandler) findConversation(ctx context.Context, a, b string) (*message.DirectMessage, error) {
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		found, err := h.conversations.List(ctx, query.New(
			query.Where("sender_id", pair[0]),
			query.Where("recipient_id", pair[1]),
			query.WithPage(1, 1),
		))
		if err != nil {
			return nil, err
		}
		if len(found) > 0 {
			return &found[0], nil
		}
	}
	return nil, nil
}

// visibleConversation loads a conversation the caller takes part in.
// Admins may read any conversation.
func (h *ConversationHandler) visibleConversation(c *gin.Context) (message.DirectMessage, bool) {
	id, err := utils.ParseIDParam(c, "id", "conversation")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return message.DirectMessage{}, false
	}

	dm, err := h.conversations.Get(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return message.DirectMessage{}, false
	}
	if !dm.Involves(middleware.UserID(c)) && user.Role(middleware.UserRole(c)) != user.RoleAdmin {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("conversation not found"))
		return message.DirectMessage{}, false
	}
	return dm, true
}

// GetConversation handles GET /conversations/:id
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	dm, ok := h.visibleConversation(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", dm)
}

// ListMessages handles GET /conversations/:id/messages
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	dm, ok := h.visibleConversation(c)
	if !ok {
		return
	}

	req := common.ParseListRequest(c)
	items, err := h.messages.List(c.Request.Context(), req.Query("content", h.mode, query.Where("direct_message_id", dm.ID)))
	if err != nil {
		h.logger.Errorw("failed to list messages", "error", err, "conversation_id", dm.ID)
		utils.ErrorResponseWithError(c, err)
		return
	}

	common.RespondList(c, req, items)
}

// SendMessage handles POST /conversations/:id/messages
//
// In a conversation with the AI agent the response also carries the
// agent's reply, or the apology when no reply could be produced.
func (h *ConversationHandler) SendMessage(c *gin.Context) {
	dm, ok := h.visibleConversation(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	me := middleware.UserID(c)
	if !dm.Involves(me) {
		utils.ErrorResponseWithError(c, errors.NewForbiddenError("only participants can post in a conversation"))
		return
	}

	out := &recordingWriter{table: h.messages}
	if err := h.sender.Send(c.Request.Context(), out, dm, me, req.Content); err != nil {
		h.logger.Errorw("failed to send message",
			"error", err,
			"conversation_id", dm.ID,
			"stored", len(out.created),
		)
		if !errors.IsAppError(err) {
			err = errors.NewValidationError("invalid message", err.Error())
		}
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, out.created, "Message sent successfully")
}

// loadMessage returns a message of the conversation in the :id param.
func (h *ConversationHandler) loadMessage(c *gin.Context, dm message.DirectMessage) (message.Message, bool) {
	id, err := utils.ParseIDParam(c, "message_id", "message")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return message.Message{}, false
	}
	m, err := h.messages.Get(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return message.Message{}, false
	}
	if m.ConversationID() != dm.ID {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("message not found"))
		return message.Message{}, false
	}
	return m, true
}

// UpdateMessage handles PATCH /conversations/:id/messages/:message_id
//
// Authors edit their own messages; staff may edit any message.
func (h *ConversationHandler) UpdateMessage(c *gin.Context) {
	dm, ok := h.visibleConversation(c)
	if !ok {
		return
	}
	m, ok := h.loadMessage(c, dm)
	if !ok {
		return
	}

	var req UpdateMessageRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if m.SenderID != middleware.UserID(c) && !user.Role(middleware.UserRole(c)).IsStaff() {
		utils.ErrorResponseWithError(c, errors.NewForbiddenError("cannot edit another user's message"))
		return
	}

	updated, err := h.messages.Update(c.Request.Context(), m.ID, map[string]any{"content": req.Content})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Message updated successfully", updated)
}

// DeleteMessage handles DELETE /conversations/:id/messages/:message_id
func (h *ConversationHandler) DeleteMessage(c *gin.Context) {
	dm, ok := h.visibleConversation(c)
	if !ok {
		return
	}
	m, ok := h.loadMessage(c, dm)
	if !ok {
		return
	}

	if err := h.messages.Delete(c.Request.Context(), m.ID); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.logger.Infow("message deleted", "message_id", m.ID, "conversation_id", dm.ID, "deleted_by", middleware.UserID(c))
	utils.NoContentResponse(c)
}
