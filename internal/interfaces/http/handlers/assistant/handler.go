package assistant

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/application/assistant"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

// ToolRunner runs the agent's structured tools.
type ToolRunner interface {
	SearchTickets(ctx context.Context, q string) string
	SearchUsers(ctx context.Context, q string) string
	CreateTicket(ctx context.Context, in assistant.CreateTicketInput) string
}

type AskRequest struct {
	Message string `json:"message" binding:"required,max=4000"`
}

type AskResponse struct {
	Reply string `json:"reply"`
	// Fallback is set when the reply is the apology.
	Fallback bool `json:"fallback"`
}

type ToolQueryRequest struct {
	Query string `json:"query" binding:"max=500"`
}

type CreateTicketRequest struct {
	Title      string `json:"title"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	CustomerID string `json:"customer_id"`
}

// AssistantHandler exposes the AI agent outside of a conversation: a
// one-shot question and the agent's tools.
type AssistantHandler struct {
	pipeline assistant.Pipeline
	tools    ToolRunner
	logger   logger.Interface
}

func NewAssistantHandler(pipeline assistant.Pipeline, tools ToolRunner, log logger.Interface) *AssistantHandler {
	return &AssistantHandler{
		pipeline: pipeline,
		tools:    tools,
		logger:   log,
	}
}

// Ask handles POST /assistant/ask
func (h *AssistantHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	if h.pipeline == nil {
		utils.SuccessResponse(c, http.StatusOK, "", AskResponse{Reply: assistant.Apology, Fallback: true})
		return
	}

	reply, err := h.pipeline.Respond(c.Request.Context(), req.Message)
	if err != nil || reply == "" {
		h.logger.Warnw("assistant ask failed", "error", err, "user_id", middleware.UserID(c))
		utils.SuccessResponse(c, http.StatusOK, "", AskResponse{Reply: assistant.Apology, Fallback: true})
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", AskResponse{Reply: reply})
}

// toolResponse passes JSON tool output through as is and wraps plain text
// results.
func toolResponse(c *gin.Context, out string) {
	if json.Valid([]byte(out)) {
		utils.SuccessResponse(c, http.StatusOK, "", json.RawMessage(out))
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", assistant.ToolResult{Type: "text", Message: out})
}

// SearchTickets handles POST /assistant/tools/search-tickets
func (h *AssistantHandler) SearchTickets(c *gin.Context) {
	var req ToolQueryRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	toolResponse(c, h.tools.SearchTickets(c.Request.Context(), req.Query))
}

// SearchUsers handles POST /assistant/tools/search-users
func (h *AssistantHandler) SearchUsers(c *gin.Context) {
	var req ToolQueryRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	toolResponse(c, h.tools.SearchUsers(c.Request.Context(), req.Query))
}

// CreateTicket handles POST /assistant/tools/create-ticket
//
// Invalid input is reported in the tool result, the way the agent sees
// it, not as a 400.
func (h *AssistantHandler) CreateTicket(c *gin.Context) {
	var req CreateTicketRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	toolResponse(c, h.tools.CreateTicket(c.Request.Context(), assistant.CreateTicketInput{
		Title:      req.Title,
		Status:     req.Status,
		Priority:   req.Priority,
		CustomerID: req.CustomerID,
	}))
}
