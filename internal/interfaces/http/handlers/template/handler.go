package template

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/template"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/common"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
	"github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

// TemplateHandler serves an agent's reply templates. Every agent sees
// only their own.
type TemplateHandler struct {
	templates clientstate.Table[template.Template]
	mode      query.SearchMode
	logger    logger.Interface
}

func NewTemplateHandler(templates clientstate.Table[template.Template], mode query.SearchMode, log logger.Interface) *TemplateHandler {
	return &TemplateHandler{
		templates: templates,
		mode:      mode,
		logger:    log,
	}
}

func toResponse(t template.Template) TemplateResponse {
	placeholders := t.Placeholders()
	if placeholders == nil {
		placeholders = []string{}
	}
	return TemplateResponse{
		ID:           t.ID,
		Name:         t.Name,
		Content:      t.Content,
		Category:     string(t.Category),
		UserID:       t.UserID,
		Shortcut:     t.Shortcut(),
		Placeholders: placeholders,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListTemplates handles GET /templates
//
// Query: search (name terms), category and the common paging parameters.
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	req := common.ParseListRequest(c)

	scope := []query.Option{query.Where("user_id", middleware.UserID(c))}
	if category := c.Query("category"); category != "" {
		if !template.Category(category).IsValid() {
			utils.ErrorResponseWithError(c, errors.NewValidationError("Invalid category. Must be one of: support, sales, general"))
			return
		}
		scope = append(scope, query.Where("category", category))
	}

	items, err := h.templates.List(c.Request.Context(), req.Query("name", h.mode, scope...))
	if err != nil {
		h.logger.Errorw("failed to list templates", "error", err, "search", req.Search)
		utils.ErrorResponseWithError(c, err)
		return
	}

	out := make([]TemplateResponse, 0, len(items))
	for _, t := range items {
		out = append(out, toResponse(t))
	}
	common.RespondList(c, req, out)
}

// ownTemplate loads a template owned by the caller. Other agents'
// templates are reported as not found.
func (h *TemplateHandler) ownTemplate(c *gin.Context) (template.Template, bool) {
	id, err := utils.ParseIDParam(c, "id", "template")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return template.Template{}, false
	}

	t, err := h.templates.Get(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return template.Template{}, false
	}
	if t.UserID != middleware.UserID(c) {
		utils.ErrorResponseWithError(c, errors.NewNotFoundError("template not found"))
		return template.Template{}, false
	}
	return t, true
}

// GetTemplate handles GET /templates/:id
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	t, ok := h.ownTemplate(c)
	if !ok {
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", toResponse(t))
}

// CreateTemplate handles POST /templates
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req CreateTemplateRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	t, err := template.NewTemplate(req.Name, req.Content, template.Category(req.Category), middleware.UserID(c))
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid template", err.Error()))
		return
	}

	created, err := h.templates.Insert(c.Request.Context(), t)
	if err != nil {
		h.logger.Errorw("failed to create template", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, toResponse(created), "Template created successfully")
}

// UpdateTemplate handles PATCH /templates/:id
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	t, ok := h.ownTemplate(c)
	if !ok {
		return
	}

	var req UpdateTemplateRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	patch := req.Patch()
	if len(patch) == 0 {
		utils.ErrorResponseWithError(c, errors.NewValidationError("no fields to update"))
		return
	}

	updated, err := h.templates.Update(c.Request.Context(), t.ID, patch)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Template updated successfully", toResponse(updated))
}

// DeleteTemplate handles DELETE /templates/:id
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	t, ok := h.ownTemplate(c)
	if !ok {
		return
	}

	if err := h.templates.Delete(c.Request.Context(), t.ID); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.NoContentResponse(c)
}

// ExpandShortcut handles POST /templates/expand
//
// A trailing ".name" in text is replaced by the content of the caller's
// template with that shortcut.
func (h *TemplateHandler) ExpandShortcut(c *gin.Context) {
	var req ExpandRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	items, err := h.templates.List(c.Request.Context(), query.New(query.Where("user_id", middleware.UserID(c))))
	if err != nil {
		h.logger.Errorw("failed to load templates for expansion", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	text, expanded := template.ExpandShortcut(req.Text, items)
	utils.SuccessResponse(c, http.StatusOK, "", ExpandResponse{Text: text, Expanded: expanded})
}

// FillTemplate handles POST /templates/:id/fill
func (h *TemplateHandler) FillTemplate(c *gin.Context) {
	t, ok := h.ownTemplate(c)
	if !ok {
		return
	}

	var req FillRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	content, missing := t.Fill(req.Variables)
	if missing == nil {
		missing = []string{}
	}
	utils.SuccessResponse(c, http.StatusOK, "", FillResponse{Content: content, Missing: missing})
}
