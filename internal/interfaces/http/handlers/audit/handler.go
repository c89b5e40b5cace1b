package audit

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/audit"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/common"
	"github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

// AuditLogResponse adds the list of changed columns to a log entry.
type AuditLogResponse struct {
	audit.AuditLog
	ChangedFields []string `json:"changed_fields"`
}

// AuditHandler serves the append-only audit log. Entries are never
// written through the API.
type AuditHandler struct {
	logs   clientstate.Table[audit.AuditLog]
	mode   query.SearchMode
	logger logger.Interface
}

func NewAuditHandler(logs clientstate.Table[audit.AuditLog], mode query.SearchMode, log logger.Interface) *AuditHandler {
	return &AuditHandler{
		logs:   logs,
		mode:   mode,
		logger: log,
	}
}

// ListAuditLogs handles GET /audit-logs
//
// Query: search (table name terms), table_name, operation, changed_by and
// the common paging parameters. Newest changes first.
func (h *AuditHandler) ListAuditLogs(c *gin.Context) {
	req := common.ParseListRequest(c)
	if req.SortBy == "" {
		req.SortBy = "changed_at"
	}

	var scope []query.Option
	if table := c.Query("table_name"); table != "" {
		scope = append(scope, query.Where("table_name", table))
	}
	if op := c.Query("operation"); op != "" {
		if !audit.Operation(op).IsValid() {
			utils.ErrorResponseWithError(c, errors.NewValidationError("Invalid operation. Must be one of: INSERT, UPDATE, DELETE"))
			return
		}
		scope = append(scope, query.Where("operation", op))
	}
	if changedBy := c.Query("changed_by"); changedBy != "" {
		scope = append(scope, query.Where("changed_by", changedBy))
	}

	items, err := h.logs.List(c.Request.Context(), req.Query("table_name", h.mode, scope...))
	if err != nil {
		h.logger.Errorw("failed to list audit logs", "error", err, "search", req.Search)
		utils.ErrorResponseWithError(c, err)
		return
	}

	common.RespondList(c, req, items)
}

// GetAuditLog handles GET /audit-logs/:id
func (h *AuditHandler) GetAuditLog(c *gin.Context) {
	id, err := utils.ParseIDParam(c, "id", "audit log")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	entry, err := h.logs.Get(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", AuditLogResponse{
		AuditLog:      entry,
		ChangedFields: entry.ChangedFields(),
	})
}
