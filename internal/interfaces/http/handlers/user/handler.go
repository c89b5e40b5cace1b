package user

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/application/clientstate"
	"github.com/autocrm-inc/autocrm/internal/domain/user"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/common"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
	"github.com/autocrm-inc/autocrm/internal/shared/errors"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
	"github.com/autocrm-inc/autocrm/internal/shared/utils"
)

type UserHandler struct {
	users  clientstate.Table[user.User]
	mode   query.SearchMode
	logger logger.Interface
}

func NewUserHandler(users clientstate.Table[user.User], mode query.SearchMode, log logger.Interface) *UserHandler {
	return &UserHandler{
		users:  users,
		mode:   mode,
		logger: log,
	}
}

// GetCurrentUser handles GET /users/me
func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", u)
}

// ListUsers handles GET /users
//
// Query: search (email terms, all must match), role and the common paging
// parameters.
func (h *UserHandler) ListUsers(c *gin.Context) {
	req := common.ParseListRequest(c)

	var scope []query.Option
	if role := c.Query("role"); role != "" {
		if !user.Role(role).IsValid() {
			utils.ErrorResponseWithError(c, errors.NewValidationError("Invalid role. Must be one of: customer, employee, admin"))
			return
		}
		scope = append(scope, query.Where("role", role))
	}

	items, err := h.users.List(c.Request.Context(), req.Query("email", h.mode, scope...))
	if err != nil {
		h.logger.Errorw("failed to list users", "error", err, "search", req.Search)
		utils.ErrorResponseWithError(c, err)
		return
	}

	common.RespondList(c, req, items)
}

// GetUser handles GET /users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	id, err := utils.ParseIDParam(c, "id", "user")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	u, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "", u)
}

// CreateUser handles POST /users
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	u, err := user.NewUser(req.Email, user.Role(req.Role))
	if err != nil {
		utils.ErrorResponseWithError(c, errors.NewValidationError("invalid user", err.Error()))
		return
	}

	created, err := h.users.Insert(c.Request.Context(), u)
	if err != nil {
		h.logger.Errorw("failed to create user", "error", err, "email", utils.MaskEmail(u.Email))
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.logger.Infow("user created", "user_id", created.ID, "role", created.Role, "created_by", middleware.UserID(c))
	utils.CreatedResponse(c, created, "User created successfully")
}

// UpdateUser handles PATCH /users/:id
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, err := utils.ParseIDParam(c, "id", "user")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	var req UpdateUserRequest
	if err := utils.BindJSON(c, &req); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	patch := req.Patch()
	if len(patch) == 0 {
		utils.ErrorResponseWithError(c, errors.NewValidationError("no fields to update"))
		return
	}
	if id == middleware.UserID(c) && req.Role != nil && user.Role(*req.Role) != user.RoleAdmin {
		utils.ErrorResponseWithError(c, errors.NewForbiddenError("cannot remove your own admin role"))
		return
	}

	updated, err := h.users.Update(c.Request.Context(), id, patch)
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.logger.Infow("user updated", "user_id", id, "updated_by", middleware.UserID(c))
	utils.SuccessResponse(c, http.StatusOK, "User updated successfully", updated)
}

// DeleteUser handles DELETE /users/:id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, err := utils.ParseIDParam(c, "id", "user")
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}
	if id == middleware.UserID(c) {
		utils.ErrorResponseWithError(c, errors.NewForbiddenError("cannot delete your own account"))
		return
	}

	if err := h.users.Delete(c.Request.Context(), id); err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	h.logger.Infow("user deleted", "user_id", id, "deleted_by", middleware.UserID(c))
	utils.NoContentResponse(c)
}
