package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/permission"
	userhandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/user"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
)

// UserRouteConfig holds dependencies for user management routes.
type UserRouteConfig struct {
	UserHandler          *userhandlers.UserHandler
	AuthMiddleware       *middleware.AuthMiddleware
	PermissionMiddleware *middleware.PermissionMiddleware
}

// SetupUserRoutes configures user management routes.
func SetupUserRoutes(api *gin.RouterGroup, cfg *UserRouteConfig) {
	can := cfg.PermissionMiddleware.RequirePermission

	users := api.Group("/users")
	users.Use(cfg.AuthMiddleware.RequireAuth())
	{
		// Specific named endpoints (must come BEFORE /:id to avoid conflicts)
		users.GET("/me", cfg.UserHandler.GetCurrentUser)

		users.POST("", can(permission.ResourceUsers, permission.ActionCreate), cfg.UserHandler.CreateUser)
		users.GET("", can(permission.ResourceUsers, permission.ActionRead), cfg.UserHandler.ListUsers)

		users.GET("/:id", can(permission.ResourceUsers, permission.ActionRead), cfg.UserHandler.GetUser)
		users.PATCH("/:id", can(permission.ResourceUsers, permission.ActionUpdate), cfg.UserHandler.UpdateUser)
		users.DELETE("/:id", can(permission.ResourceUsers, permission.ActionDelete), cfg.UserHandler.DeleteUser)
	}
}
