package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/permission"
	assistanthandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/assistant"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
)

type AssistantRouteConfig struct {
	AssistantHandler     *assistanthandlers.AssistantHandler
	AuthMiddleware       *middleware.AuthMiddleware
	PermissionMiddleware *middleware.PermissionMiddleware
	RateLimiter          *middleware.RateLimiter
}

func SetupAssistantRoutes(api *gin.RouterGroup, cfg *AssistantRouteConfig) {
	can := cfg.PermissionMiddleware.RequirePermission

	assistant := api.Group("/assistant")
	assistant.Use(cfg.AuthMiddleware.RequireAuth())
	if cfg.RateLimiter != nil {
		assistant.Use(cfg.RateLimiter.Limit())
	}
	{
		assistant.POST("/ask", can(permission.ResourceAssistant, permission.ActionRead), cfg.AssistantHandler.Ask)

		tools := assistant.Group("/tools")
		tools.Use(can(permission.ResourceAssistant, permission.ActionExecute))
		{
			tools.POST("/search-tickets", cfg.AssistantHandler.SearchTickets)
			tools.POST("/search-users", cfg.AssistantHandler.SearchUsers)
			tools.POST("/create-ticket", cfg.AssistantHandler.CreateTicket)
		}
	}
}
