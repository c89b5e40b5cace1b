package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/permission"
	templatehandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/template"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
)

type TemplateRouteConfig struct {
	TemplateHandler      *templatehandlers.TemplateHandler
	AuthMiddleware       *middleware.AuthMiddleware
	PermissionMiddleware *middleware.PermissionMiddleware
}

func SetupTemplateRoutes(api *gin.RouterGroup, cfg *TemplateRouteConfig) {
	can := cfg.PermissionMiddleware.RequirePermission

	templates := api.Group("/templates")
	templates.Use(cfg.AuthMiddleware.RequireAuth())
	{
		templates.GET("", can(permission.ResourceTemplates, permission.ActionRead), cfg.TemplateHandler.ListTemplates)
		templates.POST("", can(permission.ResourceTemplates, permission.ActionCreate), cfg.TemplateHandler.CreateTemplate)

		// Specific action endpoints (must come BEFORE /:id to avoid conflicts)
		templates.POST("/expand", can(permission.ResourceTemplates, permission.ActionRead), cfg.TemplateHandler.ExpandShortcut)
		templates.POST("/:id/fill", can(permission.ResourceTemplates, permission.ActionRead), cfg.TemplateHandler.FillTemplate)

		templates.GET("/:id", can(permission.ResourceTemplates, permission.ActionRead), cfg.TemplateHandler.GetTemplate)
		templates.PATCH("/:id", can(permission.ResourceTemplates, permission.ActionUpdate), cfg.TemplateHandler.UpdateTemplate)
		templates.DELETE("/:id", can(permission.ResourceTemplates, permission.ActionDelete), cfg.TemplateHandler.DeleteTemplate)
	}
}
