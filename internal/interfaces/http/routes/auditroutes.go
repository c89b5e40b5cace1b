package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/permission"
	audithandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/audit"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
)

type AuditRouteConfig struct {
	AuditHandler         *audithandlers.AuditHandler
	AuthMiddleware       *middleware.AuthMiddleware
	PermissionMiddleware *middleware.PermissionMiddleware
}

func SetupAuditRoutes(api *gin.RouterGroup, cfg *AuditRouteConfig) {
	logs := api.Group("/audit-logs")
	logs.Use(
		cfg.AuthMiddleware.RequireAuth(),
		cfg.PermissionMiddleware.RequirePermission(permission.ResourceAuditLogs, permission.ActionRead),
	)
	{
		logs.GET("", cfg.AuditHandler.ListAuditLogs)
		logs.GET("/:id", cfg.AuditHandler.GetAuditLog)
	}
}
