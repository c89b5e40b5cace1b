package http

import (
	"context"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/config"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/routes"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"

	_ "github.com/autocrm-inc/autocrm/docs"
)

// Router represents the HTTP router configuration
type Router struct {
	*Container
}

// NewRouter creates a new HTTP router with all dependencies
func NewRouter(db *gorm.DB, cfg *config.Config, log logger.Interface) (*Router, error) {
	c, err := NewContainer(db, cfg, log)
	if err != nil {
		return nil, err
	}
	return &Router{Container: c}, nil
}

// SetupRoutes configures all HTTP routes
func (r *Router) SetupRoutes() {
	r.engine.Use(middleware.Logger(r.log))
	r.engine.Use(middleware.Recovery(r.log))
	r.engine.Use(middleware.CORS(r.cfg.Server.AllowedOrigins))
	r.engine.Use(middleware.SecurityHeaders())
	r.engine.Use(middleware.ErrorHandler(r.log))

	r.engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.engine.GET("/health", r.hdlrs.systemHandler.HealthCheck)
	r.engine.GET("/version", r.hdlrs.systemHandler.Version)
	r.engine.GET("/metrics", gin.WrapH(r.recorder.Handler()))

	api := r.engine.Group("/api/v1")

	routes.SetupTicketRoutes(api, &routes.TicketRouteConfig{
		TicketHandler:        r.hdlrs.ticketHandler,
		AuthMiddleware:       r.authMiddleware,
		PermissionMiddleware: r.permissionMiddleware,
	})

	routes.SetupConversationRoutes(api, &routes.ConversationRouteConfig{
		ConversationHandler:  r.hdlrs.conversationHandler,
		AuthMiddleware:       r.authMiddleware,
		PermissionMiddleware: r.permissionMiddleware,
	})

	routes.SetupTemplateRoutes(api, &routes.TemplateRouteConfig{
		TemplateHandler:      r.hdlrs.templateHandler,
		AuthMiddleware:       r.authMiddleware,
		PermissionMiddleware: r.permissionMiddleware,
	})

	routes.SetupUserRoutes(api, &routes.UserRouteConfig{
		UserHandler:          r.hdlrs.userHandler,
		AuthMiddleware:       r.authMiddleware,
		PermissionMiddleware: r.permissionMiddleware,
	})

	routes.SetupAuditRoutes(api, &routes.AuditRouteConfig{
		AuditHandler:         r.hdlrs.auditHandler,
		AuthMiddleware:       r.authMiddleware,
		PermissionMiddleware: r.permissionMiddleware,
	})

	routes.SetupKnowledgeRoutes(api, &routes.KnowledgeRouteConfig{
		KnowledgeHandler:     r.hdlrs.knowledgeHandler,
		AuthMiddleware:       r.authMiddleware,
		PermissionMiddleware: r.permissionMiddleware,
	})

	routes.SetupAssistantRoutes(api, &routes.AssistantRouteConfig{
		AssistantHandler:     r.hdlrs.assistantHandler,
		AuthMiddleware:       r.authMiddleware,
		PermissionMiddleware: r.permissionMiddleware,
		RateLimiter:          r.rateLimiter,
	})

	routes.SetupRealtimeRoutes(api, &routes.RealtimeRouteConfig{
		RealtimeHandler: r.hdlrs.realtimeHandler,
		AuthMiddleware:  r.authMiddleware,
	})
}

// GetEngine returns the Gin engine
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

// StartWorkers launches the background workers of the container.
func (r *Router) StartWorkers(ctx context.Context) {
	r.Start(ctx)
}
