package routes

import (
	"github.com/gin-gonic/gin"

	realtimehandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/realtime"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
)

// RealtimeRouteConfig holds dependencies for the change feed endpoints.
// Table permissions are checked per subscription, not per route.
type RealtimeRouteConfig struct {
	RealtimeHandler *realtimehandlers.Handler
	AuthMiddleware  *middleware.AuthMiddleware
}

func SetupRealtimeRoutes(api *gin.RouterGroup, cfg *RealtimeRouteConfig) {
	realtime := api.Group("/realtime")
	realtime.Use(cfg.AuthMiddleware.RequireAuth())
	{
		realtime.GET("", cfg.RealtimeHandler.Connect)
		realtime.GET("/sse", cfg.RealtimeHandler.Events)
	}
}
