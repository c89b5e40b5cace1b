package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/permission"
	messagehandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/message"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
)

type ConversationRouteConfig struct {
	ConversationHandler  *messagehandlers.ConversationHandler
	AuthMiddleware       *middleware.AuthMiddleware
	PermissionMiddleware *middleware.PermissionMiddleware
}

func SetupConversationRoutes(api *gin.RouterGroup, cfg *ConversationRouteConfig) {
	can := cfg.PermissionMiddleware.RequirePermission

	conversations := api.Group("/conversations")
	conversations.Use(cfg.AuthMiddleware.RequireAuth())
	{
		conversations.GET("",
			can(permission.ResourceDirectMessages, permission.ActionRead),
			cfg.ConversationHandler.ListConversations)
		conversations.POST("",
			can(permission.ResourceDirectMessages, permission.ActionCreate),
			cfg.ConversationHandler.CreateConversation)

		conversations.GET("/:id/messages",
			can(permission.ResourceMessages, permission.ActionRead),
			cfg.ConversationHandler.ListMessages)
		conversations.POST("/:id/messages",
			can(permission.ResourceMessages, permission.ActionCreate),
			cfg.ConversationHandler.SendMessage)
		// Authors edit their own messages; the handler checks authorship.
		conversations.PATCH("/:id/messages/:message_id",
			can(permission.ResourceMessages, permission.ActionCreate),
			cfg.ConversationHandler.UpdateMessage)
		conversations.DELETE("/:id/messages/:message_id",
			can(permission.ResourceMessages, permission.ActionDelete),
			cfg.ConversationHandler.DeleteMessage)

		conversations.GET("/:id",
			can(permission.ResourceDirectMessages, permission.ActionRead),
			cfg.ConversationHandler.GetConversation)
	}
}
