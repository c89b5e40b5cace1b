package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/permission"
	tickethandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/ticket"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
)

type TicketRouteConfig struct {
	TicketHandler        *tickethandlers.TicketHandler
	AuthMiddleware       *middleware.AuthMiddleware
	PermissionMiddleware *middleware.PermissionMiddleware
}

func SetupTicketRoutes(api *gin.RouterGroup, config *TicketRouteConfig) {
	can := config.PermissionMiddleware.RequirePermission

	tickets := api.Group("/tickets")
	tickets.Use(config.AuthMiddleware.RequireAuth())
	{
		// Collection operations (no ID parameter)
		tickets.POST("",
			can(permission.ResourceTickets, permission.ActionCreate),
			config.TicketHandler.CreateTicket)
		tickets.GET("",
			can(permission.ResourceTickets, permission.ActionRead),
			config.TicketHandler.ListTickets)

		// Internal notes are staff only
		tickets.GET("/:id/notes",
			can(permission.ResourceNotes, permission.ActionRead),
			config.TicketHandler.ListNotes)
		tickets.POST("/:id/notes",
			can(permission.ResourceNotes, permission.ActionCreate),
			config.TicketHandler.AddNote)
		tickets.DELETE("/:id/notes/:note_id",
			can(permission.ResourceNotes, permission.ActionDelete),
			config.TicketHandler.DeleteNote)

		tickets.GET("/:id",
			can(permission.ResourceTickets, permission.ActionRead),
			config.TicketHandler.GetTicket)
		tickets.PATCH("/:id",
			can(permission.ResourceTickets, permission.ActionUpdate),
			config.TicketHandler.UpdateTicket)
		tickets.DELETE("/:id",
			can(permission.ResourceTickets, permission.ActionDelete),
			config.TicketHandler.DeleteTicket)
	}
}
