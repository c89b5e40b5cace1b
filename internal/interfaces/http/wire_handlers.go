package http

import (
	"context"
	"database/sql"
	"time"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/cache"
	assistantHandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/assistant"
	auditHandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/audit"
	knowledgeHandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/knowledge"
	messageHandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/message"
	realtimeHandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/realtime"
	systemHandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/system"
	templateHandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/template"
	ticketHandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/ticket"
	userHandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/user"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
)

// allHandlers holds all HTTP handler instances used by the application.
type allHandlers struct {
	// Support desk
	ticketHandler       *ticketHandlers.TicketHandler
	conversationHandler *messageHandlers.ConversationHandler
	templateHandler     *templateHandlers.TemplateHandler

	// Administration
	userHandler  *userHandlers.UserHandler
	auditHandler *auditHandlers.AuditHandler

	// Knowledge base and AI agent
	knowledgeHandler *knowledgeHandlers.KnowledgeHandler
	assistantHandler *assistantHandlers.AssistantHandler

	// Change feed
	realtimeHandler *realtimeHandlers.Handler

	// Health and build info
	systemHandler *systemHandlers.SystemHandler
}

func (c *Container) initHandlers() {
	cfg := c.cfg
	log := c.log
	t := c.tables
	mode := query.ParseSearchMode(cfg.Sync.SearchMode)

	checks := map[string]systemHandlers.Pinger{
		"redis": systemHandlers.PingFunc(func(ctx context.Context) error {
			return cache.Ping(ctx, c.redis)
		}),
	}
	if sqlDB, err := c.db.DB(); err == nil {
		checks["database"] = sqlPinger{sqlDB}
	} else {
		log.Warnw("database health check unavailable", "error", err)
	}

	c.hdlrs = &allHandlers{
		ticketHandler:       ticketHandlers.NewTicketHandler(t.Tickets, t.Notes, mode, log),
		conversationHandler: messageHandlers.NewConversationHandler(t.DirectMessages, t.Messages, c.svcs.augmenter, mode, log),
		templateHandler:     templateHandlers.NewTemplateHandler(t.Templates, mode, log),
		userHandler:         userHandlers.NewUserHandler(t.Users, mode, log),
		auditHandler:        auditHandlers.NewAuditHandler(t.AuditLogs, mode, log),
		knowledgeHandler: knowledgeHandlers.NewKnowledgeHandler(
			t.Articles,
			c.svcs.knowledge,
			mode,
			int64(cfg.Knowledge.MaxUploadMB)<<20,
			log,
		),
		assistantHandler: assistantHandlers.NewAssistantHandler(c.svcs.pipeline, c.svcs.tools, log),
		realtimeHandler: realtimeHandlers.NewHandler(
			c.hub,
			realtimeHandlers.NewAccess(c.enforcer, t.DirectMessages),
			realtimeHandlers.TimingsFromConfig(cfg.Realtime),
			c.recorder,
			log.Named("realtime"),
		),
		systemHandler: systemHandlers.NewSystemHandler(checks, log),
	}
}

// sqlPinger probes the connection pool.
type sqlPinger struct {
	db *sql.DB
}

func (p sqlPinger) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return p.db.PingContext(ctx)
}
