package http

import (
	"context"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/autocrm-inc/autocrm/internal/application/assistant"
	"github.com/autocrm-inc/autocrm/internal/application/knowledgebase"
	"github.com/autocrm-inc/autocrm/internal/application/notification"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/auth"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/config"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/metrics"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/permission"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/pubsub"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/repository"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/scheduler"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
	"github.com/autocrm-inc/autocrm/internal/shared/goroutine"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

// Container holds all infrastructure components, repositories, services,
// handlers and background workers. It wires everything together and
// provides Shutdown() for graceful termination.
type Container struct {
	// Core infrastructure
	engine   *gin.Engine
	db       *gorm.DB
	cfg      *config.Config
	log      logger.Interface
	redis    *redis.Client
	recorder *metrics.Recorder

	// Change feed
	hub       *pubsub.ChangeHub
	publisher pubsub.Fanout
	changeBus *pubsub.RedisChangeBus
	exporter  *pubsub.KafkaExporter
	listener  *pubsub.PGListener

	// Repositories
	tables *repository.Tables

	// Services
	svcs *services

	// Handlers
	hdlrs *allHandlers

	// Middlewares
	authMiddleware       *middleware.AuthMiddleware
	permissionMiddleware *middleware.PermissionMiddleware
	rateLimiter          *middleware.RateLimiter

	// Auth
	jwtSvc   *auth.JWTService
	enforcer *permission.Enforcer

	// Background workers
	schedulerManager *scheduler.SchedulerManager
	notifier         *notification.ResolutionNotifier

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
	bgMu     sync.Mutex
}

// services are the application services handlers depend on.
type services struct {
	tools     *assistant.Tools
	knowledge *knowledgebase.Service
	pipeline  assistant.Pipeline
	augmenter *assistant.Augmenter
}

// NewContainer creates a Container with all dependencies wired together.
func NewContainer(db *gorm.DB, cfg *config.Config, log logger.Interface) (*Container, error) {
	c := &Container{
		engine: gin.New(),
		db:     db,
		cfg:    cfg,
		log:    log,
	}

	// Section 1: Infrastructure - Redis, metrics, change feed, repositories
	c.initInfrastructure()

	// Section 2: Auth - JWT, casbin, middlewares
	if err := c.initAuth(); err != nil {
		return nil, err
	}

	// Section 3: Assistant and knowledge base
	if err := c.initServices(); err != nil {
		return nil, err
	}

	// Section 4: Background workers - notifications, retention
	if err := c.initWorkers(); err != nil {
		return nil, err
	}

	// Section 5: Handlers
	c.initHandlers()

	return c, nil
}

// Start launches the background workers. They stop when ctx is done or on
// Shutdown.
func (c *Container) Start(ctx context.Context) {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.bgCancel != nil {
		return
	}
	ctx, c.bgCancel = context.WithCancel(ctx)

	run := func(name string, fn func(context.Context) error) {
		c.bgWG.Add(1)
		goroutine.SafeGo(c.log, name, func() {
			defer c.bgWG.Done()
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				c.log.Errorw("background worker stopped", "worker", name, "error", err)
			}
		})
	}

	if c.changeBus != nil {
		run("change-bus", c.changeBus.Run)
	}
	if c.listener != nil {
		run("pg-listener", c.listener.Run)
	}
	if c.notifier != nil {
		run("resolution-notifier", c.notifier.Run)
	}
	if c.schedulerManager != nil {
		c.schedulerManager.Start()
	}
}

// CloseStreams ends every change feed subscription, which lets open
// websocket and SSE responses finish.
func (c *Container) CloseStreams() {
	if err := c.hub.Close(); err != nil {
		c.log.Warnw("failed to close change hub", "error", err)
	}
}

// Shutdown stops the background workers and releases connections.
func (c *Container) Shutdown() {
	c.bgMu.Lock()
	if c.bgCancel != nil {
		c.bgCancel()
	}
	c.bgMu.Unlock()

	if c.schedulerManager != nil {
		if err := c.schedulerManager.Stop(); err != nil {
			c.log.Warnw("failed to stop scheduler", "error", err)
		}
	}

	c.CloseStreams()
	c.bgWG.Wait()

	if c.exporter != nil {
		if err := c.exporter.Close(); err != nil {
			c.log.Warnw("failed to close kafka exporter", "error", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.log.Warnw("failed to close redis client", "error", err)
		}
	}
	c.log.Infow("container shut down")
}
