// Package bootstrap sets up what the one-shot commands share: config,
// logging, the database and a change feed connected to the running
// servers.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/cache"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/config"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/database"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/pubsub"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/repository"
	sharedConfig "github.com/autocrm-inc/autocrm/internal/shared/config"
	"github.com/autocrm-inc/autocrm/internal/shared/goroutine"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

var ErrNoSharedFeed = errors.New("no shared change feed: enable realtime.redis_bridge or set realtime.source to postgres")

// LoadConfig reads and validates the config and starts logging.
func LoadConfig(env, configPath string, verbose bool) (*config.Config, error) {
	cfg, err := config.Load(env, configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logger.Init(&cfg.Logger, verbose); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// Env is an open database with repositories whose writes reach the
// subscribers of every server.
type Env struct {
	Config *config.Config
	Log    logger.Interface
	Tables *repository.Tables
	Redis  *redis.Client
}

func Open(cfg *config.Config) (*Env, error) {
	log := logger.NewLogger()
	if err := database.Init(&cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	e := &Env{Config: cfg, Log: log, Redis: cache.NewRedisClient(cfg.Redis)}

	var publisher changefeed.Publisher
	switch {
	case cfg.Realtime.Source == sharedConfig.ChangeSourcePostgres:
		// Triggers publish.
	case cfg.Realtime.RedisBridge:
		publisher = pubsub.NewRedisChangeBus(e.Redis, cfg.Realtime.RedisChannel, nil, log.Named("changebus"))
	default:
		log.Warnw("writes from this command will not reach realtime subscribers", "reason", ErrNoSharedFeed)
	}
	e.Tables = repository.NewTables(database.Get(), publisher, log)
	return e, nil
}

// Feed returns a change feed mirroring the one the servers publish. It
// stays live until ctx is done.
func (e *Env) Feed(ctx context.Context) (changefeed.Subscriber, error) {
	cfg := e.Config
	hub := pubsub.NewChangeHub(cfg.Realtime.SubscriberBuf, nil, e.Log.Named("changehub"))
	minBackoff, maxBackoff := cfg.Realtime.ReconnectBounds()

	var run func(context.Context) error
	switch {
	case cfg.Realtime.Source == sharedConfig.ChangeSourcePostgres:
		run = pubsub.NewPGListener(cfg.Database.GetPostgresURL(), cfg.Realtime.ListenChannel, hub, e.Log.Named("pglistener")).Run
	case cfg.Realtime.RedisBridge:
		bus := pubsub.NewRedisChangeBus(e.Redis, cfg.Realtime.RedisChannel, hub, e.Log.Named("changebus"))
		bus.SetBackoff(minBackoff, maxBackoff)
		run = bus.Run
	default:
		return nil, ErrNoSharedFeed
	}

	goroutine.SafeGo(e.Log, "change-feed", func() {
		if err := run(ctx); err != nil && ctx.Err() == nil {
			e.Log.Errorw("change feed stopped", "error", err)
		}
		hub.Close()
	})
	return hub, nil
}

func (e *Env) Close() {
	if err := e.Redis.Close(); err != nil {
		e.Log.Warnw("failed to close redis client", "error", err)
	}
	database.Close()
	logger.Sync()
}
