package http

import (
	"fmt"
	"time"

	"github.com/autocrm-inc/autocrm/internal/application/assistant"
	"github.com/autocrm-inc/autocrm/internal/application/knowledgebase"
	"github.com/autocrm-inc/autocrm/internal/application/notification"
	"github.com/autocrm-inc/autocrm/internal/application/retention"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/auth"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/cache"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/email"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/llm"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/metrics"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/permission"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/pubsub"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/repository"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/scheduler"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/storage"
	"github.com/autocrm-inc/autocrm/internal/infrastructure/vectorstore"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
	sharedConfig "github.com/autocrm-inc/autocrm/internal/shared/config"
	"github.com/autocrm-inc/autocrm/internal/shared/query"
	"github.com/autocrm-inc/autocrm/internal/shared/services/markdown"
)

const retentionJobTimeout = 10 * time.Minute

// initInfrastructure sets up Redis, metrics, the change feed and the
// repositories.
func (c *Container) initInfrastructure() {
	cfg := c.cfg
	log := c.log

	c.redis = cache.NewRedisClient(cfg.Redis)
	c.recorder = metrics.New()
	c.hub = pubsub.NewChangeHub(cfg.Realtime.SubscriberBuf, c.recorder, log.Named("changehub"))
	c.publisher = pubsub.Fanout{c.hub}

	if cfg.Realtime.Kafka.Enabled {
		c.exporter = pubsub.NewKafkaExporter(cfg.Realtime.Kafka.Brokers, cfg.Realtime.Kafka.Topic, log.Named("kafka"))
		c.publisher = append(c.publisher, c.exporter)
	}

	minBackoff, maxBackoff := cfg.Realtime.ReconnectBounds()

	if cfg.Realtime.Source == sharedConfig.ChangeSourcePostgres {
		// Triggers emit every change, and every instance listens, so the
		// repositories publish nothing themselves.
		c.listener = pubsub.NewPGListener(cfg.Database.GetPostgresURL(), cfg.Realtime.ListenChannel, c.publisher, log.Named("pglistener"))
		c.tables = repository.NewTables(c.db, nil, log)
		log.Infow("change feed source: postgres", "channel", cfg.Realtime.ListenChannel)
		return
	}

	publisher := c.publisher
	if cfg.Realtime.RedisBridge {
		c.changeBus = pubsub.NewRedisChangeBus(c.redis, cfg.Realtime.RedisChannel, c.hub, log.Named("changebus"))
		c.changeBus.SetBackoff(minBackoff, maxBackoff)
		publisher = append(publisher, c.changeBus)
	}
	c.tables = repository.NewTables(c.db, publisher, log)
	log.Infow("change feed source: app", "redis_bridge", cfg.Realtime.RedisBridge)
}

// initAuth sets up token verification, casbin and the middlewares.
func (c *Container) initAuth() error {
	cfg := c.cfg
	log := c.log

	jwtSvc, err := auth.NewJWTService(cfg.Auth.JWT.Secret, cfg.Auth.JWT.Issuer, cfg.Auth.JWT.AccessExpMinutes)
	if err != nil {
		return fmt.Errorf("failed to create jwt service: %w", err)
	}
	c.jwtSvc = jwtSvc

	enforcer, err := permission.NewEnforcer(c.db, log)
	if err != nil {
		return fmt.Errorf("failed to create permission enforcer: %w", err)
	}
	if err := enforcer.InitDefaultPolicies(); err != nil {
		return fmt.Errorf("failed to initialize default permissions: %w", err)
	}
	c.enforcer = enforcer

	c.authMiddleware = middleware.NewAuthMiddleware(jwtSvc, log)
	c.permissionMiddleware = middleware.NewPermissionMiddleware(enforcer, log)

	window := time.Duration(cfg.Server.RateLimitWindow) * time.Second
	if cfg.Server.RateLimit > 0 {
		c.rateLimiter = middleware.NewRateLimiter(c.redis, cfg.Server.RateLimit, window, log)
	}
	return nil
}

// initServices sets up the knowledge base and the AI agent. With the
// assistant disabled the knowledge base stores files without indexing
// them, and every agent reply is the apology.
func (c *Container) initServices() error {
	cfg := c.cfg
	log := c.log
	mode := query.ParseSearchMode(cfg.Sync.SearchMode)

	bucket, err := storage.NewBucket(
		cfg.Knowledge.BucketDir,
		cfg.Knowledge.Bucket,
		cfg.Knowledge.PublicBaseURL,
		int64(cfg.Knowledge.MaxUploadMB)<<20,
		log.Named("storage"),
	)
	if err != nil {
		return err
	}

	var (
		client   *llm.Client
		embedder knowledgebase.Embedder
	)
	if cfg.Assistant.Enabled {
		client, err = llm.NewClient(llm.Config{
			BaseURL:        cfg.Assistant.BaseURL,
			APIKey:         cfg.Assistant.APIKey,
			Model:          cfg.Assistant.Model,
			EmbeddingModel: cfg.Assistant.EmbeddingModel,
			Timeout:        time.Duration(cfg.Assistant.TimeoutSecs) * time.Second,
			RatePerSecond:  cfg.Assistant.RatePerSecond,
			Burst:          cfg.Assistant.Burst,
		}, log.Named("llm"))
		if err != nil {
			return fmt.Errorf("failed to create llm client: %w", err)
		}
		embedder = client
	}

	kb := knowledgebase.NewService(
		c.tables.Articles,
		bucket,
		embedder,
		vectorstore.NewRedisIndex(c.redis, log.Named("vectorstore")),
		markdown.NewMarkdownService(),
		knowledgebase.Options{
			Namespace:    cfg.Knowledge.Namespace,
			ChunkSize:    cfg.Knowledge.ChunkSize,
			ChunkOverlap: cfg.Knowledge.ChunkOverlap,
		},
		log.Named("knowledgebase"),
	)
	tools := assistant.NewTools(c.tables.Tickets, c.tables.Users, mode, log)

	var pipeline assistant.Pipeline
	if client != nil {
		pipeline = assistant.NewSupervisor(client, kb, tools, cfg.Assistant.TopK, log.Named("assistant"))
	} else {
		log.Infow("assistant disabled, agent conversations will receive the fallback reply")
	}

	c.svcs = &services{
		tools:     tools,
		knowledge: kb,
		pipeline:  pipeline,
		augmenter: assistant.NewAugmenter(pipeline, time.Duration(cfg.Assistant.TimeoutSecs)*time.Second, log.Named("augmenter")),
	}
	return nil
}

// initWorkers sets up resolution emails and audit log retention.
func (c *Container) initWorkers() error {
	cfg := c.cfg
	log := c.log

	if cfg.Email.Enabled {
		mailer, err := email.NewSMTPEmailService(email.SMTPConfig{
			Host:        cfg.Email.SMTPHost,
			Port:        cfg.Email.SMTPPort,
			Username:    cfg.Email.SMTPUser,
			Password:    cfg.Email.SMTPPassword,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
			BaseURL:     cfg.Server.BaseURL,
		})
		if err != nil {
			return fmt.Errorf("failed to create email service: %w", err)
		}
		c.notifier = notification.NewResolutionNotifier(c.hub, c.tables.Users, mailer, log.Named("notifier"))
	}

	if cfg.Retention.Enabled {
		job, err := retention.NewPurgeAuditLogsJob(c.tables.AuditLogs, cfg.Retention.Days, log)
		if err != nil {
			return err
		}
		manager, err := scheduler.NewSchedulerManager(log)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if err := manager.RegisterRetentionJob(cfg.Retention.Cron, retentionJobTimeout, job); err != nil {
			return err
		}
		c.schedulerManager = manager
	}
	return nil
}
