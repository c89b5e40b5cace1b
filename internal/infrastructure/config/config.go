package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	sharedConfig "github.com/autocrm-inc/autocrm/internal/shared/config"
)

type Config struct {
	Server    sharedConfig.ServerConfig    `mapstructure:"server"`
	Database  sharedConfig.DatabaseConfig  `mapstructure:"database"`
	Logger    sharedConfig.LoggerConfig    `mapstructure:"logger"`
	Auth      sharedConfig.AuthConfig      `mapstructure:"auth"`
	Email     sharedConfig.EmailConfig     `mapstructure:"email"`
	Redis     sharedConfig.RedisConfig     `mapstructure:"redis"`
	Realtime  sharedConfig.RealtimeConfig  `mapstructure:"realtime"`
	Sync      sharedConfig.SyncConfig      `mapstructure:"sync"`
	Assistant sharedConfig.AssistantConfig `mapstructure:"assistant"`
	Knowledge sharedConfig.KnowledgeConfig `mapstructure:"knowledge"`
	Retention sharedConfig.RetentionConfig `mapstructure:"retention"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load reads configs/config.yaml (or configPath when set), then .env, then
// AUTOCRM_* environment variables. A missing config file is not an error;
// defaults and the environment are enough to run.
func Load(env, configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
	}

	v.SetEnvPrefix("AUTOCRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(configPath == "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Allow env parameter to override server mode if provided
	if env != "" && env != "default" {
		v.Set("server.mode", env)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case sharedConfig.DriverMySQL, sharedConfig.DriverPostgres, sharedConfig.DriverSQLite:
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	switch c.Realtime.Source {
	case sharedConfig.ChangeSourceApp:
	case sharedConfig.ChangeSourcePostgres:
		if c.Database.Driver != sharedConfig.DriverPostgres {
			return fmt.Errorf("realtime.source postgres requires the postgres database driver")
		}
	default:
		return fmt.Errorf("unsupported realtime source: %q", c.Realtime.Source)
	}
	switch c.Sync.TicketDeletePolicy {
	case "apply", "ignore":
	default:
		return fmt.Errorf("sync.ticket_delete_policy must be apply or ignore, got %q", c.Sync.TicketDeletePolicy)
	}
	if c.Realtime.Kafka.Enabled && len(c.Realtime.Kafka.Brokers) == 0 {
		return fmt.Errorf("realtime.kafka.brokers is required when kafka export is enabled")
	}
	if c.Knowledge.ChunkSize <= 0 || c.Knowledge.ChunkOverlap < 0 || c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return fmt.Errorf("knowledge chunk overlap must be in [0, chunk_size)")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.rate_limit_window", 60)

	// Database defaults
	v.SetDefault("database.driver", sharedConfig.DriverSQLite)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.username", "autocrm")
	v.SetDefault("database.password", "autocrm")
	v.SetDefault("database.database", "autocrm.db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", 60)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.output_path", "stdout")

	// Auth defaults
	v.SetDefault("auth.jwt.secret", "change-me-in-production")
	v.SetDefault("auth.jwt.issuer", "autocrm")
	v.SetDefault("auth.jwt.access_exp_minutes", 60)

	// Email defaults
	v.SetDefault("email.enabled", false)
	v.SetDefault("email.smtp_host", "localhost")
	v.SetDefault("email.smtp_port", 1025)
	v.SetDefault("email.smtp_user", "")
	v.SetDefault("email.smtp_password", "")
	v.SetDefault("email.from_address", "support@autocrm.local")
	v.SetDefault("email.from_name", "AutoCRM Support")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Realtime defaults
	v.SetDefault("realtime.source", sharedConfig.ChangeSourceApp)
	v.SetDefault("realtime.listen_channel", "autocrm_changes")
	v.SetDefault("realtime.subscriber_buffer", 256)
	v.SetDefault("realtime.redis_bridge", false)
	v.SetDefault("realtime.redis_channel", "autocrm:changes")
	v.SetDefault("realtime.kafka.enabled", false)
	v.SetDefault("realtime.kafka.topic", "autocrm.changes")
	v.SetDefault("realtime.reconnect_min_seconds", 1)
	v.SetDefault("realtime.reconnect_max_seconds", 30)
	v.SetDefault("realtime.write_wait_seconds", 10)
	v.SetDefault("realtime.pong_wait_seconds", 60)
	v.SetDefault("realtime.ping_period_seconds", 54)

	// Sync defaults
	v.SetDefault("sync.ticket_delete_policy", "ignore")
	v.SetDefault("sync.search_mode", "per_term")

	// Assistant defaults
	v.SetDefault("assistant.enabled", false)
	v.SetDefault("assistant.base_url", "https://api.openai.com/v1")
	v.SetDefault("assistant.model", "gpt-4o-mini")
	v.SetDefault("assistant.embedding_model", "text-embedding-3-small")
	v.SetDefault("assistant.timeout_seconds", 60)
	v.SetDefault("assistant.rate_per_second", 2.0)
	v.SetDefault("assistant.burst", 4)
	v.SetDefault("assistant.top_k", 4)

	// Knowledge base defaults
	v.SetDefault("knowledge.bucket_dir", "./data/storage")
	v.SetDefault("knowledge.bucket", "knowledge_base")
	v.SetDefault("knowledge.public_base_url", "http://localhost:8080/files")
	v.SetDefault("knowledge.namespace", "knowledge-base")
	v.SetDefault("knowledge.chunk_size", 600)
	v.SetDefault("knowledge.chunk_overlap", 100)
	v.SetDefault("knowledge.max_upload_mb", 10)

	// Retention defaults
	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.cron", "0 3 * * *")
	v.SetDefault("retention.days", 90)
}
