package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	Mode            string   `mapstructure:"mode"`
	BaseURL         string   `mapstructure:"base_url"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	RateLimit       int      `mapstructure:"rate_limit"`
	RateLimitWindow int      `mapstructure:"rate_limit_window"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// GetDSN returns the driver specific data source name. For sqlite the
// database field is the file path (or ":memory:").
func (d *DatabaseConfig) GetDSN() string {
	switch d.Driver {
	case DriverPostgres:
		sslMode := d.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			d.Host, d.Port, d.Username, d.Password, d.Database, sslMode)
	case DriverSQLite:
		return d.Database
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			d.Username, d.Password, d.Host, d.Port, d.Database)
	}
}

// GetPostgresURL returns a libpq style URL, used by the pgx change listener.
func (d *DatabaseConfig) GetPostgresURL() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Database, sslMode)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

type JWTConfig struct {
	Secret           string `mapstructure:"secret"`
	Issuer           string `mapstructure:"issuer"`
	AccessExpMinutes int    `mapstructure:"access_exp_minutes"`
}

type AuthConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

type EmailConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
	FromAddress  string `mapstructure:"from_address"`
	FromName     string `mapstructure:"from_name"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Change sources.
const (
	ChangeSourceApp      = "app"
	ChangeSourcePostgres = "postgres"
)

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type RealtimeConfig struct {
	// Source selects who emits change events: the repositories ("app") or
	// Postgres triggers delivered over LISTEN/NOTIFY ("postgres").
	Source         string      `mapstructure:"source"`
	ListenChannel  string      `mapstructure:"listen_channel"`
	SubscriberBuf  int         `mapstructure:"subscriber_buffer"`
	RedisBridge    bool        `mapstructure:"redis_bridge"`
	RedisChannel   string      `mapstructure:"redis_channel"`
	Kafka          KafkaConfig `mapstructure:"kafka"`
	ReconnectMin   int         `mapstructure:"reconnect_min_seconds"`
	ReconnectMax   int         `mapstructure:"reconnect_max_seconds"`
	WriteWaitSecs  int         `mapstructure:"write_wait_seconds"`
	PongWaitSecs   int         `mapstructure:"pong_wait_seconds"`
	PingPeriodSecs int         `mapstructure:"ping_period_seconds"`
}

func (r *RealtimeConfig) ReconnectBounds() (time.Duration, time.Duration) {
	minD := time.Duration(r.ReconnectMin) * time.Second
	maxD := time.Duration(r.ReconnectMax) * time.Second
	if minD <= 0 {
		minD = time.Second
	}
	if maxD < minD {
		maxD = 30 * time.Second
	}
	return minD, maxD
}

type SyncConfig struct {
	// TicketDeletePolicy is "apply" or "ignore".
	TicketDeletePolicy string `mapstructure:"ticket_delete_policy"`
	// SearchMode is "per_term" or "full_text".
	SearchMode string `mapstructure:"search_mode"`
}

type AssistantConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	BaseURL        string  `mapstructure:"base_url"`
	APIKey         string  `mapstructure:"api_key"`
	Model          string  `mapstructure:"model"`
	EmbeddingModel string  `mapstructure:"embedding_model"`
	TimeoutSecs    int     `mapstructure:"timeout_seconds"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
	TopK           int     `mapstructure:"top_k"`
}

type KnowledgeConfig struct {
	BucketDir     string `mapstructure:"bucket_dir"`
	Bucket        string `mapstructure:"bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	Namespace     string `mapstructure:"namespace"`
	ChunkSize     int    `mapstructure:"chunk_size"`
	ChunkOverlap  int    `mapstructure:"chunk_overlap"`
	MaxUploadMB   int    `mapstructure:"max_upload_mb"`
}

type RetentionConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Cron    string `mapstructure:"cron"`
	Days    int    `mapstructure:"days"`
}
