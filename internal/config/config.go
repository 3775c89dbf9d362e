package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/linguaschool/chat-backend/pkg/logger"
)

// Config is the full service configuration.
// Values come from the YAML file first, then environment variables override them.
type Config struct {
	Env       string          `yaml:"env" envconfig:"APP_ENV"`
	LogLevel  string          `yaml:"log_level" envconfig:"LOG_LEVEL"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	CORS      CORSConfig      `yaml:"cors"`
	Storage   StorageConfig   `yaml:"storage"`
	Chat      ChatConfig      `yaml:"chat"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	WS        WSConfig        `yaml:"ws"`
}

type ServerConfig struct {
	Host        string        `yaml:"host" envconfig:"SERVER_HOST"`
	Port        int           `yaml:"port" envconfig:"SERVER_PORT"`
	ReadTimeout time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host" envconfig:"DB_HOST"`
	Port            int           `yaml:"port" envconfig:"DB_PORT"`
	User            string        `yaml:"user" envconfig:"DB_USER"`
	Password        string        `yaml:"password" envconfig:"DB_PASSWORD"`
	DBName          string        `yaml:"dbname" envconfig:"DB_NAME"`
	MaxIdleConns    int           `yaml:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS"`
	MaxOpenConns    int           `yaml:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME"`
}

// DSN returns the MySQL data source name. Times are stored and read as UTC.
func (d DatabaseConfig) DSN() string {
	mc := mysqldriver.NewConfig()
	mc.User = d.User
	mc.Passwd = d.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	mc.DBName = d.DBName
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Params = map[string]string{"charset": "utf8mb4", "time_zone": "'+00:00'"}
	return mc.FormatDSN()
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" envconfig:"REDIS_ENABLED"`
	Host     string `yaml:"host" envconfig:"REDIS_HOST"`
	Port     int    `yaml:"port" envconfig:"REDIS_PORT"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	PoolSize int    `yaml:"pool_size" envconfig:"REDIS_POOL_SIZE"`
}

type JWTConfig struct {
	Secret    string        `yaml:"secret" envconfig:"JWT_SECRET"`
	Issuer    string        `yaml:"issuer" envconfig:"JWT_ISSUER"`
	ExpiresIn time.Duration `yaml:"expires_in" envconfig:"JWT_EXPIRES_IN"`
}

type CORSConfig struct {
	AllowOrigins string `yaml:"allow_origins" envconfig:"CORS_ALLOW_ORIGINS"`
}

type StorageConfig struct {
	Enabled         bool   `yaml:"enabled" envconfig:"STORAGE_ENABLED"`
	Endpoint        string `yaml:"endpoint" envconfig:"STORAGE_ENDPOINT"`
	Region          string `yaml:"region" envconfig:"STORAGE_REGION"`
	AccessKeyID     string `yaml:"access_key_id" envconfig:"STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" envconfig:"STORAGE_SECRET_ACCESS_KEY"`
	Bucket          string `yaml:"bucket" envconfig:"STORAGE_BUCKET"`
	CDNURL          string `yaml:"cdn_url" envconfig:"STORAGE_CDN_URL"`
	BasePath        string `yaml:"base_path" envconfig:"STORAGE_BASE_PATH"`
	ForcePathStyle  bool   `yaml:"force_path_style" envconfig:"STORAGE_FORCE_PATH_STYLE"`
	MaxUploadBytes  int64  `yaml:"max_upload_bytes" envconfig:"STORAGE_MAX_UPLOAD_BYTES"`
}

type ChatConfig struct {
	MaxGroupSize     int `yaml:"max_group_size" envconfig:"CHAT_MAX_GROUP_SIZE"`
	MaxContentLength int `yaml:"max_content_length" envconfig:"CHAT_MAX_CONTENT_LENGTH"`
	DefaultPageSize  int `yaml:"default_page_size" envconfig:"CHAT_DEFAULT_PAGE_SIZE"`
	MaxPageSize      int `yaml:"max_page_size" envconfig:"CHAT_MAX_PAGE_SIZE"`
}

type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" envconfig:"RATELIMIT_ENABLED"`
	MessagesPerMinute int           `yaml:"messages_per_minute" envconfig:"RATELIMIT_MESSAGES_PER_MINUTE"`
	MaxBuckets        int           `yaml:"max_buckets" envconfig:"RATELIMIT_MAX_BUCKETS"`
	IdleTTL           time.Duration `yaml:"idle_ttl" envconfig:"RATELIMIT_IDLE_TTL"`
	// RequestsPerMinute caps all API requests per caller through Redis; 0 disables
	RequestsPerMinute int           `yaml:"requests_per_minute" envconfig:"RATELIMIT_REQUESTS_PER_MINUTE"`
}

type WSConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" envconfig:"WS_HEARTBEAT_INTERVAL"`
	DisconnectGrace   time.Duration `yaml:"disconnect_grace" envconfig:"WS_DISCONNECT_GRACE"`
	WriteWait         time.Duration `yaml:"write_wait" envconfig:"WS_WRITE_WAIT"`
	SendBuffer        int           `yaml:"send_buffer" envconfig:"WS_SEND_BUFFER"`
	MaxFrameBytes     int64         `yaml:"max_frame_bytes" envconfig:"WS_MAX_FRAME_BYTES"`
	AllowedOrigins    string        `yaml:"allowed_origins" envconfig:"WS_ALLOWED_ORIGINS"`
	RelayChannel      string        `yaml:"relay_channel" envconfig:"WS_RELAY_CHANNEL"`
}

// Default returns a configuration usable for local development
func Default() *Config {
	return &Config{
		Env:      "local",
		LogLevel: "info",
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8090,
			ReadTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "127.0.0.1",
			Port:            3306,
			User:            "chat",
			DBName:          "chat",
			MaxIdleConns:    10,
			MaxOpenConns:    50,
			ConnMaxLifetime: time.Hour,
		},
		Redis: RedisConfig{
			Host:     "127.0.0.1",
			Port:     6379,
			PoolSize: 20,
		},
		JWT: JWTConfig{
			Issuer:    "linguaschool",
			ExpiresIn: 24 * time.Hour,
		},
		Storage: StorageConfig{
			Region:         "auto",
			BasePath:       "chat/",
			MaxUploadBytes: 20 << 20,
		},
		Chat: ChatConfig{
			MaxGroupSize:     50,
			MaxContentLength: 4000,
			DefaultPageSize:  30,
			MaxPageSize:      100,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerMinute: 30,
			MaxBuckets:        10000,
			IdleTTL:           5 * time.Minute,
			RequestsPerMinute: 600,
		},
		WS: WSConfig{
			HeartbeatInterval: 10 * time.Second,
			DisconnectGrace:   30 * time.Second,
			WriteWait:         10 * time.Second,
			SendBuffer:        64,
			MaxFrameBytes:     16 << 10,
			RelayChannel:      "chat:events",
		},
	}
}

// LoadDotEnv loads .env.<APP_ENV>, .env.local and .env in that priority.
// godotenv.Load never overwrites already-set variables, so the OS environment wins.
// Returns list of files actually loaded.
func LoadDotEnv() []string {
	candidates := []string{".env.local", ".env"}
	if env := os.Getenv("APP_ENV"); env != "" {
		candidates = append([]string{".env." + env}, candidates...)
	}
	var loaded []string
	for _, f := range candidates {
		if _, err := os.Stat(f); err == nil {
			loaded = append(loaded, f)
		}
	}
	if len(loaded) > 0 {
		_ = godotenv.Load(loaded...)
	}
	return loaded
}

// Load reads the YAML file at path (a missing file is not an error),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
			logger.GetLogger().Warn().Str("path", path).Msg("config file not found, using defaults")
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := envconfig.Process("chat", cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the service relies on
func (c *Config) Validate() error {
	var problems []string
	if c.Chat.MaxGroupSize < 1 {
		problems = append(problems, "chat.max_group_size must be >= 1")
	}
	if c.Chat.MaxPageSize < 1 || c.Chat.DefaultPageSize < 1 || c.Chat.DefaultPageSize > c.Chat.MaxPageSize {
		problems = append(problems, "chat page sizes must satisfy 1 <= default_page_size <= max_page_size")
	}
	if c.RateLimit.Enabled && c.RateLimit.MessagesPerMinute < 1 {
		problems = append(problems, "ratelimit.messages_per_minute must be >= 1 when enabled")
	}
	if c.WS.HeartbeatInterval <= 0 || c.WS.DisconnectGrace <= c.WS.HeartbeatInterval {
		problems = append(problems, "ws.disconnect_grace must be greater than ws.heartbeat_interval")
	}
	if c.WS.SendBuffer < 1 {
		problems = append(problems, "ws.send_buffer must be >= 1")
	}
	if !c.IsDevelopment() && c.JWT.Secret == "" {
		problems = append(problems, "jwt.secret is required outside development")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsDevelopment reports whether the service runs in a local/dev environment
func (c *Config) IsDevelopment() bool {
	switch c.Env {
	case "", "local", "dev", "development", "test":
		return true
	}
	return false
}

// LogResolved prints the effective configuration without secrets
func LogResolved(cfg *Config) {
	logger.GetLogger().Info().
		Str("env", cfg.Env).
		Str("db_host", cfg.Database.Host).
		Int("db_port", cfg.Database.Port).
		Str("db_name", cfg.Database.DBName).
		Bool("redis_enabled", cfg.Redis.Enabled).
		Bool("storage_enabled", cfg.Storage.Enabled).
		Bool("ratelimit_enabled", cfg.RateLimit.Enabled).
		Int("ratelimit_per_minute", cfg.RateLimit.MessagesPerMinute).
		Dur("ws_heartbeat", cfg.WS.HeartbeatInterval).
		Dur("ws_grace", cfg.WS.DisconnectGrace).
		Msg("config resolved")
}
