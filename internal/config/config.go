package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Buffer      BufferConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
	Engine      EngineConfig
	Lock        LockConfig
	Scheduler   SchedulerConfig
}

type HTTPConfig struct {
	Host          string
	Port          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	IdleTimeout   time.Duration
	MaxConn       int
	EnablePprof   bool
	EnableMetrics bool
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// BufferConfig tunes the durable usage inbox.
type BufferConfig struct {
	Path               string
	BatchSize          int
	DeadRetentionHours int
	SyncInterval       time.Duration
	MaxRetry           int
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Lock drivers.
const (
	LockLocal = "local"
	LockRedis = "redis"
)

// EngineConfig carries the attribution engine's policy switches.
type EngineConfig struct {
	StorageDriver        string
	AllowDraftActivation bool
	AllowRevote          bool
	DefaultCurrency      string
	EventChannel         string
	Participants         map[string]string
}

type LockConfig struct {
	Driver string
	TTL    time.Duration
	Retry  time.Duration
}

type SchedulerConfig struct {
	Enabled bool
	Refresh time.Duration
	Timeout time.Duration
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "attribution-engine"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:          getString("SERVER_HOST", "0.0.0.0"),
			Port:          getString("SERVER_PORT", "8080"),
			ReadTimeout:   getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:  getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:   getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:       getInt("SERVER_MAX_CONN", 0),
			EnablePprof:   getBool("SERVER_ENABLE_PPROF", false),
			EnableMetrics: getBool("SERVER_ENABLE_METRICS", false),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "attribution"),
			User:            getString("DB_USER", "attribution"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getBool("REDIS_ENABLED", true),
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "attribution-engine"),
		},
		Buffer: BufferConfig{
			Path:               getString("BOLTDB_PATH", "./data/usage-inbox.db"),
			BatchSize:          getInt("BUFFER_BATCH_SIZE", 100),
			DeadRetentionHours: getInt("BUFFER_DEAD_RETENTION_HOURS", 168),
			SyncInterval:       getDuration("SYNC_INTERVAL_SECONDS", 5*time.Second),
			MaxRetry:           getInt("MAX_RETRY_ATTEMPTS", 5),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
		Engine: EngineConfig{
			StorageDriver:        strings.ToLower(getString("STORAGE_DRIVER", StoragePostgres)),
			AllowDraftActivation: getBool("ALLOW_DRAFT_ACTIVATION", false),
			AllowRevote:          getBool("ALLOW_REVOTE", true),
			DefaultCurrency:      strings.ToUpper(getString("DEFAULT_CURRENCY", "USD")),
			EventChannel:         getString("EVENT_CHANNEL", "attribution.events"),
			Participants:         getPairs("PARTICIPANTS"),
		},
		Lock: LockConfig{
			Driver: strings.ToLower(getString("LOCK_DRIVER", LockLocal)),
			TTL:    getDuration("LOCK_TTL", 30*time.Second),
			Retry:  getDuration("LOCK_RETRY", 50*time.Millisecond),
		},
		Scheduler: SchedulerConfig{
			Enabled: getBool("SCHEDULER_ENABLED", true),
			Refresh: getDuration("SCHEDULER_REFRESH", time.Minute),
			Timeout: getDuration("SCHEDULER_TIMEOUT", 30*time.Second),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate rejects unknown drivers and settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Engine.StorageDriver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("config: unknown STORAGE_DRIVER %q", c.Engine.StorageDriver)
	}
	switch c.Lock.Driver {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("config: unknown LOCK_DRIVER %q", c.Lock.Driver)
	}
	if c.Lock.Driver == LockRedis && !c.Redis.Enabled {
		return fmt.Errorf("config: LOCK_DRIVER=redis needs REDIS_ENABLED")
	}
	if c.Lock.Driver == LockRedis && c.Lock.TTL <= 0 {
		return fmt.Errorf("config: LOCK_TTL must be positive for the redis lock driver")
	}
	if len(c.Engine.DefaultCurrency) != 3 {
		return fmt.Errorf("config: DEFAULT_CURRENCY must be an ISO 4217 code, got %q", c.Engine.DefaultCurrency)
	}
	return nil
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

// getPairs parses "id=Display Name,id2=Other" lists.
func getPairs(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		id, name, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || strings.TrimSpace(id) == "" {
			continue
		}
		out[strings.TrimSpace(id)] = strings.TrimSpace(name)
	}
	return out
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
