package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/itasset/ticket-workflow/internal/domain"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Workflow     WorkflowConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the
// in-memory store.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables the
// stream publishers and falls back to log-only delivery.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int

	// BootstrapAdminEmail and BootstrapAdminPassword seed an ADMIN account
	// at startup when both are set.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// NotificationConfig configures outbound notifications and SLA commands.
type NotificationConfig struct {
	Stream    string
	SLAStream string
	Workers   int
	QueueSize int
}

// WorkflowConfig carries closure rules and the reopen policy used to seed
// the first stored ReopenConfig version.
type WorkflowConfig struct {
	RequireServiceReport bool
	ReopenPolicyFile     string
	ReopenDefaults       domain.ReopenConfig
}

// Load reads configuration from envFile (when present) and the environment,
// applying defaults where possible.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ticket-workflow"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAdminEmail:    os.Getenv("AUTH_BOOTSTRAP_ADMIN_EMAIL"),
			BootstrapAdminPassword: os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
		},
		Notification: NotificationConfig{
			Stream:    getEnv("NOTIFY_STREAM", "notifications"),
			SLAStream: getEnv("SLA_STREAM", "sla:commands"),
			Workers:   getEnvAsInt("NOTIFY_WORKERS", 4),
			QueueSize: getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		},
		Workflow: WorkflowConfig{
			RequireServiceReport: getEnvAsBool("WORKFLOW_REQUIRE_SERVICE_REPORT", true),
			ReopenPolicyFile:     os.Getenv("REOPEN_POLICY_FILE"),
		},
	}

	policy, err := loadReopenPolicy(cfg.Workflow.ReopenPolicyFile)
	if err != nil {
		return nil, err
	}
	cfg.Workflow.ReopenDefaults = policy

	return cfg, nil
}

// loadReopenPolicy starts from the built-in defaults, overlays the YAML file
// when given, then the REOPEN_* env vars. The result must validate.
func loadReopenPolicy(path string) (domain.ReopenConfig, error) {
	policy := domain.DefaultReopenConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return policy, fmt.Errorf("read reopen policy: %w", err)
		}
		if err := yaml.Unmarshal(raw, &policy); err != nil {
			return policy, fmt.Errorf("parse reopen policy %s: %w", path, err)
		}
	}
	policy.ReopenWindowDays = getEnvAsInt("REOPEN_WINDOW_DAYS", policy.ReopenWindowDays)
	policy.MaxReopenCount = getEnvAsInt("REOPEN_MAX_COUNT", policy.MaxReopenCount)
	policy.SLAResetMode = domain.SLAResetMode(getEnv("REOPEN_SLA_RESET_MODE", string(policy.SLAResetMode)))

	if details := policy.Validate(); details != nil {
		return policy, fmt.Errorf("invalid reopen policy: %v", details)
	}
	return policy, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// AccessTokenTTL returns the JWT lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
