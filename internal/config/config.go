package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bankauth/internal/lockout"
	"github.com/joho/godotenv"
)

// Ledger backends
const (
	LedgerBackendMemory   = "memory"
	LedgerBackendPostgres = "postgres"
	LedgerBackendSQLite   = "sqlite"
)

// Lockout notification providers
const (
	NotifyProviderNone = "none"
	NotifyProviderSES  = "ses"
	NotifyProviderSMTP = "smtp"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Lockout  LockoutConfig
	Notify   NotifyConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	AutoMigrate       bool
}

type ServerConfig struct {
	Port         string
	Env          string
	LogLevel     string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// TrustedProxies are CIDR ranges whose X-Forwarded-For header is honored
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret           string
	AccessTokenExpiry   time.Duration
	BcryptCost          int
	LoginRequestsPerMin int
	FailureDelay        time.Duration
	FailureDelayJitter  time.Duration
}

type LockoutConfig struct {
	Policy        lockout.Policy
	Backend       string
	SQLitePath    string
	PruneInterval time.Duration
}

type NotifyConfig struct {
	Provider     string
	FromAddress  string
	AWSRegion    string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bankauth"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			AutoMigrate:       getEnvAsBool("DB_AUTO_MIGRATE", true),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			AccessTokenExpiry:   getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			BcryptCost:          getEnvAsInt("BCRYPT_COST", 12),
			LoginRequestsPerMin: getEnvAsInt("LOGIN_REQUESTS_PER_MINUTE", 20),
			FailureDelay:        getEnvAsDuration("LOGIN_FAILURE_DELAY", 200*time.Millisecond),
			FailureDelayJitter:  getEnvAsDuration("LOGIN_FAILURE_JITTER", 100*time.Millisecond),
		},
		Lockout: LockoutConfig{
			Policy: lockout.Policy{
				MaxAttempts:   getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 3),
				AttemptWindow: getEnvAsDuration("LOCKOUT_ATTEMPT_WINDOW", 5*time.Minute),
				LockDuration:  getEnvAsDuration("LOCKOUT_LOCK_DURATION", 10*time.Minute),
			},
			Backend:       strings.ToLower(getEnv("LEDGER_BACKEND", LedgerBackendPostgres)),
			SQLitePath:    getEnv("SQLITE_PATH", "bankauth-ledger.db"),
			PruneInterval: getEnvAsDuration("LEDGER_PRUNE_INTERVAL", 10*time.Minute),
		},
		Notify: NotifyConfig{
			Provider:     strings.ToLower(getEnv("NOTIFY_PROVIDER", NotifyProviderNone)),
			FromAddress:  getEnv("NOTIFY_FROM_ADDRESS", ""),
			AWSRegion:    getEnv("AWS_REGION", "us-east-1"),
			SMTPHost:     getEnv("SMTP_HOST", ""),
			SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
			SMTPUser:     getEnv("SMTP_USER", ""),
			SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if err := cfg.Lockout.validate(); err != nil {
		return nil, err
	}

	if err := cfg.Notify.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *LockoutConfig) validate() error {
	if err := c.Policy.Validate(); err != nil {
		return fmt.Errorf("invalid lockout policy: %w", err)
	}

	switch c.Backend {
	case LedgerBackendMemory, LedgerBackendPostgres:
	case LedgerBackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite ledger backend")
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q", c.Backend)
	}

	if c.PruneInterval <= 0 {
		return fmt.Errorf("LEDGER_PRUNE_INTERVAL must be positive")
	}
	return nil
}

func (c *NotifyConfig) validate() error {
	switch c.Provider {
	case NotifyProviderNone:
		return nil
	case NotifyProviderSES:
	case NotifyProviderSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required for the smtp notify provider")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_PROVIDER %q", c.Provider)
	}

	if c.FromAddress == "" {
		return fmt.Errorf("NOTIFY_FROM_ADDRESS is required when notifications are enabled")
	}
	return nil
}

// validateJWTSecret enforces minimum security standards for JWT secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	var values []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}
