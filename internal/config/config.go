package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Auth     AuthConfig
	Limits   LimitsConfig
	Detector DetectorConfig
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
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
}

type AuthConfig struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration

	// Lockout: an email or IP with this many failures inside the window is
	// denied before credentials are checked.
	LockoutMaxAttempts int
	LockoutWindow      time.Duration

	TimingDelayBaseMs   int
	TimingDelayRandomMs int

	AttemptRetention time.Duration
	CleanupInterval  time.Duration
}

// LimitsConfig holds the counter-based admission gates. The auth gates only
// consume budget on failed attempts; the API gates count every request.
type LimitsConfig struct {
	AuthPerIPMax     int
	AuthPerIPWindow  time.Duration
	AuthGlobalMax    int
	AuthGlobalWindow time.Duration

	APIUserMax    int
	APIAnonMax    int
	APIWindow     time.Duration

	// Progressive penalty for repeat offenders: backoff doubles per level up
	// to the cap, and the level resets after a quiet period.
	ProgressiveBaseBackoff time.Duration
	ProgressiveMaxBackoff  time.Duration
	ProgressiveResetAfter  time.Duration
}

type DetectorConfig struct {
	// Requests from one fingerprint inside FingerprintWindow before the
	// detector flags, then blocks.
	FingerprintFlagThreshold  int
	FingerprintBlockThreshold int
	FingerprintWindow         time.Duration
	RequireUserAgent          bool
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
			Name:              getEnv("DB_NAME", "authgate"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "localhost:6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "authgate"),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseList(getEnv("ALLOWED_ORIGINS", "")),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
		},
		Auth: AuthConfig{
			JWTSecret:           jwtSecret,
			AccessTokenExpiry:   getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:  getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			LockoutMaxAttempts:  getEnvAsInt("LOCKOUT_MAX_ATTEMPTS", 5),
			LockoutWindow:       getEnvAsDuration("LOCKOUT_WINDOW", 15*time.Minute),
			TimingDelayBaseMs:   getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs: getEnvAsInt("TIMING_DELAY_RANDOM_MS", 100),
			AttemptRetention:    getEnvAsDuration("ATTEMPT_RETENTION", 30*24*time.Hour),
			CleanupInterval:     getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
		},
		Limits: LimitsConfig{
			AuthPerIPMax:           getEnvAsInt("AUTH_RATE_IP_MAX", 5),
			AuthPerIPWindow:        getEnvAsDuration("AUTH_RATE_IP_WINDOW", time.Minute),
			AuthGlobalMax:          getEnvAsInt("AUTH_RATE_GLOBAL_MAX", 1000),
			AuthGlobalWindow:       getEnvAsDuration("AUTH_RATE_GLOBAL_WINDOW", time.Minute),
			APIUserMax:             getEnvAsInt("API_RATE_USER_MAX", 100),
			APIAnonMax:             getEnvAsInt("API_RATE_ANON_MAX", 20),
			APIWindow:              getEnvAsDuration("API_RATE_WINDOW", time.Minute),
			ProgressiveBaseBackoff: getEnvAsDuration("PROGRESSIVE_BASE_BACKOFF", time.Minute),
			ProgressiveMaxBackoff:  getEnvAsDuration("PROGRESSIVE_MAX_BACKOFF", time.Hour),
			ProgressiveResetAfter:  getEnvAsDuration("PROGRESSIVE_RESET_AFTER", 24*time.Hour),
		},
		Detector: DetectorConfig{
			FingerprintFlagThreshold:  getEnvAsInt("DETECT_FP_FLAG_THRESHOLD", 30),
			FingerprintBlockThreshold: getEnvAsInt("DETECT_FP_BLOCK_THRESHOLD", 60),
			FingerprintWindow:         getEnvAsDuration("DETECT_FP_WINDOW", time.Minute),
			RequireUserAgent:          getEnvAsBool("DETECT_REQUIRE_USER_AGENT", false),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the signing key
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("JWT_SECRET cannot be a common weak value")
		}
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
		if b, err := strconv.ParseBool(value); err == nil {
			return b
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

func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
