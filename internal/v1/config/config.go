package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds validated environment configuration
type Config struct {
	// Required variables
	JWTSecret string
	Port      string

	// Optional variables with defaults
	GoEnv    string
	LogLevel string

	// Redis bus (optional; single-process deployments leave it disabled)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Social graph service (the "are A and B friends?" collaborator)
	SocialGraphServiceAddr string

	SkipAuth        bool
	DevelopmentMode bool
	AllowedOrigins  string

	// Rate Limits
	RateLimitGlobal     string
	RateLimitWsConnect  string
	RateLimitWsMove     string
	RateLimitInviteSend string
}

// ValidateEnv validates all required environment variables and returns a Config object.
// Returns an error if any required variable is missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Required: JWT_SECRET (minimum 32 characters)
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWTSecret) < 32 {
		errs = append(errs, fmt.Sprintf("JWT_SECRET must be at least 32 characters (got %d)", len(cfg.JWTSecret)))
	}

	// Required: PORT (valid port number)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		errs = append(errs, "PORT is required")
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Required: SOCIAL_GRAPH_SERVICE_ADDR (base URL of the friend-invite collaborator)
	cfg.SocialGraphServiceAddr = os.Getenv("SOCIAL_GRAPH_SERVICE_ADDR")
	if cfg.SocialGraphServiceAddr == "" {
		errs = append(errs, "SOCIAL_GRAPH_SERVICE_ADDR is required")
	}

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errs = append(errs, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = os.Getenv("GO_ENV")
	if cfg.GoEnv == "" {
		cfg.GoEnv = "production"
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.SkipAuth = os.Getenv("SKIP_AUTH") == "true"
	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")

	// Rate Limits (Defaults: M = Minute, H = Hour)
	cfg.RateLimitGlobal = getEnvOrDefault("RATE_LIMIT_GLOBAL", "600-M")
	cfg.RateLimitWsConnect = getEnvOrDefault("RATE_LIMIT_WS_CONNECT", "100-M")
	cfg.RateLimitWsMove = getEnvOrDefault("RATE_LIMIT_WS_MOVE", "120-M")
	cfg.RateLimitInviteSend = getEnvOrDefault("RATE_LIMIT_INVITE_SEND", "20-M")

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	logValidatedConfig(cfg)

	return cfg, nil
}

// isValidHostPort checks if a string is in the format "host:port"
func isValidHostPort(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 2 {
		return false
	}

	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return false
	}

	if parts[0] == "" {
		return false
	}

	return true
}

// logValidatedConfig logs the validated configuration with secrets redacted
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated successfully")
	slog.Info("configuration",
		"jwt_secret", redactSecret(cfg.JWTSecret),
		"port", cfg.Port,
		"social_graph_service_addr", cfg.SocialGraphServiceAddr,
		"redis_enabled", cfg.RedisEnabled,
		"redis_addr", cfg.RedisAddr,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
		"development_mode", cfg.DevelopmentMode,
	)
}

// getEnvOrDefault returns the value of the environment variable or a default value if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// redactSecret redacts a secret by showing only the first 8 characters
func redactSecret(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}
