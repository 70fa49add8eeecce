package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds validated environment configuration for the focus agent.
type Config struct {
	// XEP-0114 component connection (required) — this agent dials out to
	// the XMPP server's component port and authenticates as a subdomain.
	ComponentAddr   string
	ComponentDomain string
	ComponentSecret string

	// Bridge selection and feature toggles
	MediaBridge      string
	FeatureDataChan  bool
	FeatureBundle    bool
	FeatureRTX       bool
	MinParticipants  int
	LingerTime       time.Duration
	BridgeLiveliness time.Duration

	// Stats pubsub
	PubsubService string
	PubsubNode    string

	// Admin HTTP surface
	AdminAddr string

	// Redis (optional stats bus / cross-instance room ownership)
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string

	// Tracing (optional)
	OtelCollectorAddr string

	// Ambient
	GoEnv    string
	LogLevel string
}

// ValidateEnv validates all required environment variables and returns a
// Config. Returns an error if any required variable is missing or invalid.
func ValidateEnv() (*Config, error) {
	cfg := &Config{}
	var errors []string

	// Required: FOCUS_COMPONENT_ADDR (host:port of the XMPP server's
	// component port this agent dials out to).
	cfg.ComponentAddr = os.Getenv("FOCUS_COMPONENT_ADDR")
	if cfg.ComponentAddr == "" {
		errors = append(errors, "FOCUS_COMPONENT_ADDR is required")
	} else if !isValidHostPort(cfg.ComponentAddr) {
		errors = append(errors, fmt.Sprintf("FOCUS_COMPONENT_ADDR must be in format 'host:port' (got '%s')", cfg.ComponentAddr))
	}

	// Required: FOCUS_COMPONENT_DOMAIN (this agent's own JID domain).
	cfg.ComponentDomain = os.Getenv("FOCUS_COMPONENT_DOMAIN")
	if cfg.ComponentDomain == "" {
		errors = append(errors, "FOCUS_COMPONENT_DOMAIN is required")
	}

	// Required: FOCUS_COMPONENT_SECRET (shared XEP-0114 handshake secret).
	cfg.ComponentSecret = os.Getenv("FOCUS_COMPONENT_SECRET")
	if cfg.ComponentSecret == "" {
		errors = append(errors, "FOCUS_COMPONENT_SECRET is required")
	}

	// Required: focus_media_bridge — default bridge identifier when no
	// live bridge stats have been observed yet.
	cfg.MediaBridge = os.Getenv("focus_media_bridge")
	if cfg.MediaBridge == "" {
		errors = append(errors, "focus_media_bridge is required")
	}

	cfg.FeatureDataChan = getEnvBoolOrDefault("focus_feature_datachannel", true)
	cfg.FeatureBundle = getEnvBoolOrDefault("focus_feature_bundle", true)
	cfg.FeatureRTX = getEnvBoolOrDefault("focus_feature_rtx", false)

	cfg.MinParticipants = getEnvIntOrDefault("focus_min_participants", 2)
	if cfg.MinParticipants < 1 {
		errors = append(errors, fmt.Sprintf("focus_min_participants must be >= 1 (got %d)", cfg.MinParticipants))
	}

	lingerSeconds := getEnvIntOrDefault("focus_linger_time", 0)
	if lingerSeconds < 0 {
		errors = append(errors, fmt.Sprintf("focus_linger_time must be >= 0 (got %d)", lingerSeconds))
	}
	cfg.LingerTime = time.Duration(lingerSeconds) * time.Second

	livelinessSeconds := getEnvIntOrDefault("focus_bridge_liveliness", 60)
	if livelinessSeconds < 1 {
		errors = append(errors, fmt.Sprintf("focus_bridge_liveliness must be >= 1 (got %d)", livelinessSeconds))
	}
	cfg.BridgeLiveliness = time.Duration(livelinessSeconds) * time.Second

	cfg.PubsubService = os.Getenv("focus_pubsub_service")
	cfg.PubsubNode = getEnvOrDefault("focus_pubsub_node", "videobridge")

	// Optional: ADMIN_ADDR (defaults to :8090) — health/metrics only, no
	// conference traffic.
	cfg.AdminAddr = getEnvOrDefault("ADMIN_ADDR", ":8090")

	// Conditional: REDIS_ADDR (required if REDIS_ENABLED=true)
	cfg.RedisEnabled = os.Getenv("REDIS_ENABLED") == "true"
	if cfg.RedisEnabled {
		cfg.RedisAddr = os.Getenv("REDIS_ADDR")
		if cfg.RedisAddr == "" {
			cfg.RedisAddr = "localhost:6379"
			slog.Warn("REDIS_ADDR not set, using default", "addr", cfg.RedisAddr)
		} else if !isValidHostPort(cfg.RedisAddr) {
			errors = append(errors, fmt.Sprintf("REDIS_ADDR must be in format 'host:port' (got '%s')", cfg.RedisAddr))
		}
		cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	}

	// Optional: OTEL_COLLECTOR_ADDR — tracing disabled entirely if unset.
	cfg.OtelCollectorAddr = os.Getenv("OTEL_COLLECTOR_ADDR")

	// Optional: GO_ENV (defaults to "production")
	cfg.GoEnv = getEnvOrDefault("GO_ENV", "production")

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	if len(errors) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errors, "\n  - "))
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

// logValidatedConfig logs the validated configuration.
func logValidatedConfig(cfg *Config) {
	slog.Info("environment configuration validated",
		"component_addr", cfg.ComponentAddr,
		"component_domain", cfg.ComponentDomain,
		"media_bridge", cfg.MediaBridge,
		"feature_datachannel", cfg.FeatureDataChan,
		"feature_bundle", cfg.FeatureBundle,
		"feature_rtx", cfg.FeatureRTX,
		"min_participants", cfg.MinParticipants,
		"linger_time", cfg.LingerTime,
		"bridge_liveliness", cfg.BridgeLiveliness,
		"pubsub_service", cfg.PubsubService,
		"pubsub_node", cfg.PubsubNode,
		"admin_addr", cfg.AdminAddr,
		"redis_enabled", cfg.RedisEnabled,
		"go_env", cfg.GoEnv,
		"log_level", cfg.LogLevel,
	)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value == "true"
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
