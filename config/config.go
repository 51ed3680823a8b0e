package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Scan guard modes. Tolerant lets decodes through while a validation is in
// flight; single-flight drops them until the outstanding one returns.
const (
	GuardTolerant     = "tolerant"
	GuardSingleFlight = "single-flight"
)

type Config struct {
	// Remote API
	APIURL         string
	AccessToken    string
	Role           string
	RequestTimeout time.Duration

	// Scanning
	ScanLogCap    int
	OverlayWindow time.Duration
	ScanGuard     string
	GateID        string

	// Redis mirror of the scan log (optional)
	RedisURL    string
	RedisLogKey string

	// PubNub gate broadcast (optional)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubChannel      string

	// Rendering
	Locale string

	// Monitoring
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Interactive enables retry prompts in the CLI.
	Interactive bool
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment variables")
	}

	cfg := &Config{
		APIURL:         strings.TrimRight(getEnv("NJOY_API_URL", "http://localhost:8000"), "/"),
		AccessToken:    getEnv("NJOY_ACCESS_TOKEN", ""),
		Role:           getEnv("NJOY_ROLE", ""),
		RequestTimeout: getEnvAsDuration("NJOY_REQUEST_TIMEOUT", "10s"),

		ScanLogCap:    getEnvAsInt("NJOY_SCAN_LOG_CAP", 200),
		OverlayWindow: getEnvAsDuration("NJOY_OVERLAY_WINDOW", "5s"),
		ScanGuard:     getEnv("NJOY_SCAN_GUARD", GuardTolerant),
		GateID:        getEnv("NJOY_GATE_ID", hostname()),

		RedisURL:    getEnv("NJOY_REDIS_URL", ""),
		RedisLogKey: getEnv("NJOY_REDIS_LOG_KEY", "njoy:scanlog"),

		PubNubPublishKey:   getEnv("NJOY_PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("NJOY_PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubChannel:      getEnv("NJOY_PUBNUB_CHANNEL", "njoy-gate-scans"),

		Locale: getEnv("NJOY_LOCALE", "es"),

		MetricsAddr: getEnv("NJOY_METRICS_ADDR", ""),

		LogLevel:  getEnv("NJOY_LOG_LEVEL", "info"),
		LogFormat: getEnv("NJOY_LOG_FORMAT", "text"),

		Interactive: getEnvAsBool("NJOY_INTERACTIVE", true),
	}

	if cfg.ScanGuard != GuardTolerant && cfg.ScanGuard != GuardSingleFlight {
		log.WithField("scan_guard", cfg.ScanGuard).Warn("Unknown scan guard, falling back to tolerant")
		cfg.ScanGuard = GuardTolerant
	}
	if cfg.ScanLogCap <= 0 {
		cfg.ScanLogCap = 200
	}

	return cfg
}

// ConfigureLogging applies the level and format to the global logger.
func (c *Config) ConfigureLogging() {
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	if level, err := log.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "gate"
	}
	return h
}
