package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/barchat/internal/chat/realtime"
	"github.com/aussiebroadwan/barchat/internal/chat/service"
	"github.com/aussiebroadwan/barchat/internal/chat/tokencache"
)

type Config struct {
	Issuer               string        // issuer claim for access tokens (default: barchat)
	NumKeys              int           // signing keys generated at startup (default: 2, max: 10)
	DatabaseFile         string        // path to SQLite database file (default: ./chat.db)
	PepperFile           string        // path to file containing pepper for password hashing (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	AccessTTL         time.Duration // access token and cache lifetime (default: 5m)
	RefreshTTL        time.Duration // registered session lifetime (default: 30d)
	GuestRefreshTTL   time.Duration // guest refresh token lifetime (default: 24h)
	TokenCacheEntries int           // token cache capacity (default: 1,000,000)

	HeartbeatInterval  time.Duration // server ping interval (default: 30s)
	HeartbeatMaxMissed int           // intervals without traffic before a socket is dropped (default: 2)
	SendQueueSize      int           // outbound frames buffered per socket (default: 256)
	WriteTimeout       time.Duration // per-frame write deadline (default: 10s)
	MaxFrameBytes      int64         // largest inbound frame (default: 64KiB)
	MessageRate        float64       // inbound messages per second per socket (default: 10)
	MessageBurst       int           // inbound burst per socket (default: 20)

	// AllowedOrigins is a comma separated list of scheme://host values.
	// Empty disables the origin check.
	AllowedOrigins []string
}

func LoadConfig() Config {
	return Config{
		Issuer:               getEnvOrDefault("CHAT_ISSUER", "barchat"),
		NumKeys:              getEnvIntOrDefault("CHAT_NUM_KEYS", 2),
		DatabaseFile:         getEnvOrDefault("CHAT_DATABASE_FILE", "chat.db"),
		PepperFile:           getEnvOrDefault("CHAT_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", service.DefaultHousekeepingInterval),

		AccessTTL:         getEnvDurationOrDefault("CHAT_ACCESS_TTL", tokencache.DefaultAccessTTL),
		RefreshTTL:        getEnvDurationOrDefault("CHAT_REFRESH_TTL", service.DefaultRefreshTTL),
		GuestRefreshTTL:   getEnvDurationOrDefault("CHAT_GUEST_REFRESH_TTL", tokencache.DefaultGuestRefreshTTL),
		TokenCacheEntries: getEnvIntOrDefault("CHAT_TOKEN_CACHE_MAX_ENTRIES", tokencache.DefaultMaxEntries),

		HeartbeatInterval:  getEnvDurationOrDefault("CHAT_HEARTBEAT_INTERVAL", realtime.DefaultHeartbeatInterval),
		HeartbeatMaxMissed: getEnvIntOrDefault("CHAT_HEARTBEAT_MAX_MISSED", realtime.DefaultHeartbeatMissed),
		SendQueueSize:      getEnvIntOrDefault("CHAT_SEND_QUEUE_SIZE", realtime.DefaultSendQueueSize),
		WriteTimeout:       getEnvDurationOrDefault("CHAT_WRITE_TIMEOUT", realtime.DefaultWriteTimeout),
		MaxFrameBytes:      int64(getEnvIntOrDefault("CHAT_MAX_FRAME_BYTES", realtime.DefaultMaxFrameBytes)),
		MessageRate:        getEnvFloatOrDefault("CHAT_MESSAGE_RATE", float64(realtime.DefaultMessageRate)),
		MessageBurst:       getEnvIntOrDefault("CHAT_MESSAGE_BURST", realtime.DefaultMessageBurst),

		AllowedOrigins: getEnvListOrDefault("CHAT_ALLOWED_ORIGINS", nil),
	}
}

// Realtime is the hub configuration derived from c.
func (c Config) Realtime() realtime.Config {
	return realtime.Config{
		Heartbeat: realtime.HeartbeatConfig{
			Interval:  c.HeartbeatInterval,
			MaxMissed: c.HeartbeatMaxMissed,
		},
		SendQueueSize: c.SendQueueSize,
		WriteTimeout:  c.WriteTimeout,
		MaxFrameBytes: c.MaxFrameBytes,
		MessageRate:   rate.Limit(c.MessageRate),
		MessageBurst:  c.MessageBurst,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil && f > 0 {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
