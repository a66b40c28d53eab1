package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the data layer and the dev server.
type Config struct {
	Store     StoreConfig
	Gateway   GatewayConfig
	Lifecycle LifecycleConfig
	Polling   PollingConfig
	Presence  PresenceConfig
	DevServer DevServerConfig
	Redis     RedisConfig
	NewRelic  NewRelicConfig
}

// StoreConfig holds remote document store settings.
type StoreConfig struct {
	BaseURL string
	Timeout time.Duration
}

// GatewayConfig holds settlement/presence gateway settings.
type GatewayConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LifecycleConfig holds order lifecycle tuning.
type LifecycleConfig struct {
	OfferTTL      time.Duration // how long a pending offer lives before the reaper recycles it
	ExtendBy      time.Duration // default extension when a driver needs more decision time
	ReapInterval  time.Duration
	EarningsShare float64 // driver share of pricing.total
	EarningsFloor float64 // guaranteed minimum per order
}

// PollingConfig holds pseudo-subscription intervals and retry bounds.
type PollingConfig struct {
	MessageInterval time.Duration
	OrderInterval   time.Duration
	ListInterval    time.Duration
	MaxAttempts     int
	Backoff         time.Duration
}

// PresenceConfig holds driver presence tuning.
type PresenceConfig struct {
	HeartbeatInterval time.Duration
	// MovementThresholdMiles gates location reports: positions closer than
	// this to the last reported one are not re-sent (~50 meters).
	MovementThresholdMiles float64
}

// DevServerConfig holds the local backend emulator settings.
type DevServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	AuthSecret   string // when set, bearer tokens must be JWTs signed with it
}

// RedisConfig holds Redis settings for the dev server geo index.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// NewRelicConfig holds New Relic configuration for the dev server.
type NewRelicConfig struct {
	AppName    string
	LicenseKey string
	Enabled    bool
}

// Load loads configuration from the environment, honoring a .env file when
// one is present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Store: StoreConfig{
			BaseURL: getEnv("STORE_BASE_URL", "http://localhost:8080/v1"),
			Timeout: getDurationEnv("STORE_TIMEOUT", 15*time.Second),
		},
		Gateway: GatewayConfig{
			BaseURL: getEnv("GATEWAY_BASE_URL", "http://localhost:8080/api"),
			Timeout: getDurationEnv("GATEWAY_TIMEOUT", 15*time.Second),
		},
		Lifecycle: LifecycleConfig{
			OfferTTL:      getDurationEnv("OFFER_TTL", 4*time.Minute),
			ExtendBy:      getDurationEnv("OFFER_EXTEND_BY", 2*time.Minute),
			ReapInterval:  getDurationEnv("REAP_INTERVAL", 30*time.Second),
			EarningsShare: getFloatEnv("EARNINGS_SHARE", 0.70),
			EarningsFloor: getFloatEnv("EARNINGS_FLOOR", 5.00),
		},
		Polling: PollingConfig{
			MessageInterval: getDurationEnv("POLL_MESSAGES_INTERVAL", 2*time.Second),
			OrderInterval:   getDurationEnv("POLL_ORDER_INTERVAL", 5*time.Second),
			ListInterval:    getDurationEnv("POLL_LIST_INTERVAL", 30*time.Second),
			MaxAttempts:     getIntEnv("POLL_MAX_ATTEMPTS", 3),
			Backoff:         getDurationEnv("POLL_BACKOFF", time.Second),
		},
		Presence: PresenceConfig{
			HeartbeatInterval:      getDurationEnv("HEARTBEAT_INTERVAL", 30*time.Second),
			MovementThresholdMiles: getFloatEnv("MOVEMENT_THRESHOLD_MILES", 0.03),
		},
		DevServer: DevServerConfig{
			Port:         getEnv("DEVSERVER_PORT", "8080"),
			ReadTimeout:  getDurationEnv("DEVSERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDurationEnv("DEVSERVER_WRITE_TIMEOUT", 10*time.Second),
			AuthSecret:   getEnv("DEVSERVER_AUTH_SECRET", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
			Enabled:  getBoolEnv("REDIS_ENABLED", false),
		},
		NewRelic: NewRelicConfig{
			AppName:    getEnv("NEW_RELIC_APP_NAME", "courier-devserver"),
			LicenseKey: getEnv("NEW_RELIC_LICENSE_KEY", ""),
			Enabled:    getBoolEnv("NEW_RELIC_ENABLED", false),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
