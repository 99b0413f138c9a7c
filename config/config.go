package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"pennytrack/apperrors"

	"github.com/robfig/cron/v3"
)

// Store backends
const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
)

// Config is the full application configuration
type Config struct {
	StoreID    string
	PolicyFile string
	Store      StoreConfig
	Browser    BrowserConfig
	Discovery  DiscoveryConfig
	Sync       SyncConfig
	Redis      RedisConfig
	Memcache   MemcacheConfig
	API        APIConfig
}

// StoreConfig selects and locates the persistence backend
type StoreConfig struct {
	Backend          string
	TrackedItemsPath string
	PriceHistoryPath string
	DatabaseURL      string
}

// SyncConfig controls the scheduled jobs
type SyncConfig struct {
	ItemDelay         time.Duration
	BlockedDelay      time.Duration
	Schedule          string
	DiscoverySchedule string
	RetryInterval     time.Duration
	RunOnStart        bool
}

// RedisConfig locates the alert stream; empty Addr disables publishing
type RedisConfig struct {
	Addr            string
	DB              int
	Stream          string
	StreamMaxLength int
}

// MemcacheConfig locates the block cooldown cache; empty Addr keeps it in memory
type MemcacheConfig struct {
	Addr          string
	BlockCooldown time.Duration
}

// Load reads the configuration from the environment and validates it
func Load() (*Config, error) {
	discovery, err := LoadDiscoveryConfig()
	if err != nil {
		return nil, apperrors.NewConfiguration("load discovery config", err)
	}

	cfg := &Config{
		StoreID:    getEnv("STORE_ID", "0121"),
		PolicyFile: getEnv("MARKDOWN_POLICY_FILE", ""),
		Store: StoreConfig{
			Backend:          strings.ToLower(getEnv("STORE_BACKEND", BackendCSV)),
			TrackedItemsPath: getEnv("TRACKED_ITEMS_PATH", "tracked_skus.csv"),
			PriceHistoryPath: getEnv("PRICE_HISTORY_PATH", "price_history.csv"),
			DatabaseURL:      getEnv("DATABASE_URL", ""),
		},
		Browser:   LoadBrowserConfig(),
		Discovery: discovery,
		Sync: SyncConfig{
			ItemDelay:         getEnvDuration("SYNC_ITEM_DELAY", 2*time.Second),
			BlockedDelay:      getEnvDuration("BLOCKED_ITEM_DELAY", 10*time.Second),
			Schedule:          getEnv("SYNC_SCHEDULE", "0 0 */12 * * *"),
			DiscoverySchedule: getEnv("DISCOVERY_SCHEDULE", "0 30 6 * * *"),
			RetryInterval:     getEnvDuration("RETRY_INTERVAL", 30*time.Minute),
			RunOnStart:        getEnvBool("SYNC_ON_START", false),
		},
		Redis: RedisConfig{
			Addr:            getEnv("REDIS_ADDR", ""),
			DB:              getEnvInt("REDIS_DB", 0),
			Stream:          getEnv("REDIS_STREAM", "pennytrack:alerts"),
			StreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		},
		Memcache: MemcacheConfig{
			Addr:          getEnv("MEMCACHE_ADDR", ""),
			BlockCooldown: getEnvDuration("BLOCK_COOLDOWN", 0),
		},
		API: LoadAPIConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the application cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.StoreID) == "" {
		return apperrors.NewConfiguration("STORE_ID must not be empty", nil)
	}

	switch c.Store.Backend {
	case BackendCSV:
		if c.Store.TrackedItemsPath == "" || c.Store.PriceHistoryPath == "" {
			return apperrors.NewConfiguration("csv backend needs TRACKED_ITEMS_PATH and PRICE_HISTORY_PATH", nil)
		}
	case BackendPostgres:
		if c.Store.DatabaseURL == "" {
			return apperrors.NewConfiguration("DATABASE_URL environment variable is required for the postgres backend", nil)
		}
	default:
		return apperrors.NewConfiguration("unknown STORE_BACKEND "+c.Store.Backend, nil)
	}

	if c.Discovery.MaxPerCategory <= 0 {
		return apperrors.NewConfiguration("MAX_PER_CATEGORY must be positive", nil)
	}
	if c.Browser.NavigationTimeout <= 0 || c.Browser.SelectorTimeout <= 0 {
		return apperrors.NewConfiguration("browser timeouts must be positive", nil)
	}
	if c.Sync.ItemDelay < 0 || c.Sync.BlockedDelay < 0 || c.Discovery.CategoryDelay < 0 || c.Memcache.BlockCooldown < 0 {
		return apperrors.NewConfiguration("pacing delays must not be negative", nil)
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for _, spec := range []string{c.Sync.Schedule, c.Sync.DiscoverySchedule} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return apperrors.NewConfiguration("invalid cron schedule "+spec, err)
		}
	}
	return nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
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
