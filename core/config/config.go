package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App       AppConfig
	Paths     PathsConfig
	Database  DatabaseConfig
	Valkey    ValkeyConfig
	Provider  ProviderConfig
	Cache     CacheConfig
	Reconcile ReconcileConfig
	Search    SearchConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	TrustedProxies     []string
	BaseUrl            string
	CorsAllowedOrigins []string
	ServerID           string
}

type PathsConfig struct {
	BaseDir  string
	Storages string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB Name for Postgres
}

type ValkeyConfig struct {
	Enabled        bool
	Address        string
	Password       string
	DB             int
	ChannelPrefix  string
	ConnectTimeout time.Duration
}

// ProviderConfig selects where vendor data comes from: the upstream JSON API
// ("http") or the local database filled by the migrate command ("local").
type ProviderConfig struct {
	Mode           string
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

type CacheConfig struct {
	VendorTTL          time.Duration
	VendorCapacity     int
	ListTTL            time.Duration
	StatsTTL           time.Duration
	ProductsTTL        time.Duration
	ProductsCapacity   int
	ComparisonTTL      time.Duration
	ComparisonCapacity int
	RatingTTL          time.Duration
	RatingCapacity     int
	SearchTTL          time.Duration
	SearchCapacity     int
	CleanupInterval    time.Duration
}

type ReconcileConfig struct {
	ChunkSize        int
	RatingCap        int
	HighRating       float64
	Debounce         time.Duration
	PollInterval     time.Duration
	LocationThrottle time.Duration
	SettleDelay      time.Duration
	QueueSize        int
	ObserveRoot      string
	EventBuffer      int
	EventTTL         time.Duration
}

type SearchConfig struct {
	MinScore   float64
	MaxResults int
	PageSize   int
	// WindowTTL and MaxWindows bound the per-caller pagination windows.
	WindowTTL  time.Duration
	MaxWindows int
}

const (
	ProviderModeHTTP  = "http"
	ProviderModeLocal = "local"
)

// Global provides access to the loaded configuration globally
var Global *Config

// LoadConfig loads configuration from Environment Variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	var basicAuth []string
	if v := os.Getenv("APP_BASIC_AUTH"); v != "" {
		basicAuth = strings.Split(v, ",")
	}

	corsOrigins := []string{"http://localhost:3000", "http://localhost:5173"}
	if v := os.Getenv("APP_CORS_ALLOWED_ORIGINS"); v != "" {
		corsOrigins = strings.Split(v, ",")
	}

	appCfg := AppConfig{
		Version:            "v0.4.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              getEnvBool("APP_DEBUG", false) || getEnvBool("DEBUG", false),
		Environment:        getEnv("APP_ENV", "development"),
		BasicAuth:          basicAuth,
		BasePath:           getEnv("APP_BASE_PATH", ""),
		BaseUrl:            getEnv("APP_BASE_URL", "http://localhost:3000"),
		CorsAllowedOrigins: corsOrigins,
		ServerID:           getEnv("SERVER_ID", ""),
	}
	if v := os.Getenv("APP_TRUSTED_PROXIES"); v != "" {
		appCfg.TrustedProxies = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		BaseDir:  baseDir,
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:   getEnv("DB_DRIVER", "sqlite"),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "compare.db")),
	}

	valkeyCfg := ValkeyConfig{
		Enabled:        getEnvBool("VALKEY_ENABLED", false),
		Address:        getEnv("VALKEY_ADDRESS", "localhost:6379"),
		Password:       getEnv("VALKEY_PASSWORD", ""),
		DB:             getEnvInt("VALKEY_DB", 0),
		ChannelPrefix:  getEnv("VALKEY_KEY_PREFIX", "azcompare:"),
		ConnectTimeout: getEnvDuration("VALKEY_CONNECT_TIMEOUT", 5*time.Second),
	}

	providerCfg := ProviderConfig{
		Mode:           strings.ToLower(getEnv("PROVIDER_MODE", ProviderModeHTTP)),
		BaseURL:        getEnv("PROVIDER_BASE_URL", "http://localhost:8000/api"),
		APIKey:         getEnv("PROVIDER_API_KEY", ""),
		Timeout:        getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second),
		MaxRetries:     getEnvInt("PROVIDER_MAX_RETRIES", 3),
		BackoffInitial: getEnvDuration("PROVIDER_BACKOFF_INITIAL", 300*time.Millisecond),
		BackoffMax:     getEnvDuration("PROVIDER_BACKOFF_MAX", 3*time.Second),
	}

	cacheCfg := CacheConfig{
		VendorTTL:          getEnvDuration("CACHE_VENDOR_TTL", 10*time.Minute),
		VendorCapacity:     getEnvInt("CACHE_VENDOR_CAPACITY", 500),
		ListTTL:            getEnvDuration("CACHE_LIST_TTL", 5*time.Minute),
		StatsTTL:           getEnvDuration("CACHE_STATS_TTL", 5*time.Minute),
		ProductsTTL:        getEnvDuration("CACHE_PRODUCTS_TTL", 5*time.Minute),
		ProductsCapacity:   getEnvInt("CACHE_PRODUCTS_CAPACITY", 200),
		ComparisonTTL:      getEnvDuration("CACHE_COMPARISON_TTL", 5*time.Minute),
		ComparisonCapacity: getEnvInt("CACHE_COMPARISON_CAPACITY", 100),
		RatingTTL:          getEnvDuration("CACHE_RATING_TTL", 30*time.Minute),
		RatingCapacity:     getEnvInt("CACHE_RATING_CAPACITY", 2000),
		SearchTTL:          getEnvDuration("CACHE_SEARCH_TTL", 2*time.Minute),
		SearchCapacity:     getEnvInt("CACHE_SEARCH_CAPACITY", 50),
		CleanupInterval:    getEnvDuration("CACHE_CLEANUP_INTERVAL", time.Minute),
	}

	reconcileCfg := ReconcileConfig{
		ChunkSize:        getEnvInt("RECONCILE_CHUNK_SIZE", 20),
		RatingCap:        getEnvInt("RECONCILE_RATING_CAP", 100),
		HighRating:       getEnvFloat("RECONCILE_HIGH_RATING", 4.5),
		Debounce:         getEnvDuration("RECONCILE_DEBOUNCE", 300*time.Millisecond),
		PollInterval:     getEnvDuration("RECONCILE_POLL_INTERVAL", 250*time.Millisecond),
		LocationThrottle: getEnvDuration("RECONCILE_LOCATION_THROTTLE", time.Second),
		SettleDelay:      getEnvDuration("RECONCILE_SETTLE_DELAY", 500*time.Millisecond),
		QueueSize:        getEnvInt("RECONCILE_QUEUE_SIZE", 256),
		ObserveRoot:      getEnv("RECONCILE_OBSERVE_ROOT", "main"),
		EventBuffer:      getEnvInt("RECONCILE_EVENT_BUFFER", 200),
		EventTTL:         getEnvDuration("RECONCILE_EVENT_TTL", 0),
	}

	searchCfg := SearchConfig{
		MinScore:   getEnvFloat("SEARCH_MIN_SCORE", 10),
		MaxResults: getEnvInt("SEARCH_MAX_RESULTS", 200),
		PageSize:   getEnvInt("SEARCH_PAGE_SIZE", 20),
		WindowTTL:  getEnvDuration("SEARCH_WINDOW_TTL", 30*time.Minute),
		MaxWindows: getEnvInt("SEARCH_MAX_WINDOWS", 500),
	}

	cfg := &Config{
		App:       appCfg,
		Paths:     pathsCfg,
		Database:  dbCfg,
		Valkey:    valkeyCfg,
		Provider:  providerCfg,
		Cache:     cacheCfg,
		Reconcile: reconcileCfg,
		Search:    searchCfg,
	}

	Global = cfg
	return cfg, nil
}
