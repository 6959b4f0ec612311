package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// GetAllSettings returns a map of the tunables currently loaded in memory.
func GetAllSettings() map[string]any {
	if Global == nil {
		return map[string]any{}
	}
	return map[string]any{
		"app_debug":              Global.App.Debug,
		"app_version":            Global.App.Version,
		"provider_mode":          Global.Provider.Mode,
		"provider_timeout":       Global.Provider.Timeout.String(),
		"provider_max_retries":   Global.Provider.MaxRetries,
		"valkey_enabled":         Global.Valkey.Enabled,
		"reconcile_chunk_size":   Global.Reconcile.ChunkSize,
		"reconcile_rating_cap":   Global.Reconcile.RatingCap,
		"reconcile_debounce":     Global.Reconcile.Debounce.String(),
		"reconcile_settle_delay": Global.Reconcile.SettleDelay.String(),
		"search_min_score":       Global.Search.MinScore,
		"search_page_size":       Global.Search.PageSize,
		"search_window_ttl":      Global.Search.WindowTTL.String(),
		"cache_cleanup_interval": Global.Cache.CleanupInterval.String(),
	}
}

// Helpers
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		vLower := strings.ToLower(v)
		return vLower == "1" || vLower == "true" || vLower == "yes" || vLower == "on"
	}
	return fallback
}

// getEnvDuration accepts Go durations ("750ms", "2m") or a bare number of milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
