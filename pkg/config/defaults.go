package config

import (
	"strings"
	"time"

	"github.com/shareguard/shareguard/pkg/health"
	"github.com/shareguard/shareguard/pkg/monitor"
	"github.com/shareguard/shareguard/pkg/notify"
	"github.com/shareguard/shareguard/pkg/scanner"
	"github.com/shareguard/shareguard/pkg/store"
)

// Default returns a complete configuration with every field at its
// default.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero values with defaults. Explicit values are
// preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	cfg.Database.ApplyDefaults()
	applyAPIDefaults(&cfg.API)
	applyMetricsDefaults(&cfg.Metrics)
	applyScannerDefaults(&cfg.Scanner)
	applyCacheDefaults(&cfg.Cache)
	applyMonitorDefaults(&cfg.Monitor)
	applyHealthDefaults(&cfg.Health)
	applyNotifyDefaults(&cfg.Notify)
	applyDirectoryDefaults(&cfg.Directory)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyAPIDefaults(cfg *APIConfig) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8420
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Metrics share the API listener unless a port is set; nothing to
	// default beyond that.
	_ = cfg
}

func applyScannerDefaults(cfg *ScannerConfig) {
	if cfg.MaxDepth == 0 {
		cfg.MaxDepth = scanner.DefaultMaxDepth
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = scanner.DefaultBatchSize
	}
	if len(cfg.ExcludedPaths) == 0 {
		cfg.ExcludedPaths = append([]string{}, scanner.DefaultExcludedPrefixes...)
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.TTL <= 0 {
		cfg.TTL = store.DefaultTTL
	}
	if cfg.ReapRetention <= 0 {
		cfg.ReapRetention = store.DefaultRetention
	}
}

func applyMonitorDefaults(cfg *MonitorConfig) {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = monitor.DefaultCheckInterval
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = monitor.DefaultBackoff
	}
}

func applyHealthDefaults(cfg *HealthConfig) {
	if cfg.MaxACECount == 0 {
		cfg.MaxACECount = health.DefaultMaxACECount
	}
	if cfg.MaxDirectUserACEs == 0 {
		cfg.MaxDirectUserACEs = health.DefaultMaxDirectUserACEs
	}
	if len(cfg.CriticalGroups) == 0 {
		cfg.CriticalGroups = append([]string{}, health.DefaultCriticalGroups...)
	}
}

func applyNotifyDefaults(cfg *NotifyConfig) {
	if cfg.QueueSize == 0 {
		cfg.QueueSize = notify.DefaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = notify.DefaultSendTimeout
	}
}

func applyDirectoryDefaults(cfg *DirectoryConfig) {
	if cfg.Type == "" {
		cfg.Type = "static"
	}
}

// defaultKeys enumerates every configuration key with its default value
// so viper can apply environment overrides to keys a config file never
// mentions.
func defaultKeys() map[string]any {
	return map[string]any{
		"logging.level":               "INFO",
		"logging.format":              "text",
		"logging.output":              "stdout",
		"shutdown_timeout":            "30s",
		"database.type":               string(store.DatabaseTypeSQLite),
		"api.host":                    "0.0.0.0",
		"api.port":                    8420,
		"api.auth_enabled":            false,
		"api.token_ttl":               "24h",
		"api.request_timeout":         "60s",
		"metrics.enabled":             false,
		"scanner.max_depth":           scanner.DefaultMaxDepth,
		"scanner.batch_size":          1000,
		"cache.ttl":                   "24h",
		"cache.reap_retention":        "48h",
		"monitor.check_interval":      "60s",
		"monitor.backoff":             "60s",
		"health.max_ace_count":        health.DefaultMaxACECount,
		"health.max_direct_user_aces": health.DefaultMaxDirectUserACEs,
		"notify.queue_size":           notify.DefaultQueueSize,
		"notify.send_timeout":         "5s",
		"directory.type":              "static",
	}
}
