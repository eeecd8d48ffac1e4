// Package config loads and validates the ShareGuard configuration.
//
// Configuration sources, highest precedence first: environment variables
// (SHAREGUARD_*), the configuration file, defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/shareguard/shareguard/pkg/directory"
	"github.com/shareguard/shareguard/pkg/store"
)

// Config is the full ShareGuard server configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Database configures snapshot, change, and issue persistence.
	Database store.Config `mapstructure:"database" yaml:"database"`

	// API configures the REST and WebSocket server.
	API APIConfig `mapstructure:"api" yaml:"api"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Scanner tunes ACL scans.
	Scanner ScannerConfig `mapstructure:"scanner" yaml:"scanner"`

	// Cache tunes snapshot store validity and retention.
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Monitor tunes the watch loop.
	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`

	// Health tunes the analyzer detectors.
	Health HealthConfig `mapstructure:"health" yaml:"health"`

	// Notify tunes the notification service.
	Notify NotifyConfig `mapstructure:"notify" yaml:"notify"`

	// Directory selects the account directory backend.
	Directory DirectoryConfig `mapstructure:"directory" yaml:"directory"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// APIConfig configures the HTTP server.
type APIConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the listen port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535" yaml:"port"`

	// JWTSecret signs API tokens. Required when auth is enabled.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret,omitempty"`

	// AuthEnabled toggles bearer-token authentication.
	AuthEnabled bool `mapstructure:"auth_enabled" yaml:"auth_enabled"`

	// TokenTTL bounds issued token lifetime.
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	// RequestTimeout bounds request handling.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled toggles collection and the /metrics route.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the metrics listen port; 0 serves on the API port.
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`
}

// ScannerConfig tunes ACL scans.
type ScannerConfig struct {
	// MaxDepth caps subfolder recursion.
	MaxDepth int `mapstructure:"max_depth" validate:"gte=0" yaml:"max_depth"`

	// BatchSize is the cursor size for batched path listings.
	BatchSize int `mapstructure:"batch_size" validate:"gte=0" yaml:"batch_size"`

	// ExcludedPaths are path prefixes never scanned.
	ExcludedPaths []string `mapstructure:"excluded_paths" yaml:"excluded_paths"`

	// SourcePath points at a YAML folder fixture. When set, scans read
	// descriptors from the fixture instead of the platform security API.
	SourcePath string `mapstructure:"source_path" yaml:"source_path,omitempty"`
}

// CacheConfig tunes the snapshot store.
type CacheConfig struct {
	// TTL is the validity window for stored snapshots.
	TTL time.Duration `mapstructure:"ttl" validate:"gt=0" yaml:"ttl"`

	// ReapRetention is how long entries survive without refresh.
	ReapRetention time.Duration `mapstructure:"reap_retention" validate:"gt=0" yaml:"reap_retention"`
}

// MonitorConfig tunes the watch loop.
type MonitorConfig struct {
	// CheckInterval is the sleep between monitor cycles.
	CheckInterval time.Duration `mapstructure:"check_interval" validate:"gt=0" yaml:"check_interval"`

	// Backoff is the sleep after a failed cycle.
	Backoff time.Duration `mapstructure:"backoff" validate:"gt=0" yaml:"backoff"`

	// Paths are watched from startup.
	Paths []string `mapstructure:"paths" yaml:"paths,omitempty"`
}

// HealthConfig tunes the analyzer.
type HealthConfig struct {
	// MaxACECount triggers the excessive-ACE detector.
	MaxACECount int `mapstructure:"max_ace_count" validate:"gt=0" yaml:"max_ace_count"`

	// MaxDirectUserACEs is the direct-user severity pivot.
	MaxDirectUserACEs int `mapstructure:"max_direct_user_aces" validate:"gt=0" yaml:"max_direct_user_aces"`

	// CriticalGroups are substrings marking over-permissive trustees.
	CriticalGroups []string `mapstructure:"critical_groups" yaml:"critical_groups"`
}

// NotifyConfig tunes the notification service.
type NotifyConfig struct {
	// QueueSize bounds the delivery queue.
	QueueSize int `mapstructure:"queue_size" validate:"gt=0" yaml:"queue_size"`

	// SendTimeout is the per-subscription send deadline.
	SendTimeout time.Duration `mapstructure:"send_timeout" validate:"gt=0" yaml:"send_timeout"`
}

// DirectoryConfig selects the account directory backend.
type DirectoryConfig struct {
	// Type is static or ldap.
	Type string `mapstructure:"type" validate:"required,oneof=static ldap" yaml:"type"`

	// StaticPath points at a YAML account fixture for the static backend.
	StaticPath string `mapstructure:"static_path" yaml:"static_path,omitempty"`

	// LDAP configures the ldap backend.
	LDAP directory.LDAPConfig `mapstructure:"ldap" yaml:"ldap,omitempty"`
}

// Load loads configuration from file, environment, and defaults. An
// empty path uses the default location and falls back to pure defaults
// when no file exists there.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MustLoad is Load with a friendlier error when an explicit config file
// is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Create it first:\n  shareguard config init --config %s",
				configPath, configPath)
		}
	}
	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML. Restrictive permissions since
// the file may hold the JWT secret and LDAP credentials.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	// SHAREGUARD_MONITOR_CHECK_INTERVAL=30s and friends.
	v.SetEnvPrefix("SHAREGUARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Registering defaults teaches viper the full key set, which is what
	// makes AutomaticEnv overrides work for keys absent from the file.
	for key, value := range defaultKeys() {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook lets config files write durations as "30s" or "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			// YAML often deserializes numbers as float64.
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns XDG_CONFIG_HOME/shareguard, falling back to
// ~/.config/shareguard.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shareguard")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "shareguard")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
