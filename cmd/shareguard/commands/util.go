package commands

import (
	"fmt"
	"strings"

	"github.com/shareguard/shareguard/internal/logger"
	"github.com/shareguard/shareguard/pkg/config"
	"github.com/shareguard/shareguard/pkg/directory"
	"github.com/shareguard/shareguard/pkg/groups"
	"github.com/shareguard/shareguard/pkg/principal"
	"github.com/shareguard/shareguard/pkg/scanner"
)

// loadConfig loads configuration and applies the --log-level override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(logLevel)
	}
	return cfg, nil
}

// initLogger initializes the structured logger from configuration.
func initLogger(cfg *config.Config) error {
	err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// buildDirectory constructs the account directory backend.
func buildDirectory(cfg *config.Config) (directory.Directory, error) {
	switch cfg.Directory.Type {
	case "ldap":
		return directory.NewLDAP(cfg.Directory.LDAP)
	default:
		if cfg.Directory.StaticPath != "" {
			return directory.LoadStatic(cfg.Directory.StaticPath)
		}
		return directory.NewStatic(), nil
	}
}

// buildScanner wires source, resolver, and tracer into a scanner.
func buildScanner(cfg *config.Config) (*scanner.Scanner, error) {
	dir, err := buildDirectory(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build directory backend: %w", err)
	}

	var src scanner.Source
	if cfg.Scanner.SourcePath != "" {
		src, err = scanner.LoadStatic(cfg.Scanner.SourcePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load scan source: %w", err)
		}
	} else {
		src = scanner.NewStatic()
	}

	resolver := principal.NewResolver(dir)
	tracer := groups.NewTracer(dir, resolver)
	sc := scanner.New(src, resolver, tracer, cfg.Scanner.ExcludedPaths)
	sc.SetBatchSize(cfg.Scanner.BatchSize)
	return sc, nil
}

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.GetDefaultConfigPath()
}
