package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shareguard/shareguard/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample ShareGuard configuration file with defaults.

By default, the configuration file is created at
$XDG_CONFIG_HOME/shareguard/config.yaml. Use --config to specify a custom
path.

Examples:
  # Initialize with default location
  shareguard init

  # Initialize with custom path
  shareguard init --config /etc/shareguard/config.yaml

  # Force overwrite existing config
  shareguard init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := GetConfigFile()
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	if err := config.Save(config.Default(), configPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit the configuration file to customize your setup")
	fmt.Println("  2. Start the server with: shareguard start")
	fmt.Printf("  3. Or specify custom config: shareguard start --config %s\n", configPath)
	fmt.Println("\nSecurity note:")
	fmt.Println("  Authentication is disabled by default. For production, enable it and")
	fmt.Println("  provide a secret through the environment:")
	fmt.Println("    export SHAREGUARD_API_AUTH_ENABLED=true")
	fmt.Println("    export SHAREGUARD_API_JWT_SECRET=$(openssl rand -hex 32)")

	return nil
}
