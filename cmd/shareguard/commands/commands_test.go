package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shareguard/shareguard/pkg/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	root := rootCmd
	root.SetArgs(args)
	defer root.SetArgs(nil)
	return root.Execute()
}

func TestInitCreatesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	require.NoError(t, runCLI(t, "init", "--config", path))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)

	// Refuses to overwrite without --force.
	err = runCLI(t, "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, runCLI(t, "init", "--config", path, "--force"))
}

func TestScanAgainstFixture(t *testing.T) {
	dir := t.TempDir()

	foldersPath := filepath.Join(dir, "folders.yaml")
	writeFile(t, foldersPath, `folders:
  - path: C:\Shares\Finance
    owner: S-1-5-21-1-2-3-500
    aces:
      - sid: S-1-5-21-1-2-3-1000
        mask: 0x001F01FF
`)

	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, `database:
  type: sqlite
  sqlite:
    path: `+filepath.Join(dir, "shareguard.db")+`
scanner:
  source_path: `+foldersPath+`
`)

	require.NoError(t, runCLI(t, "scan", `C:\Shares\Finance`,
		"--config", configPath, "--output", "json"))

	err := runCLI(t, "scan", `C:\Shares\Missing`, "--config", configPath)
	assert.Error(t, err)
}

func TestHealthAgainstFixture(t *testing.T) {
	dir := t.TempDir()

	foldersPath := filepath.Join(dir, "folders.yaml")
	writeFile(t, foldersPath, `folders:
  - path: C:\Shares\Finance
    owner: S-1-5-21-1-2-3-500
    protected: true
    aces:
      - sid: S-1-5-21-1-2-3-1000
        mask: 0x00120089
`)

	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, `database:
  type: sqlite
  sqlite:
    path: `+filepath.Join(dir, "shareguard.db")+`
scanner:
  source_path: `+foldersPath+`
`)

	require.NoError(t, runCLI(t, "health", `C:\Shares\Finance`,
		"--config", configPath, "--output", "json"))
}
