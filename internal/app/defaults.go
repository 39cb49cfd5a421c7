package app

import (
	"fmt"
	"os"
	"path/filepath"

	"vfs-go/internal/config"
)

// Environment variables overriding the default locations.
const (
	EnvConfigPath = "VFS_CONFIG_PATH"
	EnvHome       = "VFS_HOME"
)

// Defaults are the default locations of vfs files.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
	DataDir    string
	VaultDir   string
}

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - VFS_CONFIG_PATH: config file location (default: ~/.config/vfs.toml)
//   - VFS_HOME: base directory for vfs data (default: ~/.local/share/vfs)
func GetDefaults() (*Defaults, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		DataDir:    filepath.Join(baseDir, "db"),
		VaultDir:   filepath.Join(baseDir, "vault"),
	}, nil
}

// DefaultConfig returns a config for a single-site installation: a SQLite
// database and a filesystem vault under the base directory.
func (d *Defaults) DefaultConfig(siteRoot string) *config.Config {
	cfg := config.NewConfig(siteRoot, d.BaseDir)
	cfg.LogDir = d.LogDir
	cfg.Database = config.DatabaseConfig{Type: "sqlite", DataDir: d.DataDir}
	cfg.Vaults = []config.VaultConfig{{
		Type:        "filesystem",
		Name:        "local",
		FSVaultRoot: d.VaultDir,
	}}
	return cfg
}

func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "vfs.toml"), nil
}

// getBaseDir falls back to the XDG default ~/.local/share/vfs.
func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "vfs"), nil
}
