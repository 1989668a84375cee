// Package config resolves SpinDB's root directory and loads/saves the
// user-level config.json. Root resolution is adapted
// from the prior implementation's pkg/config.AppConfig, which resolves its own config
// directory via github.com/OpenPeeDeeP/xdg and falls back to a legacy
// location if one is found; SpinDB uses a flat ~/.spindb root instead of an
// XDG directory and has no legacy location to migrate from, so neither half
// of the prior implementation's logic is kept.
package config

import (
	"os"
	"path/filepath"
)

// AppConfig is the process-wide, immutable-after-construction configuration:
// the resolved root directory plus build metadata threaded through from the
// CLI entrypoint.
type AppConfig struct {
	Root        string
	Version     string
	Commit      string
	BuildDate   string
	Debug       bool
	UserConfig  *UserConfig
}

// NewAppConfig resolves the SpinDB root, loads (or creates) the user config
// file, and returns the assembled AppConfig.
func NewAppConfig(version, commit, buildDate string, debug bool) (*AppConfig, error) {
	root, err := findOrCreateRoot()
	if err != nil {
		return nil, err
	}

	userConfig, err := loadUserConfigWithDefaults(root)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		Root:       root,
		Version:    version,
		Commit:     commit,
		BuildDate:  buildDate,
		Debug:      debug || os.Getenv("DEBUG") == "TRUE",
		UserConfig: userConfig,
	}, nil
}

// resolveRoot returns ~/.spindb, honoring $SPINDB_ROOT as an override the
// same way the prior implementation honors $CONFIG_DIR, and otherwise deriving the home
// directory the way xdg.New does (HOME / USERPROFILE).
func resolveRoot() string {
	if override := os.Getenv("SPINDB_ROOT"); override != "" {
		return override
	}
	// SpinDB wants a single flat root (~/.spindb) rather than a
	// platform-specific XDG config dir split across config/cache/data, so the
	// dotfile convention is appended to the home directory directly.
	return filepath.Join(Home(), ".spindb")
}

func findOrCreateRoot() (string, error) {
	root := resolveRoot()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", err
	}
	for _, sub := range []string{"bin", "containers"} {
		if err := os.MkdirAll(filepath.Join(root, sub), 0o755); err != nil {
			return "", err
		}
	}
	return root, nil
}

// Home returns the resolved user home directory (HOME / USERPROFILE).
func Home() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if home := os.Getenv("USERPROFILE"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// Bin returns root/bin.
func (c *AppConfig) Bin() string { return filepath.Join(c.Root, "bin") }

// Containers returns root/containers.
func (c *AppConfig) Containers() string { return filepath.Join(c.Root, "containers") }

// ConfigFilename returns the path of config.json.
func (c *AppConfig) ConfigFilename() string { return filepath.Join(c.Root, "config.json") }
