package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/spindb/spindb/internal/config"
	"github.com/spindb/spindb/internal/container"
	"github.com/spindb/spindb/internal/engine"
	"github.com/spindb/spindb/internal/filedb"
	"github.com/spindb/spindb/internal/platform"
)

// catalogStaleAfter is how old a cached registry catalog can get before
// Doctor flags it instead of letting list/create silently use stale data.
const catalogStaleAfter = 7 * 24 * time.Hour

func (m *Manager) checkConfiguration() CheckResult {
	if info, err := os.Stat(m.Root); err != nil || !info.IsDir() {
		return CheckResult{Name: "configuration", Status: StatusError,
			Message: "SpinDB root directory " + m.Root + " is missing or not a directory"}
	}
	if m.AppCfg == nil || m.AppCfg.UserConfig == nil {
		return CheckResult{Name: "configuration", Status: StatusError,
			Message: "user configuration failed to load"}
	}
	return CheckResult{Name: "configuration", Status: StatusOK, Message: "configuration is valid"}
}

func (m *Manager) checkCatalogStaleness(ctx context.Context) CheckResult {
	cache := m.AppCfg.UserConfig.CatalogCache
	if cache == nil {
		return CheckResult{
			Name: "binary-registry-cache", Status: StatusWarning,
			Message: "no binary registry catalog has been cached yet",
			Action: &Action{
				Name:        "refresh-catalog",
				Description: "fetch and cache the binary registry catalog",
				Run:         m.refreshCatalogCache,
			},
		}
	}
	age := time.Since(cache.FetchedAt)
	if age > catalogStaleAfter {
		return CheckResult{
			Name: "binary-registry-cache", Status: StatusWarning,
			Message: fmt.Sprintf("cached binary registry catalog is %s old", age.Round(time.Hour)),
			Details: map[string]string{"fetchedAt": cache.FetchedAt.Format(time.RFC3339)},
			Action: &Action{
				Name:        "refresh-catalog",
				Description: "re-fetch the binary registry catalog",
				Run:         m.refreshCatalogCache,
			},
		}
	}
	return CheckResult{Name: "binary-registry-cache", Status: StatusOK,
		Message: "cached catalog is fresh"}
}

func (m *Manager) refreshCatalogCache(ctx context.Context) error {
	cat, err := m.Registry.FetchCatalog(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(cat)
	if err != nil {
		return err
	}
	return m.AppCfg.WriteToUserConfig(func(uc *config.UserConfig) error {
		uc.CatalogCache = &config.CatalogCache{FetchedAt: cat.FetchedAt, RawJSON: raw}
		return nil
	})
}

func (m *Manager) checkPreferences() CheckResult {
	raw := m.AppCfg.UserConfig.Preferences.DefaultRegistryURL
	if raw == "" {
		return CheckResult{Name: "preferences", Status: StatusWarning,
			Message: "no default registry URL configured"}
	}
	if _, err := url.ParseRequestURI(raw); err != nil {
		return CheckResult{Name: "preferences", Status: StatusError,
			Message: "default registry URL is not a valid URL: " + raw}
	}
	return CheckResult{Name: "preferences", Status: StatusOK, Message: "preferences look sane"}
}

func (m *Manager) checkContainerHealth(ctx context.Context) CheckResult {
	cfgs, err := container.ListConfigs(m.Root)
	if err != nil {
		return CheckResult{Name: "container-health", Status: StatusError, Message: err.Error()}
	}
	var mismatched []string
	for _, cfg := range cfgs {
		e, ok := m.Engines[cfg.Engine]
		if !ok || engine.IsFileBased(cfg.Engine) {
			continue
		}
		actual, err := e.Status(ctx, cfg)
		if err != nil {
			mismatched = append(mismatched, fmt.Sprintf("%s/%s: status probe failed: %v", cfg.Engine, cfg.Name, err))
			continue
		}
		if actual != cfg.Status {
			mismatched = append(mismatched, fmt.Sprintf("%s/%s: recorded %s, actually %s", cfg.Engine, cfg.Name, cfg.Status, actual))
		}
	}
	if len(mismatched) > 0 {
		return CheckResult{Name: "container-health", Status: StatusWarning,
			Message: fmt.Sprintf("%d container(s) have a stale recorded status", len(mismatched)),
			Details: map[string]string{"containers": strings.Join(mismatched, "; ")},
		}
	}
	return CheckResult{Name: "container-health", Status: StatusOK, Message: "all containers report consistent status"}
}

func (m *Manager) checkFiledbOrphans() CheckResult {
	reg, err := filedb.Load(m.Root)
	if err != nil {
		return CheckResult{Name: "filedb-orphans", Status: StatusError, Message: err.Error()}
	}
	orphans := reg.FindOrphans()
	if len(orphans) == 0 {
		return CheckResult{Name: "filedb-orphans", Status: StatusOK, Message: "no orphaned file-DB registry entries"}
	}
	names := make([]string, len(orphans))
	for i, o := range orphans {
		names[i] = o.Name
	}
	return CheckResult{
		Name: "filedb-orphans", Status: StatusWarning,
		Message: fmt.Sprintf("%d file-DB registry entr(ies) point at missing files", len(orphans)),
		Details: map[string]string{"entries": strings.Join(names, ", ")},
		Action: &Action{
			Name:        "remove-filedb-orphans",
			Description: "remove registry entries whose backing file no longer exists",
			Run: func(ctx context.Context) error {
				reg, err := filedb.Load(m.Root)
				if err != nil {
					return err
				}
				_, err = reg.RemoveOrphans()
				return err
			},
		},
	}
}

func (m *Manager) checkBinaryAvailability() CheckResult {
	cfgs, err := container.ListConfigs(m.Root)
	if err != nil {
		return CheckResult{Name: "binary-availability", Status: StatusError, Message: err.Error()}
	}
	plat, arch := platform.Detect()
	missing := lo.FilterMap(cfgs, func(cfg *engine.ContainerConfig, _ int) (string, bool) {
		d, ok := engine.DefaultsFor(cfg.Engine)
		if !ok {
			return "", false
		}
		binName := d.ServerBinaryName
		if binName == "" && len(d.ClientToolNames) > 0 {
			binName = d.ClientToolNames[0]
		}
		if binName == "" {
			return "", false
		}
		if m.Binaries.IsInstalled(string(cfg.Engine), cfg.Version, plat, arch, binName) {
			return "", false
		}
		return fmt.Sprintf("%s %s (%s)", cfg.Engine, cfg.Version, cfg.Name), true
	})
	if len(missing) > 0 {
		return CheckResult{Name: "binary-availability", Status: StatusError,
			Message: fmt.Sprintf("%d container(s) reference a missing binary", len(missing)),
			Details: map[string]string{"containers": strings.Join(missing, "; ")},
		}
	}
	return CheckResult{Name: "binary-availability", Status: StatusOK, Message: "every container's binary is installed"}
}

func (m *Manager) checkOutdatedVersions(ctx context.Context) CheckResult {
	cfgs, err := container.ListConfigs(m.Root)
	if err != nil {
		return CheckResult{Name: "outdated-versions", Status: StatusError, Message: err.Error()}
	}
	outdated := lo.FilterMap(cfgs, func(cfg *engine.ContainerConfig, _ int) (string, bool) {
		d, ok := engine.DefaultsFor(cfg.Engine)
		if !ok || d.LatestMajor == "" || strings.HasPrefix(cfg.Version, d.LatestMajor) {
			return "", false
		}
		return fmt.Sprintf("%s/%s: running %s, latest major is %s", cfg.Engine, cfg.Name, cfg.Version, d.LatestMajor), true
	})
	if len(outdated) > 0 {
		return CheckResult{Name: "outdated-versions", Status: StatusWarning,
			Message: fmt.Sprintf("%d container(s) run an older major version", len(outdated)),
			Details: map[string]string{"containers": strings.Join(outdated, "; ")},
		}
	}
	return CheckResult{Name: "outdated-versions", Status: StatusOK, Message: "no outdated version candidates"}
}

// checkOrphanedContainerDirs walks containers/{engine}/{name} directly
// (rather than via container.ListConfigs, which silently skips entries with
// no loadable container.json) to surface partially-created or corrupted
// container directories left behind by an interrupted create or a manual
// rm -rf of just the config file.
func (m *Manager) checkOrphanedContainerDirs() CheckResult {
	root := platform.Containers(m.Root)
	engineDirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Name: "orphaned-directories", Status: StatusOK, Message: "no container directories yet"}
		}
		return CheckResult{Name: "orphaned-directories", Status: StatusError, Message: err.Error()}
	}

	var orphans []string
	for _, ed := range engineDirs {
		if !ed.IsDir() {
			continue
		}
		nameDirs, err := os.ReadDir(filepath.Join(root, ed.Name()))
		if err != nil {
			continue
		}
		for _, nd := range nameDirs {
			if !nd.IsDir() {
				continue
			}
			if _, err := container.LoadConfig(m.Root, engine.ID(ed.Name()), nd.Name()); err != nil {
				orphans = append(orphans, filepath.Join(ed.Name(), nd.Name()))
			}
		}
	}

	if len(orphans) > 0 {
		dirs := orphans
		return CheckResult{
			Name: "orphaned-directories", Status: StatusWarning,
			Message: fmt.Sprintf("%d container director(ies) have no valid container.json", len(dirs)),
			Details: map[string]string{"directories": strings.Join(dirs, ", ")},
			Action: &Action{
				Name:        "remove-orphaned-directories",
				Description: "delete container directories with no valid config",
				Run: func(ctx context.Context) error {
					for _, d := range dirs {
						if err := os.RemoveAll(filepath.Join(root, d)); err != nil {
							return err
						}
					}
					return nil
				},
			},
		}
	}
	return CheckResult{Name: "orphaned-directories", Status: StatusOK, Message: "no orphaned container directories"}
}
