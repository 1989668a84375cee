package container

import (
	"context"
	"os"
	"sort"

	"github.com/samber/lo"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/binman"
	"github.com/spindb/spindb/internal/binregistry"
	"github.com/spindb/spindb/internal/engine"
)

// Logger is the narrow logging contract the Manager needs; *logrus.Entry
// satisfies it directly.
type Logger interface {
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Manager owns the on-disk registry of ContainerConfigs and every
// multi-step lifecycle operation built on top of it.
type Manager struct {
	Root     string
	Engines  engine.Registry
	Binaries *binman.Manager
	Registry *binregistry.Client
	Log      Logger

	// catalog caches the registry's fetch result for the lifetime of this
	// Manager, so a run that installs several binaries only fetches it once.
	catalog *binregistry.Catalog
}

// New wires a Manager from its collaborators.
func New(root string, log Logger) *Manager {
	registryClient := binregistry.New()
	return &Manager{
		Root:     root,
		Engines:  engine.NewRegistry(root),
		Binaries: binman.New(root, registryClient),
		Registry: registryClient,
		Log:      log,
	}
}

func (m *Manager) engineFor(id engine.ID) (engine.Engine, error) {
	e, ok := m.Engines.Get(id)
	if !ok {
		return nil, apperrors.New(apperrors.CodeContainerCreateFailed, apperrors.SeverityError,
			"unsupported engine "+string(id))
	}
	return e, nil
}

// portsInUse scans every persisted ContainerConfig for this engine and
// returns the set of ports already claimed, so AllocatePort doesn't hand
// out a port another container already believes is its own (even if that
// container happens to be stopped right now).
func (m *Manager) portsInUse(eng engine.ID) (map[int]bool, error) {
	cfgs, err := ListConfigs(m.Root)
	if err != nil {
		return nil, err
	}
	claimed := lo.FilterMap(cfgs, func(cfg *engine.ContainerConfig, _ int) (int, bool) {
		return cfg.Port, cfg.Engine == eng && cfg.Port > 0
	})
	return lo.SliceToMap(claimed, func(port int) (int, bool) { return port, true }), nil
}

// List enumerates every container, recomputing status by probing: liveness
// for server-based engines, file existence for file-based ones.
func (m *Manager) List(ctx context.Context) ([]*engine.ContainerConfig, error) {
	cfgs, err := ListConfigs(m.Root)
	if err != nil {
		return nil, err
	}
	for _, cfg := range cfgs {
		status, err := m.probeStatus(ctx, cfg)
		if err == nil {
			cfg.Status = status
		}
	}
	sort.Slice(cfgs, func(i, j int) bool {
		if cfgs[i].Engine != cfgs[j].Engine {
			return cfgs[i].Engine < cfgs[j].Engine
		}
		return cfgs[i].Name < cfgs[j].Name
	})
	return cfgs, nil
}

func (m *Manager) probeStatus(ctx context.Context, cfg *engine.ContainerConfig) (engine.Status, error) {
	if engine.IsFileBased(cfg.Engine) {
		return statusForPath(cfg.DataPath), nil
	}
	e, err := m.engineFor(cfg.Engine)
	if err != nil {
		return cfg.Status, err
	}
	return e.Status(ctx, cfg)
}

func statusForPath(path string) engine.Status {
	if _, err := os.Stat(path); err != nil {
		return engine.StatusMissing
	}
	return engine.StatusAvailable
}
