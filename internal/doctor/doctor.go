// Package doctor implements the Doctor component: a battery of independent
// health checks run concurrently via internal/tasks, each producing a
// {name, status, message, details?, action?} result the CLI layer can print
// or act on with --fix.
package doctor

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/spindb/spindb/internal/binman"
	"github.com/spindb/spindb/internal/binregistry"
	"github.com/spindb/spindb/internal/config"
	"github.com/spindb/spindb/internal/engine"
	"github.com/spindb/spindb/internal/tasks"
)

// Status is one of the closed check outcomes.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Action is a suggested remediation a check can attach; `doctor --fix`
// invokes Run on every result whose Status isn't StatusOK.
type Action struct {
	Name        string
	Description string
	Run         func(ctx context.Context) error
}

// CheckResult is one check's outcome.
type CheckResult struct {
	Name    string
	Status  Status
	Message string
	Details map[string]string
	Action  *Action
}

// Logger is the subset of logrus.FieldLogger Doctor needs.
type Logger interface {
	Debugf(format string, args ...interface{})
}

// Manager runs Doctor's checks against one SpinDB root.
type Manager struct {
	Root     string
	AppCfg   *config.AppConfig
	Engines  engine.Registry
	Binaries *binman.Manager
	Registry *binregistry.Client
	Log      Logger
}

// New builds a Manager from the process's already-constructed dependencies,
// the same set internal/app assembles once per invocation.
func New(appCfg *config.AppConfig, registry engine.Registry, binaries *binman.Manager, regClient *binregistry.Client, log Logger) *Manager {
	return &Manager{
		Root:     appCfg.Root,
		AppCfg:   appCfg,
		Engines:  registry,
		Binaries: binaries,
		Registry: regClient,
		Log:      log,
	}
}

// Run executes every check concurrently and returns results in a stable,
// deterministic order (not the order they finish in).
func (m *Manager) Run(ctx context.Context) []CheckResult {
	checks := []func() CheckResult{
		func() CheckResult { return m.checkConfiguration() },
		func() CheckResult { return m.checkCatalogStaleness(ctx) },
		func() CheckResult { return m.checkPreferences() },
		func() CheckResult { return m.checkContainerHealth(ctx) },
		func() CheckResult { return m.checkFiledbOrphans() },
		func() CheckResult { return m.checkBinaryAvailability() },
		func() CheckResult { return m.checkOutdatedVersions(ctx) },
		func() CheckResult { return m.checkOrphanedContainerDirs() },
	}
	return tasks.RunConcurrently(checks)
}

// Fix runs every action attached to a non-ok result. It returns the names of
// actions that failed alongside a single aggregated error (nil if every
// action succeeded) a caller can log or surface without inspecting each
// action individually.
func Fix(ctx context.Context, results []CheckResult) ([]string, error) {
	var failed []string
	var errs *multierror.Error
	for _, r := range results {
		if r.Status == StatusOK || r.Action == nil {
			continue
		}
		if err := r.Action.Run(ctx); err != nil {
			failed = append(failed, r.Action.Name)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", r.Action.Name, err))
		}
	}
	return failed, errs.ErrorOrNil()
}
