// Package app wires every manager into a single process-wide App, mirroring
// the prior implementation's pkg/app.App: one dependency-ordered constructor building
// config, logger, and every subsystem once, plus a Close for anything that
// needs to flush or release a resource before the process exits.
package app

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/spindb/spindb/internal/binregistry"
	"github.com/spindb/spindb/internal/config"
	"github.com/spindb/spindb/internal/container"
	"github.com/spindb/spindb/internal/dockerexport"
	"github.com/spindb/spindb/internal/doctor"
	"github.com/spindb/spindb/internal/pull"
	"github.com/spindb/spindb/internal/spinlog"
)

// App holds every manager the CLI layer dispatches to, constructed once per
// invocation in dependency order: config and logger first, then the
// Container Manager (which owns the engine registry and binary manager
// every other manager borrows), then the managers built on top of it.
type App struct {
	closers []io.Closer

	Config     *config.AppConfig
	Log        *logrus.Entry
	Containers *container.Manager
	Pull       *pull.Manager
	Export     *dockerexport.Manager
	Doctor     *doctor.Manager
}

// New bootstraps the full App for one process invocation.
func New(version, commit, buildDate string, debug bool) (*App, error) {
	cfg, err := config.NewAppConfig(version, commit, buildDate, debug)
	if err != nil {
		return nil, err
	}

	log := spinlog.New(spinlog.Options{Root: cfg.Root, Debug: cfg.Debug, Version: version})

	containers := container.New(cfg.Root, log)

	a := &App{
		Config:     cfg,
		Log:        log,
		Containers: containers,
		Pull:       pull.New(cfg.Root, containers.Engines, log),
		Export:     dockerexport.New(cfg.Root, containers.Engines, log),
		Doctor:     doctor.New(cfg, containers.Engines, containers.Binaries, containers.Registry, log),
	}
	return a, nil
}

// RegistryClient exposes the shared binregistry.Client every manager above
// was built with, for callers that talk to the registry directly rather than
// through a manager.
func (a *App) RegistryClient() *binregistry.Client {
	return a.Containers.Registry
}

// Close releases anything New acquired. Today that's nothing beyond the log
// file, which logrus leaves open for the process lifetime by design, but the
// hook stays so a future resource (a DB connection pool, a lock file) has
// somewhere to register itself.
func (a *App) Close() error {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return nil
}
