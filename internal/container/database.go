package container

import (
	"context"
	"fmt"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/engine"
)

// AddDatabase creates a new logical database inside an existing multi-DB
// container and records it in the persisted config.
func (m *Manager) AddDatabase(ctx context.Context, eng engine.ID, name, db string) (*engine.ContainerConfig, error) {
	cfg, e, err := m.load(eng, name)
	if err != nil {
		return nil, err
	}
	defaults := e.Defaults()
	if !defaults.SupportsMultipleDatabases {
		return nil, apperrors.New(apperrors.CodeDatabaseCreateFailed, apperrors.SeverityError,
			fmt.Sprintf("engine %s does not support multiple databases", eng))
	}
	for _, existing := range cfg.Databases {
		if existing == db {
			return cfg, nil
		}
	}

	if err := e.CreateDatabase(ctx, cfg, db); err != nil {
		return nil, err
	}
	cfg.Databases = append(cfg.Databases, db)
	if err := SaveConfig(m.Root, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RemoveDatabase drops a logical database from a multi-DB container and
// removes it from the persisted config.
func (m *Manager) RemoveDatabase(ctx context.Context, eng engine.ID, name, db string) (*engine.ContainerConfig, error) {
	cfg, e, err := m.load(eng, name)
	if err != nil {
		return nil, err
	}
	defaults := e.Defaults()
	if !defaults.SupportsMultipleDatabases {
		return nil, apperrors.New(apperrors.CodeDatabaseCreateFailed, apperrors.SeverityError,
			fmt.Sprintf("engine %s does not support multiple databases", eng))
	}

	if err := e.DropDatabase(ctx, cfg, db); err != nil {
		return nil, err
	}
	for i, existing := range cfg.Databases {
		if existing == db {
			cfg.Databases = append(cfg.Databases[:i], cfg.Databases[i+1:]...)
			break
		}
	}
	if err := SaveConfig(m.Root, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
