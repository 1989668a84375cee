package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/engine"
	"github.com/spindb/spindb/internal/filedb"
	"github.com/spindb/spindb/internal/platform"
)

// preinstallClient fabricates an already-installed binary directory so
// Create's EnsureInstalled check short-circuits without touching the
// network, the same "installed" shape binman.Download itself produces.
func preinstallClient(t *testing.T, root, eng, version, clientName string) {
	t.Helper()
	plat, arch := platform.Detect()
	binDir := platform.BinaryDir(root, eng, version, plat, arch)
	binSubdir := platform.BinarySubdir(binDir)
	require.NoError(t, os.MkdirAll(binSubdir, 0o755))
	path := filepath.Join(binSubdir, clientName+platform.ExecutableExtension())
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(platform.Containers(root), 0o755))
	return New(root, nil)
}

func TestCreateRegistersFileBasedSQLiteContainer(t *testing.T) {
	m := newTestManager(t)
	d, _ := engine.DefaultsFor(engine.SQLite)
	preinstallClient(t, m.Root, "sqlite", d.DefaultVersion, "sqlite3")

	dbPath := filepath.Join(t.TempDir(), "notes.sqlite")
	cfg, err := m.Create(context.Background(), CreateSpec{
		Name:   "notes",
		Engine: engine.SQLite,
		Path:   dbPath,
	})
	require.NoError(t, err)
	assert.Equal(t, "notes", cfg.Name)
	assert.Equal(t, dbPath, cfg.DataPath)

	_, err = os.Stat(dbPath)
	require.NoError(t, err)

	reg, err := filedb.Load(m.Root)
	require.NoError(t, err)
	path, ok := reg.Lookup("notes")
	require.True(t, ok)
	assert.Equal(t, dbPath, path)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	m := newTestManager(t)
	d, _ := engine.DefaultsFor(engine.SQLite)
	preinstallClient(t, m.Root, "sqlite", d.DefaultVersion, "sqlite3")

	dir := t.TempDir()
	spec := CreateSpec{Name: "notes", Engine: engine.SQLite, Path: filepath.Join(dir, "a.sqlite")}
	_, err := m.Create(context.Background(), spec)
	require.NoError(t, err)

	spec.Path = filepath.Join(dir, "b.sqlite")
	_, err = m.Create(context.Background(), spec)
	require.Error(t, err)
	code, ok := apperrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeContainerAlreadyExists, code)
}

func TestCreateRequiresPathForFileBasedEngine(t *testing.T) {
	m := newTestManager(t)
	d, _ := engine.DefaultsFor(engine.SQLite)
	preinstallClient(t, m.Root, "sqlite", d.DefaultVersion, "sqlite3")

	_, err := m.Create(context.Background(), CreateSpec{Name: "notes", Engine: engine.SQLite})
	require.Error(t, err)
}
