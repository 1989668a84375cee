package container

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spindb/spindb/internal/engine"
)

func createTestSQLiteContainer(t *testing.T, m *Manager, name string) *engine.ContainerConfig {
	t.Helper()
	d, _ := engine.DefaultsFor(engine.SQLite)
	preinstallClient(t, m.Root, "sqlite", d.DefaultVersion, "sqlite3")
	path := filepath.Join(t.TempDir(), name+".sqlite")
	cfg, err := m.Create(context.Background(), CreateSpec{Name: name, Engine: engine.SQLite, Path: path})
	require.NoError(t, err)
	return cfg
}

func TestCloneCopiesDataFileToNewPath(t *testing.T) {
	m := newTestManager(t)
	src := createTestSQLiteContainer(t, m, "source")
	require.NoError(t, os.WriteFile(src.DataPath, []byte("hello"), 0o644))

	dstPath := filepath.Join(t.TempDir(), "clone.sqlite")
	dst, err := m.Clone(context.Background(), engine.SQLite, "source", "clone", dstPath)
	require.NoError(t, err)
	assert.Equal(t, dstPath, dst.DataPath)

	data, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCloneRequiresDestinationPathForFileBasedEngine(t *testing.T) {
	m := newTestManager(t)
	createTestSQLiteContainer(t, m, "source")

	_, err := m.Clone(context.Background(), engine.SQLite, "source", "clone", "")
	require.Error(t, err)
}

func TestDeleteRemovesContainerButKeepsFileBasedDataFile(t *testing.T) {
	m := newTestManager(t)
	cfg := createTestSQLiteContainer(t, m, "notes")

	require.NoError(t, m.Delete(context.Background(), engine.SQLite, "notes", DeleteOptions{}))
	assert.False(t, Exists(m.Root, engine.SQLite, "notes"))

	_, err := os.Stat(cfg.DataPath)
	assert.NoError(t, err, "the underlying data file should survive container deletion")
}

func TestRenameMovesContainerDirectory(t *testing.T) {
	m := newTestManager(t)
	createTestSQLiteContainer(t, m, "old")

	cfg, err := m.Rename(context.Background(), engine.SQLite, "old", "new")
	require.NoError(t, err)
	assert.Equal(t, "new", cfg.Name)
	assert.False(t, Exists(m.Root, engine.SQLite, "old"))
	assert.True(t, Exists(m.Root, engine.SQLite, "new"))
}
