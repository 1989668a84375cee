package dockerexport

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spindb/spindb/internal/container"
	"github.com/spindb/spindb/internal/engine"
)

type stubEngine struct{ engine.Engine }

func (stubEngine) ID() engine.ID      { return engine.PostgreSQL }
func (stubEngine) Defaults() engine.Defaults {
	d, _ := engine.DefaultsFor(engine.PostgreSQL)
	return d
}
func (stubEngine) Backup(ctx context.Context, cfg *engine.ContainerConfig, outPath string, opts engine.BackupOptions) (engine.BackupResult, error) {
	if err := os.WriteFile(outPath, []byte("dump"), 0o644); err != nil {
		return engine.BackupResult{}, err
	}
	return engine.BackupResult{Path: outPath}, nil
}

func TestExportWritesExpectedFiles(t *testing.T) {
	root := t.TempDir()
	cfg := &engine.ContainerConfig{
		Name: "demo", Engine: engine.PostgreSQL, Version: "16", Port: 5432, Database: "app",
	}
	require.NoError(t, container.SaveConfig(root, cfg))

	m := New(root, engine.Registry{engine.PostgreSQL: stubEngine{}}, nil)
	outDir := filepath.Join(t.TempDir(), "export")

	result, err := m.Export(context.Background(), engine.PostgreSQL, "demo", Options{
		OutputDir:   outDir,
		IncludeData: true,
	})
	require.NoError(t, err)
	assert.Equal(t, outDir, result.OutputDir)
	assert.NotEmpty(t, result.Credentials.Password)

	for _, f := range []string{"Dockerfile", "docker-compose.yml", "entrypoint.sh", ".env", ".dockerignore", "README.md", "tls/tls.crt", "tls/tls.key"} {
		_, err := os.Stat(filepath.Join(outDir, f))
		assert.NoError(t, err, "expected %s to exist", f)
	}
}

func TestExportRefusesNonEmptyOutputDir(t *testing.T) {
	root := t.TempDir()
	cfg := &engine.ContainerConfig{Name: "demo", Engine: engine.PostgreSQL, Version: "16", Port: 5432}
	require.NoError(t, container.SaveConfig(root, cfg))

	m := New(root, engine.Registry{engine.PostgreSQL: stubEngine{}}, nil)
	outDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outDir, "existing.txt"), []byte("x"), 0o644))

	_, err := m.Export(context.Background(), engine.PostgreSQL, "demo", Options{OutputDir: outDir})
	require.Error(t, err)
}

func TestExportRefusesFileBasedEngine(t *testing.T) {
	root := t.TempDir()
	m := New(root, engine.Registry{}, nil)

	_, err := m.Export(context.Background(), engine.SQLite, "notes", Options{OutputDir: t.TempDir()})
	require.Error(t, err)
}
