package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spindb/spindb/internal/binman"
	"github.com/spindb/spindb/internal/binregistry"
	"github.com/spindb/spindb/internal/config"
	"github.com/spindb/spindb/internal/container"
	"github.com/spindb/spindb/internal/engine"
	"github.com/spindb/spindb/internal/platform"
)

type testLogger struct{}

func (testLogger) Debugf(format string, args ...interface{}) {}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(platform.Containers(root), 0o755))
	require.NoError(t, os.MkdirAll(platform.Bin(root), 0o755))

	appCfg := &config.AppConfig{
		Root: root,
		UserConfig: &config.UserConfig{
			Preferences: config.Preferences{DefaultRegistryURL: "https://registry.spindb.dev/catalog.json"},
		},
	}
	return New(appCfg, engine.Registry{}, binman.New(root, binregistry.New()), binregistry.New(), testLogger{})
}

func TestCheckConfigurationOK(t *testing.T) {
	m := newTestManager(t)
	res := m.checkConfiguration()
	assert.Equal(t, StatusOK, res.Status)
}

func TestCheckConfigurationFailsOnMissingRoot(t *testing.T) {
	m := newTestManager(t)
	m.Root = filepath.Join(m.Root, "does-not-exist")
	res := m.checkConfiguration()
	assert.Equal(t, StatusError, res.Status)
}

func TestCheckPreferencesRejectsInvalidURL(t *testing.T) {
	m := newTestManager(t)
	m.AppCfg.UserConfig.Preferences.DefaultRegistryURL = "not a url"
	res := m.checkPreferences()
	assert.Equal(t, StatusError, res.Status)
}

func TestCheckPreferencesWarnsWhenEmpty(t *testing.T) {
	m := newTestManager(t)
	m.AppCfg.UserConfig.Preferences.DefaultRegistryURL = ""
	res := m.checkPreferences()
	assert.Equal(t, StatusWarning, res.Status)
}

func TestCheckOrphanedContainerDirsFindsDirWithoutConfig(t *testing.T) {
	m := newTestManager(t)
	orphanDir := filepath.Join(platform.Containers(m.Root), "postgresql", "broken")
	require.NoError(t, os.MkdirAll(orphanDir, 0o755))

	res := m.checkOrphanedContainerDirs()
	require.Equal(t, StatusWarning, res.Status)
	require.NotNil(t, res.Action)

	require.NoError(t, res.Action.Run(context.Background()))
	_, err := os.Stat(orphanDir)
	assert.True(t, os.IsNotExist(err))
}

func TestCheckOrphanedContainerDirsIgnoresValidContainers(t *testing.T) {
	m := newTestManager(t)
	cfg := &engine.ContainerConfig{Name: "demo", Engine: engine.SQLite, Version: "3.46"}
	require.NoError(t, container.SaveConfig(m.Root, cfg))

	res := m.checkOrphanedContainerDirs()
	assert.Equal(t, StatusOK, res.Status)
}

func TestRunExecutesEveryCheck(t *testing.T) {
	m := newTestManager(t)
	results := m.Run(context.Background())
	assert.Len(t, results, 8)
}
