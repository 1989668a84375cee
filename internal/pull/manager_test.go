package pull

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spindb/spindb/internal/container"
	"github.com/spindb/spindb/internal/engine"
)

// fakeEngine is a minimal in-memory stand-in for engine.Engine, tracking
// which logical databases exist and what was dumped/restored, so pull's
// sequencing can be exercised without a real server process.
type fakeEngine struct {
	databases map[string]bool
	failDump  bool
}

func newFakeEngine(initial ...string) *fakeEngine {
	f := &fakeEngine{databases: map[string]bool{}}
	for _, d := range initial {
		f.databases[d] = true
	}
	return f
}

func (f *fakeEngine) ID() engine.ID { return engine.PostgreSQL }
func (f *fakeEngine) Defaults() engine.Defaults {
	d, _ := engine.DefaultsFor(engine.PostgreSQL)
	return d
}
func (f *fakeEngine) Start(ctx context.Context, cfg *engine.ContainerConfig) (engine.StartResult, error) {
	return engine.StartResult{}, nil
}
func (f *fakeEngine) Stop(ctx context.Context, cfg *engine.ContainerConfig) error { return nil }
func (f *fakeEngine) Status(ctx context.Context, cfg *engine.ContainerConfig) (engine.Status, error) {
	return engine.StatusRunning, nil
}
func (f *fakeEngine) Backup(ctx context.Context, cfg *engine.ContainerConfig, outPath string, opts engine.BackupOptions) (engine.BackupResult, error) {
	if !f.databases[opts.Database] {
		return engine.BackupResult{}, assert.AnError
	}
	if err := os.WriteFile(outPath, []byte("dump:"+opts.Database), 0o644); err != nil {
		return engine.BackupResult{}, err
	}
	return engine.BackupResult{Path: outPath}, nil
}
func (f *fakeEngine) Restore(ctx context.Context, cfg *engine.ContainerConfig, inPath string, opts engine.RestoreOptions) error {
	_, err := os.ReadFile(inPath)
	return err
}
func (f *fakeEngine) DumpFromConnectionString(ctx context.Context, connectionURL, outPath string) (engine.BackupResult, error) {
	if f.failDump {
		return engine.BackupResult{}, assert.AnError
	}
	if err := os.WriteFile(outPath, []byte("remote:"+connectionURL), 0o644); err != nil {
		return engine.BackupResult{}, err
	}
	return engine.BackupResult{Path: outPath}, nil
}
func (f *fakeEngine) RunScript(ctx context.Context, cfg *engine.ContainerConfig, input engine.ScriptInput) error {
	return nil
}
func (f *fakeEngine) ExecuteQuery(ctx context.Context, cfg *engine.ContainerConfig, query string, opts engine.QueryOptions) (*engine.QueryResult, error) {
	return &engine.QueryResult{}, nil
}
func (f *fakeEngine) Connect(ctx context.Context, cfg *engine.ContainerConfig, database string) error {
	return nil
}
func (f *fakeEngine) CreateDatabase(ctx context.Context, cfg *engine.ContainerConfig, name string) error {
	f.databases[name] = true
	return nil
}
func (f *fakeEngine) DropDatabase(ctx context.Context, cfg *engine.ContainerConfig, name string) error {
	delete(f.databases, name)
	return nil
}
func (f *fakeEngine) GetDatabaseSize(ctx context.Context, cfg *engine.ContainerConfig) (*int64, error) {
	return nil, nil
}
func (f *fakeEngine) GetConnectionString(cfg *engine.ContainerConfig, database string) string {
	return "postgresql://localhost/" + database
}
func (f *fakeEngine) InitDataDir(ctx context.Context, cfg *engine.ContainerConfig, opts engine.InitOptions) error {
	return nil
}

func newTestContainer(t *testing.T, root, name string) *engine.ContainerConfig {
	t.Helper()
	cfg := &engine.ContainerConfig{
		Name:      name,
		Engine:    engine.PostgreSQL,
		Version:   "16",
		Database:  "app",
		Databases: []string{"app"},
		Port:      5432,
	}
	require.NoError(t, container.SaveConfig(root, cfg))
	return cfg
}

func TestPullReplaceSwapsTargetAndKeepsBackup(t *testing.T) {
	root := t.TempDir()
	newTestContainer(t, root, "demo")
	fe := newFakeEngine("app")
	m := New(root, engine.Registry{engine.PostgreSQL: fe}, nil)

	result, err := m.Pull(context.Background(), Spec{
		Engine:         engine.PostgreSQL,
		Container:      "demo",
		TargetDatabase: "app",
		FromURL:        "postgresql://remote/app",
		Mode:           ModeReplace,
	})
	require.NoError(t, err)
	assert.Equal(t, "app_backup", result.BackupDatabase)
	assert.True(t, fe.databases["app"])
	assert.True(t, fe.databases["app_backup"])

	cfg, err := container.LoadConfig(root, engine.PostgreSQL, "demo")
	require.NoError(t, err)
	assert.Contains(t, cfg.Databases, "app_backup")
}

func TestPullReplaceDeletesBackupWhenRequested(t *testing.T) {
	root := t.TempDir()
	newTestContainer(t, root, "demo")
	fe := newFakeEngine("app")
	m := New(root, engine.Registry{engine.PostgreSQL: fe}, nil)

	result, err := m.Pull(context.Background(), Spec{
		Engine:         engine.PostgreSQL,
		Container:      "demo",
		TargetDatabase: "app",
		FromURL:        "postgresql://remote/app",
		Mode:           ModeReplace,
		DeleteBackup:   true,
	})
	require.NoError(t, err)
	assert.Empty(t, result.BackupDatabase)
	assert.False(t, fe.databases["app_backup"])
}

func TestPullReplaceRollsBackOnRemoteDumpFailure(t *testing.T) {
	root := t.TempDir()
	newTestContainer(t, root, "demo")
	fe := newFakeEngine("app")
	fe.failDump = true
	m := New(root, engine.Registry{engine.PostgreSQL: fe}, nil)

	_, err := m.Pull(context.Background(), Spec{
		Engine:         engine.PostgreSQL,
		Container:      "demo",
		TargetDatabase: "app",
		FromURL:        "postgresql://remote/app",
		Mode:           ModeReplace,
	})
	require.Error(t, err)
	assert.True(t, fe.databases["app"])
	assert.False(t, fe.databases["app_backup"])
}

func TestPullCloneCreatesNewDatabase(t *testing.T) {
	root := t.TempDir()
	newTestContainer(t, root, "demo")
	fe := newFakeEngine("app")
	m := New(root, engine.Registry{engine.PostgreSQL: fe}, nil)

	result, err := m.Pull(context.Background(), Spec{
		Engine:         engine.PostgreSQL,
		Container:      "demo",
		TargetDatabase: "reporting",
		FromURL:        "postgresql://remote/reporting",
		Mode:           ModeClone,
	})
	require.NoError(t, err)
	assert.Equal(t, "reporting", result.Database)
	assert.True(t, fe.databases["reporting"])
}

func TestPullCloneRefusesExistingTargetWithoutForce(t *testing.T) {
	root := t.TempDir()
	newTestContainer(t, root, "demo")
	fe := newFakeEngine("app")
	m := New(root, engine.Registry{engine.PostgreSQL: fe}, nil)

	_, err := m.Pull(context.Background(), Spec{
		Engine:         engine.PostgreSQL,
		Container:      "demo",
		TargetDatabase: "app",
		FromURL:        "postgresql://remote/app",
		Mode:           ModeClone,
	})
	require.Error(t, err)
}
