package binman

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLayoutLeavesCanonicalShapeAlone(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "postgres"), []byte("x"), 0o755))

	require.NoError(t, normalizeLayout(dir, nil))

	_, err := os.Stat(filepath.Join(dir, "bin", "postgres"))
	assert.NoError(t, err)
}

func TestNormalizeLayoutPromotesFlatExecutables(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mongod"), []byte("x"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "LICENSE"), []byte("x"), 0o644))

	require.NoError(t, normalizeLayout(dir, nil))

	_, err := os.Stat(filepath.Join(dir, "bin", "mongod"))
	assert.NoError(t, err, "executable should be promoted into bin/")

	_, err = os.Stat(filepath.Join(dir, "README.md"))
	assert.NoError(t, err, "metadata should stay at the top")

	_, err = os.Stat(filepath.Join(dir, "bin", "README.md"))
	assert.True(t, os.IsNotExist(err))
}

func TestNormalizeLayoutKeepsBundledRuntimeAtTop(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "typedb"), []byte("x"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "lib"), 0o755))

	require.NoError(t, normalizeLayout(dir, map[string]bool{"lib": true}))

	_, err := os.Stat(filepath.Join(dir, "lib"))
	assert.NoError(t, err, "directories are never promoted regardless of keepAtTop")
}
