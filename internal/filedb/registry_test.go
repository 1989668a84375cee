package filedb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterLookupAndRemove(t *testing.T) {
	root := t.TempDir()
	reg, err := Load(root)
	require.NoError(t, err)

	reg.Register("notes", "/home/user/notes.sqlite")
	path, ok := reg.Lookup("notes")
	require.True(t, ok)
	assert.Equal(t, "/home/user/notes.sqlite", path)

	require.NoError(t, reg.Save())

	reloaded, err := Load(root)
	require.NoError(t, err)
	_, ok = reloaded.Lookup("notes")
	require.True(t, ok)

	reloaded.Remove("notes")
	_, ok = reloaded.Lookup("notes")
	assert.False(t, ok)
}

func TestFindAndRemoveOrphans(t *testing.T) {
	root := t.TempDir()
	present := filepath.Join(root, "present.sqlite")
	require.NoError(t, os.WriteFile(present, []byte("x"), 0o644))

	reg, err := Load(root)
	require.NoError(t, err)
	reg.Register("present", present)
	reg.Register("gone", filepath.Join(root, "gone.sqlite"))

	orphans := reg.FindOrphans()
	require.Len(t, orphans, 1)
	assert.Equal(t, "gone", orphans[0].Name)

	removed, err := reg.RemoveOrphans()
	require.NoError(t, err)
	require.Len(t, removed, 1)
	_, ok := reg.Lookup("gone")
	assert.False(t, ok)
	_, ok = reg.Lookup("present")
	assert.True(t, ok)
}

func TestIgnoreFolderIsIdempotent(t *testing.T) {
	root := t.TempDir()
	reg, err := Load(root)
	require.NoError(t, err)

	reg.IgnoreFolder("/data/imports")
	reg.IgnoreFolder("/data/imports")
	assert.Len(t, reg.IgnoredFolders, 1)
	assert.True(t, reg.IsIgnoredFolder("/data/imports"))
	assert.False(t, reg.IsIgnoredFolder("/data/other"))
}
