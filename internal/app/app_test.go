package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWiresEveryManager(t *testing.T) {
	t.Setenv("SPINDB_ROOT", t.TempDir())

	a, err := New("test", "abc123", "2026-01-01", false)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Containers)
	assert.NotNil(t, a.Pull)
	assert.NotNil(t, a.Export)
	assert.NotNil(t, a.Doctor)
	assert.Equal(t, a.Containers.Engines, a.Doctor.Engines)
	assert.Same(t, a.Containers.Binaries, a.Doctor.Binaries)
}

func TestCloseIsIdempotentWithNoClosers(t *testing.T) {
	t.Setenv("SPINDB_ROOT", t.TempDir())

	a, err := New("test", "", "", true)
	require.NoError(t, err)
	assert.NoError(t, a.Close())
	assert.NoError(t, a.Close())
}
