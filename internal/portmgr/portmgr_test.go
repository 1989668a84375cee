package portmgr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatePortReturnsPreferredWhenFree(t *testing.T) {
	rng := Range{Start: 20000, End: 20010}
	port, err := AllocatePort(rng, 20005, nil)
	require.NoError(t, err)
	assert.Equal(t, 20005, port)
}

func TestAllocatePortSkipsInUse(t *testing.T) {
	rng := Range{Start: 20000, End: 20003}
	inUse := map[int]bool{20000: true, 20001: true}
	port, err := AllocatePort(rng, 20000, inUse)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 20002)
}

func TestAllocatePortExhausted(t *testing.T) {
	rng := Range{Start: 20000, End: 20001}
	inUse := map[int]bool{20000: true, 20001: true}
	_, err := AllocatePort(rng, 20000, inUse)
	require.Error(t, err)
}
