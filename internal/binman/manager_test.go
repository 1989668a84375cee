package binman

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMajorMatchesPlainVersion(t *testing.T) {
	assert.True(t, majorMatches("psql (PostgreSQL) 18.0", "18"))
	assert.False(t, majorMatches("psql (PostgreSQL) 17.4", "18"))
}

func TestMajorMatchesDateStyleVersion(t *testing.T) {
	assert.True(t, majorMatches("questdb version 24.08.1.2", "24.08.9.1"))
	assert.False(t, majorMatches("questdb version 23.11.1.2", "24.08.9.1"))
}

func TestIsDateStyleVersion(t *testing.T) {
	assert.True(t, isDateStyleVersion("24.08.1.2"))
	assert.False(t, isDateStyleVersion("18"))
	assert.False(t, isDateStyleVersion("18.4"))
}
