package binregistry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spindb/spindb/internal/apperrors"
)

func TestFetchWithRegistryFallbackUsesPrimaryWhenHealthy(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("primary"))
	}))
	defer primary.Close()

	c := New()
	resp, err := c.FetchWithRegistryFallback(context.Background(), []string{primary.URL, "http://unused.invalid"}, FetchOptions{})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFetchWithRegistryFallbackFallsThroughOn500(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fallback"))
	}))
	defer fallback.Close()

	c := New()
	resp, err := c.FetchWithRegistryFallback(context.Background(), []string{primary.URL, fallback.URL}, FetchOptions{})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFetchWithRegistryFallbackReports404AsBinaryNotPublished(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer primary.Close()

	c := New()
	_, err := c.FetchWithRegistryFallback(context.Background(), []string{primary.URL}, FetchOptions{})
	require.Error(t, err)
	code, ok := apperrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeBinaryNotPublished, code)
}

func TestArtifactURLLooksUpByKey(t *testing.T) {
	cat := &Catalog{Artifacts: map[string]ArtifactRef{
		"postgresql/18/linux/x64": {URL: "https://example.test/pg.tar.gz"},
	}}
	ref, ok := cat.ArtifactURL("postgresql", "18", "linux", "x64")
	require.True(t, ok)
	assert.Equal(t, "https://example.test/pg.tar.gz", ref.URL)

	_, ok = cat.ArtifactURL("postgresql", "17", "linux", "x64")
	assert.False(t, ok)
}
