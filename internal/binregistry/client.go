// Package binregistry talks to the remote artifact registry: a well-known
// URL serving a JSON catalog of engine -> available versions, plus
// per-(engine,version,platform,arch) archive URLs. A secondary fallback URL
// is tried whenever the primary request fails, matching the registry
// contract described for the Binary Manager.
package binregistry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spindb/spindb/internal/apperrors"
)

const defaultCatalogURL = "https://registry.spindb.dev/catalog.json"
const fallbackCatalogURL = "https://registry.spindb.dev.mirror.fastly.net/catalog.json"

// Catalog is the parsed registry response: engine id -> list of published
// versions, plus a template for deriving an artifact's download URL.
type Catalog struct {
	FetchedAt time.Time              `json:"-"`
	Engines   map[string][]string    `json:"engines"`
	Artifacts map[string]ArtifactRef `json:"artifacts"`
}

// ArtifactRef is one (engine,version,platform,arch) entry's canonical
// archive URL, keyed by "engine/version/platform/arch" in Catalog.Artifacts.
type ArtifactRef struct {
	URL      string `json:"url"`
	Checksum string `json:"sha256,omitempty"`
}

// Client fetches catalogs and artifact archives from the registry, trying a
// fallback URL whenever the primary one fails.
type Client struct {
	HTTP        *http.Client
	CatalogURL  string
	FallbackURL string
}

// New returns a Client configured with the registry's well-known URLs. A
// caller overriding CatalogURL/FallbackURL (e.g. tests, a private mirror)
// does so on the returned value directly.
func New() *Client {
	return &Client{
		HTTP:        &http.Client{Timeout: 30 * time.Second},
		CatalogURL:  defaultCatalogURL,
		FallbackURL: fallbackCatalogURL,
	}
}

// FetchCatalog retrieves and parses the version catalog, trying the
// fallback URL if the primary fails.
func (c *Client) FetchCatalog(ctx context.Context) (*Catalog, error) {
	resp, err := c.FetchWithRegistryFallback(ctx, []string{c.CatalogURL, c.FallbackURL}, FetchOptions{})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cat Catalog
	if err := json.NewDecoder(resp.Body).Decode(&cat); err != nil {
		return nil, apperrors.New(apperrors.CodeDownloadFailed, apperrors.SeverityError,
			"registry catalog response was not valid JSON").WithCause(err)
	}
	cat.FetchedAt = time.Now()
	return &cat, nil
}

// ArtifactURL resolves the canonical archive URL for one
// (engine,version,platform,arch) tuple from an already-fetched catalog.
func (cat *Catalog) ArtifactURL(engine, version, plat, arch string) (ArtifactRef, bool) {
	key := fmt.Sprintf("%s/%s/%s/%s", engine, version, plat, arch)
	ref, ok := cat.Artifacts[key]
	return ref, ok
}

// FetchOptions configures FetchWithRegistryFallback.
type FetchOptions struct {
	// Header, when non-nil, is applied to every request attempted.
	Header http.Header
}

// FetchWithRegistryFallback tries each URL in order, returning the first
// response with a 2xx status. A 404 from the primary still falls through to
// the next URL (the artifact may only be mirrored on the fallback); non-2xx
// from every URL or a transport failure from every URL yields a categorized
// apperrors.SpinError. The caller owns closing the returned response body.
func (c *Client) FetchWithRegistryFallback(ctx context.Context, urls []string, opts FetchOptions) (*http.Response, error) {
	var lastErr error
	var lastStatus int

	for _, url := range urls {
		if url == "" {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		for k, vs := range opts.Header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		lastStatus = resp.StatusCode
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}

	if lastStatus == http.StatusNotFound {
		return nil, apperrors.New(apperrors.CodeBinaryNotPublished, apperrors.SeverityError,
			"no registry mirror has this artifact published").WithCause(lastErr)
	}
	return nil, apperrors.New(apperrors.CodeDownloadFailed, apperrors.SeverityError,
		"failed to reach the binary registry on any configured URL").WithCause(lastErr)
}
