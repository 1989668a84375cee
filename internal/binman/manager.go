// Package binman implements the Binary Manager: download, extract, layout
// normalization, and version verification for a specific
// (engine, version, platform, arch) tuple. Every engine shares one generic
// Manager; only a PerEngineOverrides value (custom verify/layout hooks)
// varies between them, the same "generic base + small override hook" shape
// engine.genericServerEngine uses for its own server lifecycle.
package binman

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spindb/spindb/internal/apperrors"
	"github.com/spindb/spindb/internal/binregistry"
	"github.com/spindb/spindb/internal/platform"
)

// downloadTimeout is the abort deadline for a single download attempt.
const downloadTimeout = 5 * time.Minute

// InstalledBinary identifies one verified, on-disk artifact directory.
type InstalledBinary struct {
	Engine   string
	Version  string
	Platform string
	Arch     string
	Path     string // binDir, not binDir/bin
}

// VerifyFunc runs an engine-specific "is this binary the version we think it
// is" probe against an already-extracted bin directory. Most engines use
// DefaultVerify (spawn with --version, parse); a few need an override (a
// Java launcher with no --version flag, a date-style version scheme).
type VerifyFunc func(binDir, serverBinaryName, wantVersion string) error

// PerEngineOverrides customizes the generic flow for one engine.
type PerEngineOverrides struct {
	// KeepAtTop preserves these top-level archive entries during layout
	// normalization instead of moving them into bin/ (a bundled Python or
	// JRE runtime whose load paths assume co-location with the executable).
	KeepAtTop map[string]bool
	// Verify overrides DefaultVerify when the engine's version probe isn't
	// a plain "binary --version" invocation.
	Verify VerifyFunc
}

// Manager is the generic Binary Manager, parameterized per call by the
// engine id and its ServerBinaryName rather than by subtyping.
type Manager struct {
	Root     string
	Registry *binregistry.Client
}

// New builds a Manager rooted at root (the SpinDB root directory).
func New(root string, registry *binregistry.Client) *Manager {
	return &Manager{Root: root, Registry: registry}
}

// IsInstalled reports whether the expected bin path for this tuple contains
// the engine's canonical server binary.
func (m *Manager) IsInstalled(engine, version, plat, arch, serverBinaryName string) bool {
	if serverBinaryName == "" {
		// file-based engines (sqlite, duckdb) still install a client tool as
		// their "server binary" slot is empty; callers pass the client name.
		return false
	}
	binPath := filepath.Join(platform.BinarySubdir(platform.BinaryDir(m.Root, engine, version, plat, arch)), serverBinaryName+platform.ExecutableExtension())
	info, err := os.Stat(binPath)
	return err == nil && !info.IsDir()
}

// ListInstalled enumerates root/bin/* directories matching
// {engine}-{version}-{platform}-{arch} and returns the parsed tuples whose
// bin/ subdirectory contains at least one file (proof of a completed
// install rather than a half-extracted leftover).
func (m *Manager) ListInstalled() ([]InstalledBinary, error) {
	binRoot := platform.Bin(m.Root)
	entries, err := os.ReadDir(binRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err)
	}

	var out []InstalledBinary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		parts := strings.SplitN(entry.Name(), "-", 4)
		if len(parts) != 4 {
			continue
		}
		binDir := filepath.Join(binRoot, entry.Name())
		subEntries, err := os.ReadDir(platform.BinarySubdir(binDir))
		if err != nil || len(subEntries) == 0 {
			continue
		}
		out = append(out, InstalledBinary{
			Engine: parts[0], Version: parts[1], Platform: parts[2], Arch: parts[3],
			Path: binDir,
		})
	}
	return out, nil
}

// ProgressFunc receives cumulative bytes downloaded so far; used to drive a
// CLI progress indicator (an external collaborator; this package only
// reports the number).
type ProgressFunc func(bytesSoFar int64)

// Download resolves the artifact URL from cat, fetches it to a temporary
// file with a 5-minute abort timeout, extracts it into the canonical bin
// directory, normalizes its layout, chmods binaries on Unix, and verifies
// the result. On any failure the partially-created bin directory is removed
// (download only cleans up what it created: an already-installed directory
// from a prior successful install is never touched here).
func (m *Manager) Download(ctx context.Context, cat *binregistry.Catalog, engine, version, plat, arch, serverBinaryName string, overrides PerEngineOverrides, onProgress ProgressFunc) (string, error) {
	ref, ok := cat.ArtifactURL(engine, version, plat, arch)
	if !ok {
		return "", apperrors.New(apperrors.CodeBinaryNotPublished, apperrors.SeverityError,
			fmt.Sprintf("%s %s is not published for %s/%s", engine, version, plat, arch))
	}

	binDir := platform.BinaryDir(m.Root, engine, version, plat, arch)
	_, statErr := os.Stat(binDir)
	preexisting := statErr == nil
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", apperrors.Wrap(err)
	}

	succeeded := false
	defer func() {
		if !succeeded && !preexisting {
			_ = os.RemoveAll(binDir)
		}
	}()

	dlCtx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	archivePath, err := m.downloadArchive(dlCtx, ref.URL, onProgress)
	if err != nil {
		return "", err
	}
	defer os.Remove(archivePath)

	if err := platform.ExtractArchive(ctx, archivePath, binDir); err != nil {
		return "", apperrors.New(apperrors.CodeDownloadFailed, apperrors.SeverityError,
			"failed to extract downloaded archive").WithCause(err)
	}

	if err := normalizeLayout(binDir, overrides.KeepAtTop); err != nil {
		return "", apperrors.Wrap(err)
	}

	if runtime.GOOS != "windows" {
		if err := chmodExecutables(platform.BinarySubdir(binDir)); err != nil {
			return "", apperrors.Wrap(err)
		}
	}

	verify := overrides.Verify
	if verify == nil {
		verify = DefaultVerify
	}
	if err := verify(binDir, serverBinaryName, version); err != nil {
		return "", err
	}

	succeeded = true
	return binDir, nil
}

func (m *Manager) downloadArchive(ctx context.Context, url string, onProgress ProgressFunc) (string, error) {
	client := &http.Client{}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", apperrors.Wrap(err)
	}
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperrors.New(apperrors.CodeDownloadTimedOut, apperrors.SeverityError,
				"download did not complete within the 5 minute deadline").WithCause(err)
		}
		return "", apperrors.New(apperrors.CodeDownloadFailed, apperrors.SeverityError,
			"failed to reach artifact URL").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", apperrors.New(apperrors.CodeBinaryNotPublished, apperrors.SeverityError,
			"artifact URL returned 404")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperrors.New(apperrors.CodeDownloadFailed, apperrors.SeverityError,
			fmt.Sprintf("artifact download returned status %d", resp.StatusCode))
	}

	tmp, err := os.CreateTemp("", "spindb-download-*.archive")
	if err != nil {
		return "", apperrors.Wrap(err)
	}
	defer tmp.Close()

	written, err := copyWithProgress(tmp, resp.Body, onProgress)
	if err != nil {
		os.Remove(tmp.Name())
		if ctx.Err() == context.DeadlineExceeded {
			return "", apperrors.New(apperrors.CodeDownloadTimedOut, apperrors.SeverityError,
				"download stream aborted before completion").WithCause(err)
		}
		return "", apperrors.New(apperrors.CodeDownloadFailed, apperrors.SeverityError,
			"download stream failed").WithCause(err)
	}
	if written == 0 {
		os.Remove(tmp.Name())
		return "", apperrors.New(apperrors.CodeDownloadFailed, apperrors.SeverityError, "downloaded archive was empty")
	}
	return tmp.Name(), nil
}

func copyWithProgress(dst io.Writer, src io.Reader, onProgress ProgressFunc) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
			if onProgress != nil {
				onProgress(total)
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func chmodExecutables(binSubdir string) error {
	entries, err := os.ReadDir(binSubdir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Chmod(filepath.Join(binSubdir, entry.Name()), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// DefaultVerify spawns serverBinaryName with --version and checks the
// output's major version against wantVersion: date-style versions
// (YY.MM.patch.build) compare only on the first two dot-separated
// components, every other scheme compares only the leading component.
func DefaultVerify(binDir, serverBinaryName, wantVersion string) error {
	if serverBinaryName == "" {
		return nil
	}
	binPath := filepath.Join(platform.BinarySubdir(binDir), serverBinaryName+platform.ExecutableExtension())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, binPath, "--version")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return apperrors.New(apperrors.CodeVersionMismatch, apperrors.SeverityError,
			fmt.Sprintf("could not determine version of %s", serverBinaryName)).WithCause(err)
	}

	if !majorMatches(out.String(), wantVersion) {
		return apperrors.New(apperrors.CodeVersionMismatch, apperrors.SeverityError,
			fmt.Sprintf("installed %s does not report major version %s", serverBinaryName, wantVersion)).
			WithContext("output", strings.TrimSpace(out.String()))
	}
	return nil
}

// majorMatches accepts the probe output if it contains wantVersion verbatim
// (exact match), or if a same-shaped version token inside it shares the
// "major" prefix with wantVersion: one component for a plain major.minor
// scheme, two for a date-style YY.MM.patch.build scheme.
func majorMatches(probeOutput, wantVersion string) bool {
	if strings.Contains(probeOutput, wantVersion) {
		return true
	}
	wantParts := strings.Split(wantVersion, ".")
	prefixLen := 1
	if isDateStyleVersion(wantVersion) {
		prefixLen = 2
	}
	if len(wantParts) < prefixLen {
		return false
	}
	wantPrefix := strings.Join(wantParts[:prefixLen], ".")

	for _, token := range strings.FieldsFunc(probeOutput, func(r rune) bool {
		return !(r == '.' || (r >= '0' && r <= '9'))
	}) {
		tokenParts := strings.Split(token, ".")
		if len(tokenParts) < prefixLen {
			continue
		}
		if strings.Join(tokenParts[:prefixLen], ".") == wantPrefix {
			return true
		}
	}
	return false
}

// isDateStyleVersion recognizes a YY.MM.patch.build shape: four
// dot-separated numeric components with a two-digit leading year/month.
func isDateStyleVersion(version string) bool {
	parts := strings.Split(version, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if _, err := strconv.Atoi(p); err != nil {
			return false
		}
	}
	return len(parts[0]) == 2 && len(parts[1]) == 2
}

// EnsureInstalled returns the existing bin path if already installed,
// otherwise downloads it.
func (m *Manager) EnsureInstalled(ctx context.Context, cat *binregistry.Catalog, engine, version, plat, arch, serverBinaryName string, overrides PerEngineOverrides, onProgress ProgressFunc) (string, bool, error) {
	binDir := platform.BinaryDir(m.Root, engine, version, plat, arch)
	if m.IsInstalled(engine, version, plat, arch, serverBinaryName) {
		return binDir, false, nil
	}
	path, err := m.Download(ctx, cat, engine, version, plat, arch, serverBinaryName, overrides, onProgress)
	return path, true, err
}

// Delete removes the bin tree for one installed tuple. The caller (the
// Container Manager) is responsible for confirming no live container still
// references it first.
func (m *Manager) Delete(engine, version, plat, arch string) error {
	binDir := platform.BinaryDir(m.Root, engine, version, plat, arch)
	if err := os.RemoveAll(binDir); err != nil {
		return apperrors.Wrap(err)
	}
	return nil
}
