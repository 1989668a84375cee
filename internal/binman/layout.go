package binman

import (
	"os"
	"path/filepath"
	"strings"
)

// metadataExtensions lists file extensions layout normalization treats as
// "not an executable" when classifying a flat archive's top-level entries.
var metadataExtensions = map[string]bool{
	".txt": true, ".md": true, ".license": true, ".json": true, ".yaml": true,
	".yml": true, ".xml": true, ".conf": true, ".cfg": true, ".ini": true,
	".sql": true, ".sh": true, ".1": true,
}

// metadataNames lists common top-level file names that are metadata
// regardless of extension (no extension, or an extension that's ambiguous).
var metadataNames = map[string]bool{
	"license": true, "license.txt": true, "readme": true, "readme.md": true,
	"changelog": true, "changelog.md": true, "notice": true, "copying": true,
}

// normalizeLayout repairs a non-standard archive layout into the canonical
// binDir/bin/ shape listInstalled and ServerBinary expect. Archives come in
// two shapes: {engine}/bin/* (already canonical, left alone) and {engine}/*
// (flat, needs repair). Flat entries are classified executable vs metadata
// by extension/name heuristics; executables move into a synthesized bin/,
// metadata stays at the top so files like a bundled LICENSE remain visible.
//
// keepAtTop is an extra set of top-level names (directories or files) that
// must NOT be moved into bin/ even though they'd otherwise classify as
// "executable-ish" — used by engines that bundle a co-located runtime
// (a Python or JRE tree) whose load paths assume it stays beside the
// executable rather than one level down inside bin/.
func normalizeLayout(binDir string, keepAtTop map[string]bool) error {
	canonicalBin := filepath.Join(binDir, "bin")
	if info, err := os.Stat(canonicalBin); err == nil && info.IsDir() {
		return nil
	}

	entries, err := os.ReadDir(binDir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(canonicalBin, 0o755); err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if name == "bin" || keepAtTop[name] {
			continue
		}
		if !isExecutableEntry(entry) {
			continue
		}
		src := filepath.Join(binDir, name)
		dst := filepath.Join(canonicalBin, name)
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}
	return nil
}

func isExecutableEntry(entry os.DirEntry) bool {
	if entry.IsDir() {
		// A bundled runtime directory (python/, jre/, lib/) stays at the top
		// unless explicitly classified otherwise by the caller; only files
		// get promoted into bin/ by this generic heuristic.
		return false
	}
	lower := strings.ToLower(entry.Name())
	if metadataNames[lower] {
		return false
	}
	ext := filepath.Ext(lower)
	if metadataExtensions[ext] {
		return false
	}
	return true
}
