package container

import (
	"os"
	"path/filepath"

	"github.com/spindb/spindb/internal/platform"
)

// copyTree copies src to dst, recursing into directories and using
// platform.CopyFile for each regular file. src may itself be a single file
// (the case for sqlite/duckdb, whose "data directory" is just the data
// file) rather than a directory.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if !info.IsDir() {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return platform.CopyFile(src, dst)
	}

	if err := os.MkdirAll(dst, info.Mode()); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())
		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}
		if err := platform.CopyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}
