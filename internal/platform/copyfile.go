package platform

import (
	"io"
	"os"
)

// CopyFile copies src over dst's contents, creating dst if absent and
// truncating it otherwise. Used by file-based engines (SQLite, DuckDB) to
// restore a backup or clone a data file directly, without a server process
// to delegate the copy to.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
