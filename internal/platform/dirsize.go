package platform

import (
	"os"
	"path/filepath"
)

// DirSize walks root and sums the apparent size of every regular file under
// it, for engines whose data directory has no engine-native "size" query.
func DirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
