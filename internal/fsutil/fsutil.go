package fsutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ListBundles returns all bundle files under root, sorted by walk
// order.
func ListBundles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if IsBundleFile(path) {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// IsBundleFile checks if a file looks like an exposure bundle.
func IsBundleFile(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".json"
}
