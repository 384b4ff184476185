package support

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// listFiles returns every regular file below dir. A missing dir is empty.
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return files, nil
}
