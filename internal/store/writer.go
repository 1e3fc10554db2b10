package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/beamdrop/beamdrop/internal/transfer"
)

// Save materializes a received artifact under dir, avoiding collisions by
// appending (1), (2), ... to the name. It returns the written path.
func Save(dir string, a *transfer.Artifact) (string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", transfer.NewFileError("create directory", dir, err)
		}
	}

	path := uniquePath(filepath.Join(dir, filepath.Base(a.Name)))
	if err := os.WriteFile(path, a.Data, 0644); err != nil {
		return "", transfer.NewFileError("write", a.Name, err)
	}
	return path, nil
}

// uniquePath returns path unchanged if it is free, otherwise the first
// "name (n).ext" variant that is.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]

	counter := 1
	for {
		candidate := fmt.Sprintf("%s (%d)%s", base, counter, ext)
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		counter++
	}
}
