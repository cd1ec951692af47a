package ingest

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
)

// ScanDirectory walks root and returns the statement files under it,
// filtered by includeExts (or the default allowed set) and optionally
// skipping dotfiles and dot-directories.
func ScanDirectory(root string, includeExts []string, skipHidden bool) ([]string, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("root path is required")
	}
	exts := buildExtSet(includeExts)

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if skipHidden && strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if allowed(path, exts) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
