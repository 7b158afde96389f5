// Package fsutil provides file system utility functions.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// backupSuffixes are editor and tooling leftovers that share a module file's
// name but must never be loaded.
var backupSuffixes = []string{"~", ".swp", ".swo", ".swx", ".bak", ".orig", ".tmp"}

// IsBackupFile reports whether name looks like an editor swap file, a backup
// copy, or an emacs lock/autosave file.
func IsBackupFile(name string) bool {
	if strings.HasPrefix(name, ".#") {
		return true
	}
	if strings.HasPrefix(name, "#") && strings.HasSuffix(name, "#") {
		return true
	}
	for _, suffix := range backupSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// FindFilesBySuffix walks rootPath depth-first in lexical order and returns
// every regular file whose name ends with suffix. Hidden directories and
// backup variants are skipped.
func FindFilesBySuffix(rootPath string, suffix string) ([]string, error) {
	if suffix == "" {
		panic("suffix must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != rootPath && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || IsBackupFile(name) {
			return nil
		}
		if strings.HasSuffix(name, suffix) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}
