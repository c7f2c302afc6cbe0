// Package fsutil locates script files on disk.
package fsutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ScriptExtension is the extension of script files.
const ScriptExtension = ".hcl"

// FindFilesByExtension returns, in lexical order, every file below root whose
// name ends in ext. Hidden directories and the directories in skip are not
// entered.
func FindFilesByExtension(root, ext string, skip ...string) ([]string, error) {
	if ext == "" {
		panic("fsutil: extension must not be empty")
	}
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		if s == "" {
			continue
		}
		if abs, err := filepath.Abs(s); err == nil {
			skipped[abs] = true
		}
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if abs, err := filepath.Abs(path); err == nil && skipped[abs] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ext) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// FindScripts resolves path to script files. A file is returned as is; a
// directory is searched for files with ScriptExtension, leaving out the
// directories in skip, typically the jobs directory holding saved copies.
func FindScripts(path string, skip ...string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing script path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	files, err := FindFilesByExtension(path, ScriptExtension, skip...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s files found in %s", ScriptExtension, path)
	}
	return files, nil
}
