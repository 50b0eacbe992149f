// Package discovery resolves command-line path arguments into the SQL model
// files turboyaml documents.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Extension is the suffix (compared case-insensitively) of dbt model files.
const Extension = ".sql"

var (
	// ErrNoMatchingFiles is returned when a directory holds no model files.
	ErrNoMatchingFiles = errors.New("no .sql files found")
	// ErrInvalidInputFile is returned for a path that is missing or is not a model file.
	ErrInvalidInputFile = errors.New("invalid SQL file")
)

// InputFile is one discovered model file.
type InputFile struct {
	Dir  string
	Name string
}

// Path returns the file's path as passed on the command line.
func (f InputFile) Path() string {
	return filepath.Join(f.Dir, f.Name)
}

// ModelName is the file name without its extension. It becomes the name of
// the documented dbt model.
func (f InputFile) ModelName() string {
	return strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
}

// HasExtension reports whether name ends in Extension, ignoring case.
func HasExtension(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), Extension)
}

// Discover expands paths into input files. Directories contribute their
// immediate model files in name order; subdirectories are not visited.
// A path reached twice is returned once.
func Discover(paths []string) ([]InputFile, error) {
	var files []InputFile
	seen := make(map[string]bool)

	add := func(f InputFile) {
		key := filepath.Clean(f.Path())
		if seen[key] {
			return
		}
		seen[key] = true
		files = append(files, f)
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s does not exist", ErrInvalidInputFile, p)
			}
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}

		if info.IsDir() {
			found, err := listDir(p)
			if err != nil {
				return nil, err
			}
			for _, f := range found {
				add(f)
			}
			continue
		}

		if !info.Mode().IsRegular() || !HasExtension(p) {
			return nil, fmt.Errorf("%w: %s must be a file with a '%s' extension", ErrInvalidInputFile, p, Extension)
		}
		dir, name := filepath.Split(p)
		if dir == "" {
			dir = "."
		}
		add(InputFile{Dir: filepath.Clean(dir), Name: name})
	}

	return files, nil
}

func listDir(dir string) ([]InputFile, error) {
	// os.ReadDir returns entries sorted by filename.
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	var files []InputFile
	for _, e := range entries {
		if e.IsDir() || !HasExtension(e.Name()) {
			continue
		}
		// Stat follows symlinks; dangling links and links to directories are skipped.
		info, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, InputFile{Dir: filepath.Clean(dir), Name: e.Name()})
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("%w in directory %s", ErrNoMatchingFiles, dir)
	}
	return files, nil
}
