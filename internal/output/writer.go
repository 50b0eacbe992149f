// Package output turns completion text into dbt schema files. It strips
// markdown fences from model answers and appends the result to a
// destination file with the indentation dbt expects under `models:`.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Header opens every destination file. It is written once, when the file is
// created (or found empty), and never rewritten.
const Header = "version: 2\n\nmodels:"

// DefaultDestination is the destination file name used when none is given.
const DefaultDestination = "schema.yml"

// indent prefixes every line of an appended block so it nests under `models:`.
const indent = "  "

// ErrInvalidDestination is returned for destination names that are not YAML files.
var ErrInvalidDestination = errors.New("invalid destination file")

// ValidateDestination checks that name is a usable destination file name.
func ValidateDestination(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidDestination)
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext != ".yml" && ext != ".yaml" {
		return fmt.Errorf("%w: %s must have a '.yml' or '.yaml' extension", ErrInvalidDestination, name)
	}
	return nil
}

// Resolve returns the destination path for inputs in dir. An absolute name
// is used as is, so every input shares one file.
func Resolve(dir, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(dir, name)
}

// CheckParent verifies that the directory path would be created in exists.
func CheckParent(path string) error {
	parent := filepath.Dir(path)
	info, err := os.Stat(parent)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: directory %s does not exist", ErrInvalidDestination, parent)
		}
		return fmt.Errorf("failed to stat %s: %w", parent, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrInvalidDestination, parent)
	}
	return nil
}

// Writer appends documentation blocks to one destination file. It owns the
// file handle and an exclusive advisory lock for its whole lifetime, so a
// destination has at most one writer at a time.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// Open opens (creating if needed) the destination for inputs in dir for
// appending. See Resolve for how the path is built.
func Open(dir, name string) (*Writer, error) {
	if err := ValidateDestination(name); err != nil {
		return nil, err
	}
	path := Resolve(dir, name)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", path, err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock file %s: %w", path, err)
	}

	w := &Writer{file: f, path: path}

	info, err := f.Stat()
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.Size() == 0 {
		if _, err := f.WriteString(Header); err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to write header to %s: %w", path, err)
		}
	}

	return w, nil
}

// Path returns the destination path.
func (w *Writer) Path() string {
	return w.path
}

// AppendBlock appends block after a blank line, indenting each non-blank
// line by two spaces, and ends it with a blank line. Blocks are indented
// independently of each other.
func (w *Writer) AppendBlock(block string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("write to closed file %s", w.path)
	}

	_, err := w.file.WriteString(FormatBlock(block))
	if err != nil {
		return fmt.Errorf("failed to write to file %s: %w", w.path, err)
	}
	return nil
}

// FormatBlock returns exactly what AppendBlock writes for block.
func FormatBlock(block string) string {
	var sb strings.Builder
	sb.WriteString("\n")
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sb.WriteString(indent)
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	return sb.String()
}

// Close releases the lock and closes the file. It is safe to call twice.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	unlockErr := unlockFile(w.file)
	closeErr := w.file.Close()
	w.file = nil
	return errors.Join(unlockErr, closeErr)
}
