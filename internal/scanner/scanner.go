package scanner

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/foxzi/tplsync/internal/template"
)

// ErrDirectoryNotFound is returned when the template directory does not exist
var ErrDirectoryNotFound = errors.New("template directory not found")

// File is one template file found in the directory
type File struct {
	Path       string
	XML        string
	ModifiedAt time.Time
	Record     *template.Record
}

// Scanner lists local template files
type Scanner struct {
	dir    string
	logger *slog.Logger
}

// New creates a scanner for dir
func New(dir string, logger *slog.Logger) *Scanner {
	return &Scanner{
		dir:    dir,
		logger: logger.With("component", "scanner"),
	}
}

// Dir returns the scanned directory
func (s *Scanner) Dir() string {
	return s.dir
}

// Scan reads every *.xml file in the directory, sorted by path. Files that
// cannot be read or parsed are logged and skipped, as are documents without
// a Container element.
func (s *Scanner) Scan() ([]File, error) {
	info, err := os.Stat(s.dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, s.dir)
	}

	paths, err := filepath.Glob(filepath.Join(s.dir, "*.xml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	sort.Strings(paths)

	files := make([]File, 0, len(paths))
	for _, path := range paths {
		file, ok := s.read(path)
		if !ok {
			continue
		}
		files = append(files, file)
	}

	s.logger.Debug("templates scanned", "directory", s.dir, "files", len(paths), "templates", len(files))
	return files, nil
}

func (s *Scanner) read(path string) (File, bool) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return File{}, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("failed to read template", "path", path, "error", err)
		return File{}, false
	}

	content := string(data)
	if !utf8.Valid(data) {
		s.logger.Warn("template is not valid UTF-8, replacing invalid bytes", "path", path)
		content = strings.ToValidUTF8(content, "�")
	}

	rec, err := template.Extract(content)
	if err != nil {
		s.logger.Warn("failed to parse template", "path", path, "error", err)
		return File{}, false
	}
	if rec == nil {
		s.logger.Debug("skipping document without container", "path", path)
		return File{}, false
	}

	return File{
		Path:       path,
		XML:        content,
		ModifiedAt: info.ModTime(),
		Record:     rec,
	}, true
}

// FindByName returns the file whose base name, without extension, matches
// name case-insensitively. Local templates are conventionally named
// "my-<name>.xml", so that form matches too.
func (s *Scanner) FindByName(name string) (*File, error) {
	files, err := s.Scan()
	if err != nil {
		return nil, err
	}

	want := strings.ToLower(name)
	for i := range files {
		base := strings.ToLower(strings.TrimSuffix(filepath.Base(files[i].Path), ".xml"))
		if base == want || base == "my-"+want {
			return &files[i], nil
		}
	}
	return nil, nil
}
