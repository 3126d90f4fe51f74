// Package files wraps read-only access to the import root: listing,
// bounded sampling, and searching of the flat files a plan may draw from.
package files

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"graphplan-mcp/internal/planner"
)

// DefaultSampleLines bounds Sample when the caller passes no limit.
const DefaultSampleLines = 100

// Match is a single search hit: a 1-based line number and the line text.
type Match struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// Service provides read-only inspection of files under a configured import
// root. It performs no mutation.
type Service struct {
	root string
}

// NewService creates a Service rooted at the given import directory.
func NewService(root string) *Service {
	return &Service{root: root}
}

// List enumerates the files under the import root as relative paths in
// sorted order. Directories are descended into; their entries appear with
// their relative path.
func (s *Service) List() ([]string, error) {
	var out []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: listing import root %q: %v", planner.ErrIO, s.root, err)
	}
	sort.Strings(out)
	return out, nil
}

// Sample returns at most maxLines lines of the file in file order. The read
// is bounded: nothing past maxLines is pulled into memory, so sampling a
// multi-gigabyte export stays cheap. maxLines <= 0 uses DefaultSampleLines.
func (s *Service) Sample(file string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		maxLines = DefaultSampleLines
	}
	f, err := s.open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for len(lines) < maxLines && scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", planner.ErrIO, file, err)
	}
	return lines, nil
}

// Search returns every line of the file containing pattern as a substring,
// preserving file order.
func (s *Service) Search(file, pattern string) ([]Match, error) {
	f, err := s.open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []Match
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if strings.Contains(scanner.Text(), pattern) {
			matches = append(matches, Match{Line: line, Text: scanner.Text()})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading %q: %v", planner.ErrIO, file, err)
	}
	return matches, nil
}

// Header parses the first record of the file as a CSV header and returns its
// column names.
func (s *Service) Header(file string) ([]string, error) {
	f, err := s.open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	columns, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header of %q: %v", planner.ErrIO, file, err)
	}
	for i := range columns {
		columns[i] = strings.TrimSpace(columns[i])
	}
	return columns, nil
}

// Open resolves a file reference and returns a reader over its full
// content. Unlike Sample this is unbounded; it exists for consumers that
// stream a whole file, such as the plan applier.
func (s *Service) Open(file string) (io.ReadCloser, error) {
	return s.open(file)
}

// open resolves a relative file reference under the import root. References
// escaping the root do not resolve.
func (s *Service) open(file string) (*os.File, error) {
	clean := filepath.Clean(filepath.FromSlash(file))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return nil, fmt.Errorf("%w: file %q does not resolve under the import root", planner.ErrNotFound, file)
	}
	f, err := os.Open(filepath.Join(s.root, clean))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file %q does not resolve under the import root", planner.ErrNotFound, file)
		}
		return nil, fmt.Errorf("%w: opening %q: %v", planner.ErrIO, file, err)
	}
	return f, nil
}
