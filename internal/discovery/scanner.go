// Package discovery finds generated React components on disk and keeps an
// in-memory registry of them for the dashboard.
package discovery

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kalambet/evodash/internal/specstore"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// IgnoreFile is read from the components directory and extends the ignore rules.
const IgnoreFile = ".evodashignore"

// DefaultIgnore excludes test files and the legacy widget denylist token.
var DefaultIgnore = []string{"*.test.*", "*.spec.*", "*Widget*"}

var componentFile = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*\.(tsx|jsx)$`)

// Feature is a generated component found on disk.
type Feature struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ComponentPath    string    `json:"componentPath"`
	Description      string    `json:"description"`
	Status           Status    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	ExportName       string    `json:"exportName,omitempty"`
	HasDefaultExport bool      `json:"hasDefaultExport"`
}

// SpecReader supplies the spec document used for durable timestamps and
// status overrides.
type SpecReader interface {
	Read() (specstore.Document, error)
}

// Scanner lists the components directory. It never writes to it.
type Scanner struct {
	dir    string
	ignore []string
	spec   SpecReader
	logger *slog.Logger
	lower  cases.Caser
}

type Option func(*Scanner)

func WithSpec(r SpecReader) Option {
	return func(s *Scanner) { s.spec = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// NewScanner returns a scanner for dir. extraIgnore patterns are added to
// DefaultIgnore.
func NewScanner(dir string, extraIgnore []string, opts ...Option) *Scanner {
	s := &Scanner{
		dir:    dir,
		ignore: append(slices.Clone(DefaultIgnore), extraIgnore...),
		logger: slog.Default(),
		lower:  cases.Lower(language.Und),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Scanner) Dir() string {
	return s.dir
}

// Scan returns the components in the directory, newest first. A missing
// directory yields an empty list.
func (s *Scanner) Scan() ([]Feature, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Feature{}, nil
		}
		return nil, fmt.Errorf("reading components directory: %w", err)
	}

	rules := s.rules()
	declared := s.declaredFeatures()

	features := []Feature{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !componentFile.MatchString(name) || rules.MatchesPath(name) {
			continue
		}
		f, err := s.inspect(name, declared)
		if err != nil {
			s.logger.Warn("skipping unreadable component", "file", name, "error", err)
			continue
		}
		features = append(features, f)
	}

	sortFeatures(features)
	return features, nil
}

func (s *Scanner) rules() *ignore.GitIgnore {
	lines := slices.Clone(s.ignore)
	if extra, err := readIgnoreFile(filepath.Join(s.dir, IgnoreFile)); err == nil {
		lines = append(lines, extra...)
	}
	return ignore.CompileIgnoreLines(lines...)
}

func (s *Scanner) declaredFeatures() map[string]specstore.FeatureSpec {
	if s.spec == nil {
		return nil
	}
	doc, err := s.spec.Read()
	if err != nil {
		s.logger.Warn("spec unavailable during scan, using file times", "error", err)
		return nil
	}
	return doc.Features
}

func (s *Scanner) inspect(filename string, declared map[string]specstore.FeatureSpec) (Feature, error) {
	path := filepath.Join(s.dir, filename)
	info, err := os.Stat(path)
	if err != nil {
		return Feature{}, err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return Feature{}, err
	}

	name := strings.TrimSuffix(filename, filepath.Ext(filename))
	named, hasDefault := detectExports(string(src), name)

	f := Feature{
		ID:               s.lower.String(name),
		Name:             name,
		ComponentPath:    filepath.ToSlash(path),
		Description:      extractDescription(string(src), name),
		Status:           StatusActive,
		CreatedAt:        info.ModTime().UTC(),
		HasDefaultExport: hasDefault,
	}
	if named {
		f.ExportName = name
	}
	if !named && !hasDefault {
		f.Status = StatusInactive
	}

	if spec, ok := declared[name]; ok {
		if !spec.CreatedAt.IsZero() {
			f.CreatedAt = spec.CreatedAt.UTC()
		}
		if spec.Status == specstore.FeatureInactive {
			f.Status = StatusInactive
		}
	}
	return f, nil
}

// sortFeatures orders by createdAt descending, then filename ascending.
func sortFeatures(features []Feature) {
	slices.SortFunc(features, func(a, b Feature) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ComponentPath, b.ComponentPath)
	})
}

func readIgnoreFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}
