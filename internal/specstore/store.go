// Package specstore persists the YAML spec document. Every mutation reads
// the file, applies one change and atomically rewrites the whole document.
package specstore

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sergi/go-diff/diffmatchpatch"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/evodash/internal/apperr"
	"github.com/kalambet/evodash/internal/storage"
)

// Recorder receives a revision for every successful write.
type Recorder interface {
	RecordSpecRevision(rev storage.SpecRevision) error
}

// Store reads and writes a single spec document. Writes within one process
// are serialized; across processes the last writer wins.
type Store struct {
	path     string
	schema   *jsonschema.Schema
	recorder Recorder
	logger   *slog.Logger

	mu sync.Mutex
}

type Option func(*Store)

// WithRecorder sets the revision recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Store) { s.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open prepares a store for the document at path. The file itself need not
// exist yet; call Init to create it.
func Open(path string, opts ...Option) (*Store, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, schema: schema, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating spec dir: %w", err)
	}
	s.recoverInterruptedWrite()
	return s, nil
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) tmpPath() string {
	return s.path + ".tmp"
}

// recoverInterruptedWrite handles a temp file left behind by a crash. It is
// promoted only when the main file is missing and the temp file is valid.
func (s *Store) recoverInterruptedWrite() {
	tmp := s.tmpPath()
	data, err := os.ReadFile(tmp)
	if err != nil {
		return
	}
	if _, err := os.Stat(s.path); err == nil {
		s.logger.Warn("removing orphan spec temp file", "path", tmp)
		os.Remove(tmp)
		return
	}
	if _, err := s.parse(data); err != nil {
		s.logger.Warn("discarding invalid spec temp file", "path", tmp, "error", err)
		os.Remove(tmp)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn("promoting spec temp file failed", "path", tmp, "error", err)
	}
}

// Init writes the default document if none exists. It reports whether a
// document was created.
func (s *Store) Init() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, apperr.Wrap(apperr.CodeStore, "checking spec file", err)
	}

	doc := Default()
	data, err := s.encode(doc)
	if err != nil {
		return false, err
	}
	if err := s.writeAtomic(data); err != nil {
		return false, err
	}
	s.logger.Info("spec document initialised", "path", s.path, "version", doc.Version)
	return true, nil
}

// Read returns the current document.
func (s *Store) Read() (Document, error) {
	doc, _, err := s.load()
	return doc, err
}

// Write applies mutate to the current document, bumps the patch version and
// rewrites the file. Errors returned by mutate are passed through unchanged
// and nothing is written.
func (s *Store) Write(mutate func(*Document) error) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, before, err := s.load()
	if err != nil {
		return Document{}, err
	}
	if err := mutate(&doc); err != nil {
		return Document{}, err
	}
	doc.normalize()

	v, err := semver.NewVersion(doc.Version)
	if err != nil {
		return Document{}, apperr.Wrap(apperr.CodeStore, fmt.Sprintf("invalid spec version %q", doc.Version), err)
	}
	next := v.IncPatch()
	doc.Version = next.String()

	after, err := s.encode(doc)
	if err != nil {
		return Document{}, err
	}
	if err := s.writeAtomic(after); err != nil {
		return Document{}, err
	}

	if s.recorder != nil {
		rev := storage.SpecRevision{Version: doc.Version, Diff: revisionDiff(string(before), string(after))}
		if err := s.recorder.RecordSpecRevision(rev); err != nil {
			s.logger.Warn("recording spec revision failed", "version", doc.Version, "error", err)
		}
	}
	return doc, nil
}

func (s *Store) load() (Document, []byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Document{}, nil, apperr.Wrap(apperr.CodeStore, "reading spec document", err)
	}
	doc, err := s.parse(data)
	if err != nil {
		return Document{}, nil, err
	}
	return doc, data, nil
}

func (s *Store) parse(data []byte) (Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, apperr.Wrap(apperr.CodeStore, "parsing spec document", err)
	}
	doc.normalize()
	if err := validate(s.schema, doc); err != nil {
		return Document{}, apperr.Wrap(apperr.CodeStore, "spec document is invalid", err)
	}
	return doc, nil
}

func (s *Store) encode(doc Document) ([]byte, error) {
	doc.normalize()
	if err := validate(s.schema, doc); err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "spec document is invalid", err)
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "encoding spec document", err)
	}
	if err := enc.Close(); err != nil {
		return nil, apperr.Wrap(apperr.CodeStore, "encoding spec document", err)
	}
	return buf.Bytes(), nil
}

// writeAtomic writes data to a temp file next to the document, syncs it and
// renames it over the original.
func (s *Store) writeAtomic(data []byte) error {
	tmp := s.tmpPath()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.CodeStore, "creating spec temp file", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperr.Wrap(apperr.CodeStore, "writing spec temp file", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return apperr.Wrap(apperr.CodeStore, "syncing spec temp file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.CodeStore, "closing spec temp file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return apperr.Wrap(apperr.CodeStore, "renaming spec temp file", err)
	}
	if dir, err := os.Open(filepath.Dir(s.path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

// revisionDiff renders the change between two serialized documents as
// diff-match-patch patch text.
func revisionDiff(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, true)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(before, diffs))
}
