package storage

import (
	"fmt"
	"time"
)

// RecordSpecRevision stores a spec document revision. CreatedAt defaults to now.
func (s *Store) RecordSpecRevision(rev SpecRevision) error {
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO spec_revisions (version, diff, created_at) VALUES (?, ?, ?)`,
		rev.Version, rev.Diff, formatTime(rev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting spec revision: %w", err)
	}
	return nil
}

// ListSpecRevisions returns the most recent revisions, newest first.
func (s *Store) ListSpecRevisions(limit int) ([]SpecRevision, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`SELECT id, version, diff, created_at FROM spec_revisions
		ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []SpecRevision{}
	for rows.Next() {
		var rev SpecRevision
		var createdAt string
		if err := rows.Scan(&rev.ID, &rev.Version, &rev.Diff, &createdAt); err != nil {
			return nil, err
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		rev.CreatedAt = t
		results = append(results, rev)
	}
	return results, rows.Err()
}
