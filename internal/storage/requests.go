package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout is fixed-width so that created_at sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// CreateFeatureRequest inserts a pending feature request and returns it.
func (s *Store) CreateFeatureRequest(description string) (FeatureRequest, error) {
	now := time.Now().UTC()
	fr := FeatureRequest{
		ID:                  uuid.New().String(),
		Description:         description,
		Status:              StatusPending,
		Timestamp:           now,
		UpdatedAt:           now,
		GeneratedComponents: []string{},
	}
	_, err := s.db.Exec(`
		INSERT INTO feature_requests (id, description, status, created_at, updated_at, generated_files, error_message)
		VALUES (?, ?, ?, ?, ?, '[]', '')`,
		fr.ID, fr.Description, string(fr.Status), formatTime(now), formatTime(now),
	)
	if err != nil {
		return FeatureRequest{}, fmt.Errorf("inserting feature request: %w", err)
	}
	return fr, nil
}

// UpdateFeatureRequest sets the status, generated files and error message of
// an existing request. Unknown ids yield ErrNotFound.
func (s *Store) UpdateFeatureRequest(id string, status RequestStatus, files []string, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if files == nil {
		files = []string{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("marshalling generated files: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE feature_requests SET status = ?, generated_files = ?, error_message = ?, updated_at = ?
		WHERE id = ?`,
		string(status), string(filesJSON), errMsg, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("updating feature request %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("feature request %s: %w", id, ErrNotFound)
	}
	return nil
}

const featureRequestColumns = `id, description, status, created_at, updated_at, generated_files, error_message`

func (s *Store) GetFeatureRequest(id string) (FeatureRequest, error) {
	row := s.db.QueryRow(`SELECT `+featureRequestColumns+` FROM feature_requests WHERE id = ?`, id)
	fr, err := scanFeatureRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return FeatureRequest{}, fmt.Errorf("feature request %s: %w", id, ErrNotFound)
	}
	return fr, err
}

// ListFeatureRequests returns requests newest first. An empty status returns
// every status; limit <= 0 means no limit.
func (s *Store) ListFeatureRequests(status RequestStatus, limit int) ([]FeatureRequest, error) {
	if limit <= 0 {
		limit = -1
	}

	var (
		rows *sql.Rows
		err  error
	)
	if status == "" {
		rows, err = s.db.Query(`SELECT `+featureRequestColumns+` FROM feature_requests
			ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`SELECT `+featureRequestColumns+` FROM feature_requests
			WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`, string(status), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []FeatureRequest{}
	for rows.Next() {
		fr, err := scanFeatureRequest(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, fr)
	}
	return results, rows.Err()
}

// CountFeatureRequests returns the number of requests per status.
func (s *Store) CountFeatureRequests() (map[RequestStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM feature_requests GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[RequestStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[RequestStatus(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFeatureRequest(r rowScanner) (FeatureRequest, error) {
	var fr FeatureRequest
	var status, createdAt, updatedAt, filesJSON string
	if err := r.Scan(&fr.ID, &fr.Description, &status, &createdAt, &updatedAt, &filesJSON, &fr.Error); err != nil {
		return FeatureRequest{}, err
	}
	fr.Status = RequestStatus(status)

	var err error
	if fr.Timestamp, err = parseTime(createdAt); err != nil {
		return FeatureRequest{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if fr.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return FeatureRequest{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(filesJSON), &fr.GeneratedComponents); err != nil {
		return FeatureRequest{}, fmt.Errorf("parsing generated_files: %w", err)
	}
	if fr.GeneratedComponents == nil {
		fr.GeneratedComponents = []string{}
	}
	return fr, nil
}
