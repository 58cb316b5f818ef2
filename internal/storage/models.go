package storage

import (
	"time"

	"github.com/kalambet/evodash/internal/apperr"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = apperr.New(apperr.CodeNotFound, "not found")

// RequestStatus is the lifecycle state of a feature request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusFailed     RequestStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

type FeatureRequest struct {
	ID                  string        `json:"id"`
	Description         string        `json:"description"`
	Status              RequestStatus `json:"status"`
	Timestamp           time.Time     `json:"timestamp"`
	UpdatedAt           time.Time     `json:"updatedAt"`
	GeneratedComponents []string      `json:"generatedComponents"`
	Error               string        `json:"error,omitempty"`
}

type SpecRevision struct {
	ID        int64     `json:"id"`
	Version   string    `json:"version"`
	Diff      string    `json:"diff"`
	CreatedAt time.Time `json:"createdAt"`
}
