// Package store persists usage profiles and the generation log. SQL works
// against SQLite and PostgreSQL; Memory serves tests and single-process runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hyperifyio/postforge/internal/generator"
	"github.com/hyperifyio/postforge/internal/platform"
	"github.com/hyperifyio/postforge/internal/quota"
)

var (
	// ErrNotFound is returned when a profile does not exist.
	ErrNotFound = quota.ErrNotFound
	// ErrGenerationNotFound is returned for unknown or foreign generation ids.
	ErrGenerationNotFound = errors.New("generation not found")
	// ErrInvalidTransition is returned for a disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is a generation's lifecycle state.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

// CanTransition reports whether from -> to is allowed. The lifecycle only
// moves forward: completed -> archived -> deleted, or completed -> deleted.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusCompleted:
		return to == StatusArchived || to == StatusDeleted
	case StatusArchived:
		return to == StatusDeleted
	}
	return false
}

// GenerationRecord is one persisted generation.
type GenerationRecord struct {
	ID             string                           `json:"id"`
	UserID         string                           `json:"userId"`
	InputContent   string                           `json:"inputContent"`
	SourceURL      string                           `json:"sourceUrl,omitempty"`
	Platforms      []platform.ID                    `json:"platforms"`
	Posts          map[platform.ID][]generator.Post `json:"posts"`
	TokensUsed     int                              `json:"tokensUsed"`
	WordsGenerated int                              `json:"wordsGenerated"`
	Model          string                           `json:"model"`
	Fallback       bool                             `json:"fallback"`
	Status         Status                           `json:"status"`
	CreatedAt      time.Time                        `json:"createdAt"`
}

// GenerationLog stores generation records.
type GenerationLog interface {
	InsertGeneration(ctx context.Context, rec GenerationRecord) (string, error)
	ListGenerations(ctx context.Context, userID string, limit int) ([]GenerationRecord, error)
	SetGenerationStatus(ctx context.Context, userID, id string, status Status) error
}

// Store is the full persistence surface.
type Store interface {
	quota.Store
	GenerationLog
	Close() error
}

// DefaultListLimit bounds ListGenerations when limit is not positive.
const DefaultListLimit = 50

func listLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return DefaultListLimit
	}
	return limit
}

func transitionError(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
