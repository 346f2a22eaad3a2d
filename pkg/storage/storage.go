package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/fateweaver/pkg/engine"
)

// ErrLocked is returned when another request holds the playthrough lock
var ErrLocked = errors.New("playthrough is busy")

// Playthrough is the persisted form of one engine state
type Playthrough struct {
	ID        uuid.UUID    `json:"id"`
	State     engine.State `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NewPlaythrough wraps a fresh state with a new id.
func NewPlaythrough(s engine.State) *Playthrough {
	now := time.Now()
	return &Playthrough{
		ID:        uuid.New(),
		State:     s,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Storage persists playthroughs between requests
type Storage interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// LoadPlaythrough returns (nil, nil) when id is unknown or expired.
	SavePlaythrough(ctx context.Context, p *Playthrough) error
	LoadPlaythrough(ctx context.Context, id uuid.UUID) (*Playthrough, error)
	DeletePlaythrough(ctx context.Context, id uuid.UUID) error

	// AcquireLock returns a token for ReleaseLock, or ErrLocked.
	// The lock expires after ttl if never released.
	AcquireLock(ctx context.Context, id uuid.UUID, ttl time.Duration) (string, error)
	ReleaseLock(ctx context.Context, id uuid.UUID, token string) error
}
