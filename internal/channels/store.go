// Package channels correlates checkout sessions with the private channels created for them.
package channels

import (
	"context"
	"slices"
	"time"

	"github.com/bissquit/toplane-coaching/internal/domain"
)

// Store defines the data access interface for channel records.
// Implementations must never return an expired record.
type Store interface {
	// Save inserts or overwrites the record keyed by its session id.
	Save(ctx context.Context, record domain.ChannelRecord) error
	// Get returns ErrNotFound when no live record exists.
	Get(ctx context.Context, sessionID string) (domain.ChannelRecord, error)
	List(ctx context.Context) ([]domain.ChannelRecord, error)
	Delete(ctx context.Context, sessionID string) error
	// Claim atomically reserves a session id for ttl. It reports false when
	// another caller holds a live claim.
	Claim(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, sessionID string) error
	Ping(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores that need explicit removal of expired records.
type Sweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// SortByCreatedAt orders records newest first.
func SortByCreatedAt(records []domain.ChannelRecord) {
	slices.SortFunc(records, func(a, b domain.ChannelRecord) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}
