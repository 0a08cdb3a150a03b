// Package memory provides an in-process channel store backed by go-cache.
package memory

import (
	"context"
	"time"

	"github.com/bissquit/toplane-coaching/internal/channels"
	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/patrickmn/go-cache"
)

const cleanupInterval = time.Minute

// Store keeps records in process memory. Contents are lost on restart.
type Store struct {
	records *cache.Cache
	claims  *cache.Cache
	now     func() time.Time
}

// Option configures the store.
type Option func(*Store)

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty memory store.
func New(opts ...Option) *Store {
	s := &Store{
		records: cache.New(cache.NoExpiration, cleanupInterval),
		claims:  cache.New(cache.NoExpiration, cleanupInterval),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores the record until its expiry.
func (s *Store) Save(_ context.Context, record domain.ChannelRecord) error {
	ttl := cache.NoExpiration
	if record.ExpiresAt != nil {
		ttl = record.TTL(s.now())
		if ttl <= 0 {
			s.records.Delete(record.SessionID)
			return nil
		}
	}
	s.records.Set(record.SessionID, record, ttl)
	return nil
}

// Get returns the live record for sessionID.
func (s *Store) Get(_ context.Context, sessionID string) (domain.ChannelRecord, error) {
	item, ok := s.records.Get(sessionID)
	if !ok {
		return domain.ChannelRecord{}, channels.ErrNotFound
	}
	record := item.(domain.ChannelRecord)
	if record.Expired(s.now()) {
		s.records.Delete(sessionID)
		return domain.ChannelRecord{}, channels.ErrNotFound
	}
	return record, nil
}

// List returns all live records, newest first.
func (s *Store) List(_ context.Context) ([]domain.ChannelRecord, error) {
	now := s.now()
	items := s.records.Items()
	out := make([]domain.ChannelRecord, 0, len(items))
	for _, item := range items {
		record := item.Object.(domain.ChannelRecord)
		if record.Expired(now) {
			continue
		}
		out = append(out, record)
	}
	channels.SortByCreatedAt(out)
	return out, nil
}

// Delete removes the record.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.records.Delete(sessionID)
	return nil
}

// Claim reserves sessionID. go-cache Add fails while a live entry exists.
func (s *Store) Claim(_ context.Context, sessionID string, ttl time.Duration) (bool, error) {
	if err := s.claims.Add(sessionID, struct{}{}, ttl); err != nil {
		return false, nil
	}
	return true, nil
}

// Release drops a claim.
func (s *Store) Release(_ context.Context, sessionID string) error {
	s.claims.Delete(sessionID)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// DeleteExpired removes records that passed their expiry according to the store clock.
func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for id, item := range s.records.Items() {
		if item.Object.(domain.ChannelRecord).Expired(now) {
			s.records.Delete(id)
			removed++
		}
	}
	s.records.DeleteExpired()
	return removed, nil
}

var (
	_ channels.Store   = (*Store)(nil)
	_ channels.Sweeper = (*Store)(nil)
)
