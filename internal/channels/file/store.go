// Package file provides a single-host channel store persisted as one JSON document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bissquit/toplane-coaching/internal/channels"
	"github.com/bissquit/toplane-coaching/internal/domain"
)

// Store keeps records in a JSON object keyed by session id.
// Writes go to a temporary file that is renamed over the target.
type Store struct {
	path string
	now  func() time.Time

	mu      sync.Mutex
	records map[string]domain.ChannelRecord
	modTime time.Time
	size    int64
	claims  map[string]time.Time
}

// Open loads the store at path, creating parent directories when needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	s := &Store{
		path:    path,
		now:     time.Now,
		records: make(map[string]domain.ChannelRecord),
		claims:  make(map[string]time.Time),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reloadLocked(true); err != nil {
		return nil, err
	}

	slog.Info("file channel store opened", "path", path, "records", len(s.records))
	return s, nil
}

// SetClock overrides the time source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// reloadLocked re-reads the file when its modification time or size changed
// since the last read.
func (s *Store) reloadLocked(force bool) error {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.records = make(map[string]domain.ChannelRecord)
		s.modTime = time.Time{}
		s.size = 0
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat store file: %w", err)
	}

	// mtime alone misses same-tick writes on coarse-timestamp filesystems
	if !force && info.ModTime().Equal(s.modTime) && info.Size() == s.size {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read store file: %w", err)
	}

	records := make(map[string]domain.ChannelRecord)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("decode store file: %w", err)
		}
	}

	now := s.now()
	for id, r := range records {
		if r.Expired(now) {
			delete(records, id)
		}
	}

	s.records = records
	s.modTime = info.ModTime()
	s.size = info.Size()
	return nil
}

func (s *Store) writeLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".channel-store-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}

	if info, err := os.Stat(s.path); err == nil {
		s.modTime = info.ModTime()
		s.size = info.Size()
	}
	return nil
}

// Save inserts or overwrites a record and persists the file.
func (s *Store) Save(_ context.Context, record domain.ChannelRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadLocked(false); err != nil {
		return err
	}
	s.records[record.SessionID] = record
	return s.writeLocked()
}

// Get returns the live record for sessionID.
func (s *Store) Get(_ context.Context, sessionID string) (domain.ChannelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadLocked(false); err != nil {
		return domain.ChannelRecord{}, err
	}

	record, ok := s.records[sessionID]
	if !ok || record.Expired(s.now()) {
		return domain.ChannelRecord{}, channels.ErrNotFound
	}
	return record, nil
}

// List returns all live records, newest first.
func (s *Store) List(_ context.Context) ([]domain.ChannelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadLocked(false); err != nil {
		return nil, err
	}

	now := s.now()
	out := make([]domain.ChannelRecord, 0, len(s.records))
	for _, r := range s.records {
		if !r.Expired(now) {
			out = append(out, r)
		}
	}
	channels.SortByCreatedAt(out)
	return out, nil
}

// Delete removes a record.
func (s *Store) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadLocked(false); err != nil {
		return err
	}
	if _, ok := s.records[sessionID]; !ok {
		return nil
	}
	delete(s.records, sessionID)
	return s.writeLocked()
}

// Claim reserves sessionID within this process.
func (s *Store) Claim(_ context.Context, sessionID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.claims[sessionID]; ok && now.Before(until) {
		return false, nil
	}
	s.claims[sessionID] = now.Add(ttl)
	return true, nil
}

// Release drops a claim.
func (s *Store) Release(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claims, sessionID)
	return nil
}

// Ping checks that the store directory is reachable.
func (s *Store) Ping(_ context.Context) error {
	if _, err := os.Stat(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("stat store directory: %w", err)
	}
	return nil
}

// Close is a no-op; every write is already durable.
func (s *Store) Close() error {
	return nil
}

// DeleteExpired prunes expired records and stale claims.
func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reloadLocked(false); err != nil {
		return 0, err
	}

	for id, until := range s.claims {
		if !now.Before(until) {
			delete(s.claims, id)
		}
	}

	removed := 0
	for id, r := range s.records {
		if r.Expired(now) {
			delete(s.records, id)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, s.writeLocked()
}

var (
	_ channels.Store   = (*Store)(nil)
	_ channels.Sweeper = (*Store)(nil)
)
