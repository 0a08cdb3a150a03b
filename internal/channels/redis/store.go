// Package redis provides a channel store backed by Redis with native key expiry.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/toplane-coaching/internal/channels"
	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// Config holds Redis connection settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Store keeps each record under its own key with a TTL matching the record expiry.
type Store struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewWithClient(client, cfg.KeyPrefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

func (s *Store) recordKey(sessionID string) string {
	return s.prefix + "record:" + sessionID
}

func (s *Store) claimKey(sessionID string) string {
	return s.prefix + "claim:" + sessionID
}

// Save writes the record with SET ... EX.
func (s *Store) Save(ctx context.Context, record domain.ChannelRecord) error {
	ttl := time.Duration(0)
	if record.ExpiresAt != nil {
		ttl = record.TTL(time.Now())
		if ttl <= 0 {
			return s.Delete(ctx, record.SessionID)
		}
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	if err := s.client.Set(ctx, s.recordKey(record.SessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("set record: %w", err)
	}
	return nil
}

// Get reads a record. Redis drops expired keys on its own.
func (s *Store) Get(ctx context.Context, sessionID string) (domain.ChannelRecord, error) {
	data, err := s.client.Get(ctx, s.recordKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ChannelRecord{}, channels.ErrNotFound
	}
	if err != nil {
		return domain.ChannelRecord{}, fmt.Errorf("get record: %w", err)
	}

	var record domain.ChannelRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.ChannelRecord{}, fmt.Errorf("unmarshal record: %w", err)
	}
	return record, nil
}

// List scans all record keys.
func (s *Store) List(ctx context.Context) ([]domain.ChannelRecord, error) {
	var out []domain.ChannelRecord
	iter := s.client.Scan(ctx, 0, s.recordKey("*"), scanBatch).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}
	if len(keys) == 0 {
		return []domain.ChannelRecord{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var record domain.ChannelRecord
		if err := json.Unmarshal([]byte(str), &record); err != nil {
			return nil, fmt.Errorf("unmarshal record: %w", err)
		}
		out = append(out, record)
	}

	channels.SortByCreatedAt(out)
	return out, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.recordKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// Claim uses SET NX so only one caller wins per session.
func (s *Store) Claim(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.claimKey(sessionID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim session: %w", err)
	}
	return ok, nil
}

// Release deletes the claim key.
func (s *Store) Release(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.claimKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

var _ channels.Store = (*Store)(nil)
