// Package postgres implements the channel store using PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/toplane-coaching/internal/channels"
	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements channels.Store using PostgreSQL.
type Store struct {
	db *pgxpool.Pool
}

// NewStore creates a new PostgreSQL store. The pool is owned by the caller.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `session_id, channel_id, channel_url, plan_type, customer_email, customer_name, created_at, expires_at`

// Save upserts a record.
func (s *Store) Save(ctx context.Context, record domain.ChannelRecord) error {
	query := `
		INSERT INTO channel_records (` + selectColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (session_id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			channel_url = EXCLUDED.channel_url,
			plan_type = EXCLUDED.plan_type,
			customer_email = EXCLUDED.customer_email,
			customer_name = EXCLUDED.customer_name,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at
	`
	_, err := s.db.Exec(ctx, query,
		record.SessionID,
		record.ChannelID,
		record.ChannelURL,
		string(record.PlanType),
		record.CustomerEmail,
		record.CustomerName,
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert channel record: %w", err)
	}
	return nil
}

// Get returns a live record.
func (s *Store) Get(ctx context.Context, sessionID string) (domain.ChannelRecord, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM channel_records
		WHERE session_id = $1 AND (expires_at IS NULL OR expires_at > NOW())
	`
	record, err := scanRecord(s.db.QueryRow(ctx, query, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ChannelRecord{}, channels.ErrNotFound
	}
	if err != nil {
		return domain.ChannelRecord{}, fmt.Errorf("get channel record: %w", err)
	}
	return record, nil
}

// List returns live records, newest first.
func (s *Store) List(ctx context.Context) ([]domain.ChannelRecord, error) {
	query := `
		SELECT ` + selectColumns + `
		FROM channel_records
		WHERE expires_at IS NULL OR expires_at > NOW()
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list channel records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.ChannelRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channel records: %w", err)
	}
	return records, nil
}

// Delete removes a record.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM channel_records WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("delete channel record: %w", err)
	}
	return nil
}

// Claim inserts a claim row, replacing it only when the previous claim expired.
func (s *Store) Claim(ctx context.Context, sessionID string, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO channel_claims (session_id, expires_at)
		VALUES ($1, NOW() + $2::interval)
		ON CONFLICT (session_id) DO UPDATE SET expires_at = EXCLUDED.expires_at
		WHERE channel_claims.expires_at <= NOW()
	`
	tag, err := s.db.Exec(ctx, query, sessionID, fmt.Sprintf("%d milliseconds", ttl.Milliseconds()))
	if err != nil {
		return false, fmt.Errorf("claim session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release deletes a claim.
func (s *Store) Release(ctx context.Context, sessionID string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM channel_claims WHERE session_id = $1`, sessionID); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close is a no-op; the pool belongs to the caller.
func (s *Store) Close() error {
	return nil
}

// DeleteExpired removes expired records and claims.
func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM channel_records WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired records: %w", err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM channel_claims WHERE expires_at <= $1`, now); err != nil {
		return 0, fmt.Errorf("delete expired claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRecord(row pgx.Row) (domain.ChannelRecord, error) {
	var record domain.ChannelRecord
	var planType string
	err := row.Scan(
		&record.SessionID,
		&record.ChannelID,
		&record.ChannelURL,
		&planType,
		&record.CustomerEmail,
		&record.CustomerName,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		return domain.ChannelRecord{}, err
	}
	record.PlanType = domain.PlanID(planType)
	return record, nil
}

var (
	_ channels.Store   = (*Store)(nil)
	_ channels.Sweeper = (*Store)(nil)
)
