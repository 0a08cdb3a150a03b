package channels

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/pkg/ctxlog"
	"github.com/bissquit/toplane-coaching/internal/pkg/metrics"
)

// Correlator maps checkout sessions to channel records.
// Writes never fail the caller: when the primary store errors, the record
// is kept in the fallback so the success page can still find it.
type Correlator struct {
	primary   Store
	fallback  Store
	retention time.Duration
	now       func() time.Time
}

// CorrelatorConfig configures the correlator.
type CorrelatorConfig struct {
	// Retention is how long a record stays visible. Zero keeps records forever.
	Retention time.Duration
}

// NewCorrelator creates a correlator. fallback may be nil when primary is already in-process.
func NewCorrelator(primary, fallback Store, cfg CorrelatorConfig) *Correlator {
	return &Correlator{
		primary:   primary,
		fallback:  fallback,
		retention: cfg.Retention,
		now:       time.Now,
	}
}

// Retention returns the configured retention window.
func (c *Correlator) Retention() time.Duration {
	return c.retention
}

// NewRecord stamps creation and expiry times on a record.
func (c *Correlator) NewRecord(record domain.ChannelRecord) domain.ChannelRecord {
	now := c.now().UTC()
	record.CreatedAt = now
	record.ExpiresAt = nil
	if c.retention > 0 {
		expires := now.Add(c.retention)
		record.ExpiresAt = &expires
	}
	return record
}

// Store persists a record. Errors are logged and absorbed.
func (c *Correlator) Store(ctx context.Context, record domain.ChannelRecord) {
	log := ctxlog.FromContext(ctx)

	err := c.primary.Save(ctx, record)
	if err == nil {
		log.Info("channel record stored", "session_id", record.SessionID, "plan", record.PlanType)
		return
	}

	log.Error("failed to store channel record, keeping in memory",
		"session_id", record.SessionID,
		"error", err,
	)
	metrics.StoreFallbacks.WithLabelValues("save").Inc()

	if c.fallback == nil {
		return
	}
	if err := c.fallback.Save(ctx, record); err != nil {
		log.Error("fallback store failed", "session_id", record.SessionID, "error", err)
	}
}

// Get returns the record for sessionID and whether it was found.
func (c *Correlator) Get(ctx context.Context, sessionID string) (domain.ChannelRecord, bool) {
	record, err := c.primary.Get(ctx, sessionID)
	if err == nil {
		return record, true
	}
	if !errors.Is(err, ErrNotFound) {
		ctxlog.FromContext(ctx).Error("failed to read channel record", "session_id", sessionID, "error", err)
		metrics.StoreFallbacks.WithLabelValues("get").Inc()
	}

	if c.fallback == nil {
		return domain.ChannelRecord{}, false
	}
	record, err = c.fallback.Get(ctx, sessionID)
	if err != nil {
		return domain.ChannelRecord{}, false
	}
	return record, true
}

// List returns all retained records from both stores, newest first.
func (c *Correlator) List(ctx context.Context) ([]domain.ChannelRecord, error) {
	records, err := c.primary.List(ctx)
	if err != nil {
		return nil, err
	}
	if c.fallback == nil {
		return records, nil
	}

	extra, err := c.fallback.List(ctx)
	if err != nil || len(extra) == 0 {
		return records, nil
	}

	seen := make(map[string]bool, len(records))
	for _, r := range records {
		seen[r.SessionID] = true
	}
	for _, r := range extra {
		if !seen[r.SessionID] {
			records = append(records, r)
		}
	}
	SortByCreatedAt(records)
	return records, nil
}

// FindByEmail returns the newest record for the customer email.
func (c *Correlator) FindByEmail(ctx context.Context, email string) (domain.ChannelRecord, bool) {
	records, err := c.List(ctx)
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to list channel records", "error", err)
		return domain.ChannelRecord{}, false
	}
	for _, r := range records {
		if strings.EqualFold(r.CustomerEmail, email) {
			return r, true
		}
	}
	return domain.ChannelRecord{}, false
}

// Expire removes a record from both stores.
func (c *Correlator) Expire(ctx context.Context, sessionID string) error {
	if c.fallback != nil {
		_ = c.fallback.Delete(ctx, sessionID)
	}
	return c.primary.Delete(ctx, sessionID)
}

// Claim reserves a session for provisioning. When the primary store is
// unreachable the claim is taken in the fallback.
func (c *Correlator) Claim(ctx context.Context, sessionID string, ttl time.Duration) bool {
	ok, err := c.primary.Claim(ctx, sessionID, ttl)
	if err == nil {
		return ok
	}

	ctxlog.FromContext(ctx).Error("failed to claim session", "session_id", sessionID, "error", err)
	metrics.StoreFallbacks.WithLabelValues("claim").Inc()

	if c.fallback == nil {
		return true
	}
	ok, err = c.fallback.Claim(ctx, sessionID, ttl)
	return err != nil || ok
}

// Release drops a claim from both stores.
func (c *Correlator) Release(ctx context.Context, sessionID string) {
	if err := c.primary.Release(ctx, sessionID); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to release claim", "session_id", sessionID, "error", err)
	}
	if c.fallback != nil {
		_ = c.fallback.Release(ctx, sessionID)
	}
}

// Ping checks the primary store.
func (c *Correlator) Ping(ctx context.Context) error {
	return c.primary.Ping(ctx)
}

// Close closes both stores.
func (c *Correlator) Close() error {
	var errs []error
	if err := c.primary.Close(); err != nil {
		errs = append(errs, err)
	}
	if c.fallback != nil {
		if err := c.fallback.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunSweeper periodically removes expired records until ctx is cancelled.
func (c *Correlator) RunSweeper(ctx context.Context, interval time.Duration) {
	sweepers := make([]Sweeper, 0, 2)
	for _, s := range []Store{c.primary, c.fallback} {
		if sw, ok := s.(Sweeper); ok {
			sweepers = append(sweepers, sw)
		}
	}
	if len(sweepers) == 0 || c.retention <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep(ctx, sweepers)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Correlator) sweep(ctx context.Context, sweepers []Sweeper) {
	now := c.now()
	for _, sw := range sweepers {
		removed, err := sw.DeleteExpired(ctx, now)
		if err != nil {
			slog.Error("failed to delete expired channel records", "error", err)
			continue
		}
		if removed > 0 {
			metrics.StoreExpired.Add(float64(removed))
			slog.Info("expired channel records removed", "count", removed)
		}
	}
}
