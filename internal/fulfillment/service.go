package fulfillment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/toplane-coaching/internal/channels"
	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/payments"
	"github.com/bissquit/toplane-coaching/internal/pkg/ctxlog"
	"github.com/bissquit/toplane-coaching/internal/pkg/metrics"
)

const defaultClaimTTL = 5 * time.Minute

// ChannelProvisioner creates customer channels.
type ChannelProvisioner interface {
	Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error)
}

// Notifier delivers admin notifications.
type Notifier interface {
	Notify(ctx context.Context, content string) error
}

// Config configures the fulfillment service.
type Config struct {
	// ClaimTTL bounds how long a session stays reserved while provisioning.
	ClaimTTL time.Duration
}

// Service fulfills paid orders exactly once per checkout session.
type Service struct {
	correlator  *channels.Correlator
	provisioner ChannelProvisioner
	notifier    Notifier
	payments    payments.Provider
	claimTTL    time.Duration
	now         func() time.Time
}

// NewService creates a fulfillment service.
func NewService(
	correlator *channels.Correlator,
	provisioner ChannelProvisioner,
	notifier Notifier,
	provider payments.Provider,
	cfg Config,
) *Service {
	if cfg.ClaimTTL <= 0 {
		cfg.ClaimTTL = defaultClaimTTL
	}
	return &Service{
		correlator:  correlator,
		provisioner: provisioner,
		notifier:    notifier,
		payments:    provider,
		claimTTL:    cfg.ClaimTTL,
		now:         time.Now,
	}
}

// Fulfill provisions a channel for order and records the outcome.
func (s *Service) Fulfill(ctx context.Context, order Order) Outcome {
	start := s.now()
	outcome := s.fulfill(ctx, order)
	outcome.SessionID = order.SessionID
	outcome.Duration = s.now().Sub(start)

	s.report(ctx, order, outcome)
	return outcome
}

// ProvisionSession fulfills a session looked up from the payment provider.
// It returns an error only when the session cannot be turned into an order.
func (s *Service) ProvisionSession(ctx context.Context, sessionID string, source Source) (Outcome, error) {
	if sessionID == "" {
		return Outcome{}, ErrMissingSession
	}

	if record, ok := s.correlator.Get(ctx, sessionID); ok {
		outcome := Outcome{Status: StatusDuplicate, SessionID: sessionID, Record: &record}
		metrics.FulfillmentOutcomes.WithLabelValues(string(source), string(outcome.Status)).Inc()
		return outcome, nil
	}

	sess, err := s.payments.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get checkout session: %w", err)
	}
	if !sess.Paid() {
		return Outcome{}, fmt.Errorf("%w: %s", ErrSessionNotPaid, sess.PaymentStatus)
	}
	if sess.CustomerEmail == "" {
		return Outcome{}, ErrMissingEmail
	}

	return s.Fulfill(ctx, OrderFromSession(sess, source)), nil
}

func (s *Service) fulfill(ctx context.Context, order Order) Outcome {
	plan, err := validate(order)
	if err != nil {
		return Outcome{Status: StatusSkipped, Err: err}
	}

	if record, ok := s.correlator.Get(ctx, order.SessionID); ok {
		return Outcome{Status: StatusDuplicate, Record: &record}
	}

	if !s.correlator.Claim(ctx, order.SessionID, s.claimTTL) {
		return Outcome{Status: StatusInProgress}
	}

	result, err := s.provisioner.Provision(ctx, ProvisionRequest{
		Plan:          plan,
		SessionID:     order.SessionID,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
	})
	if err != nil {
		s.correlator.Release(ctx, order.SessionID)
		return Outcome{Status: StatusFailed, Err: err}
	}

	record := s.correlator.NewRecord(domain.ChannelRecord{
		SessionID:     order.SessionID,
		ChannelID:     result.ChannelID,
		ChannelURL:    result.ChannelURL,
		PlanType:      plan.ID,
		CustomerEmail: order.CustomerEmail,
		CustomerName:  order.CustomerName,
	})
	s.correlator.Store(ctx, record)

	if err := s.notifier.Notify(ctx, newCustomerMessage(order, record)); err != nil {
		ctxlog.FromContext(ctx).Warn("failed to send admin notification", "session_id", order.SessionID, "error", err)
	}

	return Outcome{Status: StatusProvisioned, Record: &record}
}

func validate(order Order) (domain.Plan, error) {
	if order.SessionID == "" {
		return domain.Plan{}, ErrMissingSession
	}
	if order.PlanID == "" {
		return domain.Plan{}, ErrMissingPlan
	}
	plan, ok := domain.LookupPlan(order.PlanID)
	if !ok {
		return domain.Plan{}, fmt.Errorf("%w: %q", domain.ErrUnknownPlan, order.PlanID)
	}
	if strings.TrimSpace(order.CustomerEmail) == "" {
		return domain.Plan{}, ErrMissingEmail
	}
	return plan, nil
}

// report logs and counts the outcome and alerts admins when someone paid
// without getting a channel.
func (s *Service) report(ctx context.Context, order Order, outcome Outcome) {
	metrics.FulfillmentOutcomes.WithLabelValues(string(order.Source), string(outcome.Status)).Inc()

	log := ctxlog.FromContext(ctx).With(
		"session_id", order.SessionID,
		"plan", order.PlanID,
		"source", order.Source,
		"status", outcome.Status,
		"duration", outcome.Duration,
	)

	switch outcome.Status {
	case StatusProvisioned:
		metrics.FulfillmentDuration.Observe(outcome.Duration.Seconds())
		log.Info("order fulfilled", "channel_url", outcome.Record.ChannelURL)
	case StatusDuplicate:
		log.Info("order already fulfilled", "channel_url", outcome.Record.ChannelURL)
	case StatusInProgress:
		log.Info("order is being fulfilled elsewhere")
	case StatusSkipped, StatusFailed:
		level := slog.LevelWarn
		if outcome.Status == StatusFailed {
			level = slog.LevelError
		}
		log.Log(ctx, level, "order not fulfilled", "error", outcome.Err)

		if err := s.notifier.Notify(ctx, failureMessage(order, outcome)); err != nil {
			log.Error("failed to alert admins", "error", err)
		}
	}
}

func newCustomerMessage(order Order, record domain.ChannelRecord) string {
	title := "🎉 **New Customer!**"
	if order.Source == SourceE2E {
		title = "🧪 **TEST - New Customer!**"
	}
	return fmt.Sprintf("%s\n**Plan:** %s\n**Email:** %s\n**Channel:** <%s>\n**Amount:** %s",
		title,
		strings.ToUpper(string(record.PlanType)),
		record.CustomerEmail,
		record.ChannelURL,
		formatAmount(order.AmountTotal, order.Currency),
	)
}

func failureMessage(order Order, outcome Outcome) string {
	title := "⚠️ **Provisioning failed**"
	if outcome.Status == StatusSkipped {
		title = "⚠️ **Paid order skipped**"
	}
	return fmt.Sprintf("%s\n**Session:** %s\n**Plan:** %s\n**Email:** %s\n**Source:** %s\n**Error:** %v",
		title,
		order.SessionID,
		valueOr(string(order.PlanID), "unknown"),
		valueOr(order.CustomerEmail, "unknown"),
		order.Source,
		outcome.Err,
	)
}

func formatAmount(cents int64, currency string) string {
	if cents <= 0 {
		return "N/A"
	}
	amount := strconv.FormatFloat(float64(cents)/100, 'f', -1, 64)
	if currency == "" || strings.EqualFold(currency, "eur") {
		return "€" + amount
	}
	return amount + " " + strings.ToUpper(currency)
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
