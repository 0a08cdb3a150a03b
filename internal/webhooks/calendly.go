package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bissquit/toplane-coaching/internal/discord"
	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/pkg/ctxlog"
	"github.com/bissquit/toplane-coaching/internal/pkg/httputil"
	"github.com/bissquit/toplane-coaching/internal/pkg/metrics"
	"github.com/go-chi/chi/v5"
)

// CalendlySignatureHeader carries the booking webhook signature.
const CalendlySignatureHeader = "Calendly-Webhook-Signature"

const (
	calendlyInviteeCreated = "invitee.created"
	signatureTolerance     = 3 * time.Minute
)

// Signature errors.
var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrBadSignature     = errors.New("webhook signature mismatch")
	ErrStaleSignature   = errors.New("webhook timestamp outside tolerance")
)

// Notifier delivers admin notifications.
type Notifier interface {
	Notify(ctx context.Context, content string) error
}

// RecordFinder looks up customer channels by email.
type RecordFinder interface {
	FindByEmail(ctx context.Context, email string) (domain.ChannelRecord, bool)
}

// MessagePoster posts into a channel.
type MessagePoster interface {
	CreateMessage(ctx context.Context, channelID string, msg discord.Message) (discord.SentMessage, error)
}

// CalendlyConfig configures the booking webhook.
type CalendlyConfig struct {
	SigningKey string
	// InviteURL is the server invite shared with booked customers.
	InviteURL string
}

// CalendlyHandler receives booking notifications.
type CalendlyHandler struct {
	config   CalendlyConfig
	notifier Notifier
	records  RecordFinder
	poster   MessagePoster
	now      func() time.Time
}

// NewCalendlyHandler creates a booking webhook handler.
func NewCalendlyHandler(cfg CalendlyConfig, notifier Notifier, records RecordFinder, poster MessagePoster) *CalendlyHandler {
	return &CalendlyHandler{
		config:   cfg,
		notifier: notifier,
		records:  records,
		poster:   poster,
		now:      time.Now,
	}
}

// RegisterRoutes registers the webhook route.
func (h *CalendlyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/calendly", h.Receive)
}

// calendlyPayload accepts both the legacy layout (payload.event, payload.invitee)
// and the current one (payload.email, payload.scheduled_event).
type calendlyPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Email          string        `json:"email"`
		Name           string        `json:"name"`
		ScheduledEvent calendlyEvent `json:"scheduled_event"`
		Event          calendlyEvent `json:"event"`
		Invitee        struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"invitee"`
	} `json:"payload"`
}

type calendlyEvent struct {
	Name      string `json:"name"`
	StartTime string `json:"start_time"`
}

// Booking is a scheduled coaching session.
type Booking struct {
	CustomerEmail string
	CustomerName  string
	SessionName   string
	StartTime     time.Time
}

func (p calendlyPayload) booking() Booking {
	b := Booking{
		CustomerEmail: firstNonEmpty(p.Payload.Email, p.Payload.Invitee.Email),
		CustomerName:  firstNonEmpty(p.Payload.Name, p.Payload.Invitee.Name),
		SessionName:   firstNonEmpty(p.Payload.ScheduledEvent.Name, p.Payload.Event.Name),
	}
	start := firstNonEmpty(p.Payload.ScheduledEvent.StartTime, p.Payload.Event.StartTime)
	if t, err := time.Parse(time.RFC3339, start); err == nil {
		b.StartTime = t
	}
	return b
}

// Receive handles POST /webhooks/calendly.
func (h *CalendlyHandler) Receive(w http.ResponseWriter, r *http.Request) {
	log := ctxlog.FromContext(r.Context())

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if h.config.SigningKey != "" {
		if err := VerifyCalendlySignature(body, r.Header.Get(CalendlySignatureHeader), h.config.SigningKey, h.now()); err != nil {
			metrics.WebhookEvents.WithLabelValues("calendly", "unknown", "rejected").Inc()
			log.Warn("calendly webhook verification failed", "error", err)
			httputil.Error(w, http.StatusUnauthorized, "invalid webhook signature")
			return
		}
	}

	var payload calendlyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		metrics.WebhookEvents.WithLabelValues("calendly", "unknown", "invalid").Inc()
		httputil.Error(w, http.StatusBadRequest, "webhook processing failed")
		return
	}

	result := "ignored"
	if payload.Event == calendlyInviteeCreated {
		result = h.handleBooking(r.Context(), payload.booking())
	} else {
		log.Info("unhandled calendly event", "event_type", payload.Event)
	}

	metrics.WebhookEvents.WithLabelValues("calendly", payload.Event, result).Inc()
	httputil.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *CalendlyHandler) handleBooking(ctx context.Context, b Booking) string {
	log := ctxlog.FromContext(ctx).With("customer_email", b.CustomerEmail, "session", b.SessionName)

	record, found := domain.ChannelRecord{}, false
	if b.CustomerEmail != "" {
		record, found = h.records.FindByEmail(ctx, b.CustomerEmail)
	}

	if err := h.notifier.Notify(ctx, bookingMessage(b, record, found)); err != nil {
		log.Error("failed to send booking notification", "error", err)
	}

	if !found || record.ChannelID == "" {
		log.Info("booking received, no customer channel on record")
		return "notified"
	}

	if _, err := h.poster.CreateMessage(ctx, record.ChannelID, discord.Message{Content: inviteMessage(b, h.config.InviteURL)}); err != nil {
		log.Error("failed to post session invite", "channel_id", record.ChannelID, "error", err)
		return "notified"
	}
	log.Info("session invite posted", "channel_id", record.ChannelID)
	return "invited"
}

// VerifyCalendlySignature checks a "t=<unix>,v1=<hex>" header against
// HMAC-SHA256(key, t + "." + body).
func VerifyCalendlySignature(body []byte, header, key string, now time.Time) error {
	if header == "" {
		return ErrMissingSignature
	}

	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			timestamp = v
		case "v1":
			signature = v
		}
	}
	if timestamp == "" || signature == "" {
		return ErrMissingSignature
	}

	unix, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrBadSignature)
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrStaleSignature
	}

	got, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: bad encoding", ErrBadSignature)
	}
	if !hmac.Equal(got, calendlyMAC(key, timestamp, body)) {
		return ErrBadSignature
	}
	return nil
}

// SignCalendlyPayload builds a signature header for body at ts.
func SignCalendlyPayload(body []byte, key string, ts time.Time) string {
	t := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + t + ",v1=" + hex.EncodeToString(calendlyMAC(key, t, body))
}

func calendlyMAC(key, timestamp string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

func bookingMessage(b Booking, record domain.ChannelRecord, found bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🗓️ **New Calendly Booking!**\n**Customer:** %s (%s)\n**Session:** %s\n**Time:** %s",
		valueOr(b.CustomerName, "Unknown"),
		valueOr(b.CustomerEmail, "no email"),
		valueOr(b.SessionName, "Coaching session"),
		formatSessionTime(b.StartTime),
	)
	if found {
		fmt.Fprintf(&sb, "\n**Channel:** <%s>\n\nSession invite posted to their private channel.", record.ChannelURL)
	} else {
		sb.WriteString("\n\nPlease send Discord server invite to their private channel!")
	}
	return sb.String()
}

func inviteMessage(b Booking, inviteURL string) string {
	var sb strings.Builder
	sb.WriteString("🎮 **Your coaching session is booked!**\n\n")
	fmt.Fprintf(&sb, "**Session Time:** %s\n", formatSessionTime(b.StartTime))
	if inviteURL != "" {
		fmt.Fprintf(&sb, "**Join our Discord server:** %s\n", inviteURL)
	}
	sb.WriteString("**Voice Channel:** Look for \"Premium Coaching\" channels\n")
	sb.WriteString("**What to bring:**\n• Your questions ready\n• OP.GG profile open\n• Recent replays if needed\n\nSee you soon! ⚡")
	return sb.String()
}

func formatSessionTime(t time.Time) string {
	if t.IsZero() {
		return "not provided"
	}
	return t.UTC().Format("Mon, Jan 2 2006 15:04 UTC")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
