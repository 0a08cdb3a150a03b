package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/toplane-coaching/internal/config"
	"github.com/bissquit/toplane-coaching/internal/discord/discordtest"
	"github.com/bissquit/toplane-coaching/internal/domain"
	"github.com/bissquit/toplane-coaching/internal/payments"
	"github.com/bissquit/toplane-coaching/internal/payments/paymentstest"
	"github.com/bissquit/toplane-coaching/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	openAPISpecPath = "../../api/openapi/openapi.yaml"
	webhookSecret   = "whsec_app_test"
	adminToken      = "admin-secret"
)

type testEnv struct {
	app      *App
	server   *httptest.Server
	discord  *discordtest.Server
	payments *paymentstest.Provider
	client   *testutil.Client
}

func testConfig(discordURL string) *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Server.MetricsPort = "0"
	cfg.Server.PublicBaseURL = "https://coaching.example.com"
	cfg.Log.Level = "error"
	cfg.Log.Format = "text"
	cfg.Stripe.WebhookSecret = webhookSecret
	cfg.Discord.BotToken = "bot-token"
	cfg.Discord.GuildID = discordtest.GuildID
	cfg.Discord.APIURL = discordURL
	cfg.Discord.RateLimit = 0
	cfg.Admin.Token = adminToken
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	guild := discordtest.NewServer(t)
	provider := paymentstest.NewProvider()

	cfg := testConfig(guild.URL)
	for _, m := range mutate {
		m(cfg)
	}

	application, err := New(cfg, WithPaymentProvider(provider))
	require.NoError(t, err)

	server := httptest.NewServer(application.Router())
	t.Cleanup(func() {
		server.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Shutdown(ctx)
	})

	client := testutil.NewClientWithValidation(t, server.URL, openAPISpecPath)

	return &testEnv{
		app:      application,
		server:   server,
		discord:  guild,
		payments: provider,
		client:   client,
	}
}

func (e *testEnv) deliverCheckout(t *testing.T, sessionID, planID, email string) *http.Response {
	t.Helper()
	payload := testutil.CheckoutCompletedEvent(sessionID, planID, email, "Test User")
	resp, err := e.client.PostRaw("/api/v1/webhooks/stripe", payload, map[string]string{
		"Stripe-Signature": testutil.SignStripePayload(t, payload, webhookSecret),
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) lookup(t *testing.T, sessionID string) map[string]interface{} {
	t.Helper()
	resp, err := e.client.GET("/api/v1/channels/lookup?session=" + url.QueryEscape(sessionID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	testutil.DecodeJSON(t, resp, &body)
	return body
}

func TestApp_SystemEndpoints(t *testing.T) {
	env := newTestEnv(t)
	plain := testutil.NewClient(env.server.URL)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := plain.GET(path)
		require.NoError(t, err)
		assert.Equal(t, "OK", testutil.ReadBody(t, resp), path)
	}

	resp, err := env.client.GET("/version")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestApp_Pages(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.GET("/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pricing := testutil.ReadBody(t, resp)
	assert.Contains(t, pricing, "Premium&#43; Plan")
	assert.Contains(t, pricing, `data-plan="premium-plus"`)

	resp, err = env.client.GET("/success?session_id=cs_test_1&plan=medium")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, testutil.ReadBody(t, resp), "Medium Plan")
}

func TestApp_CheckoutEveryPlan(t *testing.T) {
	env := newTestEnv(t)

	for _, plan := range domain.Plans() {
		t.Run(string(plan.ID), func(t *testing.T) {
			env.client.SetT(t)
			resp, err := env.client.POST("/api/v1/checkout", map[string]interface{}{"planId": plan.ID})
			require.NoError(t, err)
			require.Equal(t, http.StatusOK, resp.StatusCode)

			var body struct {
				URL string `json:"url"`
			}
			testutil.DecodeJSON(t, resp, &body)
			assert.True(t, strings.HasPrefix(body.URL, "https://checkout.stripe.com/"))
		})
	}

	created := env.payments.Created()
	require.Len(t, created, len(domain.Plans()))
	for i, plan := range domain.Plans() {
		assert.Equal(t, plan.ID, created[i].Plan.ID)
		assert.Contains(t, created[i].SuccessURL, "plan="+string(plan.ID))
		assert.True(t, strings.HasPrefix(created[i].SuccessURL, "https://coaching.example.com/success?session_id={CHECKOUT_SESSION_ID}"))
	}
}

func TestApp_CheckoutInvalidPlan(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.POST("/api/v1/checkout", map[string]interface{}{"planId": "gold"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	assert.Empty(t, env.payments.Created())
}

func TestApp_WebhookCreatesChannel(t *testing.T) {
	env := newTestEnv(t)

	body := env.lookup(t, "cs_test_premium")
	assert.Equal(t, false, body["found"])

	resp := env.deliverCheckout(t, "cs_test_premium", "premium", "garen@example.com")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	body = env.lookup(t, "cs_test_premium")
	assert.Equal(t, true, body["found"])
	assert.Equal(t, "premium", body["planType"])
	assert.Regexp(t, `^https://discord\.com/channels/1000/\d+$`, body["channelUrl"])

	// category plus one customer channel
	creates := env.discord.Creates()
	require.Len(t, creates, 2)
	assert.Equal(t, "Active Customers", creates[0].Name)
	assert.Equal(t, "premium-customer-_premium", creates[1].Name)

	notifications := env.discord.Messages("50")
	require.Len(t, notifications, 1)
	assert.Contains(t, notifications[0].Message.Content, "New Customer!")
	assert.Contains(t, notifications[0].Message.Content, "€40")
}

func TestApp_WebhookRedeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		resp := env.deliverCheckout(t, "cs_test_again", "simple", "a@example.com")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}

	assert.Len(t, env.discord.Creates(), 2)

	resp, err := env.client.AsAdmin(adminToken).GET("/api/v1/admin/channels")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Data []domain.ChannelRecord `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &list)
	require.Len(t, list.Data, 1)
	assert.Equal(t, "cs_test_again", list.Data[0].SessionID)
}

func TestApp_WebhookBadSignature(t *testing.T) {
	env := newTestEnv(t)

	payload := testutil.CheckoutCompletedEvent("cs_test_forged", "premium", "x@example.com", "X")
	resp, err := env.client.PostRaw("/api/v1/webhooks/stripe", payload, map[string]string{
		"Stripe-Signature": testutil.SignStripePayload(t, payload, "whsec_wrong"),
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	assert.Equal(t, false, env.lookup(t, "cs_test_forged")["found"])
	assert.Empty(t, env.discord.Creates())
}

func TestApp_ProvisionOnDemand(t *testing.T) {
	env := newTestEnv(t)
	env.payments.AddSession(payments.Session{
		ID:            "cs_test_1",
		PaymentStatus: payments.PaymentStatusPaid,
		CustomerEmail: "test@example.com",
		AmountTotal:   1500,
		Currency:      "eur",
		Metadata:      domain.CheckoutMetadata{PlanID: domain.PlanSimple, PlanName: "Simple Plan"},
	})

	resp, err := env.client.POST("/api/v1/channels/provision?session=cs_test_1", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["existing"])
	assert.Equal(t, "simple", body["planType"])
	assert.Equal(t, "test@example.com", body["customerEmail"])
	assert.Regexp(t, `^https://discord\.com/channels/1000/\d+$`, body["channelUrl"])

	resp, err = env.client.POST("/api/v1/channels/provision?session=cs_test_1", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	testutil.DecodeJSON(t, resp, &body)
	assert.Equal(t, true, body["existing"])

	resp, err = env.client.POST("/api/v1/channels/provision?session=cs_missing", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestApp_AdminRoutes(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.GET("/api/v1/admin/channels")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	admin := env.client.AsAdmin(adminToken)

	resp, err = admin.POST("/api/v1/admin/channels", map[string]interface{}{
		"sessionId":     "cs_manual",
		"channelUrl":    "https://discord.com/channels/1000/77",
		"planType":      "medium",
		"customerEmail": "m@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_ = resp.Body.Close()

	assert.Equal(t, true, env.lookup(t, "cs_manual")["found"])

	resp, err = admin.DELETE("/api/v1/admin/channels/cs_manual")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	assert.Equal(t, false, env.lookup(t, "cs_manual")["found"])

	resp, err = admin.POST("/api/v1/admin/discord/test", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
	assert.Len(t, env.discord.Messages("50"), 1)
}

func TestApp_AdminDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Admin.Token = "" })

	resp, err := env.client.AsAdmin("anything").GET("/api/v1/admin/channels")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestApp_EndToEndSimulation(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.client.AsAdmin(adminToken).POST("/api/v1/admin/test/end-to-end", map[string]interface{}{
		"planType":      "simple",
		"customerEmail": "test@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report struct {
		SessionID  string `json:"sessionId"`
		ChannelURL string `json:"channelUrl"`
		Success    bool   `json:"success"`
		Steps      []struct {
			Status string `json:"status"`
		} `json:"steps"`
	}
	testutil.DecodeJSON(t, resp, &report)

	assert.True(t, report.Success)
	assert.True(t, strings.HasPrefix(report.SessionID, "cs_test_e2e_"))
	assert.Regexp(t, `^https://discord\.com/channels/1000/\d+$`, report.ChannelURL)
	require.Len(t, report.Steps, 4)
	for _, step := range report.Steps {
		assert.Equal(t, "SUCCESS", step.Status)
	}
}

func TestApp_CalendlyBookingInvitesCustomer(t *testing.T) {
	env := newTestEnv(t)

	resp := env.deliverCheckout(t, "cs_test_booked", "premium", "garen@example.com")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	record, ok := env.app.Correlator().Get(context.Background(), "cs_test_booked")
	require.True(t, ok)

	resp, err := env.client.PostRaw("/api/v1/webhooks/calendly", []byte(`{
		"event": "invitee.created",
		"payload": {"email": "garen@example.com", "name": "Garen",
			"scheduled_event": {"name": "1h Coaching", "start_time": "2026-10-20T18:00:00Z"}}
	}`), nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	posted := env.discord.Messages(record.ChannelID)
	require.NotEmpty(t, posted)
	assert.Contains(t, posted[len(posted)-1].Message.Content, "Your coaching session is booked")
}

func TestApp_FileStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	useFile := func(cfg *config.Config) {
		cfg.Store.Driver = driverFile
		cfg.Store.File.Path = path
	}

	first := newTestEnv(t, useFile)
	resp := first.deliverCheckout(t, "cs_test_file", "medium", "f@example.com")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	second := newTestEnv(t, useFile)
	body := second.lookup(t, "cs_test_file")
	assert.Equal(t, true, body["found"])
	assert.Equal(t, "medium", body["planType"])
}

func TestApp_RecordsExpire(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Store.Retention = 50 * time.Millisecond })

	resp := env.deliverCheckout(t, "cs_test_short", "simple", "s@example.com")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	assert.Eventually(t, func() bool {
		_, ok := env.app.Correlator().Get(context.Background(), "cs_test_short")
		return !ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, _, err := openStore(context.Background(), config.StoreConfig{Driver: "etcd"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}
