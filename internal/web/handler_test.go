package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	h, err := NewHandler(Config{
		SupportContact: "support@example.com",
		Poll:           DefaultPollPolicy(),
	})
	require.NoError(t, err)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestPricingPage(t *testing.T) {
	rec := get(t, newTestRouter(t), "/")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	for _, want := range []string{
		"Simple Plan", "€15",
		"Medium Plan", "€25",
		"Premium Plan", "€40",
		// html/template escapes "+" in text nodes
		"Premium&#43; Plan", "€60",
		`data-plan="premium-plus"`,
		`data-checkout-endpoint="/api/v1/checkout"`,
	} {
		assert.Contains(t, body, want)
	}
}

func TestSuccessPage_Polling(t *testing.T) {
	rec := get(t, newTestRouter(t), "/success?session_id=cs_test_1&plan=premium")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Premium Plan")
	assert.Contains(t, body, `"cs_test_1"`)
	assert.Contains(t, body, "[1000,2000,3000,4500,6750,10000,10000,10000,10000,10000,10000,10000]")
	assert.Contains(t, body, `data-lookup-endpoint="/api/v1/channels/lookup"`)
	assert.Contains(t, body, `data-provision-endpoint="/api/v1/channels/provision"`)
	assert.Contains(t, body, "support@example.com")
}

func TestSuccessPage_WithoutSession(t *testing.T) {
	rec := get(t, newTestRouter(t), "/success?plan=simple")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Simple Plan")
	assert.NotContains(t, body, "status-waiting")
	assert.NotContains(t, body, "<script>")
}

func TestSuccessPage_EscapesSessionID(t *testing.T) {
	rec := get(t, newTestRouter(t), `/success?session_id=%3C%2Fscript%3E%3Cscript%3Ealert(1)`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "</script><script>alert(1)")
}

func TestSuccessPage_UnknownPlan(t *testing.T) {
	rec := get(t, newTestRouter(t), "/success?session_id=cs_1&plan=gold")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "You bought the")
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "€15", formatPrice(1500))
	assert.Equal(t, "€15.50", formatPrice(1550))
}
