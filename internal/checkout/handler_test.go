package checkout

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bissquit/toplane-coaching/internal/payments"
	"github.com/bissquit/toplane-coaching/internal/payments/paymentstest"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(provider payments.Provider) *chi.Mux {
	r := chi.NewRouter()
	NewHandler(NewService(provider, "http://localhost:8080")).RegisterRoutes(r)
	return r
}

func TestHandler_CreateSession(t *testing.T) {
	provider := paymentstest.NewProvider()
	router := newTestRouter(provider)

	req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(`{"planId":"medium","customerEmail":"a@example.com"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp CreateSessionResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_fake_1", resp.URL)
	assert.Len(t, provider.Created(), 1)
}

func TestHandler_CreateSession_Errors(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		providerErr error
		wantStatus  int
	}{
		{"invalid json", `{`, nil, http.StatusBadRequest},
		{"missing plan", `{}`, nil, http.StatusBadRequest},
		{"unknown plan", `{"planId":"gold"}`, nil, http.StatusBadRequest},
		{"bad email", `{"planId":"simple","customerEmail":"nope"}`, nil, http.StatusBadRequest},
		{"not configured", `{"planId":"simple"}`, payments.ErrNotConfigured, http.StatusServiceUnavailable},
		{"provider failure", `{"planId":"simple"}`, assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := paymentstest.NewProvider()
			provider.Err = tt.providerErr
			router := newTestRouter(provider)

			req := httptest.NewRequest(http.MethodPost, "/checkout", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.providerErr == nil {
				assert.Empty(t, provider.Created())
			}
		})
	}
}
