package testutil

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAPIPath = "../../api/openapi/openapi.yaml"

func TestOpenAPIValidator_AcceptsDocumentedResponse(t *testing.T) {
	v := NewOpenAPIValidator(t, openAPIPath)

	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")
	rec.WriteHeader(http.StatusOK)
	_, _ = rec.WriteString(`{"version":"dev","commit":"abc123","build_date":"2026-10-01"}`)

	req := httptest.NewRequest(http.MethodGet, "/version", nil)
	resp := rec.Result()
	v.ValidateResponse(t, req, resp)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"dev","commit":"abc123","build_date":"2026-10-01"}`, string(body))
}

func TestOpenAPIValidator_SkipsPages(t *testing.T) {
	v := NewOpenAPIValidator(t, openAPIPath)

	for _, path := range []string{"/", "/success", "/healthz", "/readyz"} {
		assert.True(t, v.shouldSkipValidation(path), path)
	}
	assert.False(t, v.shouldSkipValidation("/version"))
}
