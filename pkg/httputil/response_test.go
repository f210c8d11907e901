package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSON_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, JSON(rec, http.StatusOK, map[string]string{"price": "2500.10"}, map[string]string{"X-Quote": "1"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "1", rec.Header().Get("X-Quote"))
	assert.JSONEq(t, `{"status":"ok","data":{"price":"2500.10"}}`, rec.Body.String())
}

func TestJSON_NoContent(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, JSON(rec, http.StatusNoContent, nil, nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestError_CarriesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/price", nil)
	req = req.WithContext(context.WithValue(req.Context(), middleware.RequestIDKey, "req-42"))
	rec := httptest.NewRecorder()

	require.NoError(t, Error(rec, req, http.StatusNotFound, "token_not_found", "unknown token symbol: 'NOPE'", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var env struct {
		Status string   `json:"status"`
		Error  APIError `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "token_not_found", env.Error.Code)
	assert.Equal(t, "req-42", env.Error.TraceID)
	// no html escaping of quotes in messages
	assert.Contains(t, rec.Body.String(), `'NOPE'`)
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Amount string `json:"amount"`
	}

	tests := []struct {
		name    string
		payload string
		limit   int64
		wantErr string
	}{
		{"ok", `{"amount":"1.5"}`, 1024, ""},
		{"empty", ``, 1024, ErrEmptyBody.Error()},
		{"unknown_field", `{"amount":"1","gas":1}`, 1024, "unknown field"},
		{"trailing_object", `{"amount":"1"}{"amount":"2"}`, 1024, "single JSON object"},
		{"too_large", `{"amount":"` + strings.Repeat("9", 64) + `"}`, 16, "exceeds 16 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.payload))
			var dst body

			err := DecodeJSON(httptest.NewRecorder(), req, &dst, tt.limit)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "1.5", dst.Amount)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
