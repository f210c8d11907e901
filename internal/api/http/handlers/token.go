package handlers

import (
	"net/http"
	"time"
)

type tokenStats struct {
	Tokens      int        `json:"tokens"`
	AgeSeconds  int64      `json:"age_seconds"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// ListTokens serves GET /api/v1/tokens
func (a *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens := a.tokens.ListTokens(r.Context())

	a.writeJSON(w, "ListTokens", map[string]any{
		"count":  len(tokens),
		"tokens": tokens,
	})
	a.Log.Debugf("ListTokens handler success, tokens=%d", len(tokens))
}

// TokenStats serves GET /api/v1/tokens/stats
func (a *Handler) TokenStats(w http.ResponseWriter, _ *http.Request) {
	st := a.tokens.Stats()

	resp := tokenStats{Tokens: st.Tokens, AgeSeconds: int64(st.Age.Seconds())}
	if !st.LastUpdated.IsZero() {
		at := st.LastUpdated.UTC()
		resp.LastUpdated = &at
	}

	a.writeJSON(w, "TokenStats", resp)
}
