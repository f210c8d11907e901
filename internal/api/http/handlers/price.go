package handlers

import (
	"net/http"

	"ethtrader/internal/domain"
)

// GetPrice serves GET /api/v1/price?token=&quote=
func (a *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	quote, err := domain.ParseQuoteCurrency(q.Get("quote"))
	if err != nil {
		a.writeError(w, r, "GetPrice", err)
		return
	}

	entry, err := a.resolveToken(r.Context(), "token", q.Get("token"))
	if err != nil {
		a.writeError(w, r, "GetPrice", err)
		return
	}

	info, err := a.prices.GetPrice(r.Context(), entry.Address, quote)
	if err != nil {
		a.writeError(w, r, "GetPrice", err)
		return
	}

	a.writeJSON(w, "GetPrice", info)
}
