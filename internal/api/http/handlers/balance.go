package handlers

import (
	"net/http"
	"strings"

	"ethtrader/internal/domain"

	"github.com/ethereum/go-ethereum/common"
)

// GetBalance serves GET /api/v1/balance?address=&token=; an empty token or "ETH" is the native balance
func (a *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	holder, err := domain.ParseAddress(q.Get("address"))
	if err != nil {
		a.writeError(w, r, "GetBalance", err)
		return
	}

	var token *common.Address
	if t := strings.TrimSpace(q.Get("token")); t != "" && !strings.EqualFold(t, "ETH") {
		entry, err := a.resolveToken(r.Context(), "token", t)
		if err != nil {
			a.writeError(w, r, "GetBalance", err)
			return
		}
		token = &entry.Address
	}

	info, err := a.balances.GetBalance(r.Context(), holder, token)
	if err != nil {
		a.writeError(w, r, "GetBalance", err)
		return
	}

	a.writeJSON(w, "GetBalance", info)
}
