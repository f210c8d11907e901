package handlers

import (
	"net/http"

	"ethtrader/internal/apperr"
	"ethtrader/internal/domain"
	"ethtrader/internal/units"
	"ethtrader/pkg/httputil"

	"github.com/shopspring/decimal"
)

const maxSwapBody = 64 << 10

type swapRequest struct {
	FromToken         string           `json:"from_token"`
	ToToken           string           `json:"to_token"`
	Amount            string           `json:"amount"` // human readable, in from_token units
	SlippageTolerance *decimal.Decimal `json:"slippage_tolerance,omitempty"`
}

// SimulateSwap serves POST /api/v1/swap/simulate
func (a *Handler) SimulateSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := httputil.DecodeJSON(w, r, &req, maxSwapBody); err != nil {
		a.writeError(w, r, "SimulateSwap", apperr.Wrap(apperr.KindParse, "invalid request body", err))
		return
	}

	params, err := a.swapParams(r, &req)
	if err != nil {
		a.writeError(w, r, "SimulateSwap", err)
		return
	}

	res, err := a.swaps.SimulateSwap(r.Context(), params)
	if err != nil {
		a.writeError(w, r, "SimulateSwap", err)
		return
	}

	a.writeJSON(w, "SimulateSwap", res)
}

func (a *Handler) swapParams(r *http.Request, req *swapRequest) (domain.SwapParams, error) {
	ctx := r.Context()

	from, err := a.resolveToken(ctx, "from_token", req.FromToken)
	if err != nil {
		return domain.SwapParams{}, err
	}
	to, err := a.resolveToken(ctx, "to_token", req.ToToken)
	if err != nil {
		return domain.SwapParams{}, err
	}
	if from.Address == to.Address {
		return domain.SwapParams{}, apperr.New(apperr.KindParse, "from_token and to_token must differ")
	}

	amountIn, err := units.ParseUnits(req.Amount, from.Decimals)
	if err != nil {
		return domain.SwapParams{}, err
	}
	if amountIn.Sign() == 0 {
		return domain.SwapParams{}, apperr.New(apperr.KindParse, "amount must be greater than zero")
	}

	slippage := a.limits.DefaultSlippage
	if req.SlippageTolerance != nil {
		slippage = *req.SlippageTolerance
	}
	if slippage.IsNegative() || slippage.GreaterThan(a.limits.MaxSlippage) {
		return domain.SwapParams{}, apperr.Newf(apperr.KindSlippageExceeded,
			"slippage_tolerance must be between 0 and %s percent, got %s", a.limits.MaxSlippage, slippage)
	}

	return domain.SwapParams{
		FromToken:         from.Address,
		ToToken:           to.Address,
		AmountIn:          amountIn,
		SlippageTolerance: slippage,
	}, nil
}
