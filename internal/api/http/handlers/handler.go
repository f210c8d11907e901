package handlers

import (
	"context"
	"errors"
	"net/http"

	"ethtrader/internal/apperr"
	"ethtrader/internal/domain"
	"ethtrader/internal/service"
	"ethtrader/pkg/httputil"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"
)

type BalanceReader interface {
	GetBalance(ctx context.Context, holder common.Address, token *common.Address) (*domain.BalanceInfo, error)
	TokenMetadata(ctx context.Context, token common.Address) domain.TokenMetadata
}

type PriceReader interface {
	GetPrice(ctx context.Context, token common.Address, quote domain.QuoteCurrency) (*domain.PriceInfo, error)
}

type SwapSimulator interface {
	SimulateSwap(ctx context.Context, p domain.SwapParams) (*domain.SwapSimulationResult, error)
}

type DependencyChecker interface {
	CheckDependency(ctx context.Context) error
	Dependencies() []string
}

var (
	_ BalanceReader     = (*service.BalanceService)(nil)
	_ PriceReader       = (*service.PriceService)(nil)
	_ SwapSimulator     = (*service.SwapService)(nil)
	_ DependencyChecker = (*service.HealthService)(nil)
)

type Limits struct {
	DefaultSlippage decimal.Decimal
	MaxSlippage     decimal.Decimal
}

type Deps struct {
	Log      logger.Logger
	Balances BalanceReader
	Prices   PriceReader
	Swaps    SwapSimulator
	Tokens   service.TokenRegistry
	Health   DependencyChecker
	Limits   Limits
}

type Handler struct {
	Log      logger.Logger
	balances BalanceReader
	prices   PriceReader
	swaps    SwapSimulator
	tokens   service.TokenRegistry
	health   DependencyChecker
	limits   Limits
}

func NewHandler(d Deps) *Handler {
	if d.Balances == nil || d.Prices == nil || d.Swaps == nil || d.Tokens == nil || d.Health == nil {
		panic("handler dependencies cannot be nil")
	}
	if d.Limits.DefaultSlippage.IsZero() {
		d.Limits.DefaultSlippage = decimal.RequireFromString("0.5")
	}
	if d.Limits.MaxSlippage.IsZero() {
		d.Limits.MaxSlippage = decimal.NewFromInt(50)
	}

	return &Handler{
		Log:      d.Log,
		balances: d.Balances,
		prices:   d.Prices,
		swaps:    d.Swaps,
		tokens:   d.Tokens,
		health:   d.Health,
		limits:   d.Limits,
	}
}

func (a *Handler) resolveToken(ctx context.Context, field, value string) (domain.TokenEntry, error) {
	return service.ResolveToken(ctx, a.tokens, a.balances, field, value)
}

const retryAfterSeconds = "5"

func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidAddress, apperr.KindParse, apperr.KindSlippageExceeded:
		return http.StatusBadRequest
	case apperr.KindTokenNotFound:
		return http.StatusNotFound
	case apperr.KindPoolNotFound, apperr.KindInsufficientLiquidity, apperr.KindNumericOverflow:
		return http.StatusUnprocessableEntity
	case apperr.KindTransport, apperr.KindChainRPC:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)

	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		msg = ae.Message
	}
	if status == http.StatusInternalServerError {
		a.Log.Errorf("%s handler failed: %v", op, err)
		msg = "internal error"
	} else {
		a.Log.Warnf("%s handler rejected request: %v", op, err)
	}

	// transport and RPC failures may clear on retry
	if apperr.Retryable(err) {
		w.Header().Set("Retry-After", retryAfterSeconds)
	}

	if werr := httputil.Error(w, r, status, string(kind), msg, nil); werr != nil {
		a.Log.Errorf("%s handler error: %s", op, werr.Error())
	}
}

func (a *Handler) writeJSON(w http.ResponseWriter, op string, body any) {
	if err := httputil.JSON(w, http.StatusOK, body, nil); err != nil {
		a.Log.Errorf("%s handler error: %s", op, err.Error())
	}
}
