package apperr

import (
	"errors"
	"fmt"
)

// Kind represents different categories of errors
type Kind string

const (
	KindConfiguration         Kind = "configuration"
	KindTransport             Kind = "transport"
	KindChainRPC              Kind = "chain_rpc"
	KindInvalidAddress        Kind = "invalid_address"
	KindTokenNotFound         Kind = "token_not_found"
	KindInsufficientLiquidity Kind = "insufficient_liquidity"
	KindPoolNotFound          Kind = "pool_not_found"
	KindSlippageExceeded      Kind = "slippage_exceeded"
	KindPriceOracleInvalid    Kind = "price_oracle_invalid"
	KindNumericOverflow       Kind = "numeric_overflow"
	KindParse                 Kind = "parse_error"
	KindSimulationFailed      Kind = "simulation_failed"
	KindInternal              Kind = "internal"
)

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrConfiguration         = &Error{Kind: KindConfiguration, Message: "configuration error"}
	ErrTransport             = &Error{Kind: KindTransport, Message: "transport error"}
	ErrChainRPC              = &Error{Kind: KindChainRPC, Message: "chain rpc error"}
	ErrInvalidAddress        = &Error{Kind: KindInvalidAddress, Message: "invalid address"}
	ErrTokenNotFound         = &Error{Kind: KindTokenNotFound, Message: "token not found"}
	ErrInsufficientLiquidity = &Error{Kind: KindInsufficientLiquidity, Message: "insufficient liquidity"}
	ErrPoolNotFound          = &Error{Kind: KindPoolNotFound, Message: "pool not found"}
	ErrSlippageExceeded      = &Error{Kind: KindSlippageExceeded, Message: "slippage exceeded"}
	ErrPriceOracleInvalid    = &Error{Kind: KindPriceOracleInvalid, Message: "price oracle invalid"}
	ErrNumericOverflow       = &Error{Kind: KindNumericOverflow, Message: "numeric overflow"}
	ErrParse                 = &Error{Kind: KindParse, Message: "parse error"}
	ErrSimulationFailed      = &Error{Kind: KindSimulationFailed, Message: "simulation failed"}
)

// Error is the domain error crossing package boundaries
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by Kind so wrapped instances compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Retryable reports whether a fallback source may still succeed after err.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindChainRPC:
		return true
	default:
		return false
	}
}
