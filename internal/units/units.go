// Package units converts between raw integer token amounts and human readable decimals.
package units

import (
	"math/big"
	"strings"

	"ethtrader/internal/apperr"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// FormatUnits renders raw as a decimal string with the point placed decimals digits from the right.
// Trailing fractional zeros are trimmed; zero is always "0".
func FormatUnits(raw *big.Int, decimals uint8) string {
	if raw == nil || raw.Sign() == 0 {
		return "0"
	}

	neg := raw.Sign() < 0
	digits := new(big.Int).Abs(raw).String()
	d := int(decimals)

	var intPart, fracPart string
	if len(digits) > d {
		intPart = digits[:len(digits)-d]
		fracPart = digits[len(digits)-d:]
	} else {
		intPart = "0"
		fracPart = strings.Repeat("0", d-len(digits)) + digits
	}

	fracPart = strings.TrimRight(fracPart, "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if neg {
		out = "-" + out
	}
	return out
}

// ParseUnits converts a human readable amount into raw units.
// Excess fractional digits are truncated, not rounded.
func ParseUnits(text string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, apperr.New(apperr.KindParse, "empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return nil, apperr.New(apperr.KindParse, "negative amounts are not allowed")
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, apperr.New(apperr.KindParse, "invalid number format: multiple decimal points")
	}

	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" && fracPart == "" {
		return nil, apperr.Newf(apperr.KindParse, "invalid number: %q", text)
	}
	if !isDigits(intPart) || !isDigits(fracPart) {
		return nil, apperr.Newf(apperr.KindParse, "invalid number: %q", text)
	}

	d := int(decimals)
	if len(fracPart) > d {
		fracPart = fracPart[:d]
	} else {
		fracPart += strings.Repeat("0", d-len(fracPart))
	}

	combined := strings.TrimLeft(intPart+fracPart, "0")
	if combined == "" {
		return new(big.Int), nil
	}

	raw, ok := new(big.Int).SetString(combined, 10)
	if !ok {
		return nil, apperr.Newf(apperr.KindParse, "invalid number: %q", text)
	}
	if _, err := ToUint256(raw); err != nil {
		return nil, err
	}

	return raw, nil
}

// ToUint256 range-checks v against the 256-bit working width.
func ToUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	if v.Sign() < 0 {
		return nil, apperr.Newf(apperr.KindNumericOverflow, "negative value %s does not fit uint256", v)
	}

	u, overflow := uint256.FromBig(v)
	if overflow {
		return nil, apperr.Newf(apperr.KindNumericOverflow, "value %s exceeds uint256 range", v)
	}
	return u, nil
}

// ToDecimal scales raw down by 10^decimals exactly.
func ToDecimal(raw *big.Int, decimals uint8) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(decimals))
}

// FromDecimal scales d up by 10^decimals, truncating the remainder.
func FromDecimal(d decimal.Decimal, decimals uint8) (*big.Int, error) {
	if d.IsNegative() {
		return nil, apperr.Newf(apperr.KindNumericOverflow, "negative value %s does not fit uint256", d)
	}

	raw := d.Shift(int32(decimals)).Truncate(0).BigInt()
	if _, err := ToUint256(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Pow10 returns 10^n.
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
