package tokens

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount       = errors.New("amount is empty")
	ErrInvalidAmount     = errors.New("amount is not a decimal number")
	ErrTooManyDecimals   = errors.New("amount has more fractional digits than the token supports")
	ErrNonPositiveAmount = errors.New("amount must be greater than 0")
)

// Plain unsigned decimals only: no sign or exponent. Either side of the
// dot may be empty, but not both.
var amountPattern = regexp.MustCompile(`^([0-9]+\.?[0-9]*|\.[0-9]+)$`)

// ParseUnits converts a human-readable amount into base units.
// e.g., "10" USDC (6 decimals) -> 10000000
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, ErrEmptyAmount
	}
	if !amountPattern.MatchString(amount) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if dot := strings.IndexByte(amount, '.'); dot >= 0 {
		if frac := strings.TrimRight(amount[dot+1:], "0"); len(frac) > decimals {
			return nil, fmt.Errorf("%w: %q allows %d", ErrTooManyDecimals, amount, decimals)
		}
		amount = "0" + strings.TrimSuffix(amount, ".")
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}

	units := d.Shift(int32(decimals)).BigInt()
	if units.Sign() <= 0 {
		return nil, ErrNonPositiveAmount
	}
	return units, nil
}

// FormatUnits converts base units into a human-readable amount, truncated
// (never rounded) to precision fractional digits. precision <= 0 or larger
// than decimals keeps full token precision. Trailing zeros are dropped.
func FormatUnits(amount *big.Int, decimals int, precision int) string {
	if amount == nil {
		return "0"
	}
	d := decimal.NewFromBigInt(amount, -int32(decimals))
	if precision > 0 && precision < decimals {
		d = d.Truncate(int32(precision))
	}
	return d.String()
}

// Rate returns how many buy units one sell unit fetches, truncated to precision
func Rate(sellAmount *big.Int, sellDecimals int, buyAmount *big.Int, buyDecimals int, precision int32) (string, error) {
	if sellAmount == nil || sellAmount.Sign() == 0 {
		return "", fmt.Errorf("invalid sell amount: 0")
	}
	if buyAmount == nil {
		return "", fmt.Errorf("invalid buy amount")
	}
	sell := decimal.NewFromBigInt(sellAmount, -int32(sellDecimals))
	buy := decimal.NewFromBigInt(buyAmount, -int32(buyDecimals))
	return buy.DivRound(sell, precision+1).Truncate(precision).String(), nil
}
