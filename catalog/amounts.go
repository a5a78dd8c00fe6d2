package catalog

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrMalformedAmount is returned when an amount string cannot be parsed.
	ErrMalformedAmount = errors.New("malformed amount")
	// ErrTooManyDecimals is returned when an amount carries more fractional
	// digits than the token supports.
	ErrTooManyDecimals = errors.New("amount has more fractional digits than token decimals")
)

// ParseAmount converts a decimal string such as "1.5" into the token's
// integer fixed-point representation. Fractional digits beyond the token's
// decimals are rejected rather than silently truncated.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrMalformedAmount
	}
	integerPart, fractionalPart, _ := strings.Cut(s, ".")
	if integerPart == "" {
		integerPart = "0"
	}
	if len(fractionalPart) > int(decimals) {
		return nil, fmt.Errorf("%w: %q with %d decimals", ErrTooManyDecimals, s, decimals)
	}
	padded := fractionalPart + strings.Repeat("0", int(decimals)-len(fractionalPart))
	value, ok := new(big.Int).SetString(integerPart+padded, 10)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	return value, nil
}

// FormatAmount renders an integer fixed-point amount as a decimal string,
// trimming trailing zeros from the fractional part.
func FormatAmount(amount *big.Int, decimals uint8) string {
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	integerPart, fractionalPart := new(big.Int).QuoRem(amount, divisor, new(big.Int))
	if fractionalPart.Sign() == 0 {
		return integerPart.String()
	}
	fractional := strings.TrimRight(fmt.Sprintf("%0*s", decimals, fractionalPart.String()), "0")
	return integerPart.String() + "." + fractional
}
