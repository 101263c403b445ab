// Package balance converts between unscaled integer balances and decimal strings.
//
// BalanceToString and StringToBalance are exact. FormatNumber and FormatBalance
// produce display strings through float64 and are lossy.
package balance

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// ErrInvalidInput is returned when a string is not a decimal number
var ErrInvalidInput = errors.New("invalid input")

var decimalPattern = regexp.MustCompile(`^-?\d*(\.\d*)?$`)

// BalanceToString renders value scaled down by 10^decimals, with no trailing
// fractional zeros and no trailing dot
func BalanceToString(value *big.Int, decimals uint) string {
	if value == nil || value.Sign() == 0 {
		return "0"
	}

	negative := value.Sign() < 0
	digits := new(big.Int).Abs(value).String()

	var result string
	if decimals == 0 {
		result = digits
	} else {
		width := int(decimals) + 1
		if len(digits) < width {
			digits = strings.Repeat("0", width-len(digits)) + digits
		}
		split := len(digits) - int(decimals)
		integer := digits[:split]
		fraction := strings.TrimRight(digits[split:], "0")

		result = integer
		if fraction != "" {
			result = integer + "." + fraction
		}
	}

	if negative {
		return "-" + result
	}
	return result
}

// StringToBalance parses a decimal string into a balance with the given number
// of decimals. Fractional digits beyond decimals are dropped, not rounded.
func StringToBalance(value string, decimals uint) (*big.Int, error) {
	s := strings.TrimSpace(value)
	switch s {
	case "", ".", "-", "-.":
		return new(big.Int), nil
	}

	if !decimalPattern.MatchString(s) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInput, value)
	}

	integer, fraction, _ := strings.Cut(s, ".")
	if uint(len(fraction)) > decimals {
		fraction = fraction[:decimals]
	}
	fraction += strings.Repeat("0", int(decimals)-len(fraction))

	digits := integer + fraction
	switch digits {
	case "", "-":
		// "-.5" with decimals 0
		return new(big.Int), nil
	}

	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInput, value)
	}
	return result, nil
}
