package balance

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Mode selects a display notation
type Mode int

const (
	// Standard shows two decimals below 1000 and whole numbers above
	Standard Mode = iota
	// Compact abbreviates values of a million and more with M, B or T
	Compact
)

// String implements fmt.Stringer
func (m Mode) String() string {
	switch m {
	case Standard:
		return "standard"
	case Compact:
		return "compact"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "standard" or "compact"
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return Standard, nil
	case "compact":
		return Compact, nil
	default:
		return Standard, fmt.Errorf("unknown format mode %q: must be standard or compact", s)
	}
}

var printer = message.NewPrinter(language.English)

var compactUnits = []struct {
	scale  float64
	suffix string
}{
	{1e12, "T"},
	{1e9, "B"},
	{1e6, "M"},
}

// FormatNumber renders an already scaled value for display
func FormatNumber(value float64, mode Mode) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Sprint(value)
	}
	if value < 0 {
		return "-" + FormatNumber(-value, mode)
	}

	if mode == Compact {
		for _, unit := range compactUnits {
			if value >= unit.scale {
				return formatStandard(value/unit.scale) + unit.suffix
			}
		}
	}
	return formatStandard(value)
}

func formatStandard(value float64) string {
	if value < 1000 {
		return printer.Sprintf("%.2f", value)
	}
	return printer.Sprintf("%.0f", value)
}

// FormatBalance scales value down by 10^decimals and renders it for display
func FormatBalance(value *big.Int, decimals uint, mode Mode) string {
	if value == nil {
		return FormatNumber(0, mode)
	}
	return FormatNumber(ToFloat(value, decimals), mode)
}

// ToFloat converts a balance to its nearest float64 value
func ToFloat(value *big.Int, decimals uint) float64 {
	return decimal.NewFromBigInt(value, -int32(decimals)).InexactFloat64()
}
