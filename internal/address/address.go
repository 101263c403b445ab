// Package address normalizes and compares Sui account and object addresses.
//
// A Sui address is 32 bytes, written as 0x followed by 64 hex digits. Short
// forms such as 0x2 are accepted and left-padded with zeros.
package address

import (
	"errors"
	"fmt"
	"strings"
)

// Length is the number of hex digits in a normalized address
const Length = 64

// ErrInvalidAddress is returned for input that is not a Sui address
var ErrInvalidAddress = errors.New("invalid sui address")

// Normalize returns addr lowercased, 0x-prefixed and padded to 64 hex digits.
// The 0x prefix is optional in the input.
func Normalize(addr string) (string, error) {
	hex := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(addr), "0x"), "0X")
	if hex == "" {
		return "", fmt.Errorf("%w: %q is empty", ErrInvalidAddress, addr)
	}
	if len(hex) > Length {
		return "", fmt.Errorf("%w: %q has more than %d hex digits", ErrInvalidAddress, addr, Length)
	}
	for _, c := range hex {
		if !isHexDigit(c) {
			return "", fmt.Errorf("%w: %q contains non-hex character %q", ErrInvalidAddress, addr, c)
		}
	}

	return "0x" + strings.Repeat("0", Length-len(hex)) + strings.ToLower(hex), nil
}

// MustNormalize is like Normalize but panics on invalid input.
// Intended for constants such as system package addresses.
func MustNormalize(addr string) string {
	n, err := Normalize(addr)
	if err != nil {
		panic(err)
	}
	return n
}

// IsValid reports whether addr can be normalized
func IsValid(addr string) bool {
	_, err := Normalize(addr)
	return err == nil
}

// Equal reports whether a and b are the same address in any notation.
// Invalid addresses are never equal to anything.
func Equal(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}

// Shorten renders addr as its first head and last tail hex digits joined by
// an ellipsis, e.g. 0x1234…abcd. Addresses too short to abbreviate are
// returned normalized but otherwise unchanged; invalid input is returned as is.
func Shorten(addr string, head, tail int) string {
	n, err := Normalize(addr)
	if err != nil {
		return addr
	}
	if head < 0 {
		head = 0
	}
	if tail < 0 {
		tail = 0
	}

	hex := n[2:]
	if head+tail >= len(hex) {
		return n
	}
	return "0x" + hex[:head] + "…" + hex[len(hex)-tail:]
}

func isHexDigit(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}
