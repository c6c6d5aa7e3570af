package utils

import (
	"fmt"
	"strconv"
	"strings"
)

// Token amounts are stored as int64 base units with 3 decimal places
// (1 token = 1000 units). ParseTokens/FormatTokens convert between the
// human decimal form used at the edges and the ledger's integer units.

const unitsPerToken = 1000

// ParseTokens parses a decimal token amount with up to 3 fractional
// digits ("50", "12.5", "0.001") into base units.
func ParseTokens(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("invalid token amount %q", s)
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
		if fracPart == "" || len(fracPart) > 3 {
			return 0, fmt.Errorf("invalid token amount %q: up to 3 decimal places", s)
		}
	}
	if intPart == "" {
		intPart = "0"
	}

	whole, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token amount %q: %w", s, err)
	}

	var frac int64
	if fracPart != "" {
		frac, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid token amount %q: %w", s, err)
		}
		for i := len(fracPart); i < 3; i++ {
			frac *= 10
		}
	}

	return whole*unitsPerToken + frac, nil
}

// FormatTokens renders base units as a decimal string, trimming
// trailing zeros ("50", "12.5", "0.001").
func FormatTokens(units int64) string {
	sign := ""
	if units < 0 {
		sign = "-"
		units = -units
	}
	whole := units / unitsPerToken
	frac := units % unitsPerToken
	if frac == 0 {
		return fmt.Sprintf("%s%d", sign, whole)
	}
	s := strings.TrimRight(fmt.Sprintf("%03d", frac), "0")
	return fmt.Sprintf("%s%d.%s", sign, whole, s)
}
