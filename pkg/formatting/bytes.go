// Package formatting converts byte sizes to and from their readable form and
// recovers JSON values embedded in free text.
package formatting

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// byteUnits are base-1024 multiples in ascending order.
var byteUnits = [...]string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatBytes renders n with the largest unit that keeps the value at or
// above 1, using precision decimals (negative means 0). Sizes under 1KB are
// whole bytes.
func FormatBytes(n int64, precision int) string {
	if n < 1024 {
		return strconv.FormatInt(n, 10) + " B"
	}
	precision = max(precision, 0)

	size, unit := float64(n), 0
	for size >= 1024 && unit < len(byteUnits)-1 {
		size /= 1024
		unit++
	}
	return strconv.FormatFloat(size, 'f', precision, 64) + " " + byteUnits[unit]
}

// ParseBytes reads sizes such as "10MB", "1.5 gb" or "2048". A bare number is
// a byte count. Units are case-insensitive and base-1024.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size")
	}

	split := strings.IndexFunc(s, func(r rune) bool {
		return !unicode.IsDigit(r) && r != '.'
	})
	number, unit := s, ""
	if split >= 0 {
		number, unit = s[:split], strings.ToUpper(strings.TrimSpace(s[split:]))
	}
	if number == "" {
		return 0, fmt.Errorf("invalid byte size %q: missing number", s)
	}

	value, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}

	if unit == "" {
		return int64(value), nil
	}
	for i, u := range byteUnits {
		if u == unit {
			for range i {
				value *= 1024
			}
			return int64(value), nil
		}
	}
	return 0, fmt.Errorf("invalid byte size %q: unknown unit %q", s, unit)
}
