package config

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	kibibyte = 1 << 10
	mebibyte = 1 << 20
)

// sizeUnits maps a lowercased unit to its multiplier. Single letters are
// binary, matching how the provider documents slice sizes ("4M").
var sizeUnits = map[string]float64{
	"":    1,
	"b":   1,
	"k":   kibibyte,
	"kib": kibibyte,
	"kb":  1e3,
	"m":   mebibyte,
	"mib": mebibyte,
	"mb":  1e6,
	"g":   1 << 30,
	"gib": 1 << 30,
	"gb":  1e9,
	"t":   1 << 40,
	"tib": 1 << 40,
	"tb":  1e12,
}

// ParseSize converts "4MiB", "4M", "512KB" or a bare byte count to bytes.
// Blank is 0. Negative values are rejected.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	split := strings.LastIndexFunc(s, func(r rune) bool {
		return (r >= '0' && r <= '9') || r == '.'
	}) + 1

	num := strings.TrimSpace(s[:split])
	unit := strings.ToLower(strings.TrimSpace(s[split:]))

	mult, ok := sizeUnits[unit]
	if !ok {
		return 0, fmt.Errorf("invalid size %q: unknown unit %q", s, s[split:])
	}

	if strings.HasPrefix(num, "-") {
		return 0, fmt.Errorf("invalid size %q: must be non-negative", s)
	}

	if unit == "" || unit == "b" {
		n, err := strconv.ParseInt(num, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size %q: %w", s, err)
		}

		return n, nil
	}

	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}

	return int64(f * mult), nil
}

// ParseRate parses a bandwidth such as "5MB/s" into bytes per second. The
// "/s" suffix is optional; blank and "0" mean unlimited.
func ParseRate(s string) (int64, error) {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) > 2 && strings.EqualFold(trimmed[len(trimmed)-2:], "/s") {
		trimmed = trimmed[:len(trimmed)-2]
	}

	n, err := ParseSize(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid rate %q: %w", s, err)
	}

	return n, nil
}
