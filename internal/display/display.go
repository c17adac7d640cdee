// Package display formats counters and durations for progress output.
package display

import (
	"fmt"
	"math"
	"time"
)

// Count formats n with thousands separators.
func Count(n uint64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var out []byte
	for i, c := range []byte(s) {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	return string(out)
}

// Rate formats a keys-per-second rate.
func Rate(r float64) string {
	switch {
	case r >= 1_000_000:
		return fmt.Sprintf("%.2fM keys/s", r/1_000_000)
	case r >= 1_000:
		return fmt.Sprintf("%.2fK keys/s", r/1_000)
	default:
		return fmt.Sprintf("%.0f keys/s", r)
	}
}

// Percent formats a percentage with two decimals.
func Percent(p float64) string {
	return fmt.Sprintf("%.2f%%", p)
}

// Duration formats d as 1h 2m 3s, dropping leading zero components.
func Duration(d time.Duration) string {
	total := uint64(d.Seconds())
	if total < 60 {
		return fmt.Sprintf("%ds", total)
	}
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}

// Keys formats a search-space size in human units, switching to a power of
// two above a trillion.
func Keys(n uint64) string {
	switch {
	case n < 1_000:
		return fmt.Sprintf("%d", n)
	case n < 1_000_000:
		return fmt.Sprintf("%.2f thousand", float64(n)/1_000)
	case n < 1_000_000_000:
		return fmt.Sprintf("%.2f million", float64(n)/1_000_000)
	case n < 1_000_000_000_000:
		return fmt.Sprintf("%.2f billion", float64(n)/1_000_000_000)
	default:
		return fmt.Sprintf("2^%.2f", math.Log2(float64(n)))
	}
}
