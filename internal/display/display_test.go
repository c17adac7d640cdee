package display

import (
	"strings"
	"testing"
	"time"
)

// Test thousands separators
func TestCount(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := Count(tt.in); got != tt.want {
			t.Errorf("Count(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Test rate scaling units
func TestRate(t *testing.T) {
	if got := Rate(500); !strings.Contains(got, "keys/s") {
		t.Errorf("Rate(500) = %q", got)
	}
	if got := Rate(25_000); !strings.Contains(got, "K") {
		t.Errorf("Rate(25000) = %q, want K unit", got)
	}
	if got := Rate(3_000_000); !strings.Contains(got, "M") {
		t.Errorf("Rate(3000000) = %q, want M unit", got)
	}
}

// Test duration rendering
func TestDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{2*time.Minute + 3*time.Second, "2m 3s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h 2m 3s"},
	}
	for _, tt := range tests {
		if got := Duration(tt.in); got != tt.want {
			t.Errorf("Duration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// Test key-space humanization mentions powers of two for large spaces
func TestKeys(t *testing.T) {
	if got := Keys(1 << 40); !strings.Contains(got, "2^") {
		t.Errorf("Keys(2^40) = %q, want power-of-two form", got)
	}
	if got := Keys(1500); got == "" {
		t.Error("Keys(1500) returned empty")
	}
}
