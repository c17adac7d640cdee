package randstorm

import (
	"testing"
	"time"
)

// Test the key-space arithmetic
func TestEstimate(t *testing.T) {
	// 30 days at 1ms resolution, 10 configs, one engine.
	windowMS := uint64(30 * 24 * 3600 * 1000)
	a := Estimate(windowMS, 10, []Engine{EngineV8Mwc1616})

	if want := windowMS * 10; a.TotalKeys != want {
		t.Errorf("TotalKeys = %d, want %d", a.TotalKeys, want)
	}
	if a.TotalKeys < 1_000_000_000 {
		t.Errorf("TotalKeys = %d, expected beyond 1e9", a.TotalKeys)
	}
	if a.EstGPUTime < time.Hour {
		t.Errorf("GPU estimate %v, expected more than an hour", a.EstGPUTime)
	}
	if a.EstCPUTime <= a.EstGPUTime {
		t.Error("CPU estimate not slower than GPU estimate")
	}
	if a.Feasible() {
		t.Error("month-long window at 1ms reported feasible")
	}
}

// Test engine count multiplies the space
func TestEstimateEngineMultiplier(t *testing.T) {
	one := Estimate(1_000_000, 5, []Engine{EngineV8Mwc1616})
	all := Estimate(1_000_000, 5, AllEngines)
	if all.TotalKeys != one.TotalKeys*uint64(len(AllEngines)) {
		t.Errorf("all-engine keys = %d, want %d", all.TotalKeys, one.TotalKeys*uint64(len(AllEngines)))
	}
}

// Test the feasibility cutoff
func TestFeasibleCutoff(t *testing.T) {
	// Just under a week of GPU work.
	under := AttackComplexity{EstGPUTime: 7*24*time.Hour - time.Second}
	if !under.Feasible() {
		t.Error("six-days-23h plan reported infeasible")
	}
	over := AttackComplexity{EstGPUTime: 7*24*time.Hour + time.Second}
	if over.Feasible() {
		t.Error("week-plus plan reported feasible")
	}
}

// Test century-scale estimates saturate instead of wrapping negative
func TestEstimateSaturates(t *testing.T) {
	// The full 2010-2015 window across thousands of configs and every engine
	// overflows int64 nanoseconds if converted naively.
	windowMS := uint64(5 * 365 * 24 * 3600 * 1000)
	a := Estimate(windowMS, 100_000, AllEngines)

	if a.EstGPUTime <= 0 {
		t.Fatalf("GPU estimate wrapped negative: %v", a.EstGPUTime)
	}
	if a.EstCPUTime <= 0 {
		t.Fatalf("CPU estimate wrapped negative: %v", a.EstCPUTime)
	}
	if a.Feasible() {
		t.Error("century-scale search reported feasible")
	}
}

// Test zero rates fall back to defaults
func TestEstimateWithRatesDefaults(t *testing.T) {
	a := EstimateWithRates(3_600_000, 1, []Engine{EngineLcg48}, 0, 0)
	b := Estimate(3_600_000, 1, []Engine{EngineLcg48})
	if a.EstGPUTime != b.EstGPUTime || a.EstCPUTime != b.EstCPUTime {
		t.Error("zero rates did not select the defaults")
	}
	if a.FormatKeys() == "" {
		t.Error("FormatKeys returned empty")
	}
}
