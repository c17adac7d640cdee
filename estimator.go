package randstorm

import (
	"math"
	"time"

	"github.com/opd-ai/go-randstorm/internal/display"
)

// Throughput planning constants, keys per second. Derived from measured
// batch rates on mid-range 2023 hardware; override per estimate if newer
// numbers are available.
const (
	DefaultGPURate uint64 = 30_000
	DefaultCPURate uint64 = 5_000
)

// AttackComplexity is a pre-flight feasibility report for a scan. It is
// derived from configuration only and never performs any scanning itself.
type AttackComplexity struct {
	// TotalKeys is the size of the search space: one key per millisecond in
	// the window, per config, per engine.
	TotalKeys uint64

	NumConfigs uint64
	WindowMS   uint64

	// EstGPUTime / EstCPUTime are wall-clock estimates at the planning rates.
	EstGPUTime time.Duration
	EstCPUTime time.Duration
}

// Estimate computes the complexity report for a scan window, assuming 1ms
// timestamp resolution (the resolution of Date.getTime()).
func Estimate(windowMS, numConfigs uint64, engines []Engine) AttackComplexity {
	return EstimateWithRates(windowMS, numConfigs, engines, DefaultGPURate, DefaultCPURate)
}

// EstimateWithRates is Estimate with explicit throughput assumptions.
func EstimateWithRates(windowMS, numConfigs uint64, engines []Engine, gpuRate, cpuRate uint64) AttackComplexity {
	if gpuRate == 0 {
		gpuRate = DefaultGPURate
	}
	if cpuRate == 0 {
		cpuRate = DefaultCPURate
	}

	totalKeys := windowMS * numConfigs * uint64(len(engines))

	return AttackComplexity{
		TotalKeys:  totalKeys,
		NumConfigs: numConfigs,
		WindowMS:   windowMS,
		EstGPUTime: durationFromSeconds(totalKeys / gpuRate),
		EstCPUTime: durationFromSeconds(totalKeys / cpuRate),
	}
}

// durationFromSeconds converts a second count to a Duration, saturating at
// the Duration ceiling. Century-scale searches would otherwise wrap negative
// and read as feasible.
func durationFromSeconds(secs uint64) time.Duration {
	const maxSecs = uint64(math.MaxInt64 / int64(time.Second))
	if secs > maxSecs {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(secs) * time.Second
}

// Feasible reports whether the search completes within a week on GPU, the
// cutoff beyond which target narrowing is recommended instead of brute
// enumeration.
func (a *AttackComplexity) Feasible() bool {
	return a.EstGPUTime < 7*24*time.Hour
}

// FormatKeys renders the search-space size for humans.
func (a *AttackComplexity) FormatKeys() string {
	return display.Keys(a.TotalKeys)
}
