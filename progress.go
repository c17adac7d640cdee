package randstorm

import (
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-randstorm/internal/display"
	"github.com/sirupsen/logrus"
)

// ScanProgress is a point-in-time progress report delivered on the scan's
// progress channel. Values are produced once and never mutated.
type ScanProgress struct {
	RangeStart uint64 `json:"range_start"`
	RangeEnd   uint64 `json:"range_end"`
	Current    uint64 `json:"current"`
	Hits       uint64 `json:"hits"`
	ETASeconds uint64 `json:"eta_seconds"`
}

// counters is the only scan state mutated by more than one logical owner.
// All access is atomic; nothing else in a scan is shared.
type counters struct {
	processed atomic.Uint64
	matches   atomic.Uint64
}

// ProgressTracker accumulates processed/match counts and derives rate and
// ETA estimates. The tracker itself belongs to the control loop; workers
// report through cloneable handles.
type ProgressTracker struct {
	total     uint64
	c         *counters
	startTime time.Time
}

// NewProgressTracker creates a tracker expecting total candidates.
func NewProgressTracker(total uint64) *ProgressTracker {
	return &ProgressTracker{
		total:     total,
		c:         &counters{},
		startTime: time.Now(),
	}
}

// Update records a completed batch.
func (t *ProgressTracker) Update(processed, matches uint64) {
	t.c.processed.Add(processed)
	t.c.matches.Add(matches)
}

// Processed returns the total candidates processed so far.
func (t *ProgressTracker) Processed() uint64 { return t.c.processed.Load() }

// Matches returns the total matches found so far.
func (t *ProgressTracker) Matches() uint64 { return t.c.matches.Load() }

// Elapsed returns time since the tracker was created.
func (t *ProgressTracker) Elapsed() time.Duration { return time.Since(t.startTime) }

// Percent returns completion in [0,100]. A zero total reports 0 rather than
// dividing.
func (t *ProgressTracker) Percent() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.Processed()) / float64(t.total) * 100
}

// Rate returns processed candidates per second, or 0 if effectively no time
// has elapsed.
func (t *ProgressTracker) Rate() float64 {
	elapsed := t.Elapsed().Seconds()
	if elapsed < 0.001 {
		return 0
	}
	return float64(t.Processed()) / elapsed
}

// ETA estimates time remaining from the current rate; zero when the rate is
// effectively zero.
func (t *ProgressTracker) ETA() time.Duration {
	rate := t.Rate()
	if rate < 0.001 {
		return 0
	}
	processed := t.Processed()
	if processed >= t.total {
		return 0
	}
	remaining := t.total - processed
	return time.Duration(float64(remaining) / rate * float64(time.Second))
}

// Snapshot builds a ScanProgress for the given candidate range.
func (t *ProgressTracker) Snapshot(rangeStart, rangeEnd uint64) ScanProgress {
	return ScanProgress{
		RangeStart: rangeStart,
		RangeEnd:   rangeEnd,
		Current:    t.Processed(),
		Hits:       t.Matches(),
		ETASeconds: uint64(t.ETA().Seconds()),
	}
}

// Log emits a progress line.
func (t *ProgressTracker) Log(log *logrus.Logger) {
	log.WithFields(logrus.Fields{
		"percent":   display.Percent(t.Percent()),
		"processed": display.Count(t.Processed()),
		"matches":   t.Matches(),
		"rate":      display.Rate(t.Rate()),
		"eta":       display.Duration(t.ETA()),
	}).Info("scan progress")
}

// Handle returns a cloneable handle sharing this tracker's counters. Handles
// are safe for concurrent use from any number of goroutines.
func (t *ProgressTracker) Handle() ProgressHandle {
	return ProgressHandle{c: t.c}
}

// ProgressHandle lets producer contexts report progress without locks.
type ProgressHandle struct {
	c *counters
}

// AddProcessed records count processed candidates.
func (h ProgressHandle) AddProcessed(count uint64) { h.c.processed.Add(count) }

// AddMatch records one match.
func (h ProgressHandle) AddMatch() { h.c.matches.Add(1) }

// Processed returns the shared processed count.
func (h ProgressHandle) Processed() uint64 { return h.c.processed.Load() }

// Matches returns the shared match count.
func (h ProgressHandle) Matches() uint64 { return h.c.matches.Load() }
