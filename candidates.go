package randstorm

import "fmt"

// TimestampGenerator enumerates candidate generation timestamps. It is a
// pure function of its parameters: position i always maps to the same
// timestamp, which is what makes checkpointed scans resumable without
// replaying the stream.
type TimestampGenerator struct {
	interval uint64

	// Linear sweep parameters.
	start uint64
	end   uint64

	// Spiral parameters. When spiral is set, enumeration starts at center
	// and alternates outward: center, center+i, center-i, center+2i, ...
	spiral bool
	center uint64
	steps  uint64 // outward steps per direction
}

// NewTimestampGenerator enumerates [startMS, endMS] in intervalMS steps.
func NewTimestampGenerator(startMS, endMS, intervalMS uint64) TimestampGenerator {
	if intervalMS == 0 {
		intervalMS = 1
	}
	if endMS < startMS {
		endMS = startMS
	}
	return TimestampGenerator{start: startMS, end: endMS, interval: intervalMS}
}

// NewSpiralGenerator enumerates outward from centerMS, covering
// ±windowMS at intervalMS resolution. Spirals suit targeted scans where a
// wallet's first-seen time narrows the likely generation moment.
func NewSpiralGenerator(centerMS, windowMS, intervalMS uint64) TimestampGenerator {
	if intervalMS == 0 {
		intervalMS = 1
	}
	if windowMS > centerMS {
		windowMS = centerMS // keep the lower arm above the epoch
	}
	return TimestampGenerator{
		spiral:   true,
		center:   centerMS,
		steps:    windowMS / intervalMS,
		interval: intervalMS,
	}
}

// Len returns the total number of timestamps enumerated.
func (g *TimestampGenerator) Len() uint64 {
	if g.spiral {
		return 2*g.steps + 1
	}
	return (g.end-g.start)/g.interval + 1
}

// At returns the timestamp at position i. i must be < Len().
func (g *TimestampGenerator) At(i uint64) uint64 {
	if !g.spiral {
		return g.start + i*g.interval
	}
	if i == 0 {
		return g.center
	}
	k := (i + 1) / 2
	if i%2 == 1 {
		return g.center + k*g.interval
	}
	return g.center - k*g.interval
}

// IndexOf inverts At. Timestamps that do not fall on the enumeration grid
// are rejected, which is how a checkpoint recorded under a different scan
// mode gets caught at resume time.
func (g *TimestampGenerator) IndexOf(ts uint64) (uint64, error) {
	if !g.spiral {
		if ts < g.start || ts > g.end || (ts-g.start)%g.interval != 0 {
			return 0, fmt.Errorf("timestamp %d not on scan grid [%d,%d] step %d", ts, g.start, g.end, g.interval)
		}
		return (ts - g.start) / g.interval, nil
	}
	if ts == g.center {
		return 0, nil
	}
	if ts > g.center {
		d := ts - g.center
		k := d / g.interval
		if d%g.interval != 0 || k > g.steps {
			return 0, fmt.Errorf("timestamp %d not on spiral grid around %d", ts, g.center)
		}
		return 2*k - 1, nil
	}
	d := g.center - ts
	k := d / g.interval
	if d%g.interval != 0 || k > g.steps {
		return 0, fmt.Errorf("timestamp %d not on spiral grid around %d", ts, g.center)
	}
	return 2 * k, nil
}

// Candidate is one (browser config, timestamp) pair drawn from the stream.
type Candidate struct {
	ConfigIdx   int
	Fingerprint BrowserFingerprint
}

// StreamingScan lazily enumerates the cross product of browser configs and
// timestamps: configs in priority order on the outside, timestamps in
// generator order on the inside. It is a finite, restartable producer: given
// a checkpoint position it yields exactly the sequence an uninterrupted run
// would have produced from that point.
type StreamingScan struct {
	configs   []BrowserConfig
	gen       TimestampGenerator
	configIdx int
	tsIdx     uint64
}

// NewStreamingScan builds the candidate stream for a scan configuration.
func NewStreamingScan(configs []BrowserConfig, cfg *ScanConfig) *StreamingScan {
	interval := cfg.ScanMode.IntervalMS()

	var gen TimestampGenerator
	if cfg.TargetTimestamp != 0 {
		window := cfg.TimestampWindow
		if window == 0 {
			window = 31_536_000_000 // ±1 year
		}
		gen = NewSpiralGenerator(cfg.TargetTimestamp, window, interval)
	} else {
		start, end := cfg.dateRange()
		gen = NewTimestampGenerator(start, end, interval)
	}

	return &StreamingScan{configs: configs, gen: gen}
}

// Next returns the next candidate, or ok=false when the stream is exhausted.
func (s *StreamingScan) Next() (Candidate, bool) {
	if s.configIdx >= len(s.configs) {
		return Candidate{}, false
	}
	if s.tsIdx >= s.gen.Len() {
		s.configIdx++
		s.tsIdx = 0
		if s.configIdx >= len(s.configs) {
			return Candidate{}, false
		}
	}
	cfg := &s.configs[s.configIdx]
	ts := s.gen.At(s.tsIdx)
	s.tsIdx++
	return Candidate{
		ConfigIdx:   s.configIdx,
		Fingerprint: cfg.Fingerprint(ts),
	}, true
}

// Total returns the number of candidates the full stream yields.
func (s *StreamingScan) Total() uint64 {
	return s.gen.Len() * uint64(len(s.configs))
}

// Position reports the next candidate to be produced, for checkpointing.
// done is true once the stream is exhausted.
func (s *StreamingScan) Position() (configIdx int, timestampMS uint64, done bool) {
	if s.configIdx >= len(s.configs) {
		return s.configIdx, 0, true
	}
	if s.tsIdx >= s.gen.Len() {
		if s.configIdx+1 >= len(s.configs) {
			return s.configIdx + 1, 0, true
		}
		return s.configIdx + 1, s.gen.At(0), false
	}
	return s.configIdx, s.gen.At(s.tsIdx), false
}

// Seek positions the stream so the next candidate produced is exactly
// (configIdx, timestampMS). Positions off the enumeration grid are errors;
// resuming must be computationally transparent, never approximate.
func (s *StreamingScan) Seek(configIdx int, timestampMS uint64) error {
	if configIdx < 0 || configIdx >= len(s.configs) {
		return fmt.Errorf("config index %d out of range [0,%d)", configIdx, len(s.configs))
	}
	tsIdx, err := s.gen.IndexOf(timestampMS)
	if err != nil {
		return err
	}
	s.configIdx = configIdx
	s.tsIdx = tsIdx
	return nil
}
