package randstorm

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// ScanMode controls the timestamp interval at which candidate fingerprints
// are enumerated. Finer modes multiply the search space accordingly.
type ScanMode int

const (
	// ScanQuick steps ~35-hour intervals, roughly 1000 timestamps across the
	// vulnerable period. Useful for smoke runs.
	ScanQuick ScanMode = iota

	// ScanStandard steps hourly intervals.
	ScanStandard

	// ScanDeep steps one-minute intervals.
	ScanDeep

	// ScanExhaustive steps one-second intervals. Expect multi-week runs.
	ScanExhaustive
)

// IntervalMS returns the timestamp step in milliseconds for this mode.
func (m ScanMode) IntervalMS() uint64 {
	switch m {
	case ScanQuick:
		return 126_000_000
	case ScanStandard:
		return 3_600_000
	case ScanDeep:
		return 60_000
	case ScanExhaustive:
		return 1_000
	default:
		return 3_600_000
	}
}

func (m ScanMode) String() string {
	switch m {
	case ScanQuick:
		return "quick"
	case ScanStandard:
		return "standard"
	case ScanDeep:
		return "deep"
	case ScanExhaustive:
		return "exhaustive"
	default:
		return fmt.Sprintf("ScanMode(%d)", int(m))
	}
}

// ParseScanMode parses a scan mode name as used in config files and
// checkpoints.
func ParseScanMode(s string) (ScanMode, error) {
	switch s {
	case "quick", "Quick":
		return ScanQuick, nil
	case "standard", "Standard":
		return ScanStandard, nil
	case "deep", "Deep":
		return ScanDeep, nil
	case "exhaustive", "Exhaustive":
		return ScanExhaustive, nil
	default:
		return ScanStandard, &ConfigError{Field: "scan_mode", Reason: fmt.Sprintf("unknown mode %q", s)}
	}
}

// MarshalYAML implements yaml.Marshaler so modes round-trip as names.
func (m ScanMode) MarshalYAML() (interface{}, error) { return m.String(), nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (m *ScanMode) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	mode, err := ParseScanMode(s)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// PathCoverage selects which derivation paths are checked for each candidate
// key.
type PathCoverage int

const (
	// CoverageLegacy checks only the direct (pre-BIP32) P2PKH addresses, the
	// derivation BitcoinJS-era wallets actually used. Both uncompressed and
	// compressed public key forms are checked.
	CoverageLegacy PathCoverage = iota

	// CoverageAll additionally treats the candidate bytes as a BIP32 seed and
	// checks the first external indices of the BIP44/49/84 account paths.
	CoverageAll
)

func (p PathCoverage) String() string {
	if p == CoverageAll {
		return "all"
	}
	return "legacy"
}

// ParsePathCoverage parses a path coverage name; anything other than "all"
// selects legacy coverage.
func ParsePathCoverage(s string) PathCoverage {
	if s == "all" || s == "All" {
		return CoverageAll
	}
	return CoverageLegacy
}

// MarshalYAML implements yaml.Marshaler.
func (p PathCoverage) MarshalYAML() (interface{}, error) { return p.String(), nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PathCoverage) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	*p = ParsePathCoverage(s)
	return nil
}

// SeedSource selects how candidate PRNG states are seeded.
type SeedSource int

const (
	// SeedTimestamp seeds each engine from the candidate timestamp alone.
	// This reproduces the documented historical vectors and is the default.
	SeedTimestamp SeedSource = iota

	// SeedFingerprint folds a hash of the browser environment fields into the
	// seed. This is a forensic approximation of undocumented browser
	// internals, not a verified reconstruction.
	SeedFingerprint
)

func (s SeedSource) String() string {
	if s == SeedFingerprint {
		return "fingerprint"
	}
	return "timestamp"
}

// Default date range: June 2011 through June 2015, the window in which the
// vulnerable BitcoinJS entropy path shipped in mainstream browsers.
const (
	DefaultStartDateMS uint64 = 1306886400000 // 2011-06-01
	DefaultEndDateMS   uint64 = 1435708799000 // 2015-06-30
)

// ScanConfig specifies a scan. It is immutable once a scan starts; the
// control loop owns it exclusively.
type ScanConfig struct {
	// ScanMode controls timestamp enumeration granularity.
	ScanMode ScanMode `yaml:"scan_mode" json:"scan_mode"`

	// Backend selects the compute backend resolution policy.
	Backend BackendKind `yaml:"backend" json:"backend"`

	// BatchSize is the number of candidates submitted per batch. Zero selects
	// the backend default.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// UseGPU enables GPU backends at all. When false the resolver goes
	// straight to the CPU reference regardless of Backend.
	UseGPU bool `yaml:"use_gpu" json:"use_gpu"`

	// CPUThreads is the worker count for the CPU reference backend. Zero
	// selects runtime.NumCPU().
	CPUThreads int `yaml:"cpu_threads" json:"cpu_threads"`

	// ProgressIntervalSecs is the cadence of progress log lines.
	ProgressIntervalSecs uint64 `yaml:"progress_interval_secs" json:"progress_interval_secs"`

	// MaxFingerprints caps the number of candidates scanned. Zero means
	// unlimited.
	MaxFingerprints uint64 `yaml:"max_fingerprints" json:"max_fingerprints"`

	// StartDateMS / EndDateMS bound the linear timestamp range. Zero selects
	// the defaults for the vulnerable period.
	StartDateMS uint64 `yaml:"start_date_ms" json:"start_date_ms"`
	EndDateMS   uint64 `yaml:"end_date_ms" json:"end_date_ms"`

	// TargetTimestamp, when non-zero, switches timestamp enumeration to a
	// spiral centered on this value (e.g. a wallet's first-seen time).
	TargetTimestamp uint64 `yaml:"target_timestamp" json:"target_timestamp"`

	// TimestampWindow bounds the spiral to ±window milliseconds around
	// TargetTimestamp. Zero selects ±1 year.
	TimestampWindow uint64 `yaml:"timestamp_window" json:"timestamp_window"`

	// PathCoverage selects derivation path coverage per candidate.
	PathCoverage PathCoverage `yaml:"path_coverage" json:"path_coverage"`

	// Seeding selects timestamp-only or fingerprint-hash seeding.
	Seeding SeedSource `yaml:"-" json:"-"`

	// CheckpointPath is where scan position is persisted. Empty disables
	// checkpointing.
	CheckpointPath string `yaml:"checkpoint_path" json:"checkpoint_path"`

	// CheckpointEveryBatches writes a checkpoint after this many committed
	// batches. Zero selects the default of 1 (every batch).
	CheckpointEveryBatches int `yaml:"checkpoint_every_batches" json:"checkpoint_every_batches"`

	// ParityIterations is the number of fixed seeds driven through a non-CPU
	// backend at startup for the parity self-test. Zero selects the default.
	ParityIterations int `yaml:"parity_iterations" json:"parity_iterations"`
}

// DefaultScanConfig returns the standard configuration for the Chrome/V8
// vulnerable period.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		ScanMode:             ScanStandard,
		Backend:              BackendAuto,
		UseGPU:               true,
		ProgressIntervalSecs: 5,
		StartDateMS:          DefaultStartDateMS,
		EndDateMS:            DefaultEndDateMS,
		PathCoverage:         CoverageLegacy,
	}
}

// TestScanConfig returns a small configuration suitable for unit tests and
// smoke runs.
func TestScanConfig() ScanConfig {
	cfg := DefaultScanConfig()
	cfg.MaxFingerprints = 10_000
	cfg.BatchSize = 1_000
	cfg.ProgressIntervalSecs = 1
	return cfg
}

// Validate checks the configuration. Violations are ConfigErrors and fatal
// to the invocation.
func (c *ScanConfig) Validate() error {
	if c.BatchSize < 0 {
		return &ConfigError{Field: "batch_size", Reason: "must not be negative"}
	}
	if c.CPUThreads < 0 {
		return &ConfigError{Field: "cpu_threads", Reason: "must not be negative"}
	}
	start, end := c.dateRange()
	if c.TargetTimestamp == 0 && end <= start {
		return &ConfigError{Field: "end_date_ms", Reason: "must be after start_date_ms"}
	}
	if c.Backend != BackendAuto && c.Backend != BackendWgpu && c.Backend != BackendOpenCl && c.Backend != BackendCpu {
		return &ConfigError{Field: "backend", Reason: fmt.Sprintf("unknown backend %d", int(c.Backend))}
	}
	return nil
}

// dateRange returns the effective linear scan bounds.
func (c *ScanConfig) dateRange() (start, end uint64) {
	start, end = c.StartDateMS, c.EndDateMS
	if start == 0 {
		start = DefaultStartDateMS
	}
	if end == 0 {
		end = DefaultEndDateMS
	}
	return start, end
}

// candidateRange returns the timestamp bounds candidates are drawn from,
// accounting for spiral enumeration around a target timestamp.
func (c *ScanConfig) candidateRange() (start, end uint64) {
	if c.TargetTimestamp != 0 {
		w := c.TimestampWindow
		if w == 0 {
			w = 31_536_000_000
		}
		if w > c.TargetTimestamp {
			w = c.TargetTimestamp
		}
		return c.TargetTimestamp - w, c.TargetTimestamp + w
	}
	return c.dateRange()
}

// effectiveBatchSize returns BatchSize with the default applied.
func (c *ScanConfig) effectiveBatchSize() int {
	if c.BatchSize > 0 {
		return c.BatchSize
	}
	return 10_000
}

// effectiveThreads returns CPUThreads with the default applied.
func (c *ScanConfig) effectiveThreads() int {
	if c.CPUThreads > 0 {
		return c.CPUThreads
	}
	return runtime.NumCPU()
}

// LoadScanConfig reads a ScanConfig from a YAML file and validates it.
func LoadScanConfig(path string) (ScanConfig, error) {
	cfg := DefaultScanConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("randstorm: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
