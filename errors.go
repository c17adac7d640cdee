package randstorm

import "fmt"

// ConfigError reports an invalid scan configuration. It is fatal to the
// invocation that produced it; the caller must fix the configuration and
// retry.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("randstorm: invalid configuration: %s", e.Reason)
	}
	return fmt.Sprintf("randstorm: invalid configuration: %s: %s", e.Field, e.Reason)
}

// BackendInitError reports that a compute backend could not be initialized.
// Under BackendAuto the resolver continues down the fallback chain; under a
// forced GPU backend only the CPU fallback is attempted.
type BackendInitError struct {
	Backend BackendKind
	Err     error
}

func (e *BackendInitError) Error() string {
	return fmt.Sprintf("randstorm: backend %s initialization failed: %v", e.Backend, e.Err)
}

func (e *BackendInitError) Unwrap() error { return e.Err }

// CheckpointError reports a checkpoint that could not be written, read, or
// validated. It is always surfaced as an error: a corrupt checkpoint on an
// explicit resume must never silently restart the scan from zero.
type CheckpointError struct {
	Path string
	Op   string // "save", "load", "validate"
	Err  error
}

func (e *CheckpointError) Error() string {
	return fmt.Sprintf("randstorm: checkpoint %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *CheckpointError) Unwrap() error { return e.Err }

// ParityViolation reports a divergence between a compute backend and the CPU
// golden reference. It is fatal to the scan: a backend that diverges even in
// one bit would produce silent false negatives, so its output must never be
// reported as findings.
type ParityViolation struct {
	Backend   string
	Engine    Engine
	SeedIndex int
	Want      []byte
	Got       []byte
}

func (e *ParityViolation) Error() string {
	return fmt.Sprintf(
		"randstorm: hardware parity violation: backend %s diverged from CPU golden reference (engine=%s seed=%d want=%x got=%x)",
		e.Backend, e.Engine, e.SeedIndex, e.Want, e.Got)
}
