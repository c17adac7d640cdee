package randstorm

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// BackendKind names a compute backend resolution state.
type BackendKind int

const (
	// BackendAuto tries Wgpu, then OpenCl, then Cpu, taking the first that
	// initializes.
	BackendAuto BackendKind = iota

	// BackendWgpu forces the WGPU backend; on init failure it falls back to
	// Cpu only, never to OpenCl.
	BackendWgpu

	// BackendOpenCl forces the OpenCL backend; on init failure it falls back
	// to Cpu only, never to Wgpu.
	BackendOpenCl

	// BackendCpu is the golden reference: always available, authoritative
	// for correctness.
	BackendCpu
)

func (k BackendKind) String() string {
	switch k {
	case BackendAuto:
		return "auto"
	case BackendWgpu:
		return "wgpu"
	case BackendOpenCl:
		return "opencl"
	case BackendCpu:
		return "cpu"
	default:
		return fmt.Sprintf("BackendKind(%d)", int(k))
	}
}

// ParseBackendKind parses a backend name.
func ParseBackendKind(s string) (BackendKind, error) {
	switch s {
	case "auto", "":
		return BackendAuto, nil
	case "wgpu", "metal", "vulkan":
		return BackendWgpu, nil
	case "opencl", "cl":
		return BackendOpenCl, nil
	case "cpu":
		return BackendCpu, nil
	default:
		return BackendAuto, &ConfigError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", s)}
	}
}

// MarshalYAML implements yaml.Marshaler.
func (k BackendKind) MarshalYAML() (interface{}, error) { return k.String(), nil }

// UnmarshalYAML implements yaml.Unmarshaler.
func (k *BackendKind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	kind, err := ParseBackendKind(s)
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// BatchBackend is the opaque batch-compute contract. A backend receives a
// batch of candidates and returns, per candidate, the derived address
// hashes. The only correctness requirement is bit-exact adherence to the
// engine step functions: every backend's output must equal the CPU golden
// reference byte for byte.
//
// Batches are submitted synchronously; internal parallelism (device-side or
// goroutine-based) is the backend's own business.
type BatchBackend interface {
	// Name identifies the implementation for logs and parity reports.
	Name() string

	// Kind reports which resolution state this backend satisfies.
	Kind() BackendKind

	// DeriveBatch derives address-hash candidates for each batch entry.
	// results[i] holds the derived candidates for batch[i]; a nil entry is a
	// derivation miss.
	DeriveBatch(ctx context.Context, batch []Candidate) ([][]DerivedCandidate, error)

	// Close releases device resources.
	Close() error
}

// BackendFactory constructs a backend for a scan. GPU backends register a
// factory at program start; factories are consulted once, when the scan
// resolves its backend, so every backend can be exercised from the same
// binary.
type BackendFactory func(cfg *ScanConfig, engine Engine) (BatchBackend, error)

var (
	backendMu        sync.RWMutex
	backendFactories = map[BackendKind]BackendFactory{}
)

// RegisterBackend installs a factory for a GPU backend kind. Registering
// BackendCpu or BackendAuto is a programming error.
func RegisterBackend(kind BackendKind, factory BackendFactory) {
	if kind != BackendWgpu && kind != BackendOpenCl {
		panic(fmt.Sprintf("randstorm: cannot register factory for backend %s", kind))
	}
	backendMu.Lock()
	defer backendMu.Unlock()
	backendFactories[kind] = factory
}

// clearBackends removes registered factories; test helper.
func clearBackends() {
	backendMu.Lock()
	defer backendMu.Unlock()
	backendFactories = map[BackendKind]BackendFactory{}
}

func lookupBackend(kind BackendKind) (BackendFactory, bool) {
	backendMu.RLock()
	defer backendMu.RUnlock()
	f, ok := backendFactories[kind]
	return f, ok
}

// tryInit attempts one backend kind, wrapping failures as BackendInitError.
func tryInit(kind BackendKind, cfg *ScanConfig, engine Engine) (BatchBackend, error) {
	factory, ok := lookupBackend(kind)
	if !ok {
		return nil, &BackendInitError{Backend: kind, Err: fmt.Errorf("no %s backend registered", kind)}
	}
	b, err := factory(cfg, engine)
	if err != nil {
		return nil, &BackendInitError{Backend: kind, Err: err}
	}
	return b, nil
}

// ResolveBackend runs the backend resolution state machine and, for any
// non-CPU result, the hardware parity self-test. Fallback is one-directional:
// Auto walks Wgpu → OpenCl → Cpu; a forced GPU backend may fall back only to
// Cpu. A parity violation is fatal and aborts resolution entirely; a GPU
// that diverges from the reference must not be worked around by falling
// back silently.
func ResolveBackend(cfg *ScanConfig, engine Engine, log *logrus.Logger) (BatchBackend, error) {
	if !cfg.UseGPU || cfg.Backend == BackendCpu {
		return newCPUBackend(cfg, engine), nil
	}

	var chain []BackendKind
	switch cfg.Backend {
	case BackendAuto:
		chain = []BackendKind{BackendWgpu, BackendOpenCl}
	case BackendWgpu:
		chain = []BackendKind{BackendWgpu}
	case BackendOpenCl:
		chain = []BackendKind{BackendOpenCl}
	}

	for _, kind := range chain {
		b, err := tryInit(kind, cfg, engine)
		if err != nil {
			log.WithError(err).Warnf("backend %s unavailable, continuing fallback", kind)
			continue
		}
		if err := ValidateParity(context.Background(), b, cfg, engine, cfg.ParityIterations); err != nil {
			b.Close()
			return nil, err
		}
		log.Infof("resolved backend %s (%s)", kind, b.Name())
		return b, nil
	}

	log.Warn("no GPU backend initialized, falling back to CPU golden reference")
	return newCPUBackend(cfg, engine), nil
}

// cpuBackend is the golden reference: the authoritative implementation every
// other backend is validated against.
type cpuBackend struct {
	engine   Engine
	coverage PathCoverage
	seeding  SeedSource
	threads  int
}

func newCPUBackend(cfg *ScanConfig, engine Engine) *cpuBackend {
	return &cpuBackend{
		engine:   engine,
		coverage: cfg.PathCoverage,
		seeding:  cfg.Seeding,
		threads:  cfg.effectiveThreads(),
	}
}

func (b *cpuBackend) Name() string      { return "cpu-golden-reference" }
func (b *cpuBackend) Kind() BackendKind { return BackendCpu }
func (b *cpuBackend) Close() error      { return nil }

// candidateKey runs the vulnerable derivation for one candidate under this
// backend's seeding policy.
func (b *cpuBackend) candidateKey(c *Candidate) [32]byte {
	if b.seeding == SeedFingerprint {
		return KeyFromFingerprint(b.engine, &c.Fingerprint)
	}
	return KeyFromTimestamp(b.engine, c.Fingerprint.TimestampMS)
}

// DeriveBatch derives the batch in parallel, preserving input order. Results
// are deterministic: worker scheduling never affects output content.
func (b *cpuBackend) DeriveBatch(ctx context.Context, batch []Candidate) ([][]DerivedCandidate, error) {
	results := make([][]DerivedCandidate, len(batch))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.threads)

	chunk := (len(batch) + b.threads - 1) / b.threads
	if chunk == 0 {
		chunk = 1
	}
	for start := 0; start < len(batch); start += chunk {
		end := start + chunk
		if end > len(batch) {
			end = len(batch)
		}
		start, end := start, end
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				key := b.candidateKey(&batch[i])
				results[i] = DeriveCandidates(key, b.coverage)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
