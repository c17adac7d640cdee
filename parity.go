package randstorm

import (
	"bytes"
	"context"
)

// DefaultParityIterations is the number of fixed seeds checked before a
// non-CPU backend is trusted with real work.
const DefaultParityIterations = 256

// parityBaseTimestampMS anchors the parity seed grid inside the vulnerable
// era (2013-04-15 12:00:00 UTC).
const parityBaseTimestampMS uint64 = 1366027200000

// parityCandidates builds the fixed candidate set used for hardware
// validation: one fingerprint stepped across a deterministic timestamp grid.
// The grid is spaced at a prime millisecond stride so it never aliases with
// engine periods.
func parityCandidates(iterations int) []Candidate {
	fp := defaultBrowserConfigs()[0]
	out := make([]Candidate, iterations)
	for i := range out {
		out[i] = Candidate{
			ConfigIdx:   0,
			Fingerprint: fp.Fingerprint(parityBaseTimestampMS + uint64(i)*997),
		}
	}
	return out
}

// flattenDerived serializes a candidate's derivation results for byte
// comparison in parity reports.
func flattenDerived(derived []DerivedCandidate) []byte {
	var buf bytes.Buffer
	for _, d := range derived {
		buf.WriteString(d.Path)
		buf.WriteByte(0)
		buf.Write(d.Hash160[:])
	}
	return buf.Bytes()
}

// ValidateParity runs the backend against the CPU golden reference over the
// fixed seed grid and demands byte-identical output. Any divergence is a
// ParityViolation: the backend's entire output is untrustworthy and the scan
// must not proceed on it. CPU backends are exempt; they are the reference.
func ValidateParity(ctx context.Context, backend BatchBackend, cfg *ScanConfig, engine Engine, iterations int) error {
	if backend.Kind() == BackendCpu {
		return nil
	}
	if iterations <= 0 {
		iterations = DefaultParityIterations
	}

	batch := parityCandidates(iterations)

	reference := newCPUBackend(cfg, engine)
	want, err := reference.DeriveBatch(ctx, batch)
	if err != nil {
		return err
	}
	got, err := backend.DeriveBatch(ctx, batch)
	if err != nil {
		return &BackendInitError{Backend: backend.Kind(), Err: err}
	}

	if len(got) != len(want) {
		return &ParityViolation{
			Backend:   backend.Name(),
			Engine:    engine,
			SeedIndex: -1,
			Want:      []byte{byte(len(want))},
			Got:       []byte{byte(len(got))},
		}
	}
	for i := range want {
		w := flattenDerived(want[i])
		g := flattenDerived(got[i])
		if !bytes.Equal(w, g) {
			return &ParityViolation{
				Backend:   backend.Name(),
				Engine:    engine,
				SeedIndex: i,
				Want:      w,
				Got:       g,
			}
		}
	}
	return nil
}
