package randstorm

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

// Test a faithful backend passes the parity gate
func TestValidateParityPasses(t *testing.T) {
	cfg := gpuTestConfig(BackendWgpu)
	for _, engine := range AllEngines {
		engine := engine
		t.Run(engine.String(), func(t *testing.T) {
			b := newFakeBackend(BackendWgpu, &cfg, engine, false)
			if err := ValidateParity(context.Background(), b, &cfg, engine, 64); err != nil {
				t.Errorf("parity failed for a faithful backend: %v", err)
			}
		})
	}
}

// Test a divergent backend is reported with the first diverging seed
func TestValidateParityDetectsDivergence(t *testing.T) {
	cfg := gpuTestConfig(BackendOpenCl)
	b := newFakeBackend(BackendOpenCl, &cfg, EngineLcg48, true)

	err := ValidateParity(context.Background(), b, &cfg, EngineLcg48, 64)
	if err == nil {
		t.Fatal("parity passed for a divergent backend")
	}
	var pv *ParityViolation
	if !errors.As(err, &pv) {
		t.Fatalf("error type = %T, want *ParityViolation", err)
	}
	if pv.Backend != b.Name() {
		t.Errorf("violation backend = %q, want %q", pv.Backend, b.Name())
	}
	if pv.Engine != EngineLcg48 {
		t.Errorf("violation engine = %v, want %v", pv.Engine, EngineLcg48)
	}
	if bytes.Equal(pv.Want, pv.Got) {
		t.Error("violation records identical want/got bytes")
	}
}

// Test a thousand seeds agree between a second reference instance and the
// gate, the acceptance bar for real GPU backends
func TestParityThousandSeeds(t *testing.T) {
	if testing.Short() {
		t.Skip("long parity sweep")
	}
	cfg := gpuTestConfig(BackendWgpu)
	for _, engine := range AllEngines {
		engine := engine
		t.Run(engine.String(), func(t *testing.T) {
			b := newFakeBackend(BackendWgpu, &cfg, engine, false)
			if err := ValidateParity(context.Background(), b, &cfg, engine, 1000); err != nil {
				t.Errorf("1000-seed parity failed: %v", err)
			}
		})
	}
}

// Test CPU backends skip the parity gate
func TestValidateParityCpuExempt(t *testing.T) {
	cfg := TestScanConfig()
	b := newCPUBackend(&cfg, EngineV8Mwc1616)
	if err := ValidateParity(context.Background(), b, &cfg, EngineV8Mwc1616, 1<<20); err != nil {
		t.Errorf("CPU reference failed its own parity gate: %v", err)
	}
}

// Test the parity candidate grid is deterministic across runs
func TestParityCandidatesStable(t *testing.T) {
	a := parityCandidates(32)
	b := parityCandidates(32)
	if len(a) != len(b) {
		t.Fatal("grid lengths differ")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("grid entry %d differs between runs", i)
		}
	}
	if a[0].Fingerprint.TimestampMS != parityBaseTimestampMS {
		t.Errorf("grid starts at %d, want %d", a[0].Fingerprint.TimestampMS, parityBaseTimestampMS)
	}
}
