package randstorm

import (
	"context"
	"path/filepath"
	"testing"
)

var _ Scanner = (*ScanJob)(nil)

// scanTestBase sits on the ScanQuick grid inside the vulnerable era.
const scanTestBase = uint64(1366027200000)

func scanTestConfig(t *testing.T) ScanConfig {
	t.Helper()
	cfg := DefaultScanConfig()
	cfg.ScanMode = ScanQuick
	cfg.StartDateMS = scanTestBase
	cfg.EndDateMS = scanTestBase + 9*cfg.ScanMode.IntervalMS()
	cfg.UseGPU = false
	cfg.BatchSize = 5
	return cfg
}

// plantTarget derives the address a vulnerable wallet would have produced at
// ts, so a scan over a range containing ts must find it.
func plantTarget(t *testing.T, engine Engine, ts uint64) (*TargetSet, string) {
	t.Helper()
	key := KeyFromTimestamp(engine, ts)
	derived := DeriveCandidates(key, CoverageLegacy)
	if len(derived) == 0 {
		t.Fatal("planted key failed derivation")
	}
	addr, err := AddressFromHash160(derived[0].Hash160)
	if err != nil {
		t.Fatal(err)
	}
	targets, err := NewTargetSet([]string{addr})
	if err != nil {
		t.Fatal(err)
	}
	return targets, addr
}

func newTestJob(t *testing.T, cfg ScanConfig, engine Engine) *ScanJob {
	t.Helper()
	job, err := NewScanJob(cfg, engine)
	if err != nil {
		t.Fatal(err)
	}
	job.DB = NewFingerprintDB(defaultBrowserConfigs()[:2])
	job.Log = testLogger()
	return job
}

// Test a full scan recovers a planted vulnerable wallet
func TestScanFindsPlantedTarget(t *testing.T) {
	cfg := scanTestConfig(t)
	targetTS := scanTestBase + 3*cfg.ScanMode.IntervalMS()

	for _, engine := range AllEngines {
		engine := engine
		t.Run(engine.String(), func(t *testing.T) {
			targets, addr := plantTarget(t, engine, targetTS)

			job := newTestJob(t, cfg, engine)
			report, err := job.Run(context.Background(), targets, nil)
			if err != nil {
				t.Fatal(err)
			}
			if !report.Completed {
				t.Error("report not marked completed")
			}
			if report.Processed != report.Total {
				t.Errorf("processed %d of %d", report.Processed, report.Total)
			}
			// Timestamp seeding: every browser config hits at the target
			// timestamp.
			if len(report.Findings) != 2 {
				t.Fatalf("got %d findings, want 2", len(report.Findings))
			}
			for _, f := range report.Findings {
				if f.Address != addr {
					t.Errorf("finding address = %q, want %q", f.Address, addr)
				}
				if f.TimestampMS != targetTS {
					t.Errorf("finding timestamp = %d, want %d", f.TimestampMS, targetTS)
				}
				if f.Path != PathDirectUncompressed {
					t.Errorf("finding path = %q, want %q", f.Path, PathDirectUncompressed)
				}
				if f.Engine != engine.String() {
					t.Errorf("finding engine = %q, want %q", f.Engine, engine)
				}
				if f.WIF == "" {
					t.Error("finding missing WIF export")
				}
				if f.Confidence != ConfidenceHigh {
					t.Errorf("finding confidence = %v, want high", f.Confidence)
				}
			}
		})
	}
}

// Test a scan with no matching targets reports nothing
func TestScanNoMatches(t *testing.T) {
	cfg := scanTestConfig(t)
	targets, err := NewTargetSet([]string{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"})
	if err != nil {
		t.Fatal(err)
	}

	job := newTestJob(t, cfg, EngineV8Mwc1616)
	report, err := job.Run(context.Background(), targets, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) != 0 {
		t.Errorf("got %d findings, want 0", len(report.Findings))
	}
	if !report.Completed {
		t.Error("report not marked completed")
	}
}

// Test an interrupted scan plus its resume covers exactly a full scan
func TestScanResumeEquivalence(t *testing.T) {
	engine := EngineLcg48
	cfg := scanTestConfig(t)
	targetTS := scanTestBase + 8*cfg.ScanMode.IntervalMS()
	targets, _ := plantTarget(t, engine, targetTS)

	// Uninterrupted baseline.
	full, err := newTestJob(t, cfg, engine).Run(context.Background(), targets, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Interrupted run: cap stops the scan mid-stream with a checkpoint.
	ckptPath := filepath.Join(t.TempDir(), "scan.checkpoint")
	capped := cfg
	capped.CheckpointPath = ckptPath
	capped.MaxFingerprints = 7

	interrupted, err := newTestJob(t, capped, engine).Run(context.Background(), targets, nil)
	if err != nil {
		t.Fatal(err)
	}
	if interrupted.Completed {
		t.Fatal("capped run reported completed")
	}
	if interrupted.Processed != 7 {
		t.Fatalf("capped run processed %d, want 7", interrupted.Processed)
	}
	if !CheckpointExists(ckptPath) {
		t.Fatal("capped run left no checkpoint")
	}

	// Resume without the cap.
	resumeCfg := capped
	resumeCfg.MaxFingerprints = 0
	resumed, err := newTestJob(t, resumeCfg, engine).Resume(context.Background(), targets, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !resumed.Completed {
		t.Error("resumed run not marked completed")
	}
	if !resumed.Resumed {
		t.Error("resumed report not flagged as resumed")
	}
	if resumed.Processed != full.Total {
		t.Errorf("resumed run processed %d, want %d", resumed.Processed, full.Total)
	}

	combined := len(interrupted.Findings) + len(resumed.Findings)
	if combined != len(full.Findings) {
		t.Errorf("interrupted+resumed findings = %d, full run = %d", combined, len(full.Findings))
	}
}

// Test resume failures are loud
func TestScanResumeErrors(t *testing.T) {
	engine := EngineV8Mwc1616
	cfg := scanTestConfig(t)
	targets, _ := plantTarget(t, engine, scanTestBase)

	// No checkpoint path configured.
	job := newTestJob(t, cfg, engine)
	if _, err := job.Resume(context.Background(), targets, nil); err == nil {
		t.Error("Resume succeeded without a checkpoint path")
	}

	// Missing checkpoint file.
	cfg.CheckpointPath = filepath.Join(t.TempDir(), "absent.checkpoint")
	job = newTestJob(t, cfg, engine)
	if _, err := job.Resume(context.Background(), targets, nil); err == nil {
		t.Error("Resume succeeded with a missing checkpoint")
	}

	// Checkpoint written under a different scan mode.
	path := filepath.Join(t.TempDir(), "scan.checkpoint")
	if err := SaveCheckpoint(path, NewScanCheckpoint(0, scanTestBase, 3, 0, ScanDeep)); err != nil {
		t.Fatal(err)
	}
	cfg.CheckpointPath = path
	job = newTestJob(t, cfg, engine)
	if _, err := job.Resume(context.Background(), targets, nil); err == nil {
		t.Error("Resume accepted a checkpoint from a different scan mode")
	}
}

// Test cancellation stops the scan without an error
func TestScanCancellation(t *testing.T) {
	engine := EngineV8Mwc1616
	cfg := scanTestConfig(t)
	targets, _ := plantTarget(t, engine, scanTestBase)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestJob(t, cfg, engine).Run(ctx, targets, nil)
	if err != nil {
		t.Fatalf("canceled run returned error: %v", err)
	}
	if report.Completed {
		t.Error("canceled run reported completed")
	}
	if report.Processed != 0 {
		t.Errorf("canceled run processed %d, want 0", report.Processed)
	}
}

// cancelingBackend cancels the scan context inside its first DeriveBatch
// call, then delegates to the reference, so derivation fails mid-batch.
type cancelingBackend struct {
	*cpuBackend
	cancel context.CancelFunc
	calls  int
}

func (b *cancelingBackend) DeriveBatch(ctx context.Context, batch []Candidate) ([][]DerivedCandidate, error) {
	b.calls++
	if b.calls == 1 {
		b.cancel()
	}
	return b.cpuBackend.DeriveBatch(ctx, batch)
}

// Test cancellation mid-derivation checkpoints the abandoned batch's start,
// so resume re-derives that batch instead of skipping it
func TestScanCancellationMidBatch(t *testing.T) {
	engine := EngineV8Mwc1616
	cfg := scanTestConfig(t)
	cfg.CheckpointPath = filepath.Join(t.TempDir(), "scan.checkpoint")

	// Plant the target inside the first batch, the one that gets abandoned.
	targetTS := scanTestBase + 2*cfg.ScanMode.IntervalMS()
	targets, _ := plantTarget(t, engine, targetTS)

	full, err := newTestJob(t, scanTestConfig(t), engine).Run(context.Background(), targets, nil)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	job := newTestJob(t, cfg, engine)
	job.backend = &cancelingBackend{cpuBackend: newCPUBackend(&cfg, engine), cancel: cancel}

	interrupted, err := job.Run(ctx, targets, nil)
	if err != nil {
		t.Fatalf("canceled run returned error: %v", err)
	}
	if interrupted.Completed {
		t.Error("canceled run reported completed")
	}
	if interrupted.Processed != 0 {
		t.Errorf("abandoned batch counted as processed: %d", interrupted.Processed)
	}

	ckpt, err := LoadCheckpoint(cfg.CheckpointPath)
	if err != nil {
		t.Fatal(err)
	}
	if ckpt.ConfigIdx != 0 || ckpt.TimestampMS != scanTestBase {
		t.Fatalf("checkpoint records (%d, %d), want abandoned batch start (0, %d)",
			ckpt.ConfigIdx, ckpt.TimestampMS, scanTestBase)
	}
	if ckpt.FingerprintsScanned != 0 {
		t.Errorf("checkpoint scanned = %d, want 0", ckpt.FingerprintsScanned)
	}

	resumed, err := newTestJob(t, cfg, engine).Resume(context.Background(), targets, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resumed.Processed != full.Total {
		t.Errorf("resumed run processed %d, want %d", resumed.Processed, full.Total)
	}
	combined := len(interrupted.Findings) + len(resumed.Findings)
	if combined != len(full.Findings) {
		t.Errorf("interrupted+resumed findings = %d, full run = %d", combined, len(full.Findings))
	}
}

// Test progress snapshots are delivered on the channel
func TestScanProgressChannel(t *testing.T) {
	engine := EngineSafariGameRand
	cfg := scanTestConfig(t)
	targets, _ := plantTarget(t, engine, scanTestBase)

	progress := make(chan ScanProgress, 64)
	report, err := newTestJob(t, cfg, engine).Run(context.Background(), targets, progress)
	if err != nil {
		t.Fatal(err)
	}
	close(progress)

	var last ScanProgress
	count := 0
	for p := range progress {
		if p.RangeStart != cfg.StartDateMS || p.RangeEnd != cfg.EndDateMS {
			t.Errorf("snapshot range = (%d, %d), want configured range", p.RangeStart, p.RangeEnd)
		}
		if p.Current < last.Current {
			t.Error("progress went backwards")
		}
		last = p
		count++
	}
	if count == 0 {
		t.Fatal("no progress snapshots delivered")
	}
	if last.Current != report.Processed {
		t.Errorf("final snapshot current = %d, want %d", last.Current, report.Processed)
	}
	if last.Hits != uint64(len(report.Findings)) {
		t.Errorf("final snapshot hits = %d, want %d", last.Hits, len(report.Findings))
	}
}

// Test the scanner name identifies engine and backend policy
func TestScanJobName(t *testing.T) {
	cfg := scanTestConfig(t)
	job := newTestJob(t, cfg, EngineLcg48)
	if got := job.Name(); got != "randstorm/lcg48/auto" {
		t.Errorf("Name() = %q", got)
	}
}

// Test the one-call entry point
func TestScanAddresses(t *testing.T) {
	engine := EngineV8Mwc1616
	cfg := scanTestConfig(t)
	targetTS := scanTestBase + 2*cfg.ScanMode.IntervalMS()
	_, addr := plantTarget(t, engine, targetTS)

	report, err := ScanAddresses(context.Background(), cfg, engine, []string{addr})
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Findings) == 0 {
		t.Error("ScanAddresses found nothing for a planted target")
	}
}
