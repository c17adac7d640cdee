package randstorm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// Test checkpoint save/load round-trip
func TestCheckpointRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.checkpoint")

	want := NewScanCheckpoint(3, 1366027200000, 120000, 2, ScanDeep)
	if err := SaveCheckpoint(path, want); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}
	if !CheckpointExists(path) {
		t.Fatal("CheckpointExists = false after save")
	}

	got, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if got != want {
		t.Errorf("round-trip mismatch: got %+v, want %+v", got, want)
	}
}

// Test that a save replaces an existing checkpoint atomically
func TestCheckpointOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.checkpoint")

	if err := SaveCheckpoint(path, NewScanCheckpoint(0, 1000, 10, 0, ScanQuick)); err != nil {
		t.Fatal(err)
	}
	if err := SaveCheckpoint(path, NewScanCheckpoint(1, 2000, 20, 0, ScanQuick)); err != nil {
		t.Fatal(err)
	}

	got, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.ConfigIdx != 1 || got.TimestampMS != 2000 {
		t.Errorf("loaded stale checkpoint: %+v", got)
	}

	// No temp files may be left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("checkpoint dir has %d entries, want 1", len(entries))
	}
}

// Test load failures surface as CheckpointErrors
func TestCheckpointLoadErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		prep func() string
	}{
		{
			name: "missing file",
			prep: func() string { return filepath.Join(dir, "absent.checkpoint") },
		},
		{
			name: "corrupt json",
			prep: func() string {
				p := filepath.Join(dir, "corrupt.checkpoint")
				os.WriteFile(p, []byte("{not json"), 0o644)
				return p
			},
		},
		{
			name: "invalid contents",
			prep: func() string {
				p := filepath.Join(dir, "invalid.checkpoint")
				os.WriteFile(p, []byte(`{"config_idx":-1,"timestamp_ms":0,"scan_mode":"bogus"}`), 0o644)
				return p
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCheckpoint(tt.prep())
			if err == nil {
				t.Fatal("LoadCheckpoint succeeded on bad input")
			}
			var ce *CheckpointError
			if !errors.As(err, &ce) {
				t.Errorf("error type = %T, want *CheckpointError", err)
			}
		})
	}
}

// Test checkpoint content validation
func TestCheckpointValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       ScanCheckpoint
		wantErr bool
	}{
		{"valid", ScanCheckpoint{ConfigIdx: 0, TimestampMS: 1000, ScanMode: "standard"}, false},
		{"negative config", ScanCheckpoint{ConfigIdx: -1, TimestampMS: 1000, ScanMode: "standard"}, true},
		{"zero timestamp", ScanCheckpoint{ConfigIdx: 0, TimestampMS: 0, ScanMode: "standard"}, true},
		{"bad mode", ScanCheckpoint{ConfigIdx: 0, TimestampMS: 1000, ScanMode: "warp"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// Test the batch-cadence manager
func TestCheckpointManagerCadence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scan.checkpoint")
	mgr := NewCheckpointManager(path, 3, 0)

	ck := NewScanCheckpoint(0, 1000, 0, 0, ScanStandard)
	for i := 0; i < 2; i++ {
		if err := mgr.CommitBatch(ck); err != nil {
			t.Fatal(err)
		}
		if CheckpointExists(path) {
			t.Fatalf("checkpoint written after %d batches, cadence is 3", i+1)
		}
	}
	if err := mgr.CommitBatch(ck); err != nil {
		t.Fatal(err)
	}
	if !CheckpointExists(path) {
		t.Fatal("checkpoint missing after cadence reached")
	}
}

// Test a disabled manager never writes
func TestCheckpointManagerDisabled(t *testing.T) {
	mgr := NewCheckpointManager("", 1, 0)
	if mgr.Enabled() {
		t.Fatal("manager with empty path reports enabled")
	}
	if err := mgr.CommitBatch(NewScanCheckpoint(0, 1000, 0, 0, ScanQuick)); err != nil {
		t.Errorf("disabled CommitBatch returned %v", err)
	}
	if err := mgr.Final(NewScanCheckpoint(0, 1000, 0, 0, ScanQuick)); err != nil {
		t.Errorf("disabled Final returned %v", err)
	}
}
