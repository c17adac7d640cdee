package randstorm

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ScanCheckpoint is a durable snapshot of scan position. It records the
// *next* candidate to process, so a run resumed from a checkpoint produces
// exactly the sequence an uninterrupted run would have from that point.
type ScanCheckpoint struct {
	ConfigIdx           int    `json:"config_idx"`
	TimestampMS         uint64 `json:"timestamp_ms"`
	FingerprintsScanned uint64 `json:"fingerprints_scanned"`
	FindingsCount       int    `json:"findings_count"`
	ScanMode            string `json:"scan_mode"`
	CheckpointTime      uint64 `json:"checkpoint_time"`
}

// NewScanCheckpoint stamps a checkpoint with the current wall clock.
func NewScanCheckpoint(configIdx int, timestampMS, scanned uint64, findings int, mode ScanMode) ScanCheckpoint {
	return ScanCheckpoint{
		ConfigIdx:           configIdx,
		TimestampMS:         timestampMS,
		FingerprintsScanned: scanned,
		FindingsCount:       findings,
		ScanMode:            mode.String(),
		CheckpointTime:      uint64(time.Now().Unix()),
	}
}

// Validate rejects checkpoints that cannot describe a resumable position.
func (c *ScanCheckpoint) Validate() error {
	if c.ConfigIdx < 0 {
		return errors.New("negative config index")
	}
	if c.TimestampMS == 0 {
		return errors.New("zero timestamp")
	}
	if _, err := ParseScanMode(c.ScanMode); err != nil {
		return fmt.Errorf("unknown scan mode %q", c.ScanMode)
	}
	return nil
}

// SaveCheckpoint writes the checkpoint durably: serialized to a temp file,
// synced, then renamed over the target. A batch's progress is only committed
// once its checkpoint has survived this path, so a process killed mid-batch
// resumes at the last fully committed checkpoint rather than mid-batch.
func SaveCheckpoint(path string, c ScanCheckpoint) error {
	data, err := json.MarshalIndent(&c, "", "  ")
	if err != nil {
		return &CheckpointError{Path: path, Op: "save", Err: err}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return &CheckpointError{Path: path, Op: "save", Err: err}
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &CheckpointError{Path: path, Op: "save", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &CheckpointError{Path: path, Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &CheckpointError{Path: path, Op: "save", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &CheckpointError{Path: path, Op: "save", Err: err}
	}
	return nil
}

// LoadCheckpoint reads and validates a checkpoint. Missing or corrupt files
// are CheckpointErrors: an explicit resume request must fail loudly, never
// silently restart from zero.
func LoadCheckpoint(path string) (ScanCheckpoint, error) {
	var c ScanCheckpoint
	data, err := os.ReadFile(path)
	if err != nil {
		return c, &CheckpointError{Path: path, Op: "load", Err: err}
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, &CheckpointError{Path: path, Op: "load", Err: err}
	}
	if err := c.Validate(); err != nil {
		return c, &CheckpointError{Path: path, Op: "validate", Err: err}
	}
	return c, nil
}

// CheckpointExists reports whether a checkpoint file is present.
func CheckpointExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CheckpointManager writes checkpoints at a count- or time-based cadence and
// on graceful shutdown. Writes are synchronous; the control loop does not
// advance past a batch until its checkpoint is durable.
type CheckpointManager struct {
	path         string
	everyBatches int
	minInterval  time.Duration

	batchesSinceSave int
	lastSave         time.Time
}

// NewCheckpointManager creates a manager writing to path. everyBatches <= 0
// defaults to 1 (checkpoint after every committed batch); minInterval 0
// means no time-based suppression.
func NewCheckpointManager(path string, everyBatches int, minInterval time.Duration) *CheckpointManager {
	if everyBatches <= 0 {
		everyBatches = 1
	}
	return &CheckpointManager{
		path:         path,
		everyBatches: everyBatches,
		minInterval:  minInterval,
	}
}

// Enabled reports whether checkpointing is configured at all.
func (m *CheckpointManager) Enabled() bool { return m != nil && m.path != "" }

// CommitBatch is called after each completed batch; it persists the
// checkpoint when the cadence says so.
func (m *CheckpointManager) CommitBatch(c ScanCheckpoint) error {
	if !m.Enabled() {
		return nil
	}
	m.batchesSinceSave++
	if m.batchesSinceSave < m.everyBatches {
		return nil
	}
	if m.minInterval > 0 && time.Since(m.lastSave) < m.minInterval && !m.lastSave.IsZero() {
		return nil
	}
	return m.save(c)
}

// Final persists the checkpoint unconditionally, used on graceful shutdown.
func (m *CheckpointManager) Final(c ScanCheckpoint) error {
	if !m.Enabled() {
		return nil
	}
	return m.save(c)
}

func (m *CheckpointManager) save(c ScanCheckpoint) error {
	if err := SaveCheckpoint(m.path, c); err != nil {
		return err
	}
	m.batchesSinceSave = 0
	m.lastSave = time.Now()
	return nil
}
