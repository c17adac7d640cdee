// Package randstorm provides a pure-Go forensic scanner for the Randstorm
// vulnerability class: Bitcoin wallets generated by 2011-2015 browser
// wallets whose entropy came from Math.random().
//
// The package reconstructs the historical browser PRNGs bit-exactly (V8
// MWC1616, the Java-derived 48-bit LCG, Safari GameRand and the Safari
// Windows CRT generator), replays the BitcoinJS v0.1.3 entropy pipeline
// seeded from candidate timestamps, and checks the derived addresses
// against a target set.
//
// Example usage:
//
//	cfg := randstorm.DefaultScanConfig()
//	cfg.ScanMode = randstorm.ScanDeep
//
//	targets, err := randstorm.NewTargetSet([]string{
//	    "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	job, err := randstorm.NewScanJob(cfg, randstorm.EngineV8Mwc1616)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := job.Run(context.Background(), targets, nil)
package randstorm

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Version is the library version.
const Version = "0.3.0"

var (
	defaultLogOnce sync.Once
	defaultLog     *logrus.Logger
)

// defaultLogger is the shared logger used when a job does not provide one.
func defaultLogger() *logrus.Logger {
	defaultLogOnce.Do(func() {
		defaultLog = logrus.New()
		defaultLog.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	})
	return defaultLog
}

// ScanAddresses is the one-call entry point: scan the given addresses with
// one engine under cfg and return the report.
func ScanAddresses(ctx context.Context, cfg ScanConfig, engine Engine, addresses []string) (*ScanReport, error) {
	targets, err := NewTargetSet(addresses)
	if err != nil {
		return nil, err
	}
	job, err := NewScanJob(cfg, engine)
	if err != nil {
		return nil, err
	}
	return job.Run(ctx, targets, nil)
}

// ScanAllEngines runs ScanAddresses once per known engine, aggregating
// findings. Engines are independent hypotheses about the victim browser, so
// their scans do not share state.
func ScanAllEngines(ctx context.Context, cfg ScanConfig, addresses []string) ([]VulnerabilityFinding, error) {
	targets, err := NewTargetSet(addresses)
	if err != nil {
		return nil, err
	}
	var findings []VulnerabilityFinding
	for _, engine := range AllEngines {
		job, err := NewScanJob(cfg, engine)
		if err != nil {
			return nil, err
		}
		report, err := job.Run(ctx, targets, nil)
		if err != nil {
			return nil, err
		}
		findings = append(findings, report.Findings...)
		if ctx.Err() != nil {
			break
		}
	}
	return findings, nil
}
