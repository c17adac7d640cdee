// Command randstorm-scan is the forensic CLI for the go-randstorm library:
// it scans target addresses for Randstorm-vulnerable wallets, estimates
// attack complexity, and validates compute backends.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/opd-ai/go-randstorm"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var log = logrus.New()

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		cfgFile string
		verbose bool
		logJSON bool
	)

	cmd := &cobra.Command{
		Use:           "randstorm-scan",
		Short:         "Forensic scanner for Randstorm-vulnerable Bitcoin wallets",
		Long:          "randstorm-scan reconstructs 2011-2015 browser Math.random() output\nand checks whether target addresses could have been generated from it.",
		Version:       randstorm.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
			if logJSON {
				log.SetFormatter(&logrus.JSONFormatter{})
			}
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			viper.SetEnvPrefix("RANDSTORM")
			viper.AutomaticEnv()
			if cfgFile != "" {
				viper.SetConfigFile(cfgFile)
				if err := viper.ReadInConfig(); err != nil {
					return fmt.Errorf("read config: %w", err)
				}
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log in JSON")

	cmd.AddCommand(scanCmd(), estimateCmd(), parityCmd(), fingerprintsCmd())
	return cmd
}

// scanConfigFromFlags builds the ScanConfig: config file first, then flag
// overrides, then environment fallbacks.
func scanConfigFromFlags(cmd *cobra.Command) (randstorm.ScanConfig, error) {
	cfg := randstorm.DefaultScanConfig()

	if file := viper.ConfigFileUsed(); file != "" {
		var err error
		if cfg, err = randstorm.LoadScanConfig(file); err != nil {
			return cfg, err
		}
	}

	if s, _ := cmd.Flags().GetString("mode"); s != "" {
		mode, err := randstorm.ParseScanMode(s)
		if err != nil {
			return cfg, err
		}
		cfg.ScanMode = mode
	}
	if s, _ := cmd.Flags().GetString("backend"); s != "" {
		kind, err := randstorm.ParseBackendKind(s)
		if err != nil {
			return cfg, err
		}
		cfg.Backend = kind
	}
	if cmd.Flags().Changed("gpu") {
		cfg.UseGPU, _ = cmd.Flags().GetBool("gpu")
	}
	if n, _ := cmd.Flags().GetInt("batch-size"); n > 0 {
		cfg.BatchSize = n
	}
	if n, _ := cmd.Flags().GetInt("threads"); n > 0 {
		cfg.CPUThreads = n
	}
	if n, _ := cmd.Flags().GetUint64("max"); n > 0 {
		cfg.MaxFingerprints = n
	}
	if n, _ := cmd.Flags().GetUint64("start-ms"); n > 0 {
		cfg.StartDateMS = n
	}
	if n, _ := cmd.Flags().GetUint64("end-ms"); n > 0 {
		cfg.EndDateMS = n
	}
	if n, _ := cmd.Flags().GetUint64("target-time"); n > 0 {
		cfg.TargetTimestamp = n
	}
	if n, _ := cmd.Flags().GetUint64("window"); n > 0 {
		cfg.TimestampWindow = n
	}
	if s, _ := cmd.Flags().GetString("coverage"); s != "" {
		cfg.PathCoverage = randstorm.ParsePathCoverage(s)
	}
	if s, _ := cmd.Flags().GetString("checkpoint"); s != "" {
		cfg.CheckpointPath = s
	}
	// Environment fallback, e.g. RANDSTORM_CHECKPOINT in systemd units.
	if cfg.CheckpointPath == "" {
		cfg.CheckpointPath = viper.GetString("checkpoint")
	}
	return cfg, cfg.Validate()
}

func addScanConfigFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "scan mode: quick, standard, deep, exhaustive")
	cmd.Flags().String("backend", "", "compute backend: auto, wgpu, opencl, cpu")
	cmd.Flags().Bool("gpu", true, "allow GPU backends")
	cmd.Flags().Int("batch-size", 0, "candidates per batch")
	cmd.Flags().Int("threads", 0, "CPU worker threads")
	cmd.Flags().Uint64("max", 0, "stop after this many candidates")
	cmd.Flags().Uint64("start-ms", 0, "range start, unix milliseconds")
	cmd.Flags().Uint64("end-ms", 0, "range end, unix milliseconds")
	cmd.Flags().Uint64("target-time", 0, "spiral outward from this timestamp (ms)")
	cmd.Flags().Uint64("window", 0, "spiral window around target-time (ms)")
	cmd.Flags().String("coverage", "", "derivation coverage: legacy, all")
	cmd.Flags().String("checkpoint", "", "checkpoint file path")
}

func scanCmd() *cobra.Command {
	var (
		targetsFile string
		engineName  string
		phaseName   string
		dbFile      string
		outFile     string
		resume      bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan target addresses for vulnerable key material",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := scanConfigFromFlags(cmd)
			if err != nil {
				return err
			}

			targets, err := randstorm.LoadTargetSet(targetsFile)
			if err != nil {
				return err
			}

			engines := randstorm.AllEngines
			if engineName != "" {
				engine, err := randstorm.ParseEngine(engineName)
				if err != nil {
					return err
				}
				engines = []randstorm.Engine{engine}
			}

			phase := randstorm.PhaseThree
			if phaseName != "" {
				if phase, err = randstorm.ParsePhase(phaseName); err != nil {
					return err
				}
			}

			var db *randstorm.FingerprintDB
			if dbFile != "" {
				if db, err = randstorm.LoadFingerprintDB(dbFile); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var findings []randstorm.VulnerabilityFinding
			for _, engine := range engines {
				job, err := randstorm.NewScanJob(cfg, engine)
				if err != nil {
					return err
				}
				job.Phase = phase
				job.DB = db
				job.Log = log

				var report *randstorm.ScanReport
				if resume {
					report, err = job.Resume(ctx, targets, nil)
				} else {
					report, err = job.Run(ctx, targets, nil)
				}
				if err != nil {
					return err
				}
				findings = append(findings, report.Findings...)

				if ctx.Err() != nil {
					log.Warn("interrupted; checkpoint saved, rerun with --resume")
					break
				}
				// Only the first engine can resume from the saved position.
				resume = false
			}

			printFindings(findings)
			if outFile != "" {
				return writeFindings(outFile, findings)
			}
			return nil
		},
	}

	addScanConfigFlags(cmd)
	cmd.Flags().StringVarP(&targetsFile, "targets", "t", "", "file of target addresses, one per line")
	cmd.Flags().StringVarP(&engineName, "engine", "e", "", "single engine to scan (default: all)")
	cmd.Flags().StringVar(&phaseName, "phase", "", "browser config phase: one, two, three")
	cmd.Flags().StringVar(&dbFile, "fingerprint-db", "", "CSV of browser config priors")
	cmd.Flags().StringVarP(&outFile, "out", "o", "", "write findings JSON to this file")
	cmd.Flags().BoolVar(&resume, "resume", false, "resume from the checkpoint file")
	cmd.MarkFlagRequired("targets")
	return cmd
}

func printFindings(findings []randstorm.VulnerabilityFinding) {
	if len(findings) == 0 {
		color.Green("no vulnerable wallets found")
		return
	}
	color.Red("%d VULNERABLE WALLET(S) FOUND", len(findings))
	for _, f := range findings {
		fmt.Printf("  %s\n", color.YellowString(f.Address))
		fmt.Printf("    engine:     %s\n", f.Engine)
		fmt.Printf("    generated:  %s\n", time.UnixMilli(int64(f.TimestampMS)).UTC().Format(time.RFC3339))
		fmt.Printf("    path:       %s\n", f.Path)
		fmt.Printf("    confidence: %s\n", f.Confidence)
	}
}

func writeFindings(path string, findings []randstorm.VulnerabilityFinding) error {
	data, err := json.MarshalIndent(findings, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	log.WithField("path", path).Info("findings written")
	return nil
}

func estimateCmd() *cobra.Command {
	var (
		modeName   string
		numConfigs uint64
		days       uint64
		allEngines bool
	)

	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate attack complexity before committing to a scan",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := randstorm.ScanStandard
			if modeName != "" {
				var err error
				if mode, err = randstorm.ParseScanMode(modeName); err != nil {
					return err
				}
			}

			engines := []randstorm.Engine{randstorm.EngineV8Mwc1616}
			if allEngines {
				engines = randstorm.AllEngines
			}

			windowMS := days * 24 * 3600 * 1000
			// Keys are cut at the mode's interval, not per millisecond.
			timestamps := windowMS / mode.IntervalMS()
			a := randstorm.Estimate(timestamps, numConfigs, engines)

			fmt.Printf("scan mode:     %s (%d ms steps)\n", mode, mode.IntervalMS())
			fmt.Printf("window:        %d days, %d timestamps\n", days, timestamps)
			fmt.Printf("configs:       %d\n", numConfigs)
			fmt.Printf("engines:       %d\n", len(engines))
			fmt.Printf("search space:  %s keys\n", a.FormatKeys())
			fmt.Printf("GPU estimate:  %s\n", a.EstGPUTime.Round(time.Second))
			fmt.Printf("CPU estimate:  %s\n", a.EstCPUTime.Round(time.Second))
			if a.Feasible() {
				color.Green("feasible: completes within a week on GPU")
			} else {
				color.Red("infeasible: narrow the window, mode, or targets")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modeName, "mode", "standard", "scan mode")
	cmd.Flags().Uint64Var(&numConfigs, "configs", 100, "browser config count")
	cmd.Flags().Uint64Var(&days, "days", 30, "window size in days")
	cmd.Flags().BoolVar(&allEngines, "all-engines", false, "estimate across every engine")
	return cmd
}

func parityCmd() *cobra.Command {
	var engineName string

	cmd := &cobra.Command{
		Use:   "parity",
		Short: "Validate PRNG vectors and hardware parity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := randstorm.VerifyAllVectors(); err != nil {
				return err
			}
			color.Green("all PRNG reconstruction vectors pass")

			engine := randstorm.EngineV8Mwc1616
			if engineName != "" {
				var err error
				if engine, err = randstorm.ParseEngine(engineName); err != nil {
					return err
				}
			}

			cfg, err := scanConfigFromFlags(cmd)
			if err != nil {
				return err
			}
			// A one-candidate probe scan: backend resolution runs the parity
			// self-test for any non-CPU backend it settles on.
			cfg.MaxFingerprints = 1
			cfg.CheckpointPath = ""
			job, err := randstorm.NewScanJob(cfg, engine)
			if err != nil {
				return err
			}
			job.Log = log

			targets, err := randstorm.NewTargetSet([]string{"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"})
			if err != nil {
				return err
			}
			if _, err := job.Run(cmd.Context(), targets, nil); err != nil {
				return err
			}
			color.Green("backend parity validated")
			return nil
		},
	}

	addScanConfigFlags(cmd)
	cmd.Flags().StringVarP(&engineName, "engine", "e", "", "engine to validate")
	return cmd
}

func fingerprintsCmd() *cobra.Command {
	var dbFile string

	cmd := &cobra.Command{
		Use:   "fingerprints",
		Short: "List browser configuration priors",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := randstorm.DefaultFingerprintDB()
			if dbFile != "" {
				var err error
				if db, err = randstorm.LoadFingerprintDB(dbFile); err != nil {
					return err
				}
			}

			configs := db.ConfigsForPhase(randstorm.PhaseThree)
			for i, c := range configs {
				fmt.Printf("%3d  %5.2f%%  %4dx%-4d %-12s %s\n",
					i+1, c.MarketShareEstimate*100, c.ScreenWidth, c.ScreenHeight, c.Platform, c.UserAgent)
			}
			fmt.Printf("\n%d configurations, %.1f%% cumulative market share\n",
				db.Len(), db.CumulativeMarketShare(db.Len())*100)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbFile, "db", "", "CSV of browser config priors")
	return cmd
}
