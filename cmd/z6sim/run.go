package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/copyleftdev/z6sim/core"
	"github.com/copyleftdev/z6sim/internal/runconfig"
)

func runCmd() *cobra.Command {
	var ledgerPath string
	var defaultTimeoutTicks uint64
	var flushIntervalTicks uint64
	var maxEvents int
	var logLevel string
	var healthLogPath string
	var healthIntervalMS int
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "run [scenario.yaml]",
		Short: "run a scenario and write its event ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(logLevel)
			scenario, err := runconfig.LoadScenario(args[0])
			if err != nil {
				return fmt.Errorf("load scenario: %w", err)
			}

			scenarioHash := sha256.Sum256([]byte(scenario.Metadata.Name + scenario.Metadata.Version))
			startWallNS := uint64(time.Now().UnixNano())

			ledger, err := core.NewLedger(ledgerPath, 0, scenario.Runtime.PRNGSeed, scenarioHash, startWallNS, log.WithField("run", scenario.Metadata.Name))
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}

			handler := core.NewStubHandler(256, 1, nil)
			sched, err := core.NewScheduler(core.SchedulerConfig{
				MaxVUs:              scenario.Runtime.VUs,
				MaxEvents:           maxEvents,
				FlushIntervalTicks:  flushIntervalTicks,
				DefaultTimeoutTicks: defaultTimeoutTicks,
				PRNGSeed:            scenario.Runtime.PRNGSeed,
				DurationTicks:       uint64(scenario.Runtime.DurationTicks),
				MemoryBudgetBytes:   1 << 30,
				QueueLowWaterMark:   maxEvents / 10,
			}, scenario, handler, ledger, log.WithField("component", "cli"))
			if err != nil {
				return fmt.Errorf("init scheduler: %w", err)
			}

			if err := sched.Spawn(scenario.Runtime.VUs); err != nil {
				return fmt.Errorf("spawn vus: %w", err)
			}

			var stopHealth context.CancelFunc
			if healthLogPath != "" {
				budget := core.NewMemoryBudget(1 << 30)
				healthLogger, err := core.NewRunHealthLogger(sched, ledger, budget, healthLogPath)
				if err != nil {
					return fmt.Errorf("open health log: %w", err)
				}
				defer healthLogger.Close()
				if metricsAddr != "" {
					srv, err := healthLogger.StartMetricsServer(metricsAddr)
					if err != nil {
						return fmt.Errorf("start metrics server: %w", err)
					}
					defer func() {
						ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						healthLogger.ShutdownMetricsServer(ctx, srv)
					}()
				}
				var ctx context.Context
				ctx, stopHealth = context.WithCancel(context.Background())
				defer stopHealth()
				go healthLogger.RunCollector(ctx, time.Duration(healthIntervalMS)*time.Millisecond)
			}

			log.Infof("run %s: %d vus, duration_ticks=%d, seed=%d", scenario.Metadata.Name, scenario.Runtime.VUs, scenario.Runtime.DurationTicks, scenario.Runtime.PRNGSeed)
			if err := sched.Run(); err != nil {
				return fmt.Errorf("scheduler run: %w", err)
			}
			if stopHealth != nil {
				stopHealth()
			}
			if err := ledger.Finalize(uint64(time.Now().UnixNano())); err != nil {
				return fmt.Errorf("finalize ledger: %w", err)
			}
			log.Infof("run complete at tick %d, ledger written to %s", sched.Tick(), ledgerPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&ledgerPath, "ledger", "./run.z6log", "output ledger file path")
	cmd.Flags().Uint64Var(&defaultTimeoutTicks, "default-timeout-ticks", 50, "default request timeout in ticks")
	cmd.Flags().Uint64Var(&flushIntervalTicks, "flush-interval-ticks", 100, "ledger flush interval in ticks")
	cmd.Flags().IntVar(&maxEvents, "max-events", 1_000_000, "event queue capacity")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&healthLogPath, "health-log", "", "path to write periodic JSON health snapshots (disabled if empty)")
	cmd.Flags().IntVar(&healthIntervalMS, "health-interval-ms", 1000, "wall-clock interval between health snapshots")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "bind address for the run's private Prometheus endpoint (disabled if empty)")
	return cmd
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.SetLevel(lvl)
	}
	return logrus.NewEntry(l)
}
