package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"discoveryScope/internal/config"
	"discoveryScope/internal/report"
	"discoveryScope/internal/runner"
)

func runReport(cmd *cobra.Command, _ []string) error {
	s, err := start(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	ctx, cfg, logger := s.ctx, s.cfg, s.logger

	ts, err := reportTime(cfg.Timestamp)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	project, err := a.project()
	if err != nil {
		return err
	}
	engine, err := a.engine(project)
	if err != nil {
		return err
	}
	targets, err := a.targets(project)
	if err != nil {
		return err
	}
	sinks, err := a.sinks()
	if err != nil {
		return err
	}
	if len(sinks) == 0 {
		return fmt.Errorf("at least one sink is required (--out, --pg-dsn, --sqlite or --kafka-brokers)")
	}

	blockRepo, err := a.blockNumberRepository()
	if err != nil {
		return err
	}
	ranges := report.NewRangeService(a.chainID, a.chain, blockRepo, logger)
	if err := ranges.Initialize(ctx); err != nil {
		return err
	}
	entries, err := ranges.GetRange(ctx, ts)
	if err != nil {
		return err
	}

	var state runner.StateStore
	if cfg.CheckpointEnabled {
		if backend := a.stateBackend(); backend != nil {
			state = &runner.DBStateStore{Store: backend, Name: fmt.Sprintf("discovery:%s:%d", project.Name, a.chainID)}
		} else {
			state = &runner.FileStateStore{Path: cfg.Checkpoint}
		}
	}

	r, err := runner.NewRunner(a.chainID, targets, engine, sinks, runner.Options{
		Repository: a.snapshotRepository(),
		State:      state,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	logger.Info("run start",
		zap.String("project", project.Name),
		zap.Uint64("chain_id", a.chainID),
		zap.Time("timestamp", ts),
		zap.Int("entries", len(entries)),
		zap.Int("contracts", len(targets)),
		zap.Bool("checkpoint_enabled", cfg.CheckpointEnabled),
	)

	summary, err := r.Run(ctx, entries)
	if err != nil {
		return err
	}
	logger.Info("run complete",
		zap.Int("snapshots", summary.Snapshots),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed_fields", summary.FailedFields),
	)
	return nil
}

// reportTime parses a unix or RFC3339 timestamp, defaulting to now.
func reportTime(raw string) (time.Time, error) {
	ts, err := config.ParseTimestamp(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp: %w", err)
	}
	if ts == 0 {
		return time.Now().UTC(), nil
	}
	return time.Unix(int64(ts), 0).UTC(), nil
}
