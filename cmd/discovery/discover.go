package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"discoveryScope/internal/model"
)

func runDiscover(cmd *cobra.Command, _ []string) error {
	s, err := start(cmd)
	if err != nil {
		return err
	}
	defer s.close()
	ctx, cfg, logger := s.ctx, s.cfg, s.logger

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

	block := cfg.Block
	if block == 0 {
		block, err = a.chain.LatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block: %w", err)
		}
	}

	logger.Info("discovery start",
		zap.String("project", project.Name),
		zap.Uint64("chain_id", a.chainID),
		zap.Uint64("block", block),
		zap.Int("contracts", len(targets)),
		zap.Bool("coalesce", cfg.Coalesce),
		zap.Int("sinks", len(sinks)),
	)

	snapshots := make([]model.Snapshot, 0, len(targets))
	for _, target := range targets {
		snapshot, err := engine.Discover(ctx, target.Address, block, target.Plan)
		if err != nil {
			return fmt.Errorf("discover %s: %w", target.Name, err)
		}
		snapshot.Name = target.Name
		if len(sinks) > 0 {
			if err := sinks.PutSnapshot(ctx, snapshot); err != nil {
				return fmt.Errorf("store snapshot %s: %w", target.Name, err)
			}
		}
		snapshots = append(snapshots, snapshot)
	}

	if cfg.JSON {
		return writeJSON(os.Stdout, snapshots)
	}
	renderSnapshots(os.Stdout, snapshots)
	return nil
}
