package main

import (
	"os"

	"github.com/spf13/cobra"

	"discoveryScope/internal/report"
)

func runRange(cmd *cobra.Command, _ []string) error {
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

	if cfg.JSON {
		return writeJSON(os.Stdout, entries)
	}
	renderRange(os.Stdout, entries)
	return nil
}
