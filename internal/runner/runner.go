// Package runner drives discovery of a set of contracts over a report range.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"discoveryScope/internal/discovery"
	"discoveryScope/internal/model"
	"discoveryScope/internal/storage"
)

// Target is one contract with its compiled plan.
type Target struct {
	Name    string
	Address common.Address
	Plan    *discovery.Plan
}

// Discoverer runs a plan for one contract at one block.
type Discoverer interface {
	Discover(ctx context.Context, address common.Address, blockNumber uint64, plan *discovery.Plan) (model.Snapshot, error)
}

// Summary counts what a run did.
type Summary struct {
	Snapshots    int
	Skipped      int
	FailedFields int
}

// Runner discovers every target at every block of a report range and writes
// the snapshots to a sink.
type Runner struct {
	chainID    uint64
	targets    []Target
	discoverer Discoverer
	existing   storage.SnapshotRepository
	sink       storage.Sink
	state      StateStore
	logger     *zap.Logger
}

// Options holds the optional collaborators of a Runner. Existing snapshots
// found in Repository are not rediscovered.
type Options struct {
	Repository storage.SnapshotRepository
	State      StateStore
	Logger     *zap.Logger
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(chainID uint64, targets []Target, discoverer Discoverer, sink storage.Sink, opts Options) (*Runner, error) {
	if discoverer == nil {
		return nil, fmt.Errorf("discoverer is nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("sink is nil")
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one target is required")
	}
	for _, target := range targets {
		if target.Plan == nil {
			return nil, fmt.Errorf("target %s has no plan", target.Name)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		chainID:    chainID,
		targets:    targets,
		discoverer: discoverer,
		existing:   opts.Repository,
		sink:       sink,
		state:      opts.State,
		logger:     logger,
	}, nil
}

// Run processes the report entries oldest first. The checkpoint advances
// after every entry whose targets were all written; entries at or before a
// loaded checkpoint are skipped.
func (r *Runner) Run(ctx context.Context, entries []model.BlockNumberRecord) (Summary, error) {
	var summary Summary

	ordered := append([]model.BlockNumberRecord(nil), entries...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Timestamp < ordered[j].Timestamp })

	var (
		last    uint64
		resumed bool
	)
	if r.state != nil {
		ts, ok, err := r.state.Load(ctx)
		if err != nil {
			return summary, fmt.Errorf("load state: %w", err)
		}
		if ok {
			last, resumed = ts, true
			r.logger.Info("resume from checkpoint", zap.Uint64("last_processed_ts", ts))
		}
	}

	for _, entry := range ordered {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if resumed && entry.Timestamp <= last {
			continue
		}

		for _, target := range r.targets {
			done, err := r.discoverTarget(ctx, target, entry, &summary)
			if err != nil {
				return summary, err
			}
			if !done {
				summary.Skipped++
			}
		}

		if r.state != nil {
			if err := r.state.Save(ctx, entry.Timestamp); err != nil {
				return summary, fmt.Errorf("save state: %w", err)
			}
		}
		r.logger.Info("entry complete",
			zap.Uint64("ts", entry.Timestamp),
			zap.Uint64("block", entry.BlockNumber),
			zap.Int("targets", len(r.targets)),
		)
	}

	return summary, nil
}

func (r *Runner) discoverTarget(ctx context.Context, target Target, entry model.BlockNumberRecord, summary *Summary) (bool, error) {
	logger := r.logger.With(
		zap.String("contract", target.Name),
		zap.String("address", target.Address.Hex()),
		zap.Uint64("block", entry.BlockNumber),
	)

	if r.existing != nil {
		_, ok, err := r.existing.GetSnapshot(ctx, r.chainID, target.Address.Hex(), entry.BlockNumber)
		if err != nil {
			return false, fmt.Errorf("lookup snapshot %s: %w", target.Name, err)
		}
		if ok {
			logger.Debug("snapshot exists, skipping")
			return false, nil
		}
	}

	snapshot, err := r.discoverer.Discover(ctx, target.Address, entry.BlockNumber, target.Plan)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			logger.Warn("discovery cancelled", zap.Int("fields", len(snapshot.Fields)))
		}
		return false, fmt.Errorf("discover %s: %w", target.Name, err)
	}
	snapshot.Name = target.Name

	failed := snapshot.FailedFields()
	if len(failed) > 0 {
		logger.Warn("fields failed", zap.Strings("fields", failed))
	}

	if err := r.sink.PutSnapshot(ctx, snapshot); err != nil {
		return false, fmt.Errorf("store snapshot %s: %w", target.Name, err)
	}
	summary.Snapshots++
	summary.FailedFields += len(failed)
	return true, nil
}
