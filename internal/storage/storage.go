package storage

import (
	"context"
	"errors"

	"discoveryScope/internal/model"
)

// Sink receives discovered snapshots.
type Sink interface {
	PutSnapshot(ctx context.Context, snapshot model.Snapshot) error
}

// SnapshotRepository is a sink that can read snapshots back by key.
type SnapshotRepository interface {
	Sink
	GetSnapshot(ctx context.Context, chainID uint64, address string, block uint64) (model.Snapshot, bool, error)
}

// BlockNumberRepository persists (timestamp, block) pairs per chain.
type BlockNumberRepository interface {
	BlockNumbers(ctx context.Context, chainID uint64) ([]model.BlockNumberRecord, error)
	AddBlockNumber(ctx context.Context, chainID uint64, record model.BlockNumberRecord) error
}

// Multi fans a snapshot out to every sink. All sinks are attempted; their
// errors are joined.
type Multi []Sink

func (m Multi) PutSnapshot(ctx context.Context, snapshot model.Snapshot) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.PutSnapshot(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
