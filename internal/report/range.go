// Package report resolves the hourly block range a report is built from.
package report

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"discoveryScope/internal/model"
	"discoveryScope/internal/storage"
)

// RangeHours is the number of hourly entries in a report range.
const RangeHours = 24

// BlockNumberSource resolves the last block produced at or before a timestamp.
type BlockNumberSource interface {
	BlockNumberAtOrBefore(ctx context.Context, ts uint64) (uint64, error)
}

// RangeService maps report timestamps to block numbers, caching every
// resolved pair in memory and in the repository.
type RangeService struct {
	chainID uint64
	source  BlockNumberSource
	repo    storage.BlockNumberRepository
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[uint64]uint64
}

func NewRangeService(chainID uint64, source BlockNumberSource, repo storage.BlockNumberRepository, logger *zap.Logger) *RangeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RangeService{
		chainID: chainID,
		source:  source,
		repo:    repo,
		logger:  logger,
		cache:   make(map[uint64]uint64),
	}
}

// Initialize loads every persisted pair for the chain into the cache.
func (s *RangeService) Initialize(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	records, err := s.repo.BlockNumbers(ctx, s.chainID)
	if err != nil {
		return fmt.Errorf("load block numbers: %w", err)
	}
	s.mu.Lock()
	for _, record := range records {
		s.cache[record.Timestamp] = record.BlockNumber
	}
	s.mu.Unlock()
	s.logger.Info("block numbers loaded", zap.Uint64("chainId", s.chainID), zap.Int("count", len(records)))
	return nil
}

// GetRange returns RangeHours entries, starting at the hour containing ts and
// stepping back one hour at a time.
func (s *RangeService) GetRange(ctx context.Context, ts time.Time) ([]model.BlockNumberRecord, error) {
	timestamps := HourlyTimestamps(ts, RangeHours)
	out := make([]model.BlockNumberRecord, len(timestamps))

	g, gctx := errgroup.WithContext(ctx)
	for i, timestamp := range timestamps {
		g.Go(func() error {
			block, err := s.blockNumber(gctx, timestamp)
			if err != nil {
				return err
			}
			out[i] = model.BlockNumberRecord{Timestamp: timestamp, BlockNumber: block}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RangeService) blockNumber(ctx context.Context, ts uint64) (uint64, error) {
	s.mu.RLock()
	cached, ok := s.cache[ts]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	fetched, err := s.source.BlockNumberAtOrBefore(ctx, ts)
	if err != nil {
		return 0, fmt.Errorf("block number at %d: %w", ts, err)
	}
	if s.repo != nil {
		record := model.BlockNumberRecord{Timestamp: ts, BlockNumber: fetched}
		if err := s.repo.AddBlockNumber(ctx, s.chainID, record); err != nil {
			return 0, fmt.Errorf("persist block number at %d: %w", ts, err)
		}
	}
	s.mu.Lock()
	s.cache[ts] = fetched
	s.mu.Unlock()
	s.logger.Debug("block number fetched", zap.Uint64("ts", ts), zap.Uint64("block", fetched))
	return fetched, nil
}

// HourlyTimestamps returns n unix timestamps, starting at the hour containing
// ts and stepping back one hour at a time.
func HourlyTimestamps(ts time.Time, n int) []uint64 {
	start := ts.UTC().Truncate(time.Hour)
	out := make([]uint64, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, uint64(start.Add(-time.Duration(i)*time.Hour).Unix()))
	}
	return out
}
