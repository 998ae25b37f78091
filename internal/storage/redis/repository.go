package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cast"

	"discoveryScope/internal/model"
	"discoveryScope/internal/storage"
)

const blockNumbersKeyPrefix = "discovery:block_numbers:"

type Config struct {
	Addr string
}

// Repository keeps block numbers in one redis hash per chain, optionally
// in front of a durable base repository.
type Repository struct {
	base  storage.BlockNumberRepository
	cache *redis.Client
}

func NewRepository(base storage.BlockNumberRepository, cfg Config) (*Repository, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		if base == nil {
			return nil, errors.New("redis addr or base repository is required")
		}
		return &Repository{base: base}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Repository{base: base, cache: client}, nil
}

func (r *Repository) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Close()
}

// BlockNumbers reads the chain's hash, falling back to the base repository
// and refilling the hash when it is empty.
func (r *Repository) BlockNumbers(ctx context.Context, chainID uint64) ([]model.BlockNumberRecord, error) {
	if r.cache != nil {
		values, err := r.cache.HGetAll(ctx, blockNumbersKey(chainID)).Result()
		if err == nil && len(values) > 0 {
			return decodeBlockNumbers(values)
		}
		if err != nil && r.base == nil {
			return nil, err
		}
	}
	if r.base == nil {
		return []model.BlockNumberRecord{}, nil
	}
	records, err := r.base.BlockNumbers(ctx, chainID)
	if err != nil {
		return nil, err
	}
	if r.cache != nil && len(records) > 0 {
		_ = r.cache.HSet(ctx, blockNumbersKey(chainID), encodeBlockNumbers(records)).Err()
	}
	return records, nil
}

// AddBlockNumber writes through to the base repository, then the hash.
func (r *Repository) AddBlockNumber(ctx context.Context, chainID uint64, record model.BlockNumberRecord) error {
	if r.base != nil {
		if err := r.base.AddBlockNumber(ctx, chainID, record); err != nil {
			return err
		}
	}
	if r.cache == nil {
		return nil
	}
	err := r.cache.HSet(ctx, blockNumbersKey(chainID), encodeBlockNumbers([]model.BlockNumberRecord{record})).Err()
	if err != nil && r.base == nil {
		return err
	}
	return nil
}

func blockNumbersKey(chainID uint64) string {
	return blockNumbersKeyPrefix + strconv.FormatUint(chainID, 10)
}

func encodeBlockNumbers(records []model.BlockNumberRecord) map[string]interface{} {
	values := make(map[string]interface{}, len(records))
	for _, record := range records {
		values[strconv.FormatUint(record.Timestamp, 10)] = record.BlockNumber
	}
	return values
}

func decodeBlockNumbers(values map[string]string) ([]model.BlockNumberRecord, error) {
	records := make([]model.BlockNumberRecord, 0, len(values))
	for rawTs, rawBlock := range values {
		ts, err := cast.ToUint64E(rawTs)
		if err != nil {
			return nil, fmt.Errorf("parse cached timestamp %q: %w", rawTs, err)
		}
		block, err := cast.ToUint64E(rawBlock)
		if err != nil {
			return nil, fmt.Errorf("parse cached block %q: %w", rawBlock, err)
		}
		records = append(records, model.BlockNumberRecord{Timestamp: ts, BlockNumber: block})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })
	return records, nil
}
