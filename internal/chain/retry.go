package chain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Reader is the read surface of a node used by discovery.
type Reader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error)
}

// RetryReader retries failed reads with exponential backoff. Reverts are
// not failures and are never retried.
type RetryReader struct {
	next       Reader
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

// NewRetryReader wraps next.
func NewRetryReader(next Reader, maxRetries int, baseDelay time.Duration, logger *zap.Logger) *RetryReader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryReader{next: next, maxRetries: maxRetries, baseDelay: baseDelay, logger: logger}
}

func (r *RetryReader) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := r.withRetry(ctx, "eth_call", func(ctx context.Context) error {
		var err error
		out, err = r.next.CallContract(ctx, msg, blockNumber)
		return err
	})
	return out, err
}

func (r *RetryReader) StorageAt(ctx context.Context, account common.Address, key common.Hash, blockNumber *big.Int) ([]byte, error) {
	var out []byte
	err := r.withRetry(ctx, "eth_getStorageAt", func(ctx context.Context) error {
		var err error
		out, err = r.next.StorageAt(ctx, account, key, blockNumber)
		return err
	})
	return out, err
}

func (r *RetryReader) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	return withRetry(ctx, r.maxRetries, r.baseDelay, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Debug("rpc read failed", zap.String("op", op), zap.Error(err))
		}
		return err
	})
}

func withRetry(ctx context.Context, maxRetries int, baseDelay time.Duration, fn func(context.Context) error) error {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	delay := baseDelay
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= maxRetries || ctx.Err() != nil {
			return err
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
	}
}
