package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

type flakyReader struct {
	failures int
	calls    int
}

func (f *flakyReader) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("503 service unavailable")
	}
	return []byte{0x01}, nil
}

func (f *flakyReader) StorageAt(context.Context, common.Address, common.Hash, *big.Int) ([]byte, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("503 service unavailable")
	}
	return make([]byte, 32), nil
}

func TestRetryReaderRecovers(t *testing.T) {
	next := &flakyReader{failures: 2}
	r := NewRetryReader(next, 3, time.Millisecond, nil)

	out, err := r.CallContract(context.Background(), ethereum.CallMsg{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 || next.calls != 3 {
		t.Fatalf("unexpected result: out=%x calls=%d", out, next.calls)
	}
}

func TestRetryReaderGivesUp(t *testing.T) {
	next := &flakyReader{failures: 10}
	r := NewRetryReader(next, 2, time.Millisecond, nil)

	if _, err := r.StorageAt(context.Background(), common.Address{}, common.Hash{}, nil); err == nil {
		t.Fatalf("expected error after retries")
	}
	if next.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", next.calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := withRetry(ctx, 5, time.Millisecond, func(context.Context) error {
		attempts++
		return errors.New("boom")
	})
	if err == nil || attempts != 1 {
		t.Fatalf("expected a single attempt, got %d (err=%v)", attempts, err)
	}
}
