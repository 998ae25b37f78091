package discovery

import (
	"context"
	"fmt"
	"sync"

	"discoveryScope/internal/multicall"
)

// waveBatcher gathers the reads of the handlers running in one wave into a
// single Multicall invocation. A batch is flushed once every handler still
// running has a read pending.
type waveBatcher struct {
	ctx  context.Context
	read readFunc

	mu      sync.Mutex
	active  int
	pending []*submission
}

type submission struct {
	requests []multicall.Request
	done     chan batchResult
}

type batchResult struct {
	responses []multicall.Response
	err       error
}

func newWaveBatcher(ctx context.Context, read readFunc, active int) *waveBatcher {
	return &waveBatcher{ctx: ctx, read: read, active: active}
}

func (b *waveBatcher) submit(ctx context.Context, requests []multicall.Request) ([]multicall.Response, error) {
	s := &submission{requests: requests, done: make(chan batchResult, 1)}

	b.mu.Lock()
	b.pending = append(b.pending, s)
	ready := b.takeReady()
	b.mu.Unlock()

	if ready != nil {
		b.flush(ready)
	}

	select {
	case res := <-s.done:
		return res.responses, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// leave marks one handler as finished.
func (b *waveBatcher) leave() {
	b.mu.Lock()
	b.active--
	ready := b.takeReady()
	b.mu.Unlock()

	if ready != nil {
		b.flush(ready)
	}
}

func (b *waveBatcher) takeReady() []*submission {
	if len(b.pending) == 0 || len(b.pending) < b.active {
		return nil
	}
	ready := b.pending
	b.pending = nil
	return ready
}

func (b *waveBatcher) flush(batch []*submission) {
	var requests []multicall.Request
	for _, s := range batch {
		requests = append(requests, s.requests...)
	}

	responses, err := b.read(b.ctx, requests)
	if err == nil && len(responses) != len(requests) {
		err = fmt.Errorf("got %d responses for %d requests", len(responses), len(requests))
	}
	offset := 0
	for _, s := range batch {
		if err != nil {
			s.done <- batchResult{err: err}
			continue
		}
		n := len(s.requests)
		s.done <- batchResult{responses: responses[offset : offset+n]}
		offset += n
	}
}
