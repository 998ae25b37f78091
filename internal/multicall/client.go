// Package multicall executes many read-only contract calls at a fixed block
// with as few node round trips as the block height allows.
package multicall

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Request is one read-only call.
type Request struct {
	Target common.Address
	Data   []byte
}

// Response is the outcome of one Request. Success is false when the call
// reverted or returned no data.
type Response struct {
	Success bool
	Data    []byte
}

// Caller is the read port to a node. A reverted call returns empty bytes and
// a nil error; errors are reserved for transport failures.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Client batches requests through the multicall contracts of one network.
type Client struct {
	caller Caller
	config Config
	logger *zap.Logger
}

// NewClient validates cfg and returns a Client issuing calls through caller.
func NewClient(caller Caller, cfg Config, logger *zap.Logger) (*Client, error) {
	if caller == nil {
		return nil, fmt.Errorf("caller is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{caller: caller, config: cfg, logger: logger}, nil
}

// Config returns the batching configuration.
func (c *Client) Config() Config {
	return c.config
}

// Multicall executes requests at blockNumber. The result has one Response
// per request, in request order. Any transport failure aborts the whole
// invocation and no partial results are returned.
func (c *Client) Multicall(ctx context.Context, requests []Request, blockNumber uint64) ([]Response, error) {
	if len(requests) == 0 {
		return []Response{}, nil
	}

	generation := c.config.GenerationAt(blockNumber)
	ctx, span := otel.Tracer("discoveryscope/multicall").Start(ctx, "multicall.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("multicall.generation", generation.String()),
			attribute.Int("multicall.requests", len(requests)),
			attribute.Int64("block.number", int64(blockNumber)),
		))
	defer span.End()

	requestsTotal.WithLabelValues(generation.String()).Add(float64(len(requests)))

	var (
		responses []Response
		err       error
	)
	if generation == GenerationNone {
		responses, err = c.executeIndividual(ctx, requests, blockNumber)
	} else {
		responses, err = c.executeBatched(ctx, generation, requests, blockNumber)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return responses, nil
}

func (c *Client) executeIndividual(ctx context.Context, requests []Request, blockNumber uint64) ([]Response, error) {
	responses := make([]Response, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	for i, req := range requests {
		g.Go(func() error {
			data, err := c.call(gctx, GenerationNone, req.Target, req.Data, blockNumber)
			if err != nil {
				return err
			}
			responses[i] = Response{Success: len(data) > 0, Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

func (c *Client) executeBatched(ctx context.Context, generation Generation, requests []Request, blockNumber uint64) ([]Response, error) {
	responses := make([]Response, len(requests))
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range toBatches(requests, c.config.BatchSize) {
		g.Go(func() error {
			var (
				out []Response
				err error
			)
			if generation == GenerationV1 {
				out, err = c.executeAggregate(gctx, ch.Requests, blockNumber)
			} else {
				out, err = c.executeTryAggregate(gctx, ch.Requests, blockNumber)
			}
			if err != nil {
				return err
			}
			copy(responses[ch.Offset:], out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return responses, nil
}

func (c *Client) executeAggregate(ctx context.Context, requests []Request, blockNumber uint64) ([]Response, error) {
	data, err := encodeAggregate(requests)
	if err != nil {
		return nil, fmt.Errorf("encode aggregate: %w", err)
	}
	raw, err := c.call(ctx, GenerationV1, c.config.V1Address, data, blockNumber)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		// aggregate reverts as a whole when any call fails.
		c.logger.Warn("aggregate reverted, falling back to individual calls",
			zap.Uint64("block", blockNumber),
			zap.Int("requests", len(requests)),
		)
		return c.executeIndividual(ctx, requests, blockNumber)
	}
	returnData, err := decodeAggregate(raw)
	if err != nil {
		return nil, &TransportError{Target: c.config.V1Address, Err: err}
	}
	if len(returnData) != len(requests) {
		return nil, &TransportError{
			Target: c.config.V1Address,
			Err:    fmt.Errorf("aggregate returned %d results for %d calls", len(returnData), len(requests)),
		}
	}
	responses := make([]Response, len(requests))
	for i, out := range returnData {
		responses[i] = Response{Success: len(out) > 0, Data: out}
	}
	return responses, nil
}

func (c *Client) executeTryAggregate(ctx context.Context, requests []Request, blockNumber uint64) ([]Response, error) {
	data, err := encodeTryAggregate(requests)
	if err != nil {
		return nil, fmt.Errorf("encode tryAggregate: %w", err)
	}
	raw, err := c.call(ctx, GenerationV2, c.config.V2Address, data, blockNumber)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, &TransportError{Target: c.config.V2Address, Err: fmt.Errorf("empty tryAggregate response")}
	}
	results, err := decodeTryAggregate(raw)
	if err != nil {
		return nil, &TransportError{Target: c.config.V2Address, Err: err}
	}
	if len(results) != len(requests) {
		return nil, &TransportError{
			Target: c.config.V2Address,
			Err:    fmt.Errorf("tryAggregate returned %d results for %d calls", len(results), len(requests)),
		}
	}
	responses := make([]Response, len(requests))
	for i, res := range results {
		responses[i] = Response{Success: res.Success, Data: res.ReturnData}
	}
	return responses, nil
}

func (c *Client) call(ctx context.Context, generation Generation, to common.Address, data []byte, blockNumber uint64) ([]byte, error) {
	start := time.Now()
	out, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, new(big.Int).SetUint64(blockNumber))
	roundTripsTotal.WithLabelValues(generation.String()).Inc()
	roundTripDuration.WithLabelValues(generation.String()).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &TransportError{Target: to, Err: err}
	}
	return out, nil
}
