package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"discoveryScope/internal/model"
	"discoveryScope/internal/multicall"
)

// Options configures an Engine. With Coalesce set, the reads issued by the
// handlers of one wave are gathered into a single Multicall invocation.
type Options struct {
	ChainID  uint64
	Coalesce bool
	Storage  StorageReader
	Logger   *zap.Logger
}

// DefaultOptions returns options with wave coalescing enabled.
func DefaultOptions() Options {
	return Options{Coalesce: true}
}

// Engine runs plans against a chain.
type Engine struct {
	mc       Multicaller
	storage  StorageReader
	chainID  uint64
	coalesce bool
	logger   *zap.Logger
}

// NewEngine returns an Engine reading through mc.
func NewEngine(mc Multicaller, opts Options) (*Engine, error) {
	if mc == nil {
		return nil, fmt.Errorf("multicaller is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		mc:       mc,
		storage:  opts.Storage,
		chainID:  opts.ChainID,
		coalesce: opts.Coalesce,
		logger:   logger,
	}, nil
}

type outcome struct {
	result Result
	err    error
}

// Discover resolves every field of plan for address at blockNumber.
//
// Field failures are recorded in the snapshot. A transport failure aborts
// the run and no snapshot is returned. On cancellation the snapshot is
// returned with unfinished fields marked cancelled, together with an error
// wrapping the context error. A snapshot completed before the context ended
// is returned without error.
func (e *Engine) Discover(ctx context.Context, address common.Address, blockNumber uint64, plan *Plan) (model.Snapshot, error) {
	ctx, span := otel.Tracer("discoveryscope/discovery").Start(ctx, "discovery.discover")
	defer span.End()
	span.SetAttributes(
		attribute.String("contract.address", address.Hex()),
		attribute.Int64("block.number", int64(blockNumber)),
		attribute.Int("discovery.fields", len(plan.fields)),
	)

	logger := e.logger.With(zap.String("address", address.Hex()), zap.Uint64("block", blockNumber))
	results := make(map[string]model.FieldResult, len(plan.fields))

	for i, wave := range plan.waves {
		if ctx.Err() != nil {
			break
		}

		runnable := make([]string, 0, len(wave))
		for _, field := range wave {
			if dep, failed := e.failedDependency(plan, field, results); failed {
				err := &DependencyFailedError{Field: field, Dependency: dep}
				e.record(plan, results, field, outcome{err: err})
				continue
			}
			runnable = append(runnable, field)
		}

		logger.Debug("running wave", zap.Int("wave", i), zap.Strings("fields", runnable))
		if err := e.runWave(ctx, logger, plan, address, blockNumber, runnable, results); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return model.Snapshot{}, fmt.Errorf("discover %s at block %d: %w", address.Hex(), blockNumber, err)
		}
	}

	snapshot := model.Snapshot{
		ChainID:     e.chainID,
		Address:     address.Hex(),
		BlockNumber: blockNumber,
		Fields:      results,
	}

	ctxErr := ctx.Err()
	if ctxErr == nil {
		return snapshot, nil
	}
	cancelled := 0
	for _, field := range plan.fields {
		result, ok := results[field]
		if ok {
			if result.Error != nil && result.Error.Kind == model.ErrorKindCancelled {
				cancelled++
			}
			continue
		}
		results[field] = model.FieldResult{Field: field, Error: fieldError(&CancelledError{Field: field, Err: ctxErr})}
		fieldsTotal.WithLabelValues(string(model.ErrorKindCancelled)).Inc()
		cancelled++
	}
	if cancelled == 0 {
		return snapshot, nil
	}
	span.SetStatus(codes.Error, ctxErr.Error())
	return snapshot, fmt.Errorf("discovery of %s cancelled: %w", address.Hex(), ctxErr)
}

func (e *Engine) failedDependency(plan *Plan, field string, results map[string]model.FieldResult) (string, bool) {
	for _, dep := range plan.deps[field] {
		if res, ok := results[dep]; ok && res.Failed() {
			return dep, true
		}
	}
	return "", false
}

func (e *Engine) runWave(ctx context.Context, logger *zap.Logger, plan *Plan, address common.Address, blockNumber uint64, fields []string, results map[string]model.FieldResult) error {
	if len(fields) == 0 {
		return nil
	}

	outcomes := make([]outcome, len(fields))
	g, gctx := errgroup.WithContext(ctx)

	read := func(ctx context.Context, requests []multicall.Request) ([]multicall.Response, error) {
		return e.mc.Multicall(ctx, requests, blockNumber)
	}
	var batcher *waveBatcher
	if e.coalesce && len(fields) > 1 {
		batcher = newWaveBatcher(gctx, read, len(fields))
		read = batcher.submit
	}

	for i, field := range fields {
		h := plan.handlers[field]
		p := &provider{
			field:       field,
			address:     address,
			blockNumber: blockNumber,
			read:        read,
			storage:     e.storage,
			deps:        dependencyValues(plan, field, results),
		}
		g.Go(func() error {
			if batcher != nil {
				defer batcher.leave()
			}
			start := time.Now()
			res, err := h.Execute(gctx, p, address)
			outcomes[i] = outcome{result: res, err: err}
			logger.Debug("field executed",
				zap.String("field", field),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			if err != nil && isTransport(err) && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, field := range fields {
		out := outcomes[i]
		if out.err != nil && ctx.Err() != nil && (isCancellation(out.err) || isTransport(out.err)) {
			out.err = &CancelledError{Field: field, Err: ctx.Err()}
		}
		if out.err == nil {
			out.err = validateExtras(plan, field, out.result)
		}
		if out.err != nil && !isCancelledError(out.err) {
			logger.Warn("field failed",
				zap.String("field", field),
				zap.Strings("dependents", plan.dependents[field]),
				zap.Error(out.err),
			)
		}
		e.record(plan, results, field, out)
	}
	return nil
}

// record commits a handler's whole contribution: its own field and every
// extra field it declared.
func (e *Engine) record(plan *Plan, results map[string]model.FieldResult, field string, out outcome) {
	if out.err != nil {
		fe := fieldError(out.err)
		results[field] = model.FieldResult{Field: field, Error: fe}
		for _, extra := range plan.produces[field] {
			results[extra] = model.FieldResult{Field: extra, Error: fe}
		}
		fieldsTotal.WithLabelValues(string(fe.Kind)).Add(float64(1 + len(plan.produces[field])))
		return
	}
	results[field] = model.FieldResult{Field: field, Value: out.result.Value}
	for _, extra := range plan.produces[field] {
		results[extra] = model.FieldResult{Field: extra, Value: out.result.Extra[extra]}
	}
	fieldsTotal.WithLabelValues("ok").Add(float64(1 + len(plan.produces[field])))
}

func validateExtras(plan *Plan, field string, res Result) error {
	if len(res.Extra) == 0 {
		return nil
	}
	declared := make(map[string]struct{}, len(plan.produces[field]))
	for _, extra := range plan.produces[field] {
		declared[extra] = struct{}{}
	}
	for name := range res.Extra {
		if _, ok := declared[name]; !ok {
			return fmt.Errorf("handler %q produced undeclared field %q", field, name)
		}
	}
	return nil
}

func dependencyValues(plan *Plan, field string, results map[string]model.FieldResult) map[string]model.Value {
	deps := make(map[string]model.Value, len(plan.deps[field]))
	for _, dep := range plan.deps[field] {
		deps[dep] = results[dep].Value
	}
	return deps
}

func isCancelledError(err error) bool {
	var cancelled *CancelledError
	return errors.As(err, &cancelled)
}
