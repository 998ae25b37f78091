package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"discoveryScope/internal/chain"
	"discoveryScope/internal/config"
	"discoveryScope/internal/discovery"
	"discoveryScope/internal/multicall"
	"discoveryScope/internal/runner"
	"discoveryScope/internal/storage"
	"discoveryScope/internal/storage/kafka"
	"discoveryScope/internal/storage/postgres"
	"discoveryScope/internal/storage/redis"
	"discoveryScope/internal/storage/sqlite"
)

// app holds the collaborators shared by the commands.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	chain   *chain.Client
	reader  *chain.RetryReader
	chainID uint64
	pg      *postgres.Store
	sqlite  *sqlite.Repository
	closers []func()
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}

	a := &app{cfg: cfg, logger: logger}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	a.chain = client
	a.closers = append(a.closers, client.Close)

	chainID, err := client.ChainID(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	a.chainID = chainID
	a.reader = chain.NewRetryReader(client, cfg.MaxRetries, cfg.RetryBackoff, logger)

	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			a.close()
			return nil, err
		}
		a.pg = store
	}

	if cfg.SQLitePath != "" {
		repo, err := sqlite.NewRepository(cfg.SQLitePath)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		a.closers = append(a.closers, func() { _ = repo.Close() })
		a.sqlite = repo
	}

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// project loads the project file and checks it targets the connected chain.
func (a *app) project() (config.Project, error) {
	project, err := config.LoadProject(a.cfg.Project)
	if err != nil {
		return config.Project{}, err
	}
	if project.Network.ChainID != 0 && project.Network.ChainID != a.chainID {
		return config.Project{}, fmt.Errorf("project %s targets chain %d, rpc serves chain %d",
			project.Name, project.Network.ChainID, a.chainID)
	}
	return project, nil
}

func (a *app) engine(project config.Project) (*discovery.Engine, error) {
	mc, err := multicall.NewClient(a.reader, project.Network.MulticallConfig(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("multicall config: %w", err)
	}
	return discovery.NewEngine(mc, discovery.Options{
		ChainID:  a.chainID,
		Coalesce: a.cfg.Coalesce,
		Storage:  a.reader,
		Logger:   a.logger,
	})
}

func (a *app) targets(project config.Project) ([]runner.Target, error) {
	contracts, err := project.Select(a.cfg.Contracts)
	if err != nil {
		return nil, err
	}
	targets := make([]runner.Target, 0, len(contracts))
	for _, c := range contracts {
		plan, err := c.Plan()
		if err != nil {
			return nil, err
		}
		targets = append(targets, runner.Target{Name: c.Name, Address: c.AddressValue(), Plan: plan})
	}
	return targets, nil
}

// sinks returns every configured snapshot destination.
func (a *app) sinks() (storage.Multi, error) {
	var sinks storage.Multi
	if a.cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(a.cfg.Out))
	}
	if a.pg != nil {
		sinks = append(sinks, a.pg)
	}
	if a.sqlite != nil {
		sinks = append(sinks, a.sqlite)
	}
	if len(a.cfg.KafkaBrokers) > 0 {
		publisher, err := kafka.NewPublisher(kafka.PublisherConfig{
			Brokers:     a.cfg.KafkaBrokers,
			TopicPrefix: a.cfg.KafkaTopicPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = publisher.Close() })
		sinks = append(sinks, publisher)
	}
	return sinks, nil
}

func (a *app) snapshotRepository() storage.SnapshotRepository {
	switch {
	case a.pg != nil:
		return a.pg
	case a.sqlite != nil:
		return a.sqlite
	default:
		return nil
	}
}

func (a *app) stateBackend() runner.StateBackend {
	switch {
	case a.pg != nil:
		return a.pg
	case a.sqlite != nil:
		return a.sqlite
	default:
		return nil
	}
}

// blockNumberRepository returns the durable repository, fronted by redis
// when an address is configured. It is nil when nothing is configured.
func (a *app) blockNumberRepository() (storage.BlockNumberRepository, error) {
	var base storage.BlockNumberRepository
	switch {
	case a.pg != nil:
		base = a.pg
	case a.sqlite != nil:
		base = a.sqlite
	}
	if a.cfg.RedisAddr == "" {
		return base, nil
	}
	repo, err := redis.NewRepository(base, redis.Config{Addr: a.cfg.RedisAddr})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, func() { _ = repo.Close() })
	return repo, nil
}

// startMetrics serves the default prometheus registry on addr. The returned
// function stops the server.
func startMetrics(addr string, logger *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("metrics listening", zap.String("addr", addr))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
