package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"discoveryScope/internal/config"
	"discoveryScope/internal/telemetry"
)

const serviceName = "discovery"

type session struct {
	ctx    context.Context
	cfg    config.Config
	logger *zap.Logger
	done   []func()
}

// start loads configuration and brings up logging, tracing and metrics for
// a command. close must be called when the command returns.
func start(cmd *cobra.Command) (*session, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	s := &session{ctx: ctx, cfg: cfg, logger: logger}
	s.done = append(s.done, func() { _ = logger.Sync() }, stop)

	shutdown, err := telemetry.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		s.done = append(s.done, func() { _ = shutdown(context.Background()) })
	}
	s.done = append(s.done, startMetrics(cfg.MetricsAddr, logger))
	return s, nil
}

func (s *session) close() {
	for i := len(s.done) - 1; i >= 0; i-- {
		s.done[i]()
	}
}
