package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	root := &cobra.Command{
		Use:          "discovery",
		Short:        "Contract field discovery over batched eth_call",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Discover project contracts at one block",
		RunE:  runDiscover,
	}
	addCommonFlags(discoverCmd)
	discoverCmd.Flags().Uint64("block", 0, "block number, 0 means latest")
	discoverCmd.Flags().Bool("json", false, "print snapshots as JSON")
	root.AddCommand(discoverCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Discover project contracts over the hourly report range",
		RunE:  runReport,
	}
	addCommonFlags(runCmd)
	runCmd.Flags().String("timestamp", "", "report timestamp (unix seconds or RFC3339), default now")
	runCmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	runCmd.Flags().Bool("checkpoint-enabled", true, "enable checkpointing")
	root.AddCommand(runCmd)

	rangeCmd := &cobra.Command{
		Use:   "range",
		Short: "Print the hourly report range",
		RunE:  runRange,
	}
	rangeCmd.Flags().String("rpc", "", "RPC URL")
	rangeCmd.Flags().String("timestamp", "", "report timestamp (unix seconds or RFC3339), default now")
	rangeCmd.Flags().String("pg-dsn", "", "Postgres DSN for the block number cache")
	rangeCmd.Flags().String("sqlite", "", "SQLite path for the block number cache")
	rangeCmd.Flags().String("redis-addr", "", "redis address for the block number cache")
	rangeCmd.Flags().Bool("json", false, "print the range as JSON")
	addLoggingFlags(rangeCmd)
	root.AddCommand(rangeCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "RPC URL")
	cmd.Flags().String("project", "./discovery.yaml", "project file")
	cmd.Flags().StringSlice("contract", nil, "contract names to discover (comma-separated), default all")
	cmd.Flags().Bool("coalesce", true, "gather the reads of one wave into a single multicall")
	cmd.Flags().String("out", "", "output JSONL path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("sqlite", "", "SQLite database path")
	cmd.Flags().String("redis-addr", "", "redis address for the block number cache")
	cmd.Flags().StringSlice("kafka-brokers", nil, "kafka brokers (comma-separated)")
	cmd.Flags().String("kafka-topic-prefix", "discovery", "kafka topic prefix")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().String("otlp-endpoint", "", "OTLP/HTTP trace endpoint")
	addLoggingFlags(cmd)
}

func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	cmd.Flags().String("log-file", "", "also write logs to this file, rotated")
}

func newLogger(level, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if file == "" {
		return cfg.Build()
	}

	rotating := zapcore.AddSync(&lumberjack.Logger{
		Filename:   file,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
	})
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(cfg.EncoderConfig),
		zapcore.NewMultiWriteSyncer(zapcore.Lock(os.Stderr), rotating),
		cfg.Level,
	)
	return zap.New(core, zap.AddCaller()), nil
}
