package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestLoadFlagsAndEnv(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgFile, []byte("rpc: http://file:8545\nmax-retries: 2\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.Uint64("block", 0, "")
	flags.String("kafka-brokers", "", "")
	if err := flags.Parse([]string{"--block", "12336033", "--kafka-brokers", "a:9092, b:9092,"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	t.Setenv("DISCOVERY_LOG_LEVEL", "debug")

	cfg, err := Load(cfgFile, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.RPCURL != "http://file:8545" {
		t.Fatalf("rpc mismatch: %s", cfg.RPCURL)
	}
	if cfg.Block != 12336033 {
		t.Fatalf("block mismatch: %d", cfg.Block)
	}
	if cfg.MaxRetries != 2 {
		t.Fatalf("max retries mismatch: %d", cfg.MaxRetries)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level mismatch: %s", cfg.LogLevel)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("brokers mismatch: %v", cfg.KafkaBrokers)
	}
	if !cfg.Coalesce || cfg.RetryBackoff != 500*time.Millisecond {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestParseTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"", 0},
		{"1700000000", 1700000000},
		{" 1700000000 ", 1700000000},
		{"2023-11-14T22:13:20Z", 1700000000},
	}
	for _, tc := range cases {
		got, err := ParseTimestamp(tc.in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseTimestamp(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}

	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for invalid timestamp")
	}
}
