package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Rules.SweepInterval != 12*time.Hour {
		t.Fatalf("sweep interval = %v, want 12h", cfg.Rules.SweepInterval)
	}
	if cfg.Rules.JobTopic != "rules-reevaluation" {
		t.Fatalf("job topic = %q", cfg.Rules.JobTopic)
	}
}

func TestLoadFileYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	body := []byte(`
log_level: debug
infra:
  redis:
    addrs: ["redis-a:6379", "redis-b:6379"]
rules:
  sweep_interval: 6h
  reevaluation_delay: 1m
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RULES_DEFAULT_CART_TTL", "45m")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q, want debug", cfg.LogLevel)
	}
	if len(cfg.Infra.Redis.Addrs) != 2 {
		t.Fatalf("redis addrs = %v", cfg.Infra.Redis.Addrs)
	}
	if cfg.Rules.SweepInterval != 6*time.Hour {
		t.Fatalf("sweep interval = %v, want 6h", cfg.Rules.SweepInterval)
	}
	if cfg.Rules.ReevaluationDelay != time.Minute {
		t.Fatalf("delay = %v, want 1m", cfg.Rules.ReevaluationDelay)
	}
	if cfg.Rules.DefaultCartTTL != 45*time.Minute {
		t.Fatalf("cart ttl = %v, want 45m", cfg.Rules.DefaultCartTTL)
	}
	// 未在 YAML 中出现的字段保持默认值
	if cfg.Rules.JobGroupID != "rules-worker-group" {
		t.Fatalf("job group = %q", cfg.Rules.JobGroupID)
	}
}

func TestLoadFileRejectsInvalidSweep(t *testing.T) {
	t.Setenv("RULES_SWEEP_INTERVAL", "0s")
	if _, err := LoadFile(""); err == nil {
		t.Fatal("expected error for zero sweep interval")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
