package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()
	if cfg.ServerPort == 0 {
		t.Errorf("expected non-zero default server port")
	}
	if cfg.DataRoot == "" {
		t.Errorf("expected non-empty default data root")
	}
	if !cfg.MetricsEnabled {
		t.Errorf("expected metrics enabled by default")
	}
}

func TestFromEnvOverridesViaEnvdecode(t *testing.T) {
	t.Setenv("SERVER_PORT", "1234")
	t.Setenv("METRICS_ENABLED", "false")
	t.Setenv("REPORT_INTERVAL", "30s")

	cfg := FromEnv()
	if cfg.ServerPort != 1234 {
		t.Errorf("ServerPort = %d, want 1234", cfg.ServerPort)
	}
	if cfg.MetricsEnabled {
		t.Errorf("expected METRICS_ENABLED=false to disable metrics")
	}
	if cfg.ReportInterval != 30*time.Second {
		t.Errorf("ReportInterval = %v, want 30s", cfg.ReportInterval)
	}
}

func TestFromEnvLoadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("data_root: /tmp/yaml-root\nadmin_port: 9999\n"), 0644); err != nil {
		t.Fatalf("could not write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg := FromEnv()
	if cfg.DataRoot != "/tmp/yaml-root" {
		t.Errorf("DataRoot = %q, want /tmp/yaml-root", cfg.DataRoot)
	}
	if cfg.AdminPort != 9999 {
		t.Errorf("AdminPort = %d, want 9999", cfg.AdminPort)
	}
}

func TestFromEnvOverridesYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server_port: 4321\n"), 0644); err != nil {
		t.Fatalf("could not write config file: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_PORT", "5555")

	cfg := FromEnv()
	if cfg.ServerPort != 5555 {
		t.Errorf("ServerPort = %d, want env override 5555, got %d", cfg.ServerPort, cfg.ServerPort)
	}
}
