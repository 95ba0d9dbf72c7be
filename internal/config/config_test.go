package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Proc != 2 {
		t.Errorf("expected default proc 2, got %d", cfg.Proc)
	}
	if cfg.Dir != "." {
		t.Errorf("expected default dir '.', got %q", cfg.Dir)
	}
	if cfg.Limit != 0 {
		t.Errorf("expected no default limit, got %d", cfg.Limit)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
proc: 8
dir: /tmp/downloads
timeout: 30s
keep_alive_timeout: 2m
limit: 5MB
bearer_token: secret
headers:
  X-Trace: abc
proxy:
  url: http://proxy.local:8080
  username: bob
s3:
  region: eu-west-1
  endpoint: http://localhost:9000
`)
	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Proc != 8 || cfg.Dir != "/tmp/downloads" {
		t.Errorf("proc/dir = %d/%q", cfg.Proc, cfg.Dir)
	}
	if cfg.Timeout != 30*time.Second || cfg.KATimeout != 2*time.Minute {
		t.Errorf("timeouts = %v/%v", cfg.Timeout, cfg.KATimeout)
	}
	if cfg.Limit != 5*1024*1024 {
		t.Errorf("expected limit 5MB, got %d", cfg.Limit)
	}
	if cfg.Headers["X-Trace"] != "abc" || cfg.BearerToken != "secret" {
		t.Errorf("headers/token not loaded: %v %q", cfg.Headers, cfg.BearerToken)
	}
	if cfg.Proxy.URL != "http://proxy.local:8080" || cfg.Proxy.Username != "bob" {
		t.Errorf("proxy = %+v", cfg.Proxy)
	}
	if cfg.S3.Region != "eu-west-1" || cfg.S3.Endpoint != "http://localhost:9000" {
		t.Errorf("s3 = %+v", cfg.S3)
	}
	if cfg.UserAgent != Default().UserAgent {
		t.Errorf("unset user agent should keep the default, got %q", cfg.UserAgent)
	}

	httpCfg := cfg.HTTPClientConfig()
	if !httpCfg.HighThreadMode || httpCfg.ProxyUsername != "bob" || httpCfg.Headers["X-Trace"] != "abc" {
		t.Errorf("unexpected HTTP client config %+v", httpCfg)
	}
}

func TestLoadFromYAMLErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad timeout", "timeout: soon\n"},
		{"bad limit", "limit: lots\n"},
		{"bad yaml", "proc: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFromFile(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadMissingFiles(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("missing default file should not fail: %v", err)
	}
	if cfg.Proc != Default().Proc {
		t.Errorf("expected defaults, got %+v", cfg)
	}

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error for explicit path, got %v", err)
	}
}

func TestLoadDefaultPath(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	os.MkdirAll(filepath.Join(dir, "splitget"), 0755)
	os.WriteFile(filepath.Join(dir, "splitget", "config.yaml"), []byte("proc: 4\n"), 0644)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Proc != 4 {
		t.Errorf("expected proc 4 from default path, got %d", cfg.Proc)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SPLITGET_PROC", "6")
	t.Setenv("SPLITGET_LIMIT", "1KB")
	t.Setenv("SPLITGET_PROXY", "http://env.proxy:3128")
	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Proc != 6 || cfg.Limit != 1024 || cfg.Proxy.URL != "http://env.proxy:3128" {
		t.Errorf("unexpected config %+v", cfg)
	}

	t.Setenv("SPLITGET_PROC", "many")
	if err := cfg.LoadFromEnv(); err == nil {
		t.Error("expected error for invalid SPLITGET_PROC")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Proc = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for proc 0")
	}
	cfg = Default()
	cfg.Limit = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for negative limit")
	}
}
