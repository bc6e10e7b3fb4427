package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateRequiresKey(t *testing.T) {
	cfg := Default()
	cfg.API.Key = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing API key")
	}
	cfg.API.Key = "k"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Default()
	cfg.API.Key = "k"
	cfg.Storage.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "driftnet.yaml")
	cfg := Default()
	cfg.API.Key = "secret"
	cfg.Dedup.RecencyWindowDays = 30
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.API.Key != "secret" || got.Dedup.RecencyWindowDays != 30 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestResolveEnvFillsKey(t *testing.T) {
	os.Setenv("RAPID_API_KEY", "from-env")
	defer os.Unsetenv("RAPID_API_KEY")
	cfg := Default()
	cfg.ResolveEnv()
	if cfg.API.Key != "from-env" {
		t.Fatalf("expected env key, got %q", cfg.API.Key)
	}
}
