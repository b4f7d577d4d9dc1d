package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.DBPath != "overseer.db" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
		t.Fatalf("missing config file should be skipped: %v", err)
	}
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overseer.yaml")
	content := `
addr: ":9090"
machine_app: build-agents
webhook_secret: from-file
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("WEBHOOK_SECRET", "from-env")
	t.Setenv("MACHINE_API_TOKEN", "tok")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("yaml value not applied: %q", cfg.Addr)
	}
	if cfg.WebhookSecret != "from-env" {
		t.Errorf("env must win over file, got %q", cfg.WebhookSecret)
	}
	if cfg.MachineToken != "tok" {
		t.Errorf("env-only value missing: %q", cfg.MachineToken)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("addr: [unclosed"), 0644)
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidateRemote(t *testing.T) {
	cfg := &Config{MachineToken: "t"}
	if err := cfg.ValidateRemote(); err == nil {
		t.Fatal("expected error for missing machine_app")
	}
	cfg.MachineApp = "a"
	if err := cfg.ValidateRemote(); err == nil {
		t.Fatal("expected error for missing app_host")
	}
	cfg.AppHost = "units.example.com"
	if err := cfg.ValidateRemote(); err == nil {
		t.Fatal("expected error for missing agent_image")
	}
	cfg.AgentImage = "registry.example.com/agent:latest"
	if err := cfg.ValidateRemote(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
