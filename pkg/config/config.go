// Package config loads server configuration from an optional YAML file with
// environment variables layered on top (env wins).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	Addr   string `yaml:"addr"`
	DBPath string `yaml:"db_path"`

	// WebhookSecret authenticates ingestion and admin calls. Empty disables
	// auth, which is only acceptable for local development.
	WebhookSecret string `yaml:"webhook_secret"`
	// WebhookURL is the externally reachable ingestion endpoint handed to
	// units as their callback target.
	WebhookURL string `yaml:"webhook_url"`

	// Machine API coordinates. An empty token selects the local docker
	// backend instead.
	MachineToken  string `yaml:"machine_token"`
	MachineApp    string `yaml:"machine_app"`
	MachineAPIURL string `yaml:"machine_api_url"`
	AppHost       string `yaml:"app_host"`

	AgentImage  string `yaml:"agent_image"`
	GitHubToken string `yaml:"github_token"`
}

// envOverrides maps environment variable names onto config fields.
var envOverrides = []struct {
	name  string
	apply func(*Config, string)
}{
	{"OVERSEER_ADDR", func(c *Config, v string) { c.Addr = v }},
	{"OVERSEER_DB", func(c *Config, v string) { c.DBPath = v }},
	{"WEBHOOK_SECRET", func(c *Config, v string) { c.WebhookSecret = v }},
	{"WEBHOOK_URL", func(c *Config, v string) { c.WebhookURL = v }},
	{"MACHINE_API_TOKEN", func(c *Config, v string) { c.MachineToken = v }},
	{"MACHINE_APP", func(c *Config, v string) { c.MachineApp = v }},
	{"MACHINE_API_URL", func(c *Config, v string) { c.MachineAPIURL = v }},
	{"MACHINE_APP_HOST", func(c *Config, v string) { c.AppHost = v }},
	{"AGENT_IMAGE", func(c *Config, v string) { c.AgentImage = v }},
	{"GITHUB_TOKEN", func(c *Config, v string) { c.GitHubToken = v }},
}

// Load reads the YAML file at path (skipped when path is empty or the file
// does not exist) and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Addr:   ":8080",
		DBPath: "overseer.db",
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		}
	}

	for _, ov := range envOverrides {
		if v := os.Getenv(ov.name); v != "" {
			ov.apply(cfg, v)
		}
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "overseer.db"
	}

	return cfg, nil
}

// ValidateRemote checks the fields required when the remote Machine API
// backend is in use.
func (c *Config) ValidateRemote() error {
	if c.MachineApp == "" {
		return fmt.Errorf("machine_app is required when a machine token is configured")
	}
	if c.AppHost == "" {
		return fmt.Errorf("app_host is required when a machine token is configured")
	}
	if c.AgentImage == "" {
		return fmt.Errorf("agent_image is required")
	}
	return nil
}
