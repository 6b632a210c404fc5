// Package config holds the agent's file-based configuration. Every
// field can also be set from the command line; flags win over file
// values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type AgentConfig struct {
	// ServerURL is the controller base URL. Required.
	ServerURL string `yaml:"server_url"`

	// Name is the client display name. Empty defaults to the host name.
	Name string `yaml:"name"`

	// PollIntervalSecs is the fixed interval between cycle starts.
	PollIntervalSecs int `yaml:"poll_interval_secs"`

	// IdentityFile holds the controller-assigned client id.
	IdentityFile string `yaml:"identity_file"`

	// Interpreter runs runpy and run actions.
	Interpreter string `yaml:"interpreter"`

	// WorkDir is where zipfile archives are extracted.
	WorkDir string `yaml:"work_dir"`

	// ActionTimeoutSecs bounds a single action's execution.
	ActionTimeoutSecs int `yaml:"action_timeout_secs"`
}

func Default() AgentConfig {
	return AgentConfig{
		PollIntervalSecs: 30,
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (AgentConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c AgentConfig) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL is required")
	}
	if c.PollIntervalSecs <= 0 {
		return fmt.Errorf("poll interval must be positive, got %d", c.PollIntervalSecs)
	}
	return nil
}

func (c AgentConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSecs) * time.Second
}

func (c AgentConfig) ActionTimeout() time.Duration {
	return time.Duration(c.ActionTimeoutSecs) * time.Second
}
