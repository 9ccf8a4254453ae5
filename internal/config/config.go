package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models contentline.yml.
type Config struct {
	Pipeline struct {
		Stages []StageConfig `yaml:"stages"`
	} `yaml:"pipeline"`
	Workflow struct {
		FallbackStatus          string `yaml:"fallback_status"`
		ArchivedStatus          string `yaml:"archived_status"`
		ApprovalRequestedStatus string `yaml:"approval_requested_status"`
		ApprovedStatus          string `yaml:"approved_status"`
		ChangesRequestedStatus  string `yaml:"changes_requested_status"`
		DefaultRevisionLimit    int    `yaml:"default_revision_limit"`
	} `yaml:"workflow"`
	Overdue struct {
		ExcludeStatuses []string `yaml:"exclude_statuses"`
	} `yaml:"overdue"`
	Notifications struct {
		Redis RedisConfig `yaml:"redis"`
	} `yaml:"notifications"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
}

type StageConfig struct {
	Name     string `yaml:"name"`
	WIPLimit *int   `yaml:"wip_limit"`
}

type RedisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// Load reads and validates config from workspace. A missing file yields the defaults.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Pipeline.Stages) == 0 {
		return fmt.Errorf("config.pipeline.stages is required")
	}
	seen := map[string]bool{}
	for i, s := range c.Pipeline.Stages {
		if s.Name == "" {
			return fmt.Errorf("pipeline stage %d has empty name", i)
		}
		if s.Name == c.Workflow.ArchivedStatus {
			return fmt.Errorf("pipeline stage %s collides with the archived status", s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("pipeline stage %s defined twice", s.Name)
		}
		if s.WIPLimit != nil && *s.WIPLimit < 0 {
			return fmt.Errorf("pipeline stage %s has negative wip_limit", s.Name)
		}
		seen[s.Name] = true
	}
	if c.Workflow.FallbackStatus == "" {
		return fmt.Errorf("config.workflow.fallback_status is required")
	}
	if c.Workflow.ArchivedStatus == "" {
		return fmt.Errorf("config.workflow.archived_status is required")
	}
	for field, status := range map[string]string{
		"approval_requested_status": c.Workflow.ApprovalRequestedStatus,
		"approved_status":           c.Workflow.ApprovedStatus,
		"changes_requested_status":  c.Workflow.ChangesRequestedStatus,
	} {
		if status == "" {
			return fmt.Errorf("config.workflow.%s is required", field)
		}
		if !seen[status] {
			return fmt.Errorf("config.workflow.%s references unknown stage %s", field, status)
		}
	}
	if c.Workflow.DefaultRevisionLimit < 0 {
		return fmt.Errorf("config.workflow.default_revision_limit must be non-negative")
	}
	return nil
}

// WorkflowStatuses returns the stage names the approval workflow writes directly.
func (c *Config) WorkflowStatuses() []string {
	return []string{
		c.Workflow.ApprovalRequestedStatus,
		c.Workflow.ApprovedStatus,
		c.Workflow.ChangesRequestedStatus,
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "contentline.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Omitted workflow keys
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	cfg.Pipeline.Stages = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `pipeline:
  stages:
    - name: Intake
    - name: Briefed
    - name: In Progress
      wip_limit: 5
    - name: Review
      wip_limit: 3
    - name: Approval Needed
    - name: Scheduled
    - name: Posted

workflow:
  fallback_status: Intake
  archived_status: Archived
  approval_requested_status: Approval Needed
  approved_status: Scheduled
  changes_requested_status: In Progress
  default_revision_limit: 3

overdue:
  exclude_statuses: [Posted, Archived]

notifications:
  redis:
    addr: ""
    channel: contentline.notifications

server:
  addr: 127.0.0.1:8080
  base_path: /v1
`
