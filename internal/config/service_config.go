package config

import (
	"time"

	"github.com/eval-hub/sim-hub/internal/tracing"
	"github.com/eval-hub/sim-hub/pkg/api"
)

type Config struct {
	Service    *ServiceConfig         `mapstructure:"service"`
	Database   *map[string]any        `mapstructure:"database"`
	Scheduler  *SchedulerConfig       `mapstructure:"scheduler"`
	LLM        *LLMConfig             `mapstructure:"llm"`
	Connectors *ConnectorsConfig      `mapstructure:"connectors"`
	Tracing    *tracing.TracingConfig `mapstructure:"tracing"`
}

type ServiceConfig struct {
	Version         string `mapstructure:"version,omitempty"`
	Build           string `mapstructure:"build,omitempty"`
	BuildDate       string `mapstructure:"build_date,omitempty"`
	Port            int    `mapstructure:"port,omitempty"`
	ReadyFile       string `mapstructure:"ready_file"`
	TerminationFile string `mapstructure:"termination_file"`
	LocalMode       bool   `mapstructure:"local_mode,omitempty"`
	LogLevel        string `mapstructure:"log_level,omitempty"`
}

type SchedulerConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	RecoverOnStart bool          `mapstructure:"recover_on_start"`
}

// LLMConfig holds the default chat completion provider and the per project overrides
type LLMConfig struct {
	Default  *api.LLMProvider           `mapstructure:"default"`
	Projects map[string]api.LLMProvider `mapstructure:"projects"`
}

// ConnectorsConfig configures the HTTP client used to reach the agents under test
type ConnectorsConfig struct {
	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	MaxErrorSnippet    int           `mapstructure:"max_error_snippet"`
	CACertPath         string        `mapstructure:"ca_cert_path"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

const (
	DefaultSchedulerInterval = 5 * time.Second
	DefaultMaxConcurrent     = 4
	DefaultHTTPTimeout       = 120 * time.Second
	DefaultMaxErrorSnippet   = 200
)

// applyDefaults fills in the sections that the configuration file left out
func (c *Config) applyDefaults() {
	if c.Service == nil {
		c.Service = &ServiceConfig{}
	}
	if c.Service.Port == 0 {
		c.Service.Port = 8080
	}
	if c.Scheduler == nil {
		c.Scheduler = &SchedulerConfig{Enabled: true, RecoverOnStart: true}
	}
	if c.Scheduler.Interval <= 0 {
		c.Scheduler.Interval = DefaultSchedulerInterval
	}
	if c.Scheduler.MaxConcurrent <= 0 {
		c.Scheduler.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.LLM == nil {
		c.LLM = &LLMConfig{}
	}
	if c.Connectors == nil {
		c.Connectors = &ConnectorsConfig{}
	}
	if c.Connectors.HTTPTimeout <= 0 {
		c.Connectors.HTTPTimeout = DefaultHTTPTimeout
	}
	if c.Connectors.MaxErrorSnippet <= 0 {
		c.Connectors.MaxErrorSnippet = DefaultMaxErrorSnippet
	}
}
