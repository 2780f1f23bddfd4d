package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider names accepted in model configuration.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Expert roles accepted in expert configuration.
const (
	RoleLeader  = "leader"
	RoleExpert  = "expert"
	RoleAnalyst = "analyst"
)

// ModelConfig selects and tunes a reasoning backend.
type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty"`
	Temperature float64 `yaml:"temperature,omitempty"`
	MaxRetries  int     `yaml:"max_retries,omitempty"`
}

// ExpertConfig declares one participant.
type ExpertConfig struct {
	Name        string       `yaml:"name"`
	Role        string       `yaml:"role,omitempty"` // leader, expert or analyst
	Persona     string       `yaml:"persona"`
	Model       *ModelConfig `yaml:"model,omitempty"` // overrides the top-level model
	MaxHistory  int          `yaml:"max_history,omitempty"`
	Temperature float64      `yaml:"temperature,omitempty"`
}

// MeetingConfig tunes the orchestrator.
type MeetingConfig struct {
	MaxTurns            int      `yaml:"max_turns,omitempty"`
	MaxDuration         Duration `yaml:"max_duration,omitempty"`
	CheckpointInterval  int      `yaml:"checkpoint_interval,omitempty"`
	InterventionTimeout Duration `yaml:"intervention_timeout,omitempty"`
}

// LoggingConfig tunes diagnostics output.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// Config is the full declarative description of a roundtable: a default
// model, the participating experts and the meeting parameters.
type Config struct {
	Model   ModelConfig    `yaml:"model"`
	Experts []ExpertConfig `yaml:"experts"`
	Meeting MeetingConfig  `yaml:"meeting,omitempty"`
	Logging LoggingConfig  `yaml:"logging,omitempty"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Leader returns the expert configured as leader. Validate guarantees there
// is exactly one.
func (c *Config) Leader() ExpertConfig {
	for _, e := range c.Experts {
		if e.Role == RoleLeader {
			return e
		}
	}
	return ExpertConfig{}
}

// Peers returns all non-leader experts in declaration order.
func (c *Config) Peers() []ExpertConfig {
	out := make([]ExpertConfig, 0, len(c.Experts))
	for _, e := range c.Experts {
		if e.Role != RoleLeader {
			out = append(out, e)
		}
	}
	return out
}

// Validate checks structural invariants: a known provider, at least two
// experts with unique names, exactly one leader and known roles.
func (c *Config) Validate() error {
	if err := validateModel(&c.Model); err != nil {
		return err
	}

	if len(c.Experts) < 2 {
		return fmt.Errorf("config: at least two experts required, got %d", len(c.Experts))
	}

	leaders := 0
	seen := make(map[string]bool, len(c.Experts))
	for i := range c.Experts {
		e := &c.Experts[i]

		if e.Name == "" {
			return fmt.Errorf("config: expert %d has no name", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("config: duplicate expert name %q", e.Name)
		}
		seen[e.Name] = true

		if e.Role == "" {
			e.Role = RoleExpert
		}
		switch e.Role {
		case RoleLeader:
			leaders++
		case RoleExpert, RoleAnalyst:
		default:
			return fmt.Errorf("config: expert %q has unknown role %q", e.Name, e.Role)
		}

		if e.Persona == "" {
			return fmt.Errorf("config: expert %q has no persona", e.Name)
		}
		if e.Model != nil {
			if err := validateModel(e.Model); err != nil {
				return fmt.Errorf("config: expert %q: %w", e.Name, err)
			}
		}
	}

	if leaders != 1 {
		return fmt.Errorf("config: exactly one leader required, got %d", leaders)
	}

	if c.Meeting.MaxTurns < 0 {
		return fmt.Errorf("config: max_turns must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Logging.Level)
	}

	return nil
}

func validateModel(m *ModelConfig) error {
	switch m.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderMock:
		return nil
	case "":
		return fmt.Errorf("config: model provider required")
	default:
		return fmt.Errorf("config: unknown model provider %q", m.Provider)
	}
}
