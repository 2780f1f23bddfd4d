package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
model:
  provider: openai
  name: gpt-4o-mini
  temperature: 0.5
experts:
  - name: architect
    role: leader
    persona: You are the lead architect.
  - name: dba
    persona: You are the database specialist.
    model:
      provider: anthropic
  - name: researcher
    role: analyst
    persona: You gather data before forming opinions.
meeting:
  max_turns: 8
  max_duration: 10m
  checkpoint_interval: 2
  intervention_timeout: 90s
logging:
  level: debug
  format: json
`

func TestParseValid(t *testing.T) {
	cfg, err := Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Model.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	require.Len(t, cfg.Experts, 3)

	leader := cfg.Leader()
	assert.Equal(t, "architect", leader.Name)

	peers := cfg.Peers()
	require.Len(t, peers, 2)
	assert.Equal(t, "dba", peers[0].Name)
	assert.Equal(t, RoleExpert, peers[0].Role) // defaulted
	assert.Equal(t, RoleAnalyst, peers[1].Role)
	require.NotNil(t, peers[0].Model)
	assert.Equal(t, ProviderAnthropic, peers[0].Model.Provider)

	assert.Equal(t, 8, cfg.Meeting.MaxTurns)
	assert.Equal(t, 10*time.Minute, cfg.Meeting.MaxDuration.Std())
	assert.Equal(t, 90*time.Second, cfg.Meeting.InterventionTimeout.Std())
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roundtable.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "architect", cfg.Leader().Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			"no provider",
			func(c *Config) { c.Model.Provider = "" },
			"provider required",
		},
		{
			"unknown provider",
			func(c *Config) { c.Model.Provider = "cohere" },
			"unknown model provider",
		},
		{
			"single expert",
			func(c *Config) { c.Experts = c.Experts[:1] },
			"at least two experts",
		},
		{
			"duplicate names",
			func(c *Config) { c.Experts[1].Name = "architect" },
			"duplicate expert name",
		},
		{
			"no leader",
			func(c *Config) { c.Experts[0].Role = RoleExpert },
			"exactly one leader",
		},
		{
			"two leaders",
			func(c *Config) { c.Experts[1].Role = RoleLeader },
			"exactly one leader",
		},
		{
			"unknown role",
			func(c *Config) { c.Experts[1].Role = "moderator" },
			"unknown role",
		},
		{
			"missing persona",
			func(c *Config) { c.Experts[1].Persona = "" },
			"no persona",
		},
		{
			"bad log level",
			func(c *Config) { c.Logging.Level = "verbose" },
			"unknown log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(validYAML))
			require.NoError(t, err)

			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseBadDuration(t *testing.T) {
	_, err := Parse([]byte(`
model:
  provider: mock
experts:
  - name: a
    role: leader
    persona: p
  - name: b
    persona: p
meeting:
  max_duration: soon
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}
