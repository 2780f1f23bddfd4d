// Package roundtable provides a high-level façade for convening turn-based
// expert meetings from declarative configuration. Most applications interact
// with this package by:
//  1. Loading a config.Config (or building one in code)
//  2. Creating a Roundtable via New()
//  3. Convening meetings with an opening statement and collecting summaries
//
// The façade delegates scheduling to meeting.Meeting while keeping setup
// concise: model adapters, retry decoration, logging and archival are wired
// from configuration. All defaults are safe for local development; production
// deployments typically supply real provider credentials and a persistent
// archive.
package roundtable

import (
	"context"
	"fmt"
	"log/slog"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/roundtable/agent"
	"github.com/hupe1980/roundtable/archive"
	"github.com/hupe1980/roundtable/config"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/meeting"
	"github.com/hupe1980/roundtable/model"
	"github.com/hupe1980/roundtable/model/anthropic"
	"github.com/hupe1980/roundtable/model/openai"
	"github.com/hupe1980/roundtable/tool"
)

// Options configures the Roundtable instance beyond what the declarative
// config describes.
type Options struct {
	// Archive receives every meeting summary. Defaults to in-memory.
	Archive archive.Archive

	// Logger overrides the logger derived from the config's logging section.
	Logger logging.Logger

	// Tools are granted to every expert in addition to config-driven wiring.
	Tools []tool.Tool

	// ModelFactory overrides backend construction, mainly for tests. When
	// nil, backends are built from the provider named in the config.
	ModelFactory func(cfg config.ModelConfig) (model.Model, error)

	// Termination is an optional external stop predicate for all meetings.
	Termination meeting.TerminationFunc
}

// Roundtable aggregates the configured experts, the meeting orchestrator and
// the archive.
type Roundtable struct {
	cfg     *config.Config
	opts    Options
	meeting *meeting.Meeting
	archive archive.Archive
	logger  logging.Logger
}

// New assembles a Roundtable from configuration: one model per expert
// (falling back to the top-level model), the leader-led meeting and the
// archive.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Roundtable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{
		Archive: archive.NewInMemoryArchive(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = newLogger(cfg.Logging)
	}

	factory := opts.ModelFactory
	if factory == nil {
		factory = func(mc config.ModelConfig) (model.Model, error) { return buildModel(mc, logger) }
	}

	leader, err := buildExpert(cfg.Leader(), cfg.Model, factory, logger)
	if err != nil {
		return nil, err
	}
	participants := []agent.Participant{leader}

	m := meeting.New(leader, func(o *meeting.Options) {
		if cfg.Meeting.MaxTurns > 0 {
			o.MaxTurns = cfg.Meeting.MaxTurns
		}
		o.MaxDuration = cfg.Meeting.MaxDuration.Std()
		o.InterventionTimeout = cfg.Meeting.InterventionTimeout.Std()
		if cfg.Meeting.CheckpointInterval > 0 {
			o.Policy = &meeting.LeaderLastPolicy{CheckpointInterval: cfg.Meeting.CheckpointInterval}
		}
		o.Termination = opts.Termination
		o.Logger = logger
	})

	for _, ec := range cfg.Peers() {
		p, err := buildExpert(ec, cfg.Model, factory, logger)
		if err != nil {
			return nil, err
		}
		m.AddExpert(p)
		participants = append(participants, p)
	}

	r := &Roundtable{cfg: cfg, opts: opts, meeting: m, archive: opts.Archive, logger: logger}

	// Everyone can recall prior decisions; shared tools reach everyone too.
	recall := archive.NewRecallTool(r.archive)
	for _, p := range participants {
		p.AddTool(recall)
		for _, t := range opts.Tools {
			p.AddTool(t)
		}
	}

	return r, nil
}

// Meeting returns the underlying orchestrator for observer subscription and
// human input injection.
func (r *Roundtable) Meeting() *meeting.Meeting { return r.meeting }

// Archive returns the meeting archive.
func (r *Roundtable) Archive() archive.Archive { return r.archive }

// Convene runs one meeting with the given opening statement and archives the
// summary. The summary is returned even when the run errored so partial
// transcripts are never lost.
func (r *Roundtable) Convene(ctx context.Context, opening string) (*meeting.Summary, error) {
	summary, err := r.meeting.Run(ctx, opening)
	if summary != nil {
		if saveErr := r.archive.Save(summary); saveErr != nil {
			r.logger.Warn("roundtable.archive.save", "error", saveErr)
		}
	}
	return summary, err
}

func buildExpert(ec config.ExpertConfig, base config.ModelConfig, factory func(config.ModelConfig) (model.Model, error), logger logging.Logger) (agent.Participant, error) {
	mc := base
	if ec.Model != nil {
		mc = *ec.Model
	}

	llm, err := factory(mc)
	if err != nil {
		return nil, fmt.Errorf("roundtable: expert %q: %w", ec.Name, err)
	}

	if ec.Role == config.RoleAnalyst {
		return agent.NewAnalyst(ec.Name, llm, func(o *agent.AnalystOptions) {
			applyExpertOptions(&o.Options, ec, logger)
		}), nil
	}

	return agent.New(ec.Name, llm, func(o *agent.Options) {
		applyExpertOptions(o, ec, logger)
	}), nil
}

func applyExpertOptions(o *agent.Options, ec config.ExpertConfig, logger logging.Logger) {
	if ec.Persona != "" {
		o.Persona = ec.Persona
	}
	if ec.MaxHistory > 0 {
		o.MaxHistory = ec.MaxHistory
	}
	if ec.Temperature > 0 {
		o.Temperature = ec.Temperature
	}
	o.Logger = logger
}

func buildModel(mc config.ModelConfig, logger logging.Logger) (model.Model, error) {
	var llm model.Model

	switch mc.Provider {
	case config.ProviderOpenAI:
		llm = openai.NewModel(func(o *openai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			if mc.Temperature > 0 {
				o.Temperature = mc.Temperature
			}
		})
	case config.ProviderAnthropic:
		llm = anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Name != "" {
				o.Model = anthropicsdk.Model(mc.Name)
			}
			if mc.Temperature > 0 {
				o.Temperature = mc.Temperature
			}
			o.APIKey = mc.APIKey
		})
	case config.ProviderMock:
		llm = model.NewMockModel(mc.Name)
	default:
		return nil, fmt.Errorf("roundtable: unknown model provider %q", mc.Provider)
	}

	if mc.MaxRetries > 0 {
		llm = model.WithRetry(llm, func(o *model.RetryOptions) {
			o.MaxAttempts = mc.MaxRetries
			o.Logger = logger
		})
	}

	return llm, nil
}

func newLogger(lc config.LoggingConfig) logging.Logger {
	cfg := logging.DefaultLoggerConfig()
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	switch lc.Level {
	case "debug":
		cfg.Level = slog.LevelDebug
	case "warn":
		cfg.Level = slog.LevelWarn
	case "error":
		cfg.Level = slog.LevelError
	}
	cfg.Component = "roundtable"
	return logging.NewLogger(cfg)
}
