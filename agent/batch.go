package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/model"
	"github.com/hupe1980/roundtable/tool"
)

// PlanStep is one entry of the JSON plan the analyst asks the model for.
type PlanStep struct {
	Tool    string         `json:"tool"`
	Params  map[string]any `json:"params"`
	Purpose string         `json:"purpose"`
}

// Observation is the structured outcome of executing one plan step. Failures
// and timeouts are observations like any other so a bad step never aborts
// the batch.
type Observation struct {
	Tool     string `json:"tool"`
	Purpose  string `json:"purpose"`
	Success  bool   `json:"success"`
	Summary  string `json:"summary,omitempty"`
	Error    string `json:"error,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// AnalystOptions configures an Analyst on top of the base expert options.
type AnalystOptions struct {
	Options
	// ToolTimeout bounds each individual plan step.
	ToolTimeout time.Duration
	// MaxParallel caps concurrent step execution; 0 means plan length.
	MaxParallel int
}

// Analyst is the batch variant of Expert used for data-heavy analyses. One
// cycle performs an explicit plan -> execute -> solve sequence: a first model
// call produces a JSON plan of capability invocations, all steps execute
// concurrently under per-step timeouts, and a second model call synthesizes
// the observations into the final contribution. Malformed plans are recovered
// through an extraction cascade before falling back to a direct analysis
// call.
type Analyst struct {
	*Expert
	toolTimeout time.Duration
	maxParallel int
}

// NewAnalyst constructs an Analyst around the given reasoning backend.
func NewAnalyst(name string, llm model.Model, optFns ...func(o *AnalystOptions)) *Analyst {
	opts := AnalystOptions{
		ToolTimeout: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	expert := New(name, llm, func(o *Options) {
		o.Persona = opts.Persona
		if o.Persona == "" {
			o.Persona = fmt.Sprintf("You are %s, a data-driven analyst on an expert roundtable.", name)
		}
		o.Tools = opts.Tools
		if opts.MaxHistory > 0 {
			o.MaxHistory = opts.MaxHistory
		}
		if opts.Temperature > 0 {
			o.Temperature = opts.Temperature
		}
		if opts.Logger != nil {
			o.Logger = opts.Logger
		}
	})
	return &Analyst{Expert: expert, toolTimeout: opts.ToolTimeout, maxParallel: opts.MaxParallel}
}

// ThinkAndAct runs one plan -> execute -> solve cycle.
func (a *Analyst) ThinkAndAct(ctx context.Context, optFns ...ThinkOption) ([]core.Message, error) {
	var cfg thinkConfig
	for _, fn := range optFns {
		fn(&cfg)
	}

	pending := a.drain()
	if len(pending) == 0 {
		return nil, nil
	}

	tools := a.cycleTools(cfg)

	a.setStatus(StatusThinking)
	defer a.setStatus(StatusIdle)
	a.publish(core.EventAgentThinking, fmt.Sprintf("%s is planning over %d message(s)", a.name, len(pending)))

	content, err := a.planExecuteSolve(ctx, tools)
	if err != nil {
		return nil, err
	}

	out := a.compose(content, pending)
	a.setStatus(StatusSpeaking)
	a.appendHistory(out...)
	a.publish(core.EventAgentResult, fmt.Sprintf("%s produced %d message(s)", a.name, len(out)))
	return out, nil
}

func (a *Analyst) planExecuteSolve(ctx context.Context, tools map[string]tool.Tool) (string, error) {
	planResp, err := a.llm.Generate(ctx, a.planRequest(tools))
	if err != nil {
		return "", fmt.Errorf("analyst %s: plan: %w", a.name, err)
	}

	steps, err := ExtractPlan(planResp.Text)
	if err != nil {
		a.logger.Warn("analyst.plan.unparseable", "analyst", a.name, "error", err.Error())
		return a.directAnalysis(ctx, tools)
	}
	if len(steps) == 0 {
		// An empty plan is a legitimate "no data needed" answer.
		return planResp.Text, nil
	}

	a.setStatus(StatusToolUsing)
	observations := a.executePlan(ctx, tools, steps)

	a.setStatus(StatusThinking)
	solveResp, err := a.llm.Generate(ctx, a.solveRequest(observations))
	if err != nil {
		return "", fmt.Errorf("analyst %s: solve: %w", a.name, err)
	}
	return solveResp.Text, nil
}

// executePlan runs all steps concurrently, each bounded by the per-tool
// timeout, collecting observations in plan order. The observation count
// always equals the plan length.
func (a *Analyst) executePlan(ctx context.Context, tools map[string]tool.Tool, steps []PlanStep) []Observation {
	n := len(steps)
	observations := make([]Observation, n)

	maxPar := a.maxParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}
	sem := make(chan struct{}, maxPar)

	var wg sync.WaitGroup
	start := time.Now()
	for i := range steps {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, step PlanStep) {
			defer wg.Done()
			defer func() { <-sem }()
			observations[idx] = a.executeStep(ctx, tools, step)
		}(i, steps[i])
	}
	wg.Wait()

	a.logger.Debug("analyst.plan.executed",
		"analyst", a.name,
		"steps", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return observations
}

// executeStep runs one capability with panic safety and a hard timeout that
// holds even when the tool ignores context cancellation.
func (a *Analyst) executeStep(ctx context.Context, tools map[string]tool.Tool, step PlanStep) Observation {
	obs := Observation{Tool: step.Tool, Purpose: step.Purpose}

	impl, ok := tools[step.Tool]
	if !ok {
		obs.Error = fmt.Sprintf("tool '%s' not found", step.Tool)
		return obs
	}

	stepCtx, cancel := context.WithTimeout(ctx, a.toolTimeout)
	defer cancel()

	type outcome struct {
		res *tool.Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: tool.NewToolError(step.Tool, fmt.Sprintf("panic: %v", r), tool.CodeExecution)}
			}
		}()
		res, err := impl.Execute(stepCtx, step.Params)
		done <- outcome{res: res, err: err}
	}()

	select {
	case <-stepCtx.Done():
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) {
			obs.TimedOut = true
			obs.Error = fmt.Sprintf("tool '%s' timed out after %s", step.Tool, a.toolTimeout)
		} else {
			obs.Error = stepCtx.Err().Error()
		}
		return obs
	case o := <-done:
		if o.err != nil {
			obs.Error = o.err.Error()
			return obs
		}
		if o.res == nil {
			obs.Error = fmt.Sprintf("tool '%s' returned no result", step.Tool)
			return obs
		}
		obs.Success = o.res.Success
		obs.Summary = o.res.Summary
		obs.Error = o.res.Error
		return obs
	}
}

// directAnalysis is the fallback when no structured plan could be recovered:
// a single unstructured reasoning call through the base cycle's request.
func (a *Analyst) directAnalysis(ctx context.Context, tools map[string]tool.Tool) (string, error) {
	resp, err := a.llm.Generate(ctx, a.buildRequest(tools))
	if err != nil {
		return "", fmt.Errorf("analyst %s: direct analysis: %w", a.name, err)
	}
	return a.applyToolCalls(ctx, tools, resp), nil
}

func (a *Analyst) planRequest(tools map[string]tool.Tool) model.Request {
	req := a.buildRequest(tools)
	var sb strings.Builder
	sb.WriteString(req.Instructions)
	sb.WriteString("\n\nBefore answering, plan your data gathering. Reply with only a JSON array of steps, ")
	sb.WriteString(`each {"tool": "...", "params": {...}, "purpose": "..."}. `)
	sb.WriteString("Reply with [] if no data is needed.")
	req.Instructions = sb.String()
	// The plan is parsed from text; structured function calling would force
	// one call per step.
	req.Tools = nil
	return req
}

func (a *Analyst) solveRequest(observations []Observation) model.Request {
	req := a.buildRequest(nil)
	data, _ := json.MarshalIndent(observations, "", "  ")
	req.Messages = append(req.Messages, model.Message{
		Role: "user",
		Content: "Tool observations from your plan:\n" + string(data) +
			"\n\nSynthesize these observations into your contribution to the discussion.",
	})
	return req
}

var fencedRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
var arrayRe = regexp.MustCompile(`(?s)\[.*\]`)

// ExtractPlan recovers a plan from model output through a cascade: fenced
// code block, then bare JSON array, then the raw text itself.
func ExtractPlan(text string) ([]PlanStep, error) {
	candidates := make([]string, 0, 3)
	if m := fencedRe.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := arrayRe.FindString(text); m != "" {
		candidates = append(candidates, m)
	}
	candidates = append(candidates, text)

	var lastErr error
	for _, c := range candidates {
		var steps []PlanStep
		if err := json.Unmarshal([]byte(strings.TrimSpace(c)), &steps); err != nil {
			lastErr = err
			continue
		}
		return steps, nil
	}
	return nil, fmt.Errorf("no parseable plan: %w", lastErr)
}
