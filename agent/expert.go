package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hupe1980/roundtable/bus"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/internal/util"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/model"
	"github.com/hupe1980/roundtable/tool"
)

// Status reflects where a participant currently is in its reasoning cycle.
type Status string

const (
	// StatusIdle means the participant is waiting to be scheduled.
	StatusIdle Status = "idle"
	// StatusThinking means the participant is inside a model call.
	StatusThinking Status = "thinking"
	// StatusToolUsing means the participant is executing a capability.
	StatusToolUsing Status = "tool_using"
	// StatusSpeaking means the participant is emitting outgoing messages.
	StatusSpeaking Status = "speaking"
)

// Participant is the scheduling contract the meeting package drives. Both
// Expert and Analyst satisfy it.
type Participant interface {
	Name() string
	Join(b *bus.MessageBus, p *core.Publisher)
	ThinkAndAct(ctx context.Context, optFns ...ThinkOption) ([]core.Message, error)
	Tools() map[string]tool.Tool
	AddTool(t tool.Tool)
	RemoveTool(name string)
}

// ThinkOption tweaks a single reasoning cycle without touching expert state.
type ThinkOption func(*thinkConfig)

type thinkConfig struct {
	exclude []string
}

// WithoutTools runs the cycle against a cloned capability map with the named
// tools absent. The live capability map is never mutated, so no window exists
// in which a concurrent reader could observe a missing capability.
func WithoutTools(names ...string) ThinkOption {
	return func(c *thinkConfig) { c.exclude = append(c.exclude, names...) }
}

// Options configures an Expert.
type Options struct {
	// Persona is the role prompt injected into every reasoning context.
	Persona string
	// Tools is the initial capability set, keyed by tool name.
	Tools []tool.Tool
	// MaxHistory bounds the history window used to build reasoning context.
	MaxHistory int
	// Temperature forwarded to the reasoning backend.
	Temperature float64
	// Logger receives per-cycle diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Expert is a named actor holding a persona, a capability set and private
// history. Each scheduled cycle it consumes pending messages, reasons through
// the model, optionally invokes capabilities and emits new messages.
//
// An Expert is exclusively owned by one meeting per run. History and status
// are not reset between runs; call Reset before reuse.
type Expert struct {
	name        string
	persona     string
	llm         model.Model
	temperature float64
	maxHistory  int
	logger      logging.Logger

	mu      sync.Mutex
	tools   map[string]tool.Tool
	history []core.Message
	status  Status

	bus       *bus.MessageBus
	publisher *core.Publisher
}

// New constructs an Expert around the given reasoning backend.
func New(name string, llm model.Model, optFns ...func(o *Options)) *Expert {
	opts := Options{
		Persona:     fmt.Sprintf("You are %s, a member of an expert roundtable.", name),
		MaxHistory:  20,
		Temperature: 0.7,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	tools := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		tools[t.Name()] = t
	}

	return &Expert{
		name:        name,
		persona:     opts.Persona,
		llm:         llm,
		temperature: opts.Temperature,
		maxHistory:  opts.MaxHistory,
		logger:      opts.Logger,
		tools:       tools,
		status:      StatusIdle,
	}
}

// Name returns the unique participant name.
func (e *Expert) Name() string { return e.name }

// Persona returns the role prompt.
func (e *Expert) Persona() string { return e.persona }

// Status returns the current cycle status.
func (e *Expert) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Tools returns a copy of the live capability map.
func (e *Expert) Tools() map[string]tool.Tool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return tool.CloneSet(e.tools)
}

// AddTool registers a capability under its name, replacing any previous one.
func (e *Expert) AddTool(t tool.Tool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tools[t.Name()] = t
}

// RemoveTool withdraws a capability. Removing an unknown name is a no-op.
func (e *Expert) RemoveTool(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tools, name)
}

// Join wires the expert into a meeting's bus and observer publisher and
// registers its mailbox.
func (e *Expert) Join(b *bus.MessageBus, p *core.Publisher) {
	e.bus = b
	e.publisher = p
	b.Register(e.name)
}

// History returns a copy of the private message history.
func (e *Expert) History() []core.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]core.Message, len(e.history))
	copy(out, e.history)
	return out
}

// Reset clears history and status so the expert can join a fresh meeting.
func (e *Expert) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
	e.status = StatusIdle
}

// ThinkAndAct runs one reasoning cycle:
//
//  1. Drain pending messages (destructive read); none pending means no turn.
//  2. Build a bounded reasoning context from persona + recent history.
//  3. Invoke the reasoning backend.
//  4. Execute capability invocations surfaced structurally or parsed out of
//     the text, appending each result inline; a failing capability never
//     aborts the cycle.
//  5. Classify the content into a recipient + kind.
//  6. Emit the outgoing message and append it to history.
func (e *Expert) ThinkAndAct(ctx context.Context, optFns ...ThinkOption) ([]core.Message, error) {
	var cfg thinkConfig
	for _, fn := range optFns {
		fn(&cfg)
	}

	pending := e.drain()
	if len(pending) == 0 {
		return nil, nil
	}

	tools := e.cycleTools(cfg)

	e.setStatus(StatusThinking)
	defer e.setStatus(StatusIdle)
	e.publish(core.EventAgentThinking, fmt.Sprintf("%s is thinking over %d message(s)", e.name, len(pending)))

	start := time.Now()
	resp, err := e.llm.Generate(ctx, e.buildRequest(tools))
	if err != nil {
		return nil, fmt.Errorf("expert %s: generate: %w", e.name, err)
	}
	e.logger.Debug("expert.generate",
		"expert", e.name,
		"duration_ms", time.Since(start).Milliseconds(),
		"tool_calls", len(resp.ToolCalls),
	)

	content := e.applyToolCalls(ctx, tools, resp)
	out := e.compose(content, pending)

	e.setStatus(StatusSpeaking)
	e.appendHistory(out...)
	e.publish(core.EventAgentResult, fmt.Sprintf("%s produced %d message(s)", e.name, len(out)))

	return out, nil
}

// drain consumes the mailbox and appends it to private history.
func (e *Expert) drain() []core.Message {
	pending := e.bus.GetMessages(e.name)
	if len(pending) > 0 {
		e.appendHistory(pending...)
	}
	return pending
}

// cycleTools resolves the capability set for one cycle, cloning when an
// exclusion applies so the live map stays untouched.
func (e *Expert) cycleTools(cfg thinkConfig) map[string]tool.Tool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(cfg.exclude) == 0 {
		return e.tools
	}
	return tool.CloneSet(e.tools, cfg.exclude...)
}

// buildRequest maps the bounded history window onto conversational turns:
// own messages become assistant turns, everything else user turns framed
// with sender and recipient.
func (e *Expert) buildRequest(tools map[string]tool.Tool) model.Request {
	e.mu.Lock()
	window := e.history
	if len(window) > e.maxHistory {
		window = window[len(window)-e.maxHistory:]
	}
	msgs := make([]model.Message, 0, len(window))
	for _, m := range window {
		if m.Sender == e.name {
			msgs = append(msgs, model.Message{Role: "assistant", Content: m.Content})
			continue
		}
		msgs = append(msgs, model.Message{
			Role:    "user",
			Content: fmt.Sprintf("[%s -> %s] %s", m.Sender, m.Recipient, m.Content),
		})
	}
	e.mu.Unlock()

	req := model.Request{
		Instructions: e.instructions(tools),
		Messages:     msgs,
		Temperature:  e.temperature,
	}
	for _, t := range sortedTools(tools) {
		s := tool.Describe(t)
		req.Tools = append(req.Tools, model.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}
	return req
}

// instructions builds the system prompt from persona, roster and tool catalog.
// The persona may carry {{ }} markers resolved against the expert's name and
// the current peer roster.
func (e *Expert) instructions(tools map[string]tool.Tool) string {
	var others []string
	for _, id := range e.bus.Participants() {
		if id != e.name {
			others = append(others, id)
		}
	}

	persona, err := util.RenderTemplate(e.persona, map[string]any{
		"name":  e.name,
		"peers": others,
	})
	if err != nil {
		e.logger.Warn("expert.persona.template", "expert", e.name, "error", err)
		persona = e.persona
	}

	var sb strings.Builder
	sb.WriteString(persona)
	sb.WriteString("\n\nYou are speaking in a turn-based roundtable discussion as \"")
	sb.WriteString(e.name)
	sb.WriteString("\".")
	if len(others) > 0 {
		sb.WriteString(" Other participants: ")
		sb.WriteString(strings.Join(others, ", "))
		sb.WriteString(".")
	}

	if len(tools) > 0 {
		sb.WriteString("\n\nYou may call these tools by writing a token of the form ")
		sb.WriteString(`name(key="value", ...) in your reply:`)
		for _, t := range sortedTools(tools) {
			sb.WriteString(fmt.Sprintf("\n- %s: %s", t.Name(), t.Description()))
		}
	}
	sb.WriteString("\n\nAddress a specific participant with @name. Prefix clearly private remarks with \"private\".")
	return sb.String()
}

// applyToolCalls executes capability invocations and appends their results to
// the outgoing content. Structured tool calls from the backend take
// precedence; otherwise tokens are parsed out of the text. Unknown names are
// reported inline and expected failures become summaries, never errors.
func (e *Expert) applyToolCalls(ctx context.Context, tools map[string]tool.Tool, resp *model.Response) string {
	content := resp.Text

	type invocation struct {
		name string
		args map[string]any
	}
	var calls []invocation

	if len(resp.ToolCalls) > 0 {
		for _, tc := range resp.ToolCalls {
			args := map[string]any{}
			if len(tc.Arguments) > 0 {
				if err := json.Unmarshal(tc.Arguments, &args); err != nil {
					e.logger.Warn("expert.toolcall.badargs", "expert", e.name, "tool", tc.Name, "error", err.Error())
				}
			}
			calls = append(calls, invocation{name: tc.Name, args: args})
		}
	} else {
		for _, c := range ToolCalls(ParseDirectives(content)) {
			calls = append(calls, invocation{name: c.Name, args: c.Args})
		}
	}

	if len(calls) == 0 {
		return content
	}

	e.setStatus(StatusToolUsing)
	for _, call := range calls {
		summary := e.executeTool(ctx, tools, call.name, call.args)
		content += fmt.Sprintf("\n[%s result]: %s", call.name, summary)
	}
	return content
}

// executeTool runs one capability with panic safety, reducing every outcome
// to a one-line summary.
func (e *Expert) executeTool(ctx context.Context, tools map[string]tool.Tool, name string, args map[string]any) (summary string) {
	impl, ok := tools[name]
	if !ok {
		e.logger.Warn("expert.tool.notfound", "expert", e.name, "tool", name)
		return fmt.Sprintf("tool '%s' not found", name)
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("expert.tool.panic", "expert", e.name, "tool", name, "recover", fmt.Sprintf("%v", r))
			summary = fmt.Sprintf("tool '%s' failed: internal error", name)
		}
	}()

	start := time.Now()
	res, err := impl.Execute(ctx, args)
	dur := time.Since(start)
	if err != nil {
		e.logger.Warn("expert.tool.error", "expert", e.name, "tool", name, "error", err.Error(), "duration_ms", dur.Milliseconds())
		return fmt.Sprintf("tool '%s' failed: %v", name, err)
	}
	e.logger.Debug("expert.tool.executed", "expert", e.name, "tool", name, "success", res.Success, "duration_ms", dur.Milliseconds())
	if !res.Success {
		return res.Error
	}
	return res.Summary
}

// compose classifies the content and builds the outgoing messages.
func (e *Expert) compose(content string, pending []core.Message) []core.Message {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var others []string
	for _, id := range e.bus.Participants() {
		if id != e.name {
			others = append(others, id)
		}
	}

	cls := Classify(content, others)
	if !cls.Matched {
		e.logger.Debug("expert.classify.default", "expert", e.name, "kind", string(cls.Kind))
	}

	replyTo := pending[len(pending)-1].ID
	msg := core.NewMessage(e.name, cls.Target, content, cls.Kind, core.WithReplyTo(replyTo))
	return []core.Message{msg}
}

func (e *Expert) setStatus(s Status) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Expert) appendHistory(msgs ...core.Message) {
	e.mu.Lock()
	e.history = append(e.history, msgs...)
	e.mu.Unlock()
}

func (e *Expert) publish(kind core.EventKind, msg string) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(core.NewEvent(e.name, kind, msg))
}

// sortedTools returns tools ordered by name for deterministic prompts.
func sortedTools(tools map[string]tool.Tool) []tool.Tool {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]tool.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, tools[name])
	}
	return out
}
