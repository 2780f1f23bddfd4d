// Package model defines the reasoning backend boundary: a normalized
// Request/Response pair, a synchronous Model interface implemented by
// provider adapters, a MockModel for tests and examples, and a retry
// decorator that classifies provider failures into retryable and
// non-retryable categories.
package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNoContent is returned when a provider responds without any usable choice.
var ErrNoContent = errors.New("model returned no content")

// Message is one conversational turn in a normalized request.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ToolDefinition declaratively exposes a callable capability to the model.
// Parameters is a JSON Schema object (minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall represents a function call request surfaced by a provider, unified
// across vendors so downstream logic needs no per-provider branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Request captures the normalized model input produced by an expert's
// reasoning cycle.
type Request struct {
	Instructions string           `json:"instructions"`
	Messages     []Message        `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Temperature  float64          `json:"temperature"`
}

// TokenUsage captures token accounting for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the completed output of one generation call.
type Response struct {
	Text         string      `json:"text"`
	ToolCalls    []ToolCall  `json:"tool_calls,omitempty"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface experts use to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// APIError carries a provider HTTP status so the retry decorator can classify
// failures without importing provider SDKs.
type APIError struct {
	StatusCode int
	Provider   string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses can be keyed on prompt substrings or scripted in call order;
// scripted responses win over keyed ones.
type MockModel struct {
	mu       sync.Mutex
	info     Info
	keyed    map[string]Response
	script   []Response
	errs     []error
	requests []Request
}

// NewMockModel constructs a MockModel with tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:  Info{Name: name, Provider: "mock", SupportsTools: true},
		keyed: make(map[string]Response),
	}
}

// AddResponse registers a canned response returned when the last message
// content contains the given substring.
func (m *MockModel) AddResponse(substr string, resp Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keyed[substr] = resp
}

// Script appends responses returned in order, one per Generate call.
func (m *MockModel) Script(resps ...Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, resps...)
}

// FailWith appends errors returned in order before any scripted responses.
func (m *MockModel) FailWith(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
}

// Requests returns a copy of every request seen, in call order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)

	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	if len(m.script) > 0 {
		resp := m.script[0]
		m.script = m.script[1:]
		return &resp, nil
	}

	var last string
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	for substr, resp := range m.keyed {
		if substr != "" && strings.Contains(last, substr) {
			r := resp
			return &r, nil
		}
	}
	return &Response{Text: "Mock response to: " + last, FinishReason: "stop"}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
