// Package tool implements the capability subsystem that lets experts invoke
// structured external functionality (market data lookups, calculations,
// side-effects) with schema validated arguments, consistent error handling
// and rich metadata for model guidance.
package tool

import (
	"context"
	"fmt"
)

// Error codes used by ToolError for uniform downstream handling.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeTimeout    = "TIMEOUT"
	CodeNotFound   = "NOT_FOUND"
)

// Tool is a named, externally implemented capability an expert may invoke
// during its reasoning cycle.
//
// Execute must not return a Go error for expected failure modes (unknown
// ticker, unreachable data source); those are reported as a Result with
// Success false and Error set, so a single failing capability never aborts a
// turn. Truly exceptional conditions may be returned as errors (or panic) and
// are converted one layer up into the same structured shape.
//
// Implementations should:
//   - Provide clear, descriptive names and descriptions (snake_case names)
//   - Define a JSON schema for parameters
//   - Be safe for concurrent use (the batch executor runs tools in parallel)
type Tool interface {
	// Name returns the stable identifier used in routing and calling.
	Name() string

	// Description returns the human-readable description provided to the
	// reasoning backend.
	Description() string

	// Parameters returns a JSON schema describing accepted arguments.
	Parameters() map[string]any

	// Execute runs the capability. The context carries cancellation and the
	// per-tool deadline applied by the batch executor.
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is the structured outcome of a capability invocation.
type Result struct {
	Success bool   `json:"success"`
	Summary string `json:"summary"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Failure builds an unsuccessful result carrying the error text as both the
// machine field and the human summary.
func Failure(format string, args ...any) *Result {
	msg := fmt.Sprintf(format, args...)
	return &Result{Success: false, Summary: msg, Error: msg}
}

// Schema is the machine-readable descriptor of a tool, exposed to reasoning
// backends that support structured function calling.
type Schema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Describe extracts the schema descriptor from a tool.
func Describe(t Tool) Schema {
	return Schema{Name: t.Name(), Description: t.Description(), Parameters: t.Parameters()}
}

// ToolError represents errors that occur during tool execution.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{Tool: tool, Message: message, Code: code}
}

// CloneSet copies a capability map, optionally excluding named tools. The
// orchestrator uses it to run the final synthesis pass against a capability
// set with the conclude tool absent while the live map stays untouched.
func CloneSet(tools map[string]Tool, exclude ...string) map[string]Tool {
	out := make(map[string]Tool, len(tools))
	for name, t := range tools {
		out[name] = t
	}
	for _, name := range exclude {
		delete(out, name)
	}
	return out
}
