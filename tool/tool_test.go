package tool

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quoteSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"symbol": map[string]any{"type": "string"},
		},
		"required": []string{"symbol"},
	}
}

func TestFunctionToolSuccess(t *testing.T) {
	ft := NewFunctionTool("market_quote", "Look up a quote", quoteSchema(),
		func(_ context.Context, args map[string]any) (*Result, error) {
			return &Result{Success: true, Summary: "AAPL at 190.12", Data: 190.12}, nil
		},
	)

	res, err := ft.Execute(context.Background(), map[string]any{"symbol": "AAPL"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "AAPL at 190.12", res.Summary)
}

func TestDescribe(t *testing.T) {
	ft := NewFunctionTool("market_quote", "Look up a quote", quoteSchema(),
		func(context.Context, map[string]any) (*Result, error) {
			return &Result{Success: true}, nil
		},
	)

	s := Describe(ft)
	assert.Equal(t, "market_quote", s.Name)
	assert.Equal(t, "Look up a quote", s.Description)
	assert.Equal(t, quoteSchema(), s.Parameters)
}

func TestFunctionToolValidationError(t *testing.T) {
	ft := NewFunctionTool("market_quote", "Look up a quote", quoteSchema(),
		func(context.Context, map[string]any) (*Result, error) {
			t.Fatal("fn must not run on validation failure")
			return nil, nil
		},
	)

	_, err := ft.Execute(context.Background(), map[string]any{})
	require.Error(t, err)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.Equal(t, "market_quote", toolErr.Tool)
}

func TestFunctionToolWrapsUnexpectedError(t *testing.T) {
	ft := NewFunctionTool("market_quote", "Look up a quote", quoteSchema(),
		func(context.Context, map[string]any) (*Result, error) {
			return nil, errors.New("connection reset")
		},
	)

	_, err := ft.Execute(context.Background(), map[string]any{"symbol": "AAPL"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Contains(t, toolErr.Message, "connection reset")
}

func TestFunctionToolPreservesToolError(t *testing.T) {
	custom := NewToolError("market_quote", "rate limited upstream", "UPSTREAM_THROTTLED")
	ft := NewFunctionTool("market_quote", "Look up a quote", quoteSchema(),
		func(context.Context, map[string]any) (*Result, error) {
			return nil, custom
		},
	)

	_, err := ft.Execute(context.Background(), map[string]any{"symbol": "AAPL"})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "UPSTREAM_THROTTLED", toolErr.Code)
}

func TestExpectedFailureIsDataNotError(t *testing.T) {
	ft := NewFunctionTool("market_quote", "Look up a quote", quoteSchema(),
		func(_ context.Context, args map[string]any) (*Result, error) {
			return Failure("unknown symbol %q", args["symbol"]), nil
		},
	)

	res, err := ft.Execute(context.Background(), map[string]any{"symbol": "ZZZZ"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "unknown symbol")
}

func TestNewFunctionToolFromStruct(t *testing.T) {
	type args struct {
		Symbol string `json:"symbol" description:"Ticker symbol"`
		Limit  *int   `json:"limit" description:"Optional row limit"`
	}
	ft := NewFunctionToolFromStruct("filing_search", "Search filings", args{},
		func(context.Context, map[string]any) (*Result, error) {
			return &Result{Success: true, Summary: "ok"}, nil
		},
	)

	schema := ft.Parameters()
	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "symbol")
	assert.Contains(t, props, "limit")
	req, _ := schema["required"].([]string)
	assert.Equal(t, []string{"symbol"}, req)
}

func TestCloneSetExcludes(t *testing.T) {
	conclude := NewFunctionTool("conclude_meeting", "Conclude", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (*Result, error) { return &Result{Success: true}, nil })
	quote := NewFunctionTool("market_quote", "Quote", map[string]any{"type": "object"},
		func(context.Context, map[string]any) (*Result, error) { return &Result{Success: true}, nil })

	live := map[string]Tool{"conclude_meeting": conclude, "market_quote": quote}
	clone := CloneSet(live, "conclude_meeting")

	assert.Len(t, clone, 1)
	assert.Contains(t, clone, "market_quote")
	assert.Len(t, live, 2, "live map untouched")
}
