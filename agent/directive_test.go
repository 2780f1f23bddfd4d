package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirectivesSingleCall(t *testing.T) {
	text := `Let me check the numbers. market_quote(symbol="AAPL") Then I can decide.`
	directives := ParseDirectives(text)

	calls := ToolCalls(directives)
	require.Len(t, calls, 1)
	assert.Equal(t, "market_quote", calls[0].Name)
	assert.Equal(t, map[string]any{"symbol": "AAPL"}, calls[0].Args)
}

func TestParseDirectivesMultipleCallsInOrder(t *testing.T) {
	text := `financial_report(symbol="MSFT", period="fy2025") and filing_search(query="risk factors")`
	calls := ToolCalls(ParseDirectives(text))

	require.Len(t, calls, 2)
	assert.Equal(t, "financial_report", calls[0].Name)
	assert.Equal(t, map[string]any{"symbol": "MSFT", "period": "fy2025"}, calls[0].Args)
	assert.Equal(t, "filing_search", calls[1].Name)
}

func TestParseDirectivesEmptyArgs(t *testing.T) {
	calls := ToolCalls(ParseDirectives(`I have enough. conclude_meeting()`))
	require.Len(t, calls, 1)
	assert.Equal(t, "conclude_meeting", calls[0].Name)
	assert.Empty(t, calls[0].Args)
}

func TestParseDirectivesIgnoresProse(t *testing.T) {
	tests := []string{
		`Revenue grew (3% YoY) which is solid.`,
		`The ratio (debt/equity) matters here.`,
		`We saw margins(unexpectedly) compress.`,
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			directives := ParseDirectives(text)
			assert.Empty(t, ToolCalls(directives))
			require.Len(t, directives, 1)
			assert.Equal(t, PlainText{Text: text}, directives[0])
		})
	}
}

func TestParseDirectivesEscapedQuotes(t *testing.T) {
	calls := ToolCalls(ParseDirectives(`filing_search(query="the \"risk\" section")`))
	require.Len(t, calls, 1)
	assert.Equal(t, `the "risk" section`, calls[0].Args["query"])
}

func TestParseDirectivesMixedSegments(t *testing.T) {
	directives := ParseDirectives(`Before: market_quote(symbol="TSLA") after.`)
	require.Len(t, directives, 3)
	assert.Equal(t, PlainText{Text: "Before: "}, directives[0])
	assert.IsType(t, CallTool{}, directives[1])
	assert.Equal(t, PlainText{Text: " after."}, directives[2])
}
