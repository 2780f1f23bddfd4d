package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/hupe1980/roundtable/tool"
)

// NewRecallTool exposes archive search as a capability so experts can ground
// a discussion in the outcomes of past meetings.
func NewRecallTool(a Archive) tool.Tool {
	return tool.NewFunctionTool(
		"recall_meetings",
		"Search the minutes of past meetings for relevant prior decisions.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Keywords to search past minutes for",
				},
			},
			"required": []string{"query"},
		},
		func(_ context.Context, args map[string]any) (*tool.Result, error) {
			query, _ := args["query"].(string)

			hits, err := a.Search(query, 3)
			if err != nil {
				return nil, err
			}
			if len(hits) == 0 {
				return &tool.Result{Success: true, Summary: fmt.Sprintf("no past meetings mention %q", query)}, nil
			}

			var b strings.Builder
			fmt.Fprintf(&b, "%d past meeting(s) mention %q:", len(hits), query)
			for _, hit := range hits {
				fmt.Fprintf(&b, "\n- [%s, %s] %s", hit.MeetingID, hit.Outcome, firstLine(hit.Minutes))
			}

			return &tool.Result{Success: true, Summary: b.String(), Data: hits}, nil
		},
	)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
