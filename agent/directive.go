package agent

import (
	"regexp"
	"strings"
)

// Directive is the structured interpretation of one segment of model output:
// either a capability invocation or plain text. Parsing into a closed sum
// type keeps downstream handling explicit instead of ad hoc string scanning.
type Directive interface{ isDirective() }

// PlainText is a free-form text segment.
type PlainText struct {
	Text string
}

func (PlainText) isDirective() {}

// CallTool is a capability invocation token of the form
// name(key="value", ...) embedded in model output.
type CallTool struct {
	Name string
	Args map[string]any
	Raw  string // the matched token, useful for diagnostics
}

func (CallTool) isDirective() {}

// tokenRe matches candidate invocation tokens: a snake_case name followed by
// a parenthesized argument list without nested parens.
var tokenRe = regexp.MustCompile(`\b([a-z][a-z0-9_]*)\(([^()]*)\)`)

// argRe matches one key="value" pair; values may contain escaped quotes.
var argRe = regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_]*)\s*=\s*"((?:[^"\\]|\\.)*)"`)

// ParseDirectives splits model output into ordered PlainText and CallTool
// segments. A parenthesized token only counts as a call when its argument
// list is empty or consists entirely of key="value" pairs; anything else
// (prose like "growth (3%)") stays plain text.
func ParseDirectives(text string) []Directive {
	var out []Directive
	rest := text

	for {
		loc := tokenRe.FindStringSubmatchIndex(rest)
		if loc == nil {
			break
		}
		name := rest[loc[2]:loc[3]]
		argText := rest[loc[4]:loc[5]]
		raw := rest[loc[0]:loc[1]]

		args, ok := parseArgs(argText)
		if !ok {
			if prefix := rest[:loc[1]]; prefix != "" {
				out = appendText(out, prefix)
			}
			rest = rest[loc[1]:]
			continue
		}

		if prefix := rest[:loc[0]]; prefix != "" {
			out = appendText(out, prefix)
		}
		out = append(out, CallTool{Name: name, Args: args, Raw: raw})
		rest = rest[loc[1]:]
	}
	if rest != "" {
		out = appendText(out, rest)
	}
	return out
}

// ToolCalls filters the CallTool directives out of a parse result.
func ToolCalls(directives []Directive) []CallTool {
	var calls []CallTool
	for _, d := range directives {
		if c, ok := d.(CallTool); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

// parseArgs accepts an empty list or a comma-separated sequence of
// key="value" pairs, reporting false for anything else.
func parseArgs(argText string) (map[string]any, bool) {
	trimmed := strings.TrimSpace(argText)
	if trimmed == "" {
		return map[string]any{}, true
	}

	matches := argRe.FindAllStringSubmatch(trimmed, -1)
	if matches == nil {
		return nil, false
	}
	// Strip every matched pair plus separators; leftovers mean prose.
	leftover := argRe.ReplaceAllString(trimmed, "")
	leftover = strings.Trim(leftover, ", \t\n")
	if leftover != "" {
		return nil, false
	}

	args := make(map[string]any, len(matches))
	for _, m := range matches {
		args[m[1]] = unescape(m[2])
	}
	return args, true
}

func unescape(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

// appendText merges consecutive plain segments to keep the parse result tidy.
func appendText(out []Directive, text string) []Directive {
	if n := len(out); n > 0 {
		if prev, ok := out[n-1].(PlainText); ok {
			out[n-1] = PlainText{Text: prev.Text + text}
			return out
		}
	}
	return append(out, PlainText{Text: text})
}
