package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var templateExprPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Template is a string with embedded ${...} expressions, each compiled once.
type Template struct {
	raw   string
	parts []string
	codes []Script
}

// NewTemplate compiles all ${...} expressions in raw using the given
// compiler. A string without expressions evaluates to itself.
func NewTemplate(compiler Compiler, raw string) (*Template, error) {
	if strings.Count(raw, "${") > strings.Count(raw, "}") {
		return nil, fmt.Errorf("unclosed template expression in string: %q", raw)
	}

	matches := templateExprPattern.FindAllStringSubmatchIndex(raw, -1)
	if len(matches) == 0 {
		return &Template{raw: raw}, nil
	}

	var parts []string
	var codes []Script
	var lastEnd int
	for _, match := range matches {
		if match[0] > lastEnd {
			parts = append(parts, raw[lastEnd:match[0]])
		}
		expr := raw[match[2]:match[3]]
		code, err := compiler.Compile(context.Background(), expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile template expression %q: %w", expr, err)
		}
		codes = append(codes, code)
		parts = append(parts, "") // placeholder for the evaluated result
		lastEnd = match[1]
	}
	if lastEnd < len(raw) {
		parts = append(parts, raw[lastEnd:])
	}

	return &Template{raw: raw, parts: parts, codes: codes}, nil
}

// Eval evaluates every embedded expression against the given globals and
// joins the result.
func (t *Template) Eval(ctx context.Context, globals map[string]any) (string, error) {
	if len(t.codes) == 0 {
		return t.raw, nil
	}
	parts := make([]string, len(t.parts))
	copy(parts, t.parts)

	next := 0
	for _, code := range t.codes {
		result, err := code.Evaluate(ctx, globals)
		if err != nil {
			return "", fmt.Errorf("failed to evaluate template expression: %w", err)
		}
		for ; next < len(parts); next++ {
			if parts[next] == "" {
				parts[next] = result.String()
				next++
				break
			}
		}
	}
	return strings.Join(parts, ""), nil
}
