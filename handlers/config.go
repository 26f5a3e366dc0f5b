package handlers

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowspring/flowengine"
)

var placeholderPattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)

// interpolate replaces {{...}} placeholders with resolved variable values.
func interpolate(text string, state *flowengine.ExecutionState) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		value := flowengine.Resolve(expr, state)
		if value == nil {
			return ""
		}
		return fmt.Sprint(value)
	})
}

// configMap reads a map-shaped config value, tolerating the
// map[any]any shape older YAML decoders produce.
func configMap(node *flowengine.Node, key string) (map[string]any, bool) {
	if node.Config == nil {
		return nil, false
	}
	switch m := node.Config[key].(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, v := range m {
			if s, ok := k.(string); ok {
				out[s] = v
			}
		}
		return out, true
	default:
		return nil, false
	}
}

// configSlice reads a list-shaped config value.
func configSlice(node *flowengine.Node, key string) ([]any, bool) {
	if node.Config == nil {
		return nil, false
	}
	list, ok := node.Config[key].([]any)
	return list, ok
}

// resolveValue resolves string config values as variable expressions and
// passes every other type through as a literal.
func resolveValue(value any, state *flowengine.ExecutionState) any {
	if expr, ok := value.(string); ok {
		return flowengine.Resolve(expr, state)
	}
	return value
}
