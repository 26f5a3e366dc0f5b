package flowengine

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Variable resolution. Expressions are dot-separated paths rooted in a
// namespace: "input.user.name", "var.counter", "const.api_key",
// "nodes.fetch.body", "context.executionId", or a bare node ID for older
// flow definitions. A segment may carry an array index suffix, e.g.
// "items[2]". The contract is deliberately fail-soft: unknown paths and
// segments resolve to nil, and unrecognized roots resolve to the raw
// expression string, so UI-authored flows with optional fields never abort
// an evaluation.

var segmentIndexPattern = regexp.MustCompile(`^(.*)\[(\d+)\]$`)

// Resolve resolves a variable expression against the execution state.
// Literals (null, true/false, quoted strings, numbers) short-circuit before
// any namespace lookup so expressions can mix literals and references.
func Resolve(expr string, state *ExecutionState) any {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil
	}
	if value, ok := parseLiteral(expr); ok {
		return value
	}

	root, rest, _ := strings.Cut(expr, ".")
	switch root {
	case "input", "inputs":
		if rest == "" {
			return state.GetInputs()
		}
		return resolveSegments(state.GetInputs(), rest)
	case "var", "variable":
		if rest == "" {
			return state.GetVariables()
		}
		first, tail, _ := strings.Cut(rest, ".")
		name, index := splitIndex(first)
		value, ok := state.GetVariable(name)
		if !ok {
			return nil
		}
		value = applyIndex(value, index)
		if tail == "" {
			return value
		}
		return ResolveNested(value, tail)
	case "const", "constant", "constants":
		if rest == "" {
			return nil
		}
		first, tail, _ := strings.Cut(rest, ".")
		name, index := splitIndex(first)
		value, ok := state.GetConstant(name)
		if !ok {
			return nil
		}
		value = applyIndex(value, index)
		if tail == "" {
			return value
		}
		return ResolveNested(value, tail)
	case "nodes":
		if rest == "" {
			return nil
		}
		nodeID, tail, _ := strings.Cut(rest, ".")
		output, ok := state.GetNodeOutput(nodeID)
		if !ok {
			return nil
		}
		if tail == "" {
			return output
		}
		return ResolveNested(output, tail)
	case "context":
		return resolveContext(rest, state)
	}

	// Bare node-id root, kept for backward compatibility with older flows.
	if output, ok := state.GetNodeOutput(root); ok {
		if rest == "" {
			return output
		}
		return ResolveNested(output, rest)
	}
	// A known variable name without the var. prefix.
	if value, ok := state.GetVariable(root); ok {
		if rest == "" {
			return value
		}
		return ResolveNested(value, rest)
	}

	// Unknown root: treat the whole expression as an opaque string literal.
	return expr
}

// ResolveNested traverses a dotted path into a nested map/array value,
// returning nil for any missing segment.
func ResolveNested(value any, path string) any {
	if path == "" {
		return value
	}
	return resolveSegments(value, path)
}

func resolveSegments(value any, path string) any {
	for _, segment := range strings.Split(path, ".") {
		if value == nil {
			return nil
		}
		name, index := splitIndex(segment)
		if name != "" {
			m, ok := asMap(value)
			if !ok {
				return nil
			}
			value = m[name]
		}
		value = applyIndex(value, index)
	}
	return value
}

// resolveContext computes derived context values on read.
func resolveContext(field string, state *ExecutionState) any {
	switch field {
	case "executionId":
		return state.ID()
	case "flowId":
		return state.FlowID()
	case "timestamp":
		return time.Now().UnixMilli()
	case "currentNodeId":
		return state.CurrentNode()
	default:
		return nil
	}
}

// splitIndex splits "field[2]" into ("field", 2). The index is -1 when the
// segment carries no suffix.
func splitIndex(segment string) (string, int) {
	m := segmentIndexPattern.FindStringSubmatch(segment)
	if m == nil {
		return segment, -1
	}
	index, err := strconv.Atoi(m[2])
	if err != nil {
		return segment, -1
	}
	return m[1], index
}

func applyIndex(value any, index int) any {
	if index < 0 {
		return value
	}
	list, ok := asSlice(value)
	if !ok || index >= len(list) {
		return nil
	}
	return list[index]
}

func asMap(value any) (map[string]any, bool) {
	switch m := value.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		// yaml.v2-style maps show up in older flow definitions
		out := make(map[string]any, len(m))
		for k, v := range m {
			if key, ok := k.(string); ok {
				out[key] = v
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func asSlice(value any) ([]any, bool) {
	list, ok := value.([]any)
	return list, ok
}

// parseLiteral checks an expression against literal grammar: null,
// case-insensitive booleans, single/double-quoted strings, ints and floats.
func parseLiteral(expr string) (any, bool) {
	switch strings.ToLower(expr) {
	case "null":
		return nil, true
	case "true":
		return true, true
	case "false":
		return false, true
	}
	if len(expr) >= 2 {
		first, last := expr[0], expr[len(expr)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return expr[1 : len(expr)-1], true
		}
	}
	if i, err := strconv.ParseInt(expr, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(expr, 64); err == nil {
		return f, true
	}
	return nil, false
}
