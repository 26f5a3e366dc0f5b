package flowengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func resolverState() *ExecutionState {
	state := NewExecutionState("exec-test", "flow-test",
		map[string]any{
			"user": map[string]any{"name": "Ada", "tags": []any{"a", "b", "c"}},
			"x":    float64(7),
		},
		map[string]any{"api_key": "secret"},
	)
	state.SetVariable("counter", 3)
	state.SetVariable("nested", map[string]any{"deep": map[string]any{"value": "found"}})
	state.SetNodeOutput("fetch", map[string]any{"body": map[string]any{"items": []any{float64(10), float64(20)}}})
	state.SetCurrentNode("fetch")
	return state
}

func TestResolveNamespaces(t *testing.T) {
	state := resolverState()

	tests := []struct {
		expr     string
		expected any
	}{
		{"input.user.name", "Ada"},
		{"inputs.x", float64(7)},
		{"input.user.tags[1]", "b"},
		{"var.counter", 3},
		{"variable.nested.deep.value", "found"},
		{"const.api_key", "secret"},
		{"constant.api_key", "secret"},
		{"nodes.fetch.body.items[0]", float64(10)},
		{"fetch.body.items[1]", float64(20)}, // bare node-id root
		{"counter", 3},                       // bare variable root
		{"context.executionId", "exec-test"},
		{"context.flowId", "flow-test"},
		{"context.currentNodeId", "fetch"},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			require.Equal(t, tt.expected, Resolve(tt.expr, state))
		})
	}
}

func TestResolveLiterals(t *testing.T) {
	state := resolverState()

	require.Equal(t, true, Resolve("true", state))
	require.Equal(t, false, Resolve("FALSE", state))
	require.Nil(t, Resolve("null", state))
	require.Equal(t, int64(42), Resolve("42", state))
	require.Equal(t, 3.14, Resolve("3.14", state))
	require.Equal(t, "quoted", Resolve(`"quoted"`, state))
	require.Equal(t, "single", Resolve("'single'", state))
}

// Missing paths resolve to nil rather than failing; unknown roots fall back
// to the raw expression string.
func TestResolveFailSoft(t *testing.T) {
	state := resolverState()

	require.Nil(t, Resolve("input.user.missing", state))
	require.Nil(t, Resolve("const.missing", state))
	require.Nil(t, Resolve("nodes.never-ran", state))
	require.Nil(t, Resolve("nodes.fetch.body.items[99]", state))
	require.Nil(t, Resolve("var.counter.not_a_map", state))
	require.Nil(t, Resolve("context.unknownField", state))
	require.Nil(t, Resolve("", state))

	require.Equal(t, "bogus.path", Resolve("bogus.path", state))
	require.Equal(t, "hello world", Resolve("hello world", state))
}

func TestResolveNested(t *testing.T) {
	value := map[string]any{"a": map[string]any{"b": []any{"x", "y"}}}

	require.Equal(t, "y", ResolveNested(value, "a.b[1]"))
	require.Equal(t, value, ResolveNested(value, ""))
	require.Nil(t, ResolveNested(value, "a.missing"))
	require.Nil(t, ResolveNested(nil, "anything"))
}

func TestResolveYAMLStyleMaps(t *testing.T) {
	state := NewExecutionState("exec", "", nil, nil)
	state.SetNodeOutput("legacy", map[any]any{"field": "value"})

	require.Equal(t, "value", Resolve("nodes.legacy.field", state))
}
