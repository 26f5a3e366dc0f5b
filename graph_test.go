package flowengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGraphValidation(t *testing.T) {
	t.Run("no nodes", func(t *testing.T) {
		_, err := NewGraph(GraphOptions{})
		require.Error(t, err)
		require.Contains(t, err.Error(), "no nodes")
	})

	t.Run("no start node", func(t *testing.T) {
		_, err := NewGraph(GraphOptions{
			Nodes: []*Node{{ID: "a", Type: NodeTypeTransform}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "no start node")
	})

	t.Run("multiple start nodes", func(t *testing.T) {
		_, err := NewGraph(GraphOptions{
			Nodes: []*Node{
				{ID: "s1", Type: NodeTypeStart},
				{ID: "s2", Type: NodeTypeStart},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "multiple start nodes")
	})

	t.Run("missing node id", func(t *testing.T) {
		_, err := NewGraph(GraphOptions{
			Nodes: []*Node{{Type: NodeTypeStart}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "node id required")
	})

	t.Run("duplicate node id", func(t *testing.T) {
		_, err := NewGraph(GraphOptions{
			Nodes: []*Node{
				{ID: "s", Type: NodeTypeStart},
				{ID: "s", Type: NodeTypeEnd},
			},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "duplicate node id")
	})

	t.Run("unknown node type", func(t *testing.T) {
		_, err := NewGraph(GraphOptions{
			Nodes: []*Node{{ID: "s", Type: "teleport"}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown node type")
	})

	t.Run("edge to unknown node", func(t *testing.T) {
		_, err := NewGraph(GraphOptions{
			Nodes: []*Node{{ID: "s", Type: NodeTypeStart}},
			Edges: []*Edge{{Source: "s", Target: "ghost"}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown target node")
	})

	t.Run("edge from unknown node", func(t *testing.T) {
		_, err := NewGraph(GraphOptions{
			Nodes: []*Node{{ID: "s", Type: NodeTypeStart}},
			Edges: []*Edge{{Source: "ghost", Target: "s"}},
		})
		require.Error(t, err)
		require.Contains(t, err.Error(), "unknown source node")
	})
}

func TestGraphIndexes(t *testing.T) {
	graph, err := NewGraph(GraphOptions{
		FlowID: "f1",
		Name:   "indexed",
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "a", Type: NodeTypeTransform},
			{ID: "b", Type: NodeTypeTransform},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{ID: "e1", Source: "start", Target: "a"},
			{ID: "e2", Source: "start", Target: "b"},
			{Source: "a", Target: "end"},
			{Source: "b", Target: "end"},
		},
	})
	require.NoError(t, err)

	require.Equal(t, "f1", graph.FlowID())
	require.Equal(t, "indexed", graph.Name())
	require.Equal(t, "start", graph.Start().ID)
	require.Len(t, graph.Nodes(), 4)

	node, ok := graph.Node("a")
	require.True(t, ok)
	require.Equal(t, NodeTypeTransform, node.Type)
	_, ok = graph.Node("missing")
	require.False(t, ok)

	require.Len(t, graph.OutgoingEdges("start"), 2)
	require.Len(t, graph.IncomingEdges("end"), 2)
	require.Empty(t, graph.OutgoingEdges("end"))
	require.Empty(t, graph.IncomingEdges("start"))

	// Unset edge IDs get generated, positional ones.
	edges := graph.IncomingEdges("end")
	require.Equal(t, "edge-2", edges[0].ID)
	require.Equal(t, "edge-3", edges[1].ID)
}

func TestLoadString(t *testing.T) {
	graph, err := LoadString(`
flow_id: yaml-flow
name: From YAML
nodes:
  - id: start
    type: start
  - id: check
    type: condition
    config:
      handle: "true"
  - id: done
    type: end
edges:
  - source: start
    target: check
  - source: check
    target: done
    source_handle: "true"
`)
	require.NoError(t, err)
	require.Equal(t, "yaml-flow", graph.FlowID())
	require.Equal(t, "From YAML", graph.Name())

	check, ok := graph.Node("check")
	require.True(t, ok)
	require.Equal(t, "true", check.ConfigString("handle"))

	edges := graph.OutgoingEdges("check")
	require.Len(t, edges, 1)
	require.Equal(t, "true", edges[0].SourceHandle)
}

func TestLoadStringInvalid(t *testing.T) {
	_, err := LoadString("nodes: {not: a list}")
	require.Error(t, err)

	_, err = LoadString("nodes: []")
	require.Error(t, err)
}

func TestConfigString(t *testing.T) {
	node := &Node{Config: map[string]any{"s": "text", "n": 5}}
	require.Equal(t, "text", node.ConfigString("s"))
	require.Equal(t, "", node.ConfigString("n"))
	require.Equal(t, "", node.ConfigString("missing"))
	require.Equal(t, "", (&Node{}).ConfigString("s"))
}
