package flowengine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// NodeType identifies the kind of processing a node performs. The engine
// only interprets start, end, and condition directly; every other type is
// dispatched to whatever handler is registered for it.
type NodeType string

const (
	NodeTypeStart          NodeType = "start"
	NodeTypeEnd            NodeType = "end"
	NodeTypeAPI            NodeType = "api"
	NodeTypeMessageEmit    NodeType = "message-emit"
	NodeTypeCode           NodeType = "code"
	NodeTypeCondition      NodeType = "condition"
	NodeTypeTransform      NodeType = "transform"
	NodeTypeSubflow        NodeType = "subflow"
	NodeTypeModelCall      NodeType = "model-call"
	NodeTypeVectorStore    NodeType = "vector-store"
	NodeTypeVariableAssign NodeType = "variable-assign"
	NodeTypeJSONParse      NodeType = "json-parse"
	NodeTypeDedupHash      NodeType = "dedup-hash"
	NodeTypeKeywordMatch   NodeType = "keyword-match"
	NodeTypeForEach        NodeType = "for-each"
)

var nodeTypes = map[NodeType]bool{
	NodeTypeStart:          true,
	NodeTypeEnd:            true,
	NodeTypeAPI:            true,
	NodeTypeMessageEmit:    true,
	NodeTypeCode:           true,
	NodeTypeCondition:      true,
	NodeTypeTransform:      true,
	NodeTypeSubflow:        true,
	NodeTypeModelCall:      true,
	NodeTypeVectorStore:    true,
	NodeTypeVariableAssign: true,
	NodeTypeJSONParse:      true,
	NodeTypeDedupHash:      true,
	NodeTypeKeywordMatch:   true,
	NodeTypeForEach:        true,
}

// Node is a single typed step in a flow graph.
type Node struct {
	ID          string         `json:"id" yaml:"id"`
	Type        NodeType       `json:"type" yaml:"type"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Config      map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	DebugOutput any            `json:"debug_output,omitempty" yaml:"debug_output,omitempty"`
}

// ConfigString returns a string-typed config value, or "" if absent.
func (n *Node) ConfigString(key string) string {
	if n.Config == nil {
		return ""
	}
	s, _ := n.Config[key].(string)
	return s
}

// Edge connects a source node to a target node. SourceHandle identifies the
// port a multi-branch node emits on; condition nodes use "true"/"false" or
// custom handle IDs.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"source_handle,omitempty" yaml:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty" yaml:"target_handle,omitempty"`
	Label        string `json:"label,omitempty" yaml:"label,omitempty"`
}

// GraphOptions are used to configure a flow graph.
type GraphOptions struct {
	FlowID string  `json:"flow_id,omitempty" yaml:"flow_id,omitempty"`
	Name   string  `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes  []*Node `json:"nodes" yaml:"nodes"`
	Edges  []*Edge `json:"edges" yaml:"edges"`
}

// Graph is an immutable flow definition: typed nodes connected by directed
// edges. It is supplied once per execution and never mutated, so it is safe
// to share between concurrent executions.
type Graph struct {
	flowID    string
	name      string
	nodes     []*Node
	edges     []*Edge
	nodesByID map[string]*Node
	outgoing  map[string][]*Edge
	incoming  map[string][]*Edge
	start     *Node
}

// NewGraph validates the given nodes and edges and builds the traversal
// indexes the engine relies on.
func NewGraph(opts GraphOptions) (*Graph, error) {
	if len(opts.Nodes) == 0 {
		return nil, NewConfigurationError("graph has no nodes")
	}

	nodesByID := make(map[string]*Node, len(opts.Nodes))
	var start *Node
	for _, node := range opts.Nodes {
		if node.ID == "" {
			return nil, NewConfigurationError("node id required")
		}
		if !nodeTypes[node.Type] {
			return nil, NewConfigurationError(fmt.Sprintf("unknown node type %q on node %q", node.Type, node.ID))
		}
		if _, exists := nodesByID[node.ID]; exists {
			return nil, NewConfigurationError(fmt.Sprintf("duplicate node id %q", node.ID))
		}
		nodesByID[node.ID] = node
		if node.Type == NodeTypeStart {
			if start != nil {
				return nil, NewConfigurationError("graph has multiple start nodes")
			}
			start = node
		}
	}
	if start == nil {
		return nil, NewConfigurationError("graph has no start node")
	}

	outgoing := make(map[string][]*Edge)
	incoming := make(map[string][]*Edge)
	edgeIDs := make(map[string]bool, len(opts.Edges))
	for i, edge := range opts.Edges {
		if edge.ID == "" {
			edge.ID = fmt.Sprintf("edge-%d", i)
		}
		if edgeIDs[edge.ID] {
			return nil, NewConfigurationError(fmt.Sprintf("duplicate edge id %q", edge.ID))
		}
		edgeIDs[edge.ID] = true
		if _, ok := nodesByID[edge.Source]; !ok {
			return nil, NewConfigurationError(fmt.Sprintf("edge %q references unknown source node %q", edge.ID, edge.Source))
		}
		if _, ok := nodesByID[edge.Target]; !ok {
			return nil, NewConfigurationError(fmt.Sprintf("edge %q references unknown target node %q", edge.ID, edge.Target))
		}
		outgoing[edge.Source] = append(outgoing[edge.Source], edge)
		incoming[edge.Target] = append(incoming[edge.Target], edge)
	}

	return &Graph{
		flowID:    opts.FlowID,
		name:      opts.Name,
		nodes:     opts.Nodes,
		edges:     opts.Edges,
		nodesByID: nodesByID,
		outgoing:  outgoing,
		incoming:  incoming,
		start:     start,
	}, nil
}

// FlowID returns the flow definition ID this graph came from.
func (g *Graph) FlowID() string {
	return g.flowID
}

// Name returns the flow name.
func (g *Graph) Name() string {
	return g.name
}

// Start returns the graph's start node.
func (g *Graph) Start() *Node {
	return g.start
}

// Nodes returns all nodes in the graph.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Node returns a node by ID.
func (g *Graph) Node(id string) (*Node, bool) {
	node, ok := g.nodesByID[id]
	return node, ok
}

// OutgoingEdges returns the edges leaving the given node.
func (g *Graph) OutgoingEdges(nodeID string) []*Edge {
	return g.outgoing[nodeID]
}

// IncomingEdges returns the edges arriving at the given node.
func (g *Graph) IncomingEdges(nodeID string) []*Edge {
	return g.incoming[nodeID]
}

// LoadFile loads a flow graph from a YAML file.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flow file: %w", err)
	}
	return LoadString(string(data))
}

// LoadString loads a flow graph from a YAML string. JSON works too, since
// YAML is a superset.
func LoadString(data string) (*Graph, error) {
	var opts GraphOptions
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow definition: %w", err)
	}
	return NewGraph(opts)
}
