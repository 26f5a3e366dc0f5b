package flowengine

// FlowFormatter is an optional interface for pretty progress output.
type FlowFormatter interface {
	PrintNodeStart(nodeID string, nodeType NodeType)
	PrintNodeOutput(nodeID string, content any)
	PrintNodeError(nodeID string, err error)
}
