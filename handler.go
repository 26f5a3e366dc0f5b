package flowengine

import (
	"context"
	"fmt"
)

// HandlerResult is what a node handler reports back to the engine.
type HandlerResult struct {
	// Success is false when the node failed; the engine marks the whole
	// execution failed and stops propagating from this branch.
	Success bool

	// Output is the node's produced value, stored in nodeOutputs.
	Output any

	// NeedPause suspends this branch until an external callback arrives.
	NeedPause bool

	// CallbackKey correlates the future callback to this node execution.
	// Generated by the engine when left empty.
	CallbackKey string

	// Topic is the transport topic/address the callback is expected on.
	Topic string

	// ErrorMessage describes the failure when Success is false.
	ErrorMessage string

	// ExecutionData is a free-form diagnostic payload recorded on the node
	// execution, useful while a node is paused.
	ExecutionData map[string]any
}

// Handler executes a single node type. The engine treats handlers as opaque
// capabilities: given a node and the live state, produce a result or signal
// a pause.
type Handler interface {
	Execute(ctx context.Context, node *Node, state *ExecutionState) (*HandlerResult, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, node *Node, state *ExecutionState) (*HandlerResult, error)

func (f HandlerFunc) Execute(ctx context.Context, node *Node, state *ExecutionState) (*HandlerResult, error) {
	return f(ctx, node, state)
}

// Registry maps node types to their handlers. One handler per type.
type Registry struct {
	handlers map[NodeType]Handler
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{handlers: map[NodeType]Handler{}}
}

// Register binds a handler to a node type, replacing any previous binding.
func (r *Registry) Register(nodeType NodeType, handler Handler) {
	r.handlers[nodeType] = handler
}

// Get returns the handler for a node type.
func (r *Registry) Get(nodeType NodeType) (Handler, error) {
	handler, ok := r.handlers[nodeType]
	if !ok {
		return nil, NewConfigurationError(fmt.Sprintf("no handler registered for node type %q", nodeType))
	}
	return handler, nil
}
