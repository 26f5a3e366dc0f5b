package handlers

import (
	"context"

	"github.com/flowspring/flowengine"
)

// StartHandler publishes the execution inputs as the start node's output so
// downstream nodes can reference them through the node namespace as well.
type StartHandler struct{}

func (h *StartHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	return success(state.GetInputs()), nil
}

// EndHandler produces the execution's final output. Config:
//
//	outputs:            # map of output name -> variable expression
//	  result: nodes.double.result
//
// Without an outputs mapping the end node passes through the value at the
// "source" expression, or nil.
type EndHandler struct{}

func (h *EndHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	if mappings, ok := configMap(node, "outputs"); ok {
		output := make(map[string]any, len(mappings))
		for name, expr := range mappings {
			output[name] = resolveValue(expr, state)
		}
		return success(output), nil
	}
	if source := node.ConfigString("source"); source != "" {
		return success(flowengine.Resolve(source, state)), nil
	}
	return success(nil), nil
}
