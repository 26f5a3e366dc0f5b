package handlers

import (
	"context"
	"fmt"

	"github.com/flowspring/flowengine"
)

// TransformHandler builds a new output map from variable expressions.
// Config:
//
//	mappings:
//	  user_name: input.user.name
//	  first_tag: nodes.fetch.tags[0]
//	  source: "'imported'"     # quoted literal
type TransformHandler struct{}

func (h *TransformHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	mappings, ok := configMap(node, "mappings")
	if !ok {
		return nil, fmt.Errorf("transform node %q requires a mappings config", node.ID)
	}
	output := make(map[string]any, len(mappings))
	for name, expr := range mappings {
		output[name] = resolveValue(expr, state)
	}
	return success(output), nil
}
