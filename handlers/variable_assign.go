package handlers

import (
	"context"
	"fmt"

	"github.com/flowspring/flowengine"
)

// VariableAssignHandler writes values into the global variable namespace.
// Config:
//
//	assignments:
//	  - {key: total, value: nodes.sum.result}
//	  - {key: source, value: "'batch'"}
type VariableAssignHandler struct{}

func (h *VariableAssignHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	assignments, ok := configSlice(node, "assignments")
	if !ok {
		return nil, fmt.Errorf("variable-assign node %q requires an assignments config", node.ID)
	}
	assigned := make(map[string]any, len(assignments))
	for _, raw := range assignments {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		key, _ := item["key"].(string)
		if key == "" {
			continue
		}
		value := resolveValue(item["value"], state)
		state.SetVariable(key, value)
		assigned[key] = value
	}
	return success(assigned), nil
}
