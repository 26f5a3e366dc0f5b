package handlers

import (
	"context"
	"io"
	"log/slog"

	"github.com/flowspring/flowengine"
)

// ConditionHandler evaluates a condition node's gate and reports the branch
// decision. Config, simple form:
//
//	condition:
//	  logicOperator: and
//	  conditions:
//	    - {variableKey: input.score, operator: greater_than, value: 10}
//
// The output carries both the legacy boolean result and the matched handle
// ID ("true"/"false"). Multi-branch form:
//
//	branches:
//	  - handle: premium
//	    conditions: [...]
//	defaultHandle: basic
type ConditionHandler struct {
	evaluator *flowengine.ConditionEvaluator
}

func NewConditionHandler(logger *slog.Logger) *ConditionHandler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ConditionHandler{evaluator: flowengine.NewConditionEvaluator(logger)}
}

func (h *ConditionHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	if branches, ok := configSlice(node, "branches"); ok {
		return h.evaluateBranches(node, branches, state), nil
	}

	result := false
	if raw, ok := node.Config["condition"]; ok {
		result = h.evaluator.EvaluateRaw(raw, state)
	}
	handle := "false"
	if result {
		handle = "true"
	}
	return success(map[string]any{
		"result":          result,
		"matchedHandleId": handle,
	}), nil
}

func (h *ConditionHandler) evaluateBranches(node *flowengine.Node, branches []any, state *flowengine.ExecutionState) *flowengine.HandlerResult {
	for _, raw := range branches {
		branch, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		handle, _ := branch["handle"].(string)
		if handle == "" {
			continue
		}
		if h.evaluator.EvaluateRaw(branch, state) {
			return success(map[string]any{
				"result":          true,
				"matchedHandleId": handle,
			})
		}
	}
	handle := node.ConfigString("defaultHandle")
	if handle == "" {
		handle = "false"
	}
	return success(map[string]any{
		"result":          false,
		"matchedHandleId": handle,
	})
}
