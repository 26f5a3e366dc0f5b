package handlers

import (
	"context"
	"fmt"

	"github.com/flowspring/flowengine"
	"github.com/flowspring/flowengine/script"
)

// CodeHandler runs the node's Risor script. The script sees the execution
// inputs, global variables, and prior node outputs as globals:
//
//	script: |
//	  inputs["x"] * 2
type CodeHandler struct {
	Compiler script.Compiler
}

func (h *CodeHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	source := node.ConfigString("script")
	if source == "" {
		source = node.ConfigString("code")
	}
	if source == "" {
		return nil, fmt.Errorf("code node %q requires a script config", node.ID)
	}
	compiler := h.Compiler
	if compiler == nil {
		compiler = script.NewRisorCompiler(script.DefaultGlobals())
	}
	compiled, err := compiler.Compile(ctx, source)
	if err != nil {
		return nil, err
	}
	value, err := compiled.Evaluate(ctx, map[string]any{
		"inputs": state.GetInputs(),
		"vars":   state.GetVariables(),
		"nodes":  state.GetNodeOutputs(),
	})
	if err != nil {
		return nil, err
	}
	return success(value.Value()), nil
}
