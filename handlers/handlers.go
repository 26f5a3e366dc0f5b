// Package handlers provides the built-in node handlers that engine-adjacent
// node types need: pass-through start/end, branch selection, data plumbing
// (transform, variable-assign, json-parse), scripted code nodes, and the
// matcher utilities. Business-heavy node types (api, model-call,
// vector-store, subflow, for-each) are expected to be registered by the
// embedding application.
package handlers

import (
	"log/slog"

	"github.com/flowspring/flowengine"
	"github.com/flowspring/flowengine/script"
)

// DefaultRegistry returns a registry with all built-in handlers bound.
func DefaultRegistry(logger *slog.Logger, compiler script.Compiler) *flowengine.Registry {
	if compiler == nil {
		compiler = script.NewRisorCompiler(script.DefaultGlobals())
	}
	registry := flowengine.NewRegistry()
	registry.Register(flowengine.NodeTypeStart, &StartHandler{})
	registry.Register(flowengine.NodeTypeEnd, &EndHandler{})
	registry.Register(flowengine.NodeTypeCondition, NewConditionHandler(logger))
	registry.Register(flowengine.NodeTypeTransform, &TransformHandler{})
	registry.Register(flowengine.NodeTypeVariableAssign, &VariableAssignHandler{})
	registry.Register(flowengine.NodeTypeJSONParse, &JSONParseHandler{})
	registry.Register(flowengine.NodeTypeCode, &CodeHandler{Compiler: compiler})
	registry.Register(flowengine.NodeTypeMessageEmit, &MessageEmitHandler{Compiler: compiler})
	registry.Register(flowengine.NodeTypeDedupHash, &DedupHashHandler{})
	registry.Register(flowengine.NodeTypeKeywordMatch, &KeywordMatchHandler{})
	return registry
}

func success(output any) *flowengine.HandlerResult {
	return &flowengine.HandlerResult{Success: true, Output: output}
}
