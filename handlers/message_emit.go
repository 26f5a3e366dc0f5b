package handlers

import (
	"context"
	"strings"

	"github.com/flowspring/flowengine"
	"github.com/flowspring/flowengine/script"
)

// Emitter publishes a message-emit node's message somewhere: a log, a
// message bus, a websocket. The default emitter logs.
type Emitter interface {
	Emit(ctx context.Context, topic, message string) error
}

// MessageEmitHandler renders the node's message and hands it to an Emitter.
// Config:
//
//	topic: notifications
//	message: "order {{nodes.fetch.order_id}} ready"
//
// {{...}} placeholders are variable expressions resolved against the
// execution state. Messages may instead embed ${...} script expressions,
// rendered with the handler's compiler:
//
//	message: "total: ${inputs[\"count\"] * 2}"
type MessageEmitHandler struct {
	Emitter  Emitter
	Compiler script.Compiler
}

func (h *MessageEmitHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	message, err := h.render(ctx, node.ConfigString("message"), state)
	if err != nil {
		return nil, err
	}
	topic := node.ConfigString("topic")

	emitter := h.Emitter
	if emitter == nil {
		emitter = logEmitter{}
	}
	if err := emitter.Emit(ctx, topic, message); err != nil {
		return nil, err
	}
	return success(map[string]any{
		"topic":   topic,
		"message": message,
	}), nil
}

func (h *MessageEmitHandler) render(ctx context.Context, raw string, state *flowengine.ExecutionState) (string, error) {
	if !strings.Contains(raw, "${") {
		return interpolate(raw, state), nil
	}
	compiler := h.Compiler
	if compiler == nil {
		compiler = script.NewRisorCompiler(script.DefaultGlobals())
	}
	tmpl, err := script.NewTemplate(compiler, raw)
	if err != nil {
		return "", err
	}
	return tmpl.Eval(ctx, map[string]any{
		"inputs": state.GetInputs(),
		"vars":   state.GetVariables(),
		"nodes":  state.GetNodeOutputs(),
	})
}

type logEmitter struct{}

func (logEmitter) Emit(ctx context.Context, topic, message string) error {
	flowengine.LoggerFromContext(ctx).Info("message emitted", "topic", topic, "message", message)
	return nil
}
