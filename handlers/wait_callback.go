package handlers

import (
	"context"

	"github.com/flowspring/flowengine"
)

// WaitCallbackHandler suspends its branch until an external callback
// arrives. Bind it to whichever node type in a flow waits on an outside
// system (an async api call, a human approval). Config:
//
//	callbackKey: order-42    # optional; generated when absent
//	topic: approvals
type WaitCallbackHandler struct{}

func (h *WaitCallbackHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	return &flowengine.HandlerResult{
		Success:     true,
		NeedPause:   true,
		CallbackKey: node.ConfigString("callbackKey"),
		Topic:       node.ConfigString("topic"),
		ExecutionData: map[string]any{
			"waiting_node": node.ID,
		},
	}, nil
}
