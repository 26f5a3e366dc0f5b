package flowengine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Suspend/resume protocol. A handler that returns NeedPause suspends only
// its own branch: the engine persists a callback record plus a full state
// snapshot and unwinds the branch's call stack. Resume re-enters via a
// fresh dispatch, never a resumed stack, which is why the snapshot must be
// complete. Delivery is push-based; there is no polling.

// requestPause persists an AsyncCallbackRecord and a state snapshot, marks
// the execution paused, and returns. The branch is dormant until an
// external event resumes it.
func (e *Engine) requestPause(ctx context.Context, state *ExecutionState, node *Node, nodeExecID string, result *HandlerResult) error {
	logger := LoggerFromContext(ctx)

	callbackKey := result.CallbackKey
	if callbackKey == "" {
		callbackKey = uuid.NewString()
	}
	now := time.Now()
	record := &AsyncCallbackRecord{
		ExecutionID:     state.ID(),
		NodeExecutionID: nodeExecID,
		NodeID:          node.ID,
		CallbackKey:     callbackKey,
		Topic:           result.Topic,
		Status:          CallbackStatusWaiting,
		CreatedAt:       now,
		ExpiresAt:       now.Add(e.callbackTTL),
	}
	if err := e.cbStore.InsertCallback(ctx, record); err != nil {
		return e.failExecution(ctx, state, fmt.Errorf("failed to persist callback record: %w", err))
	}

	// Whatever partial output the handler produced stays visible to the
	// resumed execution; the callback payload merges over it.
	if result.Output != nil {
		state.SetNodeOutput(node.ID, result.Output)
	}
	state.SetCurrentNode(node.ID)
	state.SetPaused(true)

	e.updateNodeExecution(ctx, nodeExecID, NodeExecutionStatusWaitingCallback, NodeExecutionUpdate{
		Output:        result.Output,
		ExecutionData: result.ExecutionData,
	})
	if err := e.saveExecution(ctx, state, nil); err != nil {
		return e.failExecution(ctx, state, err)
	}

	e.observers.OnPause(ctx, &PauseEvent{
		ExecutionID:     state.ID(),
		NodeExecutionID: nodeExecID,
		NodeID:          node.ID,
		CallbackKey:     callbackKey,
		Topic:           result.Topic,
	})
	logger.Info("execution paused awaiting callback",
		"node_id", node.ID,
		"callback_key", callbackKey,
		"topic", result.Topic,
		"expires_at", record.ExpiresAt)
	return nil
}

// DeliverCallback resumes the paused node execution correlated with the
// given callback key. Unknown keys are rejected with ErrCallbackNotFound;
// records no longer in waiting status with ErrCallbackConflict; expired
// records with ErrCallbackExpired. Delivery is idempotent via the
// waiting-status guard, so at-least-once transports are fine.
func (e *Engine) DeliverCallback(ctx context.Context, callbackKey string, payload map[string]any) error {
	record, err := e.cbStore.FindCallback(ctx, callbackKey)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrCallbackNotFound
	}
	if record.Status != CallbackStatusWaiting {
		return ErrCallbackConflict
	}
	if record.Expired(time.Now()) {
		if updateErr := e.cbStore.UpdateCallbackStatus(ctx, callbackKey, CallbackStatusExpired); updateErr != nil {
			e.logger.Error("failed to mark callback expired", "callback_key", callbackKey, "error", updateErr)
		}
		return ErrCallbackExpired
	}
	if err := e.cbStore.UpdateCallbackStatus(ctx, callbackKey, CallbackStatusProcessed); err != nil {
		return fmt.Errorf("failed to mark callback processed: %w", err)
	}

	e.observers.OnResume(ctx, &PauseEvent{
		ExecutionID:     record.ExecutionID,
		NodeExecutionID: record.NodeExecutionID,
		NodeID:          record.NodeID,
		CallbackKey:     callbackKey,
		Topic:           record.Topic,
	})
	return e.resumeAt(ctx, record.ExecutionID, record.NodeID, record.NodeExecutionID, payload)
}

// ResumeExecution manually unpauses an execution at its current node,
// bypassing any pending callback. Operator intervention path.
func (e *Engine) ResumeExecution(ctx context.Context, executionID string) error {
	record, err := e.execStore.LoadExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if record.Status != ExecutionStatusPaused {
		return fmt.Errorf("execution %q is %s, not paused", executionID, record.Status)
	}
	if record.CurrentNodeID == "" {
		return NewConfigurationError(fmt.Sprintf("execution %q has no current node to resume from", executionID))
	}
	e.observers.OnResume(ctx, &PauseEvent{
		ExecutionID: executionID,
		NodeID:      record.CurrentNodeID,
	})
	return e.resumeAt(ctx, executionID, record.CurrentNodeID, "", nil)
}

// resumeAt restores the persisted snapshot, merges the callback payload
// into the paused node's output, marks it completed, and continues walking
// from its downstream edges exactly as a synchronous completion would have.
func (e *Engine) resumeAt(ctx context.Context, executionID, nodeID, nodeExecID string, payload map[string]any) error {
	record, err := e.execStore.LoadExecution(ctx, executionID)
	if err != nil {
		return err
	}
	var snapshot Snapshot
	if err := json.Unmarshal(record.Context, &snapshot); err != nil {
		return NewSerializationError("failed to decode execution snapshot", err)
	}
	state := FromSnapshot(&snapshot)

	graph, err := e.graphFor(ctx, executionID, record.FlowID)
	if err != nil {
		return err
	}
	node, ok := graph.Node(nodeID)
	if !ok {
		return NewConfigurationError(fmt.Sprintf("paused node %q not found in flow %q", nodeID, record.FlowID))
	}

	logger := e.logger.With("execution_id", executionID)
	ctx = WithLogger(ctx, logger)
	logger.Info("resuming execution", "node_id", nodeID)

	if len(payload) > 0 {
		state.MergeNodeOutput(nodeID, payload)
	}
	output, _ := state.GetNodeOutput(nodeID)
	if alias := node.ConfigString("outputAlias"); alias != "" {
		state.SetVariable(alias, output)
	}
	state.MarkNodeCompleted(nodeID)
	state.SetPaused(false)
	state.SetStatus(ExecutionStatusRunning)

	if nodeExecID != "" {
		e.updateNodeExecution(ctx, nodeExecID, NodeExecutionStatusCompleted, NodeExecutionUpdate{Output: output})
	}
	if err := e.saveExecution(ctx, state, nil); err != nil {
		return err
	}

	if node.Type == NodeTypeEnd {
		return e.settle(ctx, graph, state, e.completeExecution(ctx, state, output))
	}
	dispatchErr := e.dispatchDownstream(ctx, graph, state, node, output)
	return e.settle(ctx, graph, state, dispatchErr)
}
