package flowengine

import (
	"context"
	"time"
)

// ExecutionCallbacks defines the observer interface for engine events.
type ExecutionCallbacks interface {
	BeforeExecution(ctx context.Context, event *ExecutionEvent)
	AfterExecution(ctx context.Context, event *ExecutionEvent)

	BeforeNode(ctx context.Context, event *NodeEvent)
	AfterNode(ctx context.Context, event *NodeEvent)

	// OnPause fires when a branch suspends awaiting an external callback.
	OnPause(ctx context.Context, event *PauseEvent)
	// OnResume fires when a callback (or operator intervention) resumes a
	// paused execution.
	OnResume(ctx context.Context, event *PauseEvent)
}

// ExecutionEvent provides context for execution-level events.
type ExecutionEvent struct {
	ExecutionID string
	FlowID      string
	Status      ExecutionStatus
	StartTime   time.Time
	EndTime     time.Time
	Duration    time.Duration
	Inputs      map[string]any
	Output      any
	Error       error
}

// NodeEvent provides context for node-dispatch events.
type NodeEvent struct {
	ExecutionID     string
	NodeExecutionID string
	NodeID          string
	NodeType        NodeType
	NodeName        string
	Status          NodeExecutionStatus
	Output          any
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	Error           error
}

// PauseEvent provides context for suspend/resume events.
type PauseEvent struct {
	ExecutionID     string
	NodeExecutionID string
	NodeID          string
	CallbackKey     string
	Topic           string
}

// BaseExecutionCallbacks is a no-op implementation; embed it to receive
// only the events you care about.
type BaseExecutionCallbacks struct{}

func (c *BaseExecutionCallbacks) BeforeExecution(ctx context.Context, event *ExecutionEvent) {}
func (c *BaseExecutionCallbacks) AfterExecution(ctx context.Context, event *ExecutionEvent)  {}
func (c *BaseExecutionCallbacks) BeforeNode(ctx context.Context, event *NodeEvent)           {}
func (c *BaseExecutionCallbacks) AfterNode(ctx context.Context, event *NodeEvent)            {}
func (c *BaseExecutionCallbacks) OnPause(ctx context.Context, event *PauseEvent)             {}
func (c *BaseExecutionCallbacks) OnResume(ctx context.Context, event *PauseEvent)            {}
