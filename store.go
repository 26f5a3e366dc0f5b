package flowengine

import (
	"context"
	"encoding/json"
	"time"
)

// DefaultCallbackTTL is how long a pending callback stays deliverable.
const DefaultCallbackTTL = 24 * time.Hour

// ExecutionRecord is the persisted row for one execution. Context holds the
// serialized state snapshot.
type ExecutionRecord struct {
	ID            string          `json:"id"`
	FlowID        string          `json:"flow_id,omitempty"`
	Status        ExecutionStatus `json:"status"`
	CurrentNodeID string          `json:"current_node_id,omitempty"`
	Context       json.RawMessage `json:"context,omitempty"`
	Output        any             `json:"output,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at,omitzero"`
	UpdatedAt     time.Time       `json:"updated_at,omitzero"`
}

// NodeExecutionStatus tracks one node-dispatch attempt.
type NodeExecutionStatus string

const (
	NodeExecutionStatusPending         NodeExecutionStatus = "pending"
	NodeExecutionStatusRunning         NodeExecutionStatus = "running"
	NodeExecutionStatusWaitingCallback NodeExecutionStatus = "waiting-callback"
	NodeExecutionStatusCompleted       NodeExecutionStatus = "completed"
	NodeExecutionStatusFailed          NodeExecutionStatus = "failed"
	NodeExecutionStatusSkipped         NodeExecutionStatus = "skipped"
)

// NodeExecutionRecord is the persisted row for one node-dispatch attempt.
// Rows are created at dispatch time, updated on each status transition, and
// never deleted.
type NodeExecutionRecord struct {
	ID            string              `json:"id"`
	ExecutionID   string              `json:"execution_id"`
	NodeID        string              `json:"node_id"`
	NodeType      NodeType            `json:"node_type"`
	NodeName      string              `json:"node_name,omitempty"`
	Status        NodeExecutionStatus `json:"status"`
	Input         any                 `json:"input,omitempty"`
	Output        any                 `json:"output,omitempty"`
	Error         string              `json:"error,omitempty"`
	ExecutionData map[string]any      `json:"execution_data,omitempty"`
	RetryCount    int                 `json:"retry_count"`
	StartedAt     time.Time           `json:"started_at,omitzero"`
	FinishedAt    time.Time           `json:"finished_at,omitzero"`
}

// CallbackStatus tracks the lifecycle of an async callback record.
type CallbackStatus string

const (
	CallbackStatusWaiting   CallbackStatus = "waiting"
	CallbackStatusProcessed CallbackStatus = "processed"
	CallbackStatusExpired   CallbackStatus = "expired"
)

// AsyncCallbackRecord correlates a paused node execution with the external
// event that will resume it. Consumed exactly once: any key not found, or
// found but not waiting, is rejected on delivery.
type AsyncCallbackRecord struct {
	ExecutionID     string         `json:"execution_id"`
	NodeExecutionID string         `json:"node_execution_id"`
	NodeID          string         `json:"node_id"`
	CallbackKey     string         `json:"callback_key"`
	Topic           string         `json:"topic,omitempty"`
	Status          CallbackStatus `json:"status"`
	CreatedAt       time.Time      `json:"created_at,omitzero"`
	ExpiresAt       time.Time      `json:"expires_at,omitzero"`
}

// Expired reports whether the record's expiry has passed at the given time.
func (r *AsyncCallbackRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// NodeExecutionUpdate carries the optional fields of a status transition.
type NodeExecutionUpdate struct {
	Output        any
	Error         string
	ExecutionData map[string]any
}

// ExecutionStore persists execution records. Implementations only need
// single-row transactional updates; the engine never requires multi-row
// transactions.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, record *ExecutionRecord) error
	LoadExecution(ctx context.Context, executionID string) (*ExecutionRecord, error)
}

// NodeExecutionStore persists per-dispatch node execution records.
type NodeExecutionStore interface {
	InsertNodeExecution(ctx context.Context, record *NodeExecutionRecord) error
	UpdateNodeExecution(ctx context.Context, id string, status NodeExecutionStatus, update NodeExecutionUpdate) error
	ListNodeExecutions(ctx context.Context, executionID string) ([]*NodeExecutionRecord, error)
}

// CallbackStore persists pending-callback records.
type CallbackStore interface {
	InsertCallback(ctx context.Context, record *AsyncCallbackRecord) error
	FindCallback(ctx context.Context, callbackKey string) (*AsyncCallbackRecord, error)
	UpdateCallbackStatus(ctx context.Context, callbackKey string, status CallbackStatus) error

	// DeleteExpiredCallbacks removes waiting records whose expiry has
	// passed. Housekeeping only; the engine never calls it.
	DeleteExpiredCallbacks(ctx context.Context, now time.Time) (int, error)
}

// Store bundles the three persistence interfaces a full engine needs.
type Store interface {
	ExecutionStore
	NodeExecutionStore
	CallbackStore
}
