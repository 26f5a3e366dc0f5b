package flowengine

import (
	"errors"
	"sync"
	"time"

	"go.jetify.com/typeid"
)

// NewExecutionID returns a new prefixed ID for execution identification.
func NewExecutionID() string {
	id, err := typeid.WithPrefix("exec")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// NewNodeExecutionID returns a new prefixed ID for a node dispatch attempt.
func NewNodeExecutionID() string {
	id, err := typeid.WithPrefix("nodex")
	if err != nil {
		panic(err)
	}
	return id.String()
}

// ExecutionStatus represents the execution status.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusPaused    ExecutionStatus = "paused"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// ExecutionState is the mutable state threaded through one execution. It is
// owned by exactly one execution and mutated concurrently by whichever
// branches are currently running, so every accessor is safe for concurrent
// use. The join arrival check-and-act sequence has its own atomic method
// (ArriveAndClaim) so that two branches racing to satisfy the same join
// cannot both pass the readiness check.
type ExecutionState struct {
	executionID string
	flowID      string
	status      ExecutionStatus
	inputs      map[string]any
	variables   map[string]any
	constants   map[string]any
	nodeOutputs map[string]any
	completed   map[string]struct{}
	edges       map[string]struct{}
	arrived     map[string]map[string]struct{}
	currentNode string
	paused      bool
	err         string
	startTime   time.Time
	endTime     time.Time
	mutex       sync.RWMutex
}

// NewExecutionState creates the state container for a fresh execution.
// Inputs and constants are copied and never mutated afterwards.
func NewExecutionState(executionID, flowID string, inputs, constants map[string]any) *ExecutionState {
	return &ExecutionState{
		executionID: executionID,
		flowID:      flowID,
		status:      ExecutionStatusPending,
		inputs:      copyMap(inputs),
		variables:   map[string]any{},
		constants:   copyMap(constants),
		nodeOutputs: map[string]any{},
		completed:   map[string]struct{}{},
		edges:       map[string]struct{}{},
		arrived:     map[string]map[string]struct{}{},
	}
}

// ID returns the execution ID.
func (s *ExecutionState) ID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.executionID
}

// FlowID returns the flow definition ID.
func (s *ExecutionState) FlowID() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.flowID
}

// GetStatus returns the current execution status.
func (s *ExecutionState) GetStatus() ExecutionStatus {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.status
}

// SetStatus updates the execution status.
func (s *ExecutionState) SetStatus(status ExecutionStatus) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.status = status
}

// SetError records an execution error and marks the execution failed.
func (s *ExecutionState) SetError(err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err != nil {
		s.err = err.Error()
		s.status = ExecutionStatusFailed
	} else {
		s.err = ""
	}
}

// GetError returns the recorded execution error, if any.
func (s *ExecutionState) GetError() error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.err == "" {
		return nil
	}
	return errors.New(s.err)
}

// GetInputs returns a copy of the execution inputs.
func (s *ExecutionState) GetInputs() map[string]any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return copyMap(s.inputs)
}

// GetInput returns a single execution input.
func (s *ExecutionState) GetInput(key string) (any, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, ok := s.inputs[key]
	return value, ok
}

// GetConstant returns a single flow constant.
func (s *ExecutionState) GetConstant(key string) (any, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, ok := s.constants[key]
	return value, ok
}

// SetVariable writes a global variable.
func (s *ExecutionState) SetVariable(key string, value any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.variables[key] = value
}

// GetVariable reads a global variable.
func (s *ExecutionState) GetVariable(key string) (any, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, ok := s.variables[key]
	return value, ok
}

// GetVariables returns a copy of the variable map.
func (s *ExecutionState) GetVariables() map[string]any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return copyMap(s.variables)
}

// SetNodeOutput stores a node's output. Re-entry overwrites.
func (s *ExecutionState) SetNodeOutput(nodeID string, output any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.nodeOutputs[nodeID] = output
}

// GetNodeOutput reads a prior node's output.
func (s *ExecutionState) GetNodeOutput(nodeID string) (any, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	value, ok := s.nodeOutputs[nodeID]
	return value, ok
}

// GetNodeOutputs returns a copy of the node output map.
func (s *ExecutionState) GetNodeOutputs() map[string]any {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return copyMap(s.nodeOutputs)
}

// MergeNodeOutput merges payload into the node's existing output when both
// are maps; otherwise the payload replaces the output. Used when a callback
// delivers results for a paused node.
func (s *ExecutionState) MergeNodeOutput(nodeID string, payload map[string]any) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	existing, ok := s.nodeOutputs[nodeID].(map[string]any)
	if !ok {
		out := make(map[string]any, len(payload))
		for k, v := range payload {
			out[k] = v
		}
		s.nodeOutputs[nodeID] = out
		return
	}
	merged := copyMap(existing)
	for k, v := range payload {
		merged[k] = v
	}
	s.nodeOutputs[nodeID] = merged
}

// MarkNodeCompleted records a node as finished (successfully or skipped).
func (s *ExecutionState) MarkNodeCompleted(nodeID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.completed[nodeID] = struct{}{}
}

// NodeCompleted reports whether a node has finished.
func (s *ExecutionState) NodeCompleted(nodeID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.completed[nodeID]
	return ok
}

// MarkEdgeExecuted records that an edge was actually traversed.
func (s *ExecutionState) MarkEdgeExecuted(edgeID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.edges[edgeID] = struct{}{}
}

// EdgeExecuted reports whether an edge was traversed.
func (s *ExecutionState) EdgeExecuted(edgeID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, ok := s.edges[edgeID]
	return ok
}

// ArriveAndClaim records fromID's arrival at the given join node and then
// checks readiness against the required predecessor set, all in one critical
// section. Exactly one caller observes the set become complete: the winner
// claims the join (the arrival set is cleared) and gets true; every other
// caller, including duplicate arrivals from the same predecessor, gets false.
func (s *ExecutionState) ArriveAndClaim(joinNodeID, fromID string, required []string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	set, ok := s.arrived[joinNodeID]
	if !ok {
		set = map[string]struct{}{}
		s.arrived[joinNodeID] = set
	}
	if fromID != "" {
		set[fromID] = struct{}{}
	}
	for _, pred := range required {
		if _, ok := set[pred]; !ok {
			return false
		}
	}
	delete(s.arrived, joinNodeID)
	return true
}

// ArrivedPredecessors returns a copy of the arrival set for a join node.
func (s *ExecutionState) ArrivedPredecessors(joinNodeID string) []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var out []string
	for id := range s.arrived[joinNodeID] {
		out = append(out, id)
	}
	return out
}

// SetCurrentNode updates the execution cursor used by snapshots.
func (s *ExecutionState) SetCurrentNode(nodeID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.currentNode = nodeID
}

// CurrentNode returns the execution cursor.
func (s *ExecutionState) CurrentNode() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.currentNode
}

// SetPaused flips the paused flag.
func (s *ExecutionState) SetPaused(paused bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.paused = paused
	if paused {
		s.status = ExecutionStatusPaused
	}
}

// Paused reports whether a branch of this execution is waiting on a callback.
func (s *ExecutionState) Paused() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.paused
}

// SetTiming updates the execution timing.
func (s *ExecutionState) SetTiming(startTime, endTime time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.startTime = startTime
	s.endTime = endTime
}

// GetStartTime returns the execution start time.
func (s *ExecutionState) GetStartTime() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.startTime
}

// copyMap creates a shallow copy of a map.
func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func setToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func sliceToSet(slice []string) map[string]struct{} {
	out := make(map[string]struct{}, len(slice))
	for _, k := range slice {
		out[k] = struct{}{}
	}
	return out
}
