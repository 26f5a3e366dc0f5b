package flowengine

import "time"

// Snapshot contains a complete, JSON-serializable picture of execution
// state. It is what gets persisted against the execution record on pause and
// completion, and what resume restores from.
type Snapshot struct {
	ExecutionID         string              `json:"execution_id"`
	FlowID              string              `json:"flow_id,omitempty"`
	Status              ExecutionStatus     `json:"status"`
	Inputs              map[string]any      `json:"inputs"`
	Variables           map[string]any      `json:"variables"`
	Constants           map[string]any      `json:"constants,omitempty"`
	NodeOutputs         map[string]any      `json:"node_outputs"`
	CompletedNodeIDs    []string            `json:"completed_node_ids"`
	ExecutedEdgeIDs     []string            `json:"executed_edge_ids"`
	ArrivedPredecessors map[string][]string `json:"arrived_predecessors,omitempty"`
	CurrentNodeID       string              `json:"current_node_id,omitempty"`
	Paused              bool                `json:"paused,omitempty"`
	Error               string              `json:"error,omitempty"`
	StartTime           time.Time           `json:"start_time,omitzero"`
	EndTime             time.Time           `json:"end_time,omitzero"`
	SnapshotAt          time.Time           `json:"snapshot_at"`
}

// ToSnapshot converts the execution state to a snapshot.
func (s *ExecutionState) ToSnapshot() *Snapshot {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	arrived := make(map[string][]string, len(s.arrived))
	for joinID, set := range s.arrived {
		arrived[joinID] = setToSlice(set)
	}
	return &Snapshot{
		ExecutionID:         s.executionID,
		FlowID:              s.flowID,
		Status:              s.status,
		Inputs:              copyMap(s.inputs),
		Variables:           copyMap(s.variables),
		Constants:           copyMap(s.constants),
		NodeOutputs:         copyMap(s.nodeOutputs),
		CompletedNodeIDs:    setToSlice(s.completed),
		ExecutedEdgeIDs:     setToSlice(s.edges),
		ArrivedPredecessors: arrived,
		CurrentNodeID:       s.currentNode,
		Paused:              s.paused,
		Error:               s.err,
		StartTime:           s.startTime,
		EndTime:             s.endTime,
		SnapshotAt:          time.Now(),
	}
}

// FromSnapshot restores execution state from a snapshot.
func FromSnapshot(snapshot *Snapshot) *ExecutionState {
	arrived := make(map[string]map[string]struct{}, len(snapshot.ArrivedPredecessors))
	for joinID, preds := range snapshot.ArrivedPredecessors {
		arrived[joinID] = sliceToSet(preds)
	}
	return &ExecutionState{
		executionID: snapshot.ExecutionID,
		flowID:      snapshot.FlowID,
		status:      snapshot.Status,
		inputs:      copyMap(snapshot.Inputs),
		variables:   copyMap(snapshot.Variables),
		constants:   copyMap(snapshot.Constants),
		nodeOutputs: copyMap(snapshot.NodeOutputs),
		completed:   sliceToSet(snapshot.CompletedNodeIDs),
		edges:       sliceToSet(snapshot.ExecutedEdgeIDs),
		arrived:     arrived,
		currentNode: snapshot.CurrentNodeID,
		paused:      snapshot.Paused,
		err:         snapshot.Error,
		startTime:   snapshot.StartTime,
		endTime:     snapshot.EndTime,
	}
}
