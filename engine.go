package flowengine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// GraphProvider supplies flow graphs for resumed executions. The catalog
// that owns flow definitions lives outside the engine; this is the seam it
// plugs into.
type GraphProvider interface {
	GetGraph(ctx context.Context, flowID string) (*Graph, error)
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	Registry           *Registry
	ExecutionStore     ExecutionStore
	NodeExecutionStore NodeExecutionStore
	CallbackStore      CallbackStore
	GraphProvider      GraphProvider
	Logger             *slog.Logger
	Callbacks          ExecutionCallbacks
	Formatter          FlowFormatter
	CallbackTTL        time.Duration
}

// Engine walks flow graphs: it finds the start node, dispatches nodes to
// handlers, resolves conditional branches, synchronizes join points, fans
// out concurrent branches, and drives the suspend/resume protocol. One
// process owns an execution at a time.
type Engine struct {
	registry    *Registry
	execStore   ExecutionStore
	nodeStore   NodeExecutionStore
	cbStore     CallbackStore
	graphs      GraphProvider
	evaluator   *ConditionEvaluator
	observers   ExecutionCallbacks
	formatter   FlowFormatter
	logger      *slog.Logger
	callbackTTL time.Duration

	// Graphs for executions started in-process, so a resume does not
	// require a GraphProvider.
	mutex      sync.Mutex
	liveGraphs map[string]*Graph
}

// NewEngine creates an engine. A registry is required; stores default to a
// shared in-memory store.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("handler registry is required")
	}
	if opts.ExecutionStore == nil || opts.NodeExecutionStore == nil || opts.CallbackStore == nil {
		memory := NewMemoryStore()
		if opts.ExecutionStore == nil {
			opts.ExecutionStore = memory
		}
		if opts.NodeExecutionStore == nil {
			opts.NodeExecutionStore = memory
		}
		if opts.CallbackStore == nil {
			opts.CallbackStore = memory
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Callbacks == nil {
		opts.Callbacks = &BaseExecutionCallbacks{}
	}
	if opts.CallbackTTL <= 0 {
		opts.CallbackTTL = DefaultCallbackTTL
	}
	return &Engine{
		registry:    opts.Registry,
		execStore:   opts.ExecutionStore,
		nodeStore:   opts.NodeExecutionStore,
		cbStore:     opts.CallbackStore,
		graphs:      opts.GraphProvider,
		evaluator:   NewConditionEvaluator(opts.Logger),
		observers:   opts.Callbacks,
		formatter:   opts.Formatter,
		logger:      opts.Logger,
		callbackTTL: opts.CallbackTTL,
		liveGraphs:  map[string]*Graph{},
	}, nil
}

// ExecuteOptions configures one execution.
type ExecuteOptions struct {
	Graph       *Graph
	Inputs      map[string]any
	Constants   map[string]any
	ExecutionID string
}

// Execute runs a graph against the given inputs, blocking until the
// execution completes, fails, or pauses. It returns the execution ID; the
// terminal status and output live on the persisted execution record.
func (e *Engine) Execute(ctx context.Context, opts ExecuteOptions) (string, error) {
	state, graph, err := e.prepare(ctx, opts)
	if err != nil {
		return "", err
	}
	return state.ID(), e.run(ctx, graph, state)
}

// StartExecution is the fire-and-continue variant of Execute: it validates
// the request, then runs the execution on a new goroutine and returns the
// execution ID immediately. Failures are recorded on the execution record
// and logged.
func (e *Engine) StartExecution(ctx context.Context, opts ExecuteOptions) (string, error) {
	state, graph, err := e.prepare(ctx, opts)
	if err != nil {
		return "", err
	}
	executionID := state.ID()
	go func() {
		if runErr := e.run(context.WithoutCancel(ctx), graph, state); runErr != nil {
			e.logger.Error("execution failed", "execution_id", executionID, "error", runErr)
		}
	}()
	return executionID, nil
}

// GetExecution loads the persisted record for an execution.
func (e *Engine) GetExecution(ctx context.Context, executionID string) (*ExecutionRecord, error) {
	return e.execStore.LoadExecution(ctx, executionID)
}

// GetNodeExecutions loads the per-node dispatch records for an execution,
// in dispatch order.
func (e *Engine) GetNodeExecutions(ctx context.Context, executionID string) ([]*NodeExecutionRecord, error) {
	return e.nodeStore.ListNodeExecutions(ctx, executionID)
}

func (e *Engine) prepare(ctx context.Context, opts ExecuteOptions) (*ExecutionState, *Graph, error) {
	if opts.Graph == nil {
		return nil, nil, NewConfigurationError("graph is required")
	}
	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = NewExecutionID()
	}
	state := NewExecutionState(executionID, opts.Graph.FlowID(), opts.Inputs, opts.Constants)
	state.SetStatus(ExecutionStatusRunning)
	state.SetTiming(time.Now(), time.Time{})

	e.mutex.Lock()
	e.liveGraphs[executionID] = opts.Graph
	e.mutex.Unlock()

	if err := e.saveExecution(ctx, state, nil); err != nil {
		e.dropLiveGraph(executionID)
		return nil, nil, err
	}
	return state, opts.Graph, nil
}

func (e *Engine) dropLiveGraph(executionID string) {
	e.mutex.Lock()
	delete(e.liveGraphs, executionID)
	e.mutex.Unlock()
}

func (e *Engine) run(ctx context.Context, graph *Graph, state *ExecutionState) error {
	logger := e.logger.With("execution_id", state.ID())
	ctx = WithLogger(ctx, logger)

	e.observers.BeforeExecution(ctx, &ExecutionEvent{
		ExecutionID: state.ID(),
		FlowID:      state.FlowID(),
		Status:      state.GetStatus(),
		StartTime:   state.GetStartTime(),
		Inputs:      state.GetInputs(),
	})

	err := e.dispatch(ctx, graph, state, graph.Start(), "")
	return e.settle(ctx, graph, state, err)
}

// settle records the terminal (or paused) outcome of a dispatch wave and
// fires the after-execution callback.
func (e *Engine) settle(ctx context.Context, graph *Graph, state *ExecutionState, err error) error {
	logger := e.logger.With("execution_id", state.ID())

	status := state.GetStatus()
	switch {
	case err != nil || status == ExecutionStatusFailed:
		if err == nil {
			err = state.GetError()
		}
		state.SetError(err)
		logger.Error("execution failed", "error", err)
	case status == ExecutionStatusPaused:
		// All branches have settled by now. Persist again: the snapshot
		// taken when the branch suspended predates whatever its siblings
		// did afterwards (completions, join arrivals), and resume restores
		// from the record.
		logger.Info("execution paused", "current_node", state.CurrentNode())
		if saveErr := e.saveExecution(ctx, state, nil); saveErr != nil {
			logger.Error("failed to persist paused execution", "error", saveErr)
			return saveErr
		}
		return nil
	case status != ExecutionStatusCompleted:
		// Every branch ended without reaching an end node.
		state.SetStatus(ExecutionStatusCompleted)
		state.SetTiming(state.GetStartTime(), time.Now())
		logger.Info("execution completed")
	}

	output := e.finalOutput(graph, state)
	if saveErr := e.saveExecution(ctx, state, output); saveErr != nil {
		logger.Error("failed to persist execution record", "error", saveErr)
		if err == nil {
			err = saveErr
		}
	}

	endTime := time.Now()
	e.observers.AfterExecution(ctx, &ExecutionEvent{
		ExecutionID: state.ID(),
		FlowID:      state.FlowID(),
		Status:      state.GetStatus(),
		StartTime:   state.GetStartTime(),
		EndTime:     endTime,
		Duration:    endTime.Sub(state.GetStartTime()),
		Inputs:      state.GetInputs(),
		Output:      output,
		Error:       err,
	})

	// The graph stays cached only while the execution can still resume.
	if state.GetStatus() != ExecutionStatusPaused {
		e.dropLiveGraph(state.ID())
	}
	return err
}

// finalOutput is the output of the completed end node, if any.
func (e *Engine) finalOutput(graph *Graph, state *ExecutionState) any {
	for _, node := range graph.Nodes() {
		if node.Type == NodeTypeEnd && state.NodeCompleted(node.ID) {
			output, _ := state.GetNodeOutput(node.ID)
			return output
		}
	}
	return nil
}

// dispatch runs one node and then walks its downstream edges. fromID is the
// predecessor that triggered this dispatch; it is recorded for join
// synchronization.
func (e *Engine) dispatch(ctx context.Context, graph *Graph, state *ExecutionState, node *Node, fromID string) error {
	logger := LoggerFromContext(ctx)

	// Join synchronization. A node with multiple live predecessors runs
	// only once, after the last of them arrives. The arrival record and the
	// readiness check happen in one critical section so concurrent arrivals
	// cannot both claim the join.
	if len(graph.IncomingEdges(node.ID)) > 1 {
		required := e.requiredPredecessors(graph, state, node)
		if len(required) > 1 {
			if !state.ArriveAndClaim(node.ID, fromID, required) {
				logger.Debug("join not ready",
					"node_id", node.ID,
					"arrived_from", fromID,
					"required", required)
				return nil
			}
		}
	}

	// Skip check. Start and end nodes always run.
	if node.Type != NodeTypeStart && node.Type != NodeTypeEnd {
		if !e.evaluator.ShouldExecute(node, state) {
			return e.skipNode(ctx, graph, state, node)
		}
	}

	state.SetCurrentNode(node.ID)
	nodeExecID := NewNodeExecutionID()
	startTime := time.Now()
	record := &NodeExecutionRecord{
		ID:          nodeExecID,
		ExecutionID: state.ID(),
		NodeID:      node.ID,
		NodeType:    node.Type,
		NodeName:    node.Name,
		Status:      NodeExecutionStatusRunning,
		StartedAt:   startTime,
	}
	if err := e.nodeStore.InsertNodeExecution(ctx, record); err != nil {
		return e.failExecution(ctx, state, fmt.Errorf("failed to record node execution: %w", err))
	}

	e.observers.BeforeNode(ctx, &NodeEvent{
		ExecutionID:     state.ID(),
		NodeExecutionID: nodeExecID,
		NodeID:          node.ID,
		NodeType:        node.Type,
		NodeName:        node.Name,
		Status:          NodeExecutionStatusRunning,
		StartTime:       startTime,
	})
	if e.formatter != nil {
		e.formatter.PrintNodeStart(node.ID, node.Type)
	}

	result, err := e.invokeHandler(ctx, node, state)
	endTime := time.Now()

	nodeEvent := &NodeEvent{
		ExecutionID:     state.ID(),
		NodeExecutionID: nodeExecID,
		NodeID:          node.ID,
		NodeType:        node.Type,
		NodeName:        node.Name,
		StartTime:       startTime,
		EndTime:         endTime,
		Duration:        endTime.Sub(startTime),
	}

	// Handler failure is fatal to this branch and to the execution as a
	// whole. Sibling branches already running are not cancelled.
	if err != nil || !result.Success {
		if err == nil {
			err = NewHandlerError(node.ID, fmt.Errorf("%s", result.ErrorMessage))
		}
		e.updateNodeExecution(ctx, nodeExecID, NodeExecutionStatusFailed, NodeExecutionUpdate{
			Error:         err.Error(),
			ExecutionData: result.ExecutionData,
		})
		nodeEvent.Status = NodeExecutionStatusFailed
		nodeEvent.Error = err
		e.observers.AfterNode(ctx, nodeEvent)
		if e.formatter != nil {
			e.formatter.PrintNodeError(node.ID, err)
		}
		return e.failExecution(ctx, state, err)
	}

	if result.NeedPause {
		return e.requestPause(ctx, state, node, nodeExecID, result)
	}

	state.SetNodeOutput(node.ID, result.Output)
	if alias := node.ConfigString("outputAlias"); alias != "" {
		state.SetVariable(alias, result.Output)
	}
	state.MarkNodeCompleted(node.ID)
	e.updateNodeExecution(ctx, nodeExecID, NodeExecutionStatusCompleted, NodeExecutionUpdate{
		Output:        result.Output,
		ExecutionData: result.ExecutionData,
	})

	nodeEvent.Status = NodeExecutionStatusCompleted
	nodeEvent.Output = result.Output
	e.observers.AfterNode(ctx, nodeEvent)
	if e.formatter != nil {
		e.formatter.PrintNodeOutput(node.ID, result.Output)
	}
	logger.Debug("node completed", "node_id", node.ID, "node_type", node.Type)

	if node.Type == NodeTypeEnd {
		return e.completeExecution(ctx, state, result.Output)
	}

	return e.dispatchDownstream(ctx, graph, state, node, result.Output)
}

// skipNode records a skipped node execution and keeps walking downstream so
// that joins behind the skipped node still see it as resolved.
func (e *Engine) skipNode(ctx context.Context, graph *Graph, state *ExecutionState, node *Node) error {
	logger := LoggerFromContext(ctx)
	logger.Info("node skipped by execution condition", "node_id", node.ID)

	now := time.Now()
	record := &NodeExecutionRecord{
		ID:          NewNodeExecutionID(),
		ExecutionID: state.ID(),
		NodeID:      node.ID,
		NodeType:    node.Type,
		NodeName:    node.Name,
		Status:      NodeExecutionStatusSkipped,
		StartedAt:   now,
		FinishedAt:  now,
	}
	if err := e.nodeStore.InsertNodeExecution(ctx, record); err != nil {
		logger.Error("failed to record skipped node", "node_id", node.ID, "error", err)
	}
	state.MarkNodeCompleted(node.ID)
	return e.dispatchDownstream(ctx, graph, state, node, nil)
}

// dispatchDownstream computes outgoing edges (filtered by branch decision
// for condition nodes), marks them executed, and fans out. A single edge is
// followed on the current goroutine; multiple edges run concurrently and
// this call is a barrier over all of them. A pause inside one branch does
// not block or cancel the others.
func (e *Engine) dispatchDownstream(ctx context.Context, graph *Graph, state *ExecutionState, node *Node, output any) error {
	edges := graph.OutgoingEdges(node.ID)
	if node.Type == NodeTypeCondition {
		edges = filterConditionEdges(edges, matchedHandle(output))
	}
	if len(edges) == 0 {
		return nil
	}

	// Edges are marked executed before any downstream dispatch so that
	// join-readiness checks and reachability observe them.
	for _, edge := range edges {
		state.MarkEdgeExecuted(edge.ID)
	}

	if len(edges) == 1 {
		target, ok := graph.Node(edges[0].Target)
		if !ok {
			return e.failExecution(ctx, state, NewConfigurationError(fmt.Sprintf("edge %q targets unknown node", edges[0].ID)))
		}
		return e.dispatch(ctx, graph, state, target, node.ID)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	for _, edge := range edges {
		target, ok := graph.Node(edge.Target)
		if !ok {
			return e.failExecution(ctx, state, NewConfigurationError(fmt.Sprintf("edge %q targets unknown node", edge.ID)))
		}
		wg.Add(1)
		go func(target *Node) {
			defer wg.Done()
			if err := e.dispatch(ctx, graph, state, target, node.ID); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(target)
	}
	wg.Wait()
	return firstErr
}

// invokeHandler looks up and runs the node's handler, converting panics
// into handler errors.
func (e *Engine) invokeHandler(ctx context.Context, node *Node, state *ExecutionState) (result *HandlerResult, err error) {
	handler, err := e.registry.Get(node.Type)
	if err != nil {
		return &HandlerResult{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			result = &HandlerResult{}
			err = NewHandlerError(node.ID, fmt.Errorf("handler panicked: %v", r))
		}
	}()
	result, err = handler.Execute(ctx, node, state)
	if result == nil {
		result = &HandlerResult{Success: err == nil}
	}
	if err != nil {
		err = NewHandlerError(node.ID, err)
	}
	return result, err
}

// requiredPredecessors computes which predecessors of a multi-input node
// must arrive before it may run. Condition-node predecessors count only if
// the specific edge from them was the branch actually taken; other
// predecessors count only if they are still reachable given the branches
// already resolved.
func (e *Engine) requiredPredecessors(graph *Graph, state *ExecutionState, node *Node) []string {
	var required []string
	seen := map[string]bool{}
	for _, edge := range graph.IncomingEdges(node.ID) {
		source, ok := graph.Node(edge.Source)
		if !ok || seen[source.ID] {
			continue
		}
		if source.Type == NodeTypeCondition {
			if state.EdgeExecuted(edge.ID) || e.conditionEdgeTaken(state, source, edge) {
				seen[source.ID] = true
				required = append(required, source.ID)
			}
			continue
		}
		if e.isReachable(graph, state, source.ID, map[string]bool{}) {
			seen[source.ID] = true
			required = append(required, source.ID)
		}
	}
	return required
}

// conditionEdgeTaken reports whether a condition node's recorded output
// selects the given outgoing edge.
func (e *Engine) conditionEdgeTaken(state *ExecutionState, source *Node, edge *Edge) bool {
	output, ok := state.GetNodeOutput(source.ID)
	if !ok {
		return false
	}
	return edgeMatchesHandle(edge, matchedHandle(output))
}

// isReachable walks upstream through completed nodes and taken condition
// branches to decide whether a node is still on a live path. The visited
// set terminates the recursion on any accidental cycle.
func (e *Engine) isReachable(graph *Graph, state *ExecutionState, nodeID string, visited map[string]bool) bool {
	if visited[nodeID] {
		return false
	}
	visited[nodeID] = true

	if state.NodeCompleted(nodeID) {
		return true
	}
	node, ok := graph.Node(nodeID)
	if !ok {
		return false
	}
	incoming := graph.IncomingEdges(nodeID)
	if len(incoming) == 0 {
		return node.Type == NodeTypeStart
	}
	for _, edge := range incoming {
		source, ok := graph.Node(edge.Source)
		if !ok {
			continue
		}
		if source.Type == NodeTypeCondition && state.NodeCompleted(source.ID) {
			// The branch is resolved: this path is live only if its edge
			// was the one taken.
			if state.EdgeExecuted(edge.ID) {
				return true
			}
			continue
		}
		if e.isReachable(graph, state, source.ID, visited) {
			return true
		}
	}
	return false
}

// matchedHandle extracts the branch decision from a condition node's
// output: matchedHandleId when present, else the legacy boolean result
// mapped to the "true"/"false" handles.
func matchedHandle(output any) string {
	switch v := output.(type) {
	case bool:
		return fmt.Sprintf("%t", v)
	case nil:
		// A skipped condition node takes the false branch.
		return "false"
	}
	m, ok := asMap(output)
	if !ok {
		return "false"
	}
	if handle, ok := m["matchedHandleId"].(string); ok && handle != "" {
		return handle
	}
	if result, ok := m["result"]; ok {
		return fmt.Sprintf("%t", toBool(result))
	}
	return "false"
}

// edgeMatchesHandle: an unset source handle is treated as the legacy true
// branch.
func edgeMatchesHandle(edge *Edge, handle string) bool {
	if edge.SourceHandle == "" {
		return handle == "true"
	}
	return edge.SourceHandle == handle
}

func filterConditionEdges(edges []*Edge, handle string) []*Edge {
	var matched []*Edge
	for _, edge := range edges {
		if edgeMatchesHandle(edge, handle) {
			matched = append(matched, edge)
		}
	}
	return matched
}

// completeExecution finalizes the whole execution when an end node runs.
func (e *Engine) completeExecution(ctx context.Context, state *ExecutionState, output any) error {
	state.SetStatus(ExecutionStatusCompleted)
	state.SetTiming(state.GetStartTime(), time.Now())
	return e.saveExecution(ctx, state, output)
}

// failExecution marks the execution failed and persists it. The returned
// error propagates up the dispatching branch.
func (e *Engine) failExecution(ctx context.Context, state *ExecutionState, err error) error {
	state.SetError(err)
	state.SetTiming(state.GetStartTime(), time.Now())
	if saveErr := e.saveExecution(ctx, state, nil); saveErr != nil {
		e.logger.Error("failed to persist failed execution",
			"execution_id", state.ID(), "error", saveErr)
	}
	return err
}

func (e *Engine) updateNodeExecution(ctx context.Context, id string, status NodeExecutionStatus, update NodeExecutionUpdate) {
	if err := e.nodeStore.UpdateNodeExecution(ctx, id, status, update); err != nil {
		e.logger.Error("failed to update node execution", "node_execution_id", id, "error", err)
	}
}

// saveExecution serializes the state snapshot onto the execution record.
// Snapshot encode failures are fatal rather than silently losing
// resumability.
func (e *Engine) saveExecution(ctx context.Context, state *ExecutionState, output any) error {
	snapshot := state.ToSnapshot()
	blob, err := json.Marshal(snapshot)
	if err != nil {
		return NewSerializationError("failed to encode execution snapshot", err)
	}
	record := &ExecutionRecord{
		ID:            state.ID(),
		FlowID:        state.FlowID(),
		Status:        state.GetStatus(),
		CurrentNodeID: state.CurrentNode(),
		Context:       blob,
		Output:        output,
		UpdatedAt:     time.Now(),
	}
	if execErr := state.GetError(); execErr != nil {
		record.Error = execErr.Error()
	}
	return e.execStore.SaveExecution(ctx, record)
}

// graphFor finds the graph for an execution: in-process executions are
// remembered directly, anything else goes through the GraphProvider.
func (e *Engine) graphFor(ctx context.Context, executionID, flowID string) (*Graph, error) {
	e.mutex.Lock()
	graph, ok := e.liveGraphs[executionID]
	e.mutex.Unlock()
	if ok {
		return graph, nil
	}
	if e.graphs == nil {
		return nil, NewConfigurationError(fmt.Sprintf("no graph available for execution %q (flow %q)", executionID, flowID))
	}
	return e.graphs.GetGraph(ctx, flowID)
}
