package flowengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// callCounter records how many times each node's handler ran.
type callCounter struct {
	mutex sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: map[string]int{}}
}

func (c *callCounter) bump(nodeID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.calls[nodeID]++
}

func (c *callCounter) count(nodeID string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.calls[nodeID]
}

// testRegistry wires start, end, condition, and a behavior-driven transform
// handler, so tests can describe node behavior in node config.
func testRegistry(counter *callCounter) *Registry {
	registry := NewRegistry()

	registry.Register(NodeTypeStart, HandlerFunc(func(ctx context.Context, node *Node, state *ExecutionState) (*HandlerResult, error) {
		counter.bump(node.ID)
		return &HandlerResult{Success: true, Output: state.GetInputs()}, nil
	}))

	registry.Register(NodeTypeEnd, HandlerFunc(func(ctx context.Context, node *Node, state *ExecutionState) (*HandlerResult, error) {
		counter.bump(node.ID)
		if source := node.ConfigString("source"); source != "" {
			return &HandlerResult{Success: true, Output: Resolve(source, state)}, nil
		}
		return &HandlerResult{Success: true}, nil
	}))

	registry.Register(NodeTypeCondition, HandlerFunc(func(ctx context.Context, node *Node, state *ExecutionState) (*HandlerResult, error) {
		counter.bump(node.ID)
		handle := node.ConfigString("handle")
		return &HandlerResult{Success: true, Output: map[string]any{
			"result":          handle == "true",
			"matchedHandleId": handle,
		}}, nil
	}))

	registry.Register(NodeTypeTransform, HandlerFunc(func(ctx context.Context, node *Node, state *ExecutionState) (*HandlerResult, error) {
		counter.bump(node.ID)
		switch node.ConfigString("behavior") {
		case "double":
			x := toNumber(Resolve(node.ConfigString("source"), state))
			return &HandlerResult{Success: true, Output: map[string]any{"result": x * 2}}, nil
		case "pause":
			return &HandlerResult{
				Success:     true,
				NeedPause:   true,
				CallbackKey: node.ConfigString("callbackKey"),
				Topic:       node.ConfigString("topic"),
				Output:      map[string]any{"partial": true},
			}, nil
		case "fail":
			return &HandlerResult{Success: false, ErrorMessage: "boom"}, nil
		case "slow":
			time.Sleep(20 * time.Millisecond)
			return &HandlerResult{Success: true, Output: map[string]any{"done": node.ID}}, nil
		default:
			return &HandlerResult{Success: true, Output: map[string]any{"done": node.ID}}, nil
		}
	}))

	return registry
}

func newTestEngine(t *testing.T, counter *callCounter) (*Engine, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	engine, err := NewEngine(EngineOptions{
		Registry:           testRegistry(counter),
		ExecutionStore:     store,
		NodeExecutionStore: store,
		CallbackStore:      store,
	})
	require.NoError(t, err)
	return engine, store
}

func mustGraph(t *testing.T, opts GraphOptions) *Graph {
	t.Helper()
	graph, err := NewGraph(opts)
	require.NoError(t, err)
	return graph
}

func TestLinearExecution(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		FlowID: "flow-linear",
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "double", Type: NodeTypeTransform, Config: map[string]any{
				"behavior": "double", "source": "input.x",
			}},
			{ID: "end", Type: NodeTypeEnd, Config: map[string]any{"source": "nodes.double"}},
		},
		Edges: []*Edge{
			{Source: "start", Target: "double"},
			{Source: "double", Target: "end"},
		},
	})

	executionID, err := engine.Execute(context.Background(), ExecuteOptions{
		Graph:  graph,
		Inputs: map[string]any{"x": 1},
	})
	require.NoError(t, err)

	record, err := engine.GetExecution(context.Background(), executionID)
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusCompleted, record.Status)
	require.Equal(t, map[string]any{"result": float64(2)}, record.Output)

	require.Equal(t, 1, counter.count("start"))
	require.Equal(t, 1, counter.count("double"))
	require.Equal(t, 1, counter.count("end"))
}

func TestSingleInputNodesRunWithoutWaiting(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "a", Type: NodeTypeTransform},
			{ID: "b", Type: NodeTypeTransform},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "a"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "end"},
		},
	})

	executionID, err := engine.Execute(context.Background(), ExecuteOptions{Graph: graph})
	require.NoError(t, err)

	record, err := engine.GetExecution(context.Background(), executionID)
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusCompleted, record.Status)
	for _, nodeID := range []string{"start", "a", "b", "end"} {
		require.Equal(t, 1, counter.count(nodeID), "node %s", nodeID)
	}
}

// A join must not wait for predecessors on the branch the condition did not
// take: with the true branch selected, the join behind it runs as soon as the
// true-branch node completes, and the false-branch chain never runs at all.
func TestConditionJoinIgnoresUntakenBranch(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "cond", Type: NodeTypeCondition, Config: map[string]any{"handle": "true"}},
			{ID: "b1", Type: NodeTypeTransform},
			{ID: "b2", Type: NodeTypeTransform},
			{ID: "b3", Type: NodeTypeTransform},
			{ID: "join", Type: NodeTypeTransform},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "cond"},
			{Source: "cond", Target: "b1", SourceHandle: "true"},
			{Source: "cond", Target: "b2", SourceHandle: "false"},
			{Source: "b2", Target: "b3"},
			{Source: "b1", Target: "join"},
			{Source: "b3", Target: "join"},
			{Source: "join", Target: "end"},
		},
	})

	executionID, err := engine.Execute(context.Background(), ExecuteOptions{Graph: graph})
	require.NoError(t, err)

	record, err := engine.GetExecution(context.Background(), executionID)
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusCompleted, record.Status)

	require.Equal(t, 1, counter.count("b1"))
	require.Equal(t, 0, counter.count("b2"))
	require.Equal(t, 0, counter.count("b3"))
	require.Equal(t, 1, counter.count("join"))
	require.Equal(t, 1, counter.count("end"))
}

func TestConditionFalseBranch(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "cond", Type: NodeTypeCondition, Config: map[string]any{"handle": "false"}},
			{ID: "yes", Type: NodeTypeTransform},
			{ID: "no", Type: NodeTypeTransform},
			{ID: "end", Type: NodeTypeEnd, Config: map[string]any{"source": "nodes.no"}},
		},
		Edges: []*Edge{
			{Source: "start", Target: "cond"},
			{Source: "cond", Target: "yes", SourceHandle: "true"},
			{Source: "cond", Target: "no", SourceHandle: "false"},
			{Source: "yes", Target: "end"},
			{Source: "no", Target: "end"},
		},
	})

	executionID, err := engine.Execute(context.Background(), ExecuteOptions{Graph: graph})
	require.NoError(t, err)

	record, err := engine.GetExecution(context.Background(), executionID)
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusCompleted, record.Status)
	require.Equal(t, 0, counter.count("yes"))
	require.Equal(t, 1, counter.count("no"))
	require.Equal(t, map[string]any{"done": "no"}, record.Output)
}

func TestFanOutJoinRunsOnce(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "p1", Type: NodeTypeTransform},
			{ID: "p2", Type: NodeTypeTransform, Config: map[string]any{"behavior": "slow"}},
			{ID: "p3", Type: NodeTypeTransform},
			{ID: "join", Type: NodeTypeTransform},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "p1"},
			{Source: "start", Target: "p2"},
			{Source: "start", Target: "p3"},
			{Source: "p1", Target: "join"},
			{Source: "p2", Target: "join"},
			{Source: "p3", Target: "join"},
			{Source: "join", Target: "end"},
		},
	})

	executionID, err := engine.Execute(context.Background(), ExecuteOptions{Graph: graph})
	require.NoError(t, err)

	record, err := engine.GetExecution(context.Background(), executionID)
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusCompleted, record.Status)

	require.Equal(t, 1, counter.count("p1"))
	require.Equal(t, 1, counter.count("p2"))
	require.Equal(t, 1, counter.count("p3"))
	require.Equal(t, 1, counter.count("join"))
	require.Equal(t, 1, counter.count("end"))
}

// A pause in one branch of a fan-out must not block or cancel its siblings,
// and the join downstream must wait for the callback. Delivering the callback
// runs the join exactly once with both branch outputs visible.
func TestPauseInFanOutBranch(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		FlowID: "flow-pause",
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "p1", Type: NodeTypeTransform, Config: map[string]any{
				"behavior": "pause", "callbackKey": "cb-123", "topic": "approvals",
			}},
			{ID: "p2", Type: NodeTypeTransform},
			{ID: "join", Type: NodeTypeTransform},
			{ID: "end", Type: NodeTypeEnd, Config: map[string]any{"source": "nodes.p1"}},
		},
		Edges: []*Edge{
			{Source: "start", Target: "p1"},
			{Source: "start", Target: "p2"},
			{Source: "p1", Target: "join"},
			{Source: "p2", Target: "join"},
			{Source: "join", Target: "end"},
		},
	})

	ctx := context.Background()
	executionID, err := engine.Execute(ctx, ExecuteOptions{Graph: graph})
	require.NoError(t, err)

	record, err := engine.GetExecution(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusPaused, record.Status)
	require.Equal(t, "p1", record.CurrentNodeID)
	require.Equal(t, 1, counter.count("p2"), "sibling branch must run to completion")
	require.Equal(t, 0, counter.count("join"), "join must wait for the paused branch")

	err = engine.DeliverCallback(ctx, "cb-123", map[string]any{"approved": true})
	require.NoError(t, err)

	record, err = engine.GetExecution(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusCompleted, record.Status)
	require.Equal(t, 1, counter.count("join"))
	require.Equal(t, 1, counter.count("end"))

	// The callback payload merges over the handler's partial output.
	require.Equal(t, map[string]any{"partial": true, "approved": true}, record.Output)
}

func TestCallbackDeliveryErrors(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "wait", Type: NodeTypeTransform, Config: map[string]any{
				"behavior": "pause", "callbackKey": "cb-once",
			}},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "wait"},
			{Source: "wait", Target: "end"},
		},
	})

	ctx := context.Background()
	_, err := engine.Execute(ctx, ExecuteOptions{Graph: graph})
	require.NoError(t, err)

	t.Run("unknown key", func(t *testing.T) {
		err := engine.DeliverCallback(ctx, "no-such-key", nil)
		require.ErrorIs(t, err, ErrCallbackNotFound)
	})

	t.Run("second delivery conflicts", func(t *testing.T) {
		require.NoError(t, engine.DeliverCallback(ctx, "cb-once", nil))
		err := engine.DeliverCallback(ctx, "cb-once", nil)
		require.ErrorIs(t, err, ErrCallbackConflict)
	})
}

func TestCallbackExpiry(t *testing.T) {
	counter := newCallCounter()
	store := NewMemoryStore()
	engine, err := NewEngine(EngineOptions{
		Registry:           testRegistry(counter),
		ExecutionStore:     store,
		NodeExecutionStore: store,
		CallbackStore:      store,
		CallbackTTL:        time.Nanosecond,
	})
	require.NoError(t, err)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "wait", Type: NodeTypeTransform, Config: map[string]any{
				"behavior": "pause", "callbackKey": "cb-stale",
			}},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "wait"},
			{Source: "wait", Target: "end"},
		},
	})

	ctx := context.Background()
	_, err = engine.Execute(ctx, ExecuteOptions{Graph: graph})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	err = engine.DeliverCallback(ctx, "cb-stale", nil)
	require.ErrorIs(t, err, ErrCallbackExpired)

	// The record is marked expired, so a retry conflicts instead.
	err = engine.DeliverCallback(ctx, "cb-stale", nil)
	require.ErrorIs(t, err, ErrCallbackConflict)
}

func TestResumeExecutionWithoutCallback(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "wait", Type: NodeTypeTransform, Config: map[string]any{"behavior": "pause"}},
			{ID: "after", Type: NodeTypeTransform},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "wait"},
			{Source: "wait", Target: "after"},
			{Source: "after", Target: "end"},
		},
	})

	ctx := context.Background()
	executionID, err := engine.Execute(ctx, ExecuteOptions{Graph: graph})
	require.NoError(t, err)

	record, err := engine.GetExecution(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusPaused, record.Status)

	require.NoError(t, engine.ResumeExecution(ctx, executionID))

	record, err = engine.GetExecution(ctx, executionID)
	require.NoError(t, err)
	require.Equal(t, ExecutionStatusCompleted, record.Status)
	require.Equal(t, 1, counter.count("after"))

	// Resuming a completed execution is an error.
	err = engine.ResumeExecution(ctx, executionID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not paused")
}

// A failing branch fails the execution but does not cancel its siblings.
func TestHandlerFailureDoesNotCancelSiblings(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "bad", Type: NodeTypeTransform, Config: map[string]any{"behavior": "fail"}},
			{ID: "good", Type: NodeTypeTransform, Config: map[string]any{"behavior": "slow"}},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "bad"},
			{Source: "start", Target: "good"},
			{Source: "bad", Target: "end"},
			{Source: "good", Target: "end"},
		},
	})

	ctx := context.Background()
	executionID, err := engine.Execute(ctx, ExecuteOptions{Graph: graph})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")

	record, loadErr := engine.GetExecution(ctx, executionID)
	require.NoError(t, loadErr)
	require.Equal(t, ExecutionStatusFailed, record.Status)
	require.Equal(t, 1, counter.count("good"), "sibling branch must still have run")
}

func TestExecutionConditionSkipsNode(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "gated", Type: NodeTypeTransform, Config: map[string]any{
				"executionCondition": map[string]any{
					"enabled": true,
					"conditions": []any{
						map[string]any{"variableKey": "input.run", "operator": "is_true"},
					},
				},
			}},
			{ID: "after", Type: NodeTypeTransform},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "gated"},
			{Source: "gated", Target: "after"},
			{Source: "after", Target: "end"},
		},
	})

	ctx := context.Background()
	executionID, err := engine.Execute(ctx, ExecuteOptions{
		Graph:  graph,
		Inputs: map[string]any{"run": false},
	})
	require.NoError(t, err)

	require.Equal(t, 0, counter.count("gated"))
	require.Equal(t, 1, counter.count("after"), "downstream of a skipped node still runs")

	records, err := engine.GetNodeExecutions(ctx, executionID)
	require.NoError(t, err)
	statuses := map[string]NodeExecutionStatus{}
	for _, r := range records {
		statuses[r.NodeID] = r.Status
	}
	require.Equal(t, NodeExecutionStatusSkipped, statuses["gated"])
	require.Equal(t, NodeExecutionStatusCompleted, statuses["after"])
}

func TestHandlerPanicFailsExecution(t *testing.T) {
	counter := newCallCounter()
	store := NewMemoryStore()
	registry := testRegistry(counter)
	registry.Register(NodeTypeCode, HandlerFunc(func(ctx context.Context, node *Node, state *ExecutionState) (*HandlerResult, error) {
		panic("unexpected")
	}))
	engine, err := NewEngine(EngineOptions{
		Registry:           registry,
		ExecutionStore:     store,
		NodeExecutionStore: store,
		CallbackStore:      store,
	})
	require.NoError(t, err)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "crash", Type: NodeTypeCode},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "crash"},
			{Source: "crash", Target: "end"},
		},
	})

	executionID, err := engine.Execute(context.Background(), ExecuteOptions{Graph: graph})
	require.Error(t, err)
	require.Contains(t, err.Error(), "panicked")

	record, loadErr := engine.GetExecution(context.Background(), executionID)
	require.NoError(t, loadErr)
	require.Equal(t, ExecutionStatusFailed, record.Status)
}

func TestUnregisteredNodeTypeFailsExecution(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "api", Type: NodeTypeAPI},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "api"},
			{Source: "api", Target: "end"},
		},
	})

	_, err := engine.Execute(context.Background(), ExecuteOptions{Graph: graph})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no handler registered")
}

func TestOutputAliasSetsVariable(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "work", Type: NodeTypeTransform, Config: map[string]any{"outputAlias": "workResult"}},
			{ID: "end", Type: NodeTypeEnd, Config: map[string]any{"source": "var.workResult.done"}},
		},
		Edges: []*Edge{
			{Source: "start", Target: "work"},
			{Source: "work", Target: "end"},
		},
	})

	executionID, err := engine.Execute(context.Background(), ExecuteOptions{Graph: graph})
	require.NoError(t, err)

	record, err := engine.GetExecution(context.Background(), executionID)
	require.NoError(t, err)
	require.Equal(t, "work", record.Output)
}

func TestStartExecutionReturnsImmediately(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	graph := mustGraph(t, GraphOptions{
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "slow", Type: NodeTypeTransform, Config: map[string]any{"behavior": "slow"}},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "slow"},
			{Source: "slow", Target: "end"},
		},
	})

	ctx := context.Background()
	executionID, err := engine.StartExecution(ctx, ExecuteOptions{Graph: graph})
	require.NoError(t, err)
	require.NotEmpty(t, executionID)

	require.Eventually(t, func() bool {
		record, err := engine.GetExecution(ctx, executionID)
		return err == nil && record.Status == ExecutionStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExecuteValidation(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)

	_, err := engine.Execute(context.Background(), ExecuteOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "graph is required")
}

func TestNewEngineRequiresRegistry(t *testing.T) {
	_, err := NewEngine(EngineOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "registry")
}

func liveGraphCount(engine *Engine) int {
	engine.mutex.Lock()
	defer engine.mutex.Unlock()
	return len(engine.liveGraphs)
}

func TestGraphCacheEvictedOnTerminalStatus(t *testing.T) {
	counter := newCallCounter()
	engine, _ := newTestEngine(t, counter)
	ctx := context.Background()

	failing := mustGraph(t, GraphOptions{
		FlowID: "flow-cache-fail",
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "bad", Type: NodeTypeTransform, Config: map[string]any{"behavior": "fail"}},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "bad"},
			{Source: "bad", Target: "end"},
		},
	})
	_, err := engine.Execute(ctx, ExecuteOptions{Graph: failing})
	require.Error(t, err)
	require.Zero(t, liveGraphCount(engine), "failed execution must release its cached graph")

	linear := mustGraph(t, GraphOptions{
		FlowID: "flow-cache-done",
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{{Source: "start", Target: "end"}},
	})
	_, err = engine.Execute(ctx, ExecuteOptions{Graph: linear})
	require.NoError(t, err)
	require.Zero(t, liveGraphCount(engine), "completed execution must release its cached graph")

	pausing := mustGraph(t, GraphOptions{
		FlowID: "flow-cache-pause",
		Nodes: []*Node{
			{ID: "start", Type: NodeTypeStart},
			{ID: "wait", Type: NodeTypeTransform, Config: map[string]any{
				"behavior": "pause", "callbackKey": "cb-cache",
			}},
			{ID: "end", Type: NodeTypeEnd},
		},
		Edges: []*Edge{
			{Source: "start", Target: "wait"},
			{Source: "wait", Target: "end"},
		},
	})
	_, err = engine.Execute(ctx, ExecuteOptions{Graph: pausing})
	require.NoError(t, err)
	require.Equal(t, 1, liveGraphCount(engine), "paused execution keeps its graph cached for resume")

	require.NoError(t, engine.DeliverCallback(ctx, "cb-cache", nil))
	require.Zero(t, liveGraphCount(engine), "resumed execution must release its cached graph on completion")
}
