package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/flowspring/flowengine"
)

// DedupHashHandler hashes the value at the "source" expression and reports
// whether the same hash was seen earlier in this execution. Seen hashes are
// tracked in a per-node state variable, so the duplicate flag survives a
// pause/resume cycle.
type DedupHashHandler struct{}

func (h *DedupHashHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	source := node.ConfigString("source")
	if source == "" {
		return nil, fmt.Errorf("dedup-hash node %q requires a source config", node.ID)
	}
	value := flowengine.Resolve(source, state)
	encoded, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value for hashing: %w", err)
	}
	sum := sha256.Sum256(encoded)
	hash := hex.EncodeToString(sum[:])

	seenKey := "__dedup_" + node.ID
	seen, _ := state.GetVariable(seenKey)
	seenMap, _ := seen.(map[string]any)
	if seenMap == nil {
		seenMap = map[string]any{}
	}
	_, duplicate := seenMap[hash]
	seenMap[hash] = true
	state.SetVariable(seenKey, seenMap)

	return success(map[string]any{
		"hash":      hash,
		"duplicate": duplicate,
	}), nil
}
