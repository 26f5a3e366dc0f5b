package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flowspring/flowengine"
)

// JSONParseHandler parses a JSON string found at the "source" expression.
// Values that are already structured pass through unchanged.
type JSONParseHandler struct{}

func (h *JSONParseHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	source := node.ConfigString("source")
	if source == "" {
		return nil, fmt.Errorf("json-parse node %q requires a source config", node.ID)
	}
	value := flowengine.Resolve(source, state)
	text, ok := value.(string)
	if !ok {
		return success(value), nil
	}
	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON from %q: %w", source, err)
	}
	return success(parsed), nil
}
