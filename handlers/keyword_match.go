package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/flowspring/flowengine"
)

// KeywordMatchHandler checks the text at the "source" expression against a
// keyword list. Config:
//
//	source: nodes.fetch.body
//	keywords: [urgent, overdue]
//	mode: any    # or all
type KeywordMatchHandler struct{}

func (h *KeywordMatchHandler) Execute(ctx context.Context, node *flowengine.Node, state *flowengine.ExecutionState) (*flowengine.HandlerResult, error) {
	source := node.ConfigString("source")
	if source == "" {
		return nil, fmt.Errorf("keyword-match node %q requires a source config", node.ID)
	}
	keywords, ok := configSlice(node, "keywords")
	if !ok || len(keywords) == 0 {
		return nil, fmt.Errorf("keyword-match node %q requires a keywords config", node.ID)
	}

	text := strings.ToLower(fmt.Sprint(flowengine.Resolve(source, state)))
	var matches []string
	for _, raw := range keywords {
		keyword := fmt.Sprint(raw)
		if strings.Contains(text, strings.ToLower(keyword)) {
			matches = append(matches, keyword)
		}
	}

	matched := len(matches) > 0
	if strings.EqualFold(node.ConfigString("mode"), "all") {
		matched = len(matches) == len(keywords)
	}
	return success(map[string]any{
		"matched": matched,
		"matches": matches,
	}), nil
}
