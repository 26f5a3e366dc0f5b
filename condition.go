package flowengine

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// ConditionItem is a single comparison inside a condition block.
type ConditionItem struct {
	VariableKey string `json:"variableKey" yaml:"variableKey"`
	Operator    string `json:"operator" yaml:"operator"`
	Value       any    `json:"value" yaml:"value"`
}

// ConditionConfig is the boolean gate attached to a node (as its
// "executionCondition" config block) or evaluated by a condition node to
// pick a branch.
type ConditionConfig struct {
	Enabled       bool            `json:"enabled" yaml:"enabled"`
	LogicOperator string          `json:"logicOperator" yaml:"logicOperator"`
	Conditions    []ConditionItem `json:"conditions" yaml:"conditions"`
}

// ConditionEvaluator evaluates condition blocks against execution state.
// Evaluation is fail-open for skip checks: a missing, disabled, or malformed
// block means the node runs. Individual item failures evaluate to false
// without failing the flow.
type ConditionEvaluator struct {
	logger *slog.Logger
}

// NewConditionEvaluator returns an evaluator that logs warnings for unknown
// operators through the given logger.
func NewConditionEvaluator(logger *slog.Logger) *ConditionEvaluator {
	return &ConditionEvaluator{logger: logger}
}

// ShouldExecute reads a node's executionCondition config block and reports
// whether the node should run at all.
func (e *ConditionEvaluator) ShouldExecute(node *Node, state *ExecutionState) bool {
	if node.Config == nil {
		return true
	}
	raw, ok := node.Config["executionCondition"]
	if !ok {
		return true
	}
	cfg, ok := parseConditionConfig(raw)
	if !ok || !cfg.Enabled || len(cfg.Conditions) == 0 {
		return true
	}
	return e.Evaluate(cfg, state)
}

// EvaluateRaw parses a free-form condition block (the map shape a YAML or
// JSON flow definition produces) and evaluates it. Unlike ShouldExecute it
// ignores the enabled flag and fails closed: a malformed or empty block is
// false.
func (e *ConditionEvaluator) EvaluateRaw(raw any, state *ExecutionState) bool {
	cfg, ok := parseConditionConfig(raw)
	if !ok || len(cfg.Conditions) == 0 {
		return false
	}
	return e.Evaluate(cfg, state)
}

// Evaluate combines per-item results with the block's logic operator.
// The default operator is AND.
func (e *ConditionEvaluator) Evaluate(cfg *ConditionConfig, state *ExecutionState) bool {
	or := strings.EqualFold(cfg.LogicOperator, "or")
	for _, item := range cfg.Conditions {
		result := e.evaluateItem(item, state)
		if or && result {
			return true
		}
		if !or && !result {
			return false
		}
	}
	return !or
}

// evaluateItem evaluates one comparison. A panic inside an item makes that
// item false rather than failing the flow.
func (e *ConditionEvaluator) evaluateItem(item ConditionItem, state *ExecutionState) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("condition item evaluation panicked",
				"variable_key", item.VariableKey,
				"operator", item.Operator,
				"panic", fmt.Sprint(r))
			result = false
		}
	}()

	actual := Resolve(item.VariableKey, state)
	expected := item.Value
	if s, ok := expected.(string); ok {
		expected = Resolve(s, state)
	}

	switch item.Operator {
	case "contains":
		return strings.Contains(toString(actual), toString(expected))
	case "not_contains":
		return !strings.Contains(toString(actual), toString(expected))
	case "starts_with":
		return strings.HasPrefix(toString(actual), toString(expected))
	case "ends_with":
		return strings.HasSuffix(toString(actual), toString(expected))
	case "is", "equals":
		return toString(actual) == toString(expected)
	case "is_not", "not_equals":
		return toString(actual) != toString(expected)
	case "is_empty":
		return isEmpty(actual)
	case "is_not_empty":
		return !isEmpty(actual)
	case "greater_than":
		return toNumber(actual) > toNumber(expected)
	case "less_than":
		return toNumber(actual) < toNumber(expected)
	case "greater_than_or_equal":
		return toNumber(actual) >= toNumber(expected)
	case "less_than_or_equal":
		return toNumber(actual) <= toNumber(expected)
	case "is_true":
		return toBool(actual)
	case "is_false":
		return !toBool(actual)
	case "exists":
		return actual != nil
	case "not_exists":
		return actual == nil
	default:
		e.logger.Warn("unknown condition operator", "operator", item.Operator)
		return false
	}
}

// parseConditionConfig accepts either an already-typed *ConditionConfig or
// the free-form map shape a YAML/JSON flow definition produces.
func parseConditionConfig(raw any) (*ConditionConfig, bool) {
	switch cfg := raw.(type) {
	case *ConditionConfig:
		return cfg, true
	case ConditionConfig:
		return &cfg, true
	}
	m, ok := asMap(raw)
	if !ok {
		return nil, false
	}
	cfg := &ConditionConfig{
		Enabled: toBool(m["enabled"]),
	}
	if op, ok := m["logicOperator"].(string); ok {
		cfg.LogicOperator = op
	}
	items, ok := asSlice(m["conditions"])
	if !ok {
		return cfg, true
	}
	for _, rawItem := range items {
		im, ok := asMap(rawItem)
		if !ok {
			continue
		}
		item := ConditionItem{Value: im["value"]}
		if k, ok := im["variableKey"].(string); ok {
			item.VariableKey = k
		}
		if op, ok := im["operator"].(string); ok {
			item.Operator = op
		}
		cfg.Conditions = append(cfg.Conditions, item)
	}
	return cfg, true
}

func toString(value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

// toNumber coerces to float64; non-numeric values coerce to 0.
func toNumber(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// toBool coerces via "true"/"1"/"yes", case-insensitive.
func toBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true
		}
		return false
	case float64, float32, int, int32, int64, uint64:
		return toNumber(v) != 0
	default:
		return false
	}
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
