package artefact

import (
	"fmt"
	"strconv"
	"strings"
)

// Operator is the closed set of comparison operators a condition may use.
// Unknown operators are rejected at artefact load time, so evaluation
// never has to guess at a default.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNeq      Operator = "neq"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
	OpContains Operator = "contains"
)

// Known reports whether the operator is part of the supported set.
func (o Operator) Known() bool {
	switch o {
	case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpContains:
		return true
	}
	return false
}

// Condition compares one fact against a declared value.
type Condition struct {
	Field    string   `yaml:"field" json:"field"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    any      `yaml:"value" json:"value"`
}

// Eval applies the condition to a fact bag. It never errors: a missing
// field, a non-numeric operand under a numeric operator, or a malformed
// list value all fail the condition and return a note saying why.
// Absence never satisfies any operator.
func (c Condition) Eval(facts map[string]any) (bool, string) {
	fact, present := facts[c.Field]
	if !present {
		return false, fmt.Sprintf("field %q not supplied", c.Field)
	}

	switch c.Operator {
	case OpEq:
		return looseEqual(fact, c.Value), ""
	case OpNeq:
		return !looseEqual(fact, c.Value), ""
	case OpGt:
		return c.numeric(fact, func(a, b float64) bool { return a > b })
	case OpGte:
		return c.numeric(fact, func(a, b float64) bool { return a >= b })
	case OpLt:
		return c.numeric(fact, func(a, b float64) bool { return a < b })
	case OpLte:
		return c.numeric(fact, func(a, b float64) bool { return a <= b })
	case OpIn:
		return c.membership(fact, true)
	case OpNotIn:
		return c.membership(fact, false)
	case OpContains:
		return c.contains(fact)
	}
	return false, fmt.Sprintf("unknown operator %q", c.Operator)
}

func (c Condition) numeric(fact any, cmp func(a, b float64) bool) (bool, string) {
	a, ok := toFloat(fact)
	if !ok {
		return false, fmt.Sprintf("field %q is not numeric", c.Field)
	}
	b, ok := toFloat(c.Value)
	if !ok {
		return false, fmt.Sprintf("condition value for %q is not numeric", c.Field)
	}
	return cmp(a, b), ""
}

func (c Condition) membership(fact any, want bool) (bool, string) {
	list, ok := c.Value.([]any)
	if !ok {
		return false, fmt.Sprintf("condition value for %q is not a list", c.Field)
	}
	found := false
	for _, item := range list {
		if looseEqual(fact, item) {
			found = true
			break
		}
	}
	return found == want, ""
}

func (c Condition) contains(fact any) (bool, string) {
	switch v := fact.(type) {
	case string:
		needle, ok := c.Value.(string)
		if !ok {
			return false, fmt.Sprintf("condition value for %q is not a string", c.Field)
		}
		return strings.Contains(v, needle), ""
	case []any:
		for _, item := range v {
			if looseEqual(item, c.Value) {
				return true, ""
			}
		}
		return false, ""
	case []string:
		for _, item := range v {
			if looseEqual(item, c.Value) {
				return true, ""
			}
		}
		return false, ""
	}
	return false, fmt.Sprintf("field %q is neither a string nor a list", c.Field)
}

// looseEqual compares two values the way a fact bag needs: numbers compare
// numerically regardless of their concrete Go type, everything else by
// string form. YAML and JSON decode the same artefact to different number
// types, so a strict == would be wrong here.
func looseEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	if aok != bok {
		return false
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}
