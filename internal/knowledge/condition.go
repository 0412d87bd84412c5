package knowledge

import (
	"fmt"
	"sort"
)

// Filter operators.
const (
	OpAnd = "$and"
	OpOr  = "$or"
	OpIn  = "$in"
	OpEq  = "$eq"
)

// Condition is a Mongo-style metadata expression, e.g.
//
//	{"$or": [{"zodiacs": {"$in": ["Leo"]}}, {"life_areas": {"$in": ["career"]}}]}
//
// A bare scalar field value means equality.
type Condition map[string]any

// In builds {field: {"$in": values}}.
func In(field string, values []string) Condition {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Condition{field: map[string]any{OpIn: vs}}
}

// Or builds {"$or": conds}.
func Or(conds ...Condition) Condition {
	items := make([]any, len(conds))
	for i, c := range conds {
		items[i] = map[string]any(c)
	}
	return Condition{OpOr: items}
}

// And builds {"$and": conds}.
func And(conds ...Condition) Condition {
	items := make([]any, len(conds))
	for i, c := range conds {
		items[i] = map[string]any(c)
	}
	return Condition{OpAnd: items}
}

// Match reports whether metadata satisfies cond. Top-level keys are
// combined conjunctively.
func (c Condition) Match(metadata map[string]any) (bool, error) {
	return matchMap(c, metadata)
}

func matchMap(cond map[string]any, metadata map[string]any) (bool, error) {
	keys := make([]string, 0, len(cond))
	for k := range cond {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := cond[key]
		var ok bool
		var err error
		switch key {
		case OpAnd:
			ok, err = matchAll(value, metadata, true)
		case OpOr:
			ok, err = matchAll(value, metadata, false)
		default:
			if len(key) > 0 && key[0] == '$' {
				return false, fmt.Errorf("unsupported operator %q", key)
			}
			ok, err = matchField(metadata[key], value)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchAll(value any, metadata map[string]any, conjunctive bool) (bool, error) {
	items, err := toObjectSlice(value)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		ok, err := matchMap(item, metadata)
		if err != nil {
			return false, err
		}
		if ok && !conjunctive {
			return true, nil
		}
		if !ok && conjunctive {
			return false, nil
		}
	}
	return conjunctive, nil
}

func matchField(actual, expected any) (bool, error) {
	ops, isOps := expected.(map[string]any)
	if !isOps {
		return equalScalar(actual, expected), nil
	}
	for op, v := range ops {
		switch op {
		case OpEq:
			if !equalScalar(actual, v) {
				return false, nil
			}
		case OpIn:
			values, err := toScalarSlice(v)
			if err != nil {
				return false, err
			}
			found := false
			for _, candidate := range values {
				if equalScalar(actual, candidate) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported field operator %q", op)
		}
	}
	return true, nil
}

func equalScalar(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toObjectSlice(value any) ([]map[string]any, error) {
	switch typed := value.(type) {
	case []any:
		out := make([]map[string]any, 0, len(typed))
		for _, item := range typed {
			switch obj := item.(type) {
			case map[string]any:
				out = append(out, obj)
			case Condition:
				out = append(out, obj)
			default:
				return nil, fmt.Errorf("expected object in array, got %T", item)
			}
		}
		return out, nil
	case []Condition:
		out := make([]map[string]any, len(typed))
		for i, c := range typed {
			out[i] = c
		}
		return out, nil
	case []map[string]any:
		return typed, nil
	default:
		return nil, fmt.Errorf("expected array of objects, got %T", value)
	}
}

func toScalarSlice(value any) ([]any, error) {
	switch typed := value.(type) {
	case []any:
		return typed, nil
	case []string:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected scalar array, got %T", value)
	}
}
