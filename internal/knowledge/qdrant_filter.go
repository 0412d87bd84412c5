package knowledge

import (
	"fmt"
	"sort"
	"strings"
)

type qdrantFilter struct {
	Must   []any
	Should []any
}

func (f qdrantFilter) asMap() map[string]any {
	out := map[string]any{}
	if len(f.Must) > 0 {
		out["must"] = f.Must
	}
	if len(f.Should) > 0 {
		out["should"] = f.Should
	}
	return out
}

// translateCondition turns a Condition into a qdrant filter object.
func translateCondition(cond map[string]any) (qdrantFilter, error) {
	out := qdrantFilter{}
	if len(cond) == 0 {
		return out, nil
	}

	keys := make([]string, 0, len(cond))
	for key := range cond {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := cond[key]
		k := strings.TrimSpace(key)
		if k == "" {
			continue
		}

		if strings.HasPrefix(k, "$") {
			items, err := toObjectSlice(value)
			if err != nil {
				return qdrantFilter{}, opErr("filter_translate", OperationErrorValidation,
					fmt.Sprintf("operator %s expects array of objects", k), err)
			}
			var subs []any
			for _, item := range items {
				sub, err := translateCondition(item)
				if err != nil {
					return qdrantFilter{}, err
				}
				subs = append(subs, sub.asMap())
			}
			switch strings.ToLower(k) {
			case OpAnd:
				out.Must = append(out.Must, subs...)
			case OpOr:
				// A should-list is nested so it stays disjunctive when
				// combined with sibling conditions.
				out.Must = append(out.Must, map[string]any{"should": subs})
			default:
				return qdrantFilter{}, opErr("filter_translate", OperationErrorUnsupportedFilter,
					fmt.Sprintf("unsupported top-level filter operator %q", k), nil)
			}
			continue
		}

		must, err := translateField(k, value)
		if err != nil {
			return qdrantFilter{}, err
		}
		out.Must = append(out.Must, must...)
	}

	// A lone disjunction can be hoisted to the top-level should-list.
	if len(out.Must) == 1 && len(out.Should) == 0 {
		if only, ok := out.Must[0].(map[string]any); ok && len(only) == 1 {
			if should, ok := only["should"].([]any); ok {
				return qdrantFilter{Should: should}, nil
			}
		}
	}
	return out, nil
}

func translateField(field string, value any) ([]any, error) {
	ops, isOps := value.(map[string]any)
	if !isOps {
		if !isScalar(value) {
			return nil, opErr("filter_translate", OperationErrorValidation,
				fmt.Sprintf("field %q expects scalar value or operator object", field), nil)
		}
		return []any{matchValue(field, value)}, nil
	}
	if len(ops) == 0 {
		return nil, opErr("filter_translate", OperationErrorValidation,
			fmt.Sprintf("field %q has empty operator map", field), nil)
	}

	names := make([]string, 0, len(ops))
	for op := range ops {
		names = append(names, op)
	}
	sort.Strings(names)

	var out []any
	for _, op := range names {
		switch op {
		case OpEq:
			if !isScalar(ops[op]) {
				return nil, opErr("filter_translate", OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q expects scalar value", op, field), nil)
			}
			out = append(out, matchValue(field, ops[op]))
		case OpIn:
			values, err := toScalarSlice(ops[op])
			if err != nil {
				return nil, opErr("filter_translate", OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q expects scalar array", op, field), err)
			}
			if len(values) == 0 {
				return nil, opErr("filter_translate", OperationErrorValidation,
					fmt.Sprintf("operator %s for field %q cannot be empty", op, field), nil)
			}
			out = append(out, map[string]any{
				"key":   field,
				"match": map[string]any{"any": values},
			})
		default:
			return nil, opErr("filter_translate", OperationErrorUnsupportedFilter,
				fmt.Sprintf("unsupported filter operator %q for field %q", op, field), nil)
		}
	}
	return out, nil
}

func matchValue(key string, value any) map[string]any {
	return map[string]any{
		"key":   key,
		"match": map[string]any{"value": value},
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}
