package store

import (
	"fmt"
	"reflect"
	"strconv"
)

// Normalize deep-copies v into the tree value model: nil, bool, float64,
// string or map[string]any. Integers become float64, slices become maps
// keyed by index, and empty maps collapse to nil.
func Normalize(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool, string, float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			if err := ValidKey(k); err != nil {
				return nil, err
			}
			n, err := Normalize(child)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			if n != nil {
				out[k] = n
			}
		}
		if len(out) == 0 {
			return nil, nil
		}
		return out, nil
	case map[string]bool:
		m := make(map[string]any, len(t))
		for k, b := range t {
			m[k] = b
		}
		return Normalize(m)
	case map[string]string:
		m := make(map[string]any, len(t))
		for k, s := range t {
			m[k] = s
		}
		return Normalize(m)
	case []any:
		m := make(map[string]any, len(t))
		for i, child := range t {
			m[strconv.Itoa(i)] = child
		}
		return Normalize(m)
	case []string:
		m := make(map[string]any, len(t))
		for i, s := range t {
			m[strconv.Itoa(i)] = s
		}
		return Normalize(m)
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// Flatten returns the scalar leaves of v keyed by their full path under base
func Flatten(base string, v any) map[string]any {
	out := make(map[string]any)
	flatten(Clean(base), v, out)
	return out
}

func flatten(path string, v any, out map[string]any) {
	m, ok := v.(map[string]any)
	if !ok {
		if v != nil {
			out[path] = v
		}
		return
	}
	for k, child := range m {
		flatten(Join(path, k), child, out)
	}
}

// Lookup walks parts down from v
func Lookup(v any, parts []string) any {
	cur := v
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

// Equal reports whether two tree values are identical after normalisation
func Equal(a, b any) bool {
	na, errA := Normalize(a)
	nb, errB := Normalize(b)
	if errA != nil || errB != nil {
		return false
	}
	return reflect.DeepEqual(na, nb)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Truthy reports whether a stored value counts as set: false, zero, the
// empty string and nil do not.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case map[string]any:
		return len(t) > 0
	}
	return true
}
