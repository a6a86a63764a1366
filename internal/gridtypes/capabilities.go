package gridtypes

// Capabilities is the unordered, JSON-shaped mapping from string keys to
// client-requested (or slot-advertised) values. Nested objects and arrays
// decode to map[string]any / []any, exactly as encoding/json leaves them.
type Capabilities map[string]any

// Stereotype is the subset of capabilities a slot advertises it can
// satisfy. It is represented with the same type as Capabilities; the two
// are distinguished only by role (requested vs. advertised).
type Stereotype map[string]any

// Clone returns a deep-enough copy of c: safe for a caller to mutate
// without affecting the original, since map and slice values one level
// down are also copied.
func (c Capabilities) Clone() Capabilities {
	return Capabilities(cloneValue(map[string]any(c)).(map[string]any))
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = cloneValue(vv)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = cloneValue(vv)
		}
		return out
	default:
		return v
	}
}

// Matches reports whether every non-null entry in want is satisfied by the
// stereotype st: equal values for scalars, structural equality for nested
// maps/slices. Keys present in st but absent from want never disqualify a
// match — a request only constrains the capabilities it names.
func (st Stereotype) Matches(want Capabilities) bool {
	for k, wantVal := range want {
		if wantVal == nil {
			continue
		}
		stVal, ok := st[k]
		if !ok {
			return false
		}
		if !valuesEqual(wantVal, stVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two decoded JSON leaves structurally, normalizing
// numeric types to float64 first since encoding/json always decodes JSON
// numbers into Capabilities as float64 and callers may have built a
// Capabilities value by hand with int literals.
func valuesEqual(a, b any) bool {
	a = normalizeNumber(a)
	b = normalizeNumber(b)

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, aVal := range av {
			bVal, ok := bv[k]
			if !ok || !valuesEqual(aVal, bVal) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

// Merge returns a new Capabilities containing every key from c, overlaid
// with every key from other — other wins on key collision (right-biased).
func Merge(c, other Capabilities) Capabilities {
	out := c.Clone()
	for k, v := range other {
		out[k] = cloneValue(v)
	}
	return out
}
