package mapping

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Normalize converts BSON driver types into plain Go values: identifiers become
// hex strings, dates become time.Time, embedded documents become
// map[string]any and arrays become []any. Other values are returned as-is.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return nil
	case primitive.ObjectID:
		return x.Hex()
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(x.T), 0).UTC()
	case primitive.Decimal128:
		return x.String()
	case primitive.Binary:
		return x.Data
	case primitive.Regex:
		return x.String()
	case primitive.Symbol:
		return string(x)
	case primitive.JavaScript:
		return string(x)
	case primitive.D:
		out := make(map[string]any, len(x))
		for _, e := range x {
			out[e.Key] = Normalize(e.Value)
		}
		return out
	case primitive.M:
		return normalizeMap(x)
	case map[string]any:
		return normalizeMap(x)
	case primitive.A:
		return normalizeSlice(x)
	case []any:
		return normalizeSlice(x)
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Normalize(v)
	}
	return out
}

func normalizeSlice(s []any) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = Normalize(v)
	}
	return out
}

// isFalsy follows the loose truthiness the mapping files were written for:
// null, false, zero and the empty string are all falsy.
func isFalsy(v any) bool {
	switch x := v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case int:
		return x == 0
	case int32:
		return x == 0
	case int64:
		return x == 0
	case float32:
		return x == 0 || math.IsNaN(float64(x))
	case float64:
		return x == 0 || math.IsNaN(x)
	}
	return false
}
