package mapping

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Coercion is applied to a source value right before it is written to the
// destination row.
type Coercion uint8

const (
	// Identity passes the value through unchanged.
	Identity Coercion = iota
	// ToText turns any non-null value into its string representation.
	ToText
	// BooleanDefault writes false for falsy or missing values.
	BooleanDefault
)

func (c Coercion) String() string {
	switch c {
	case Identity:
		return "identity"
	case ToText:
		return "text"
	case BooleanDefault:
		return "boolean-default"
	}
	return fmt.Sprintf("coercion(%d)", uint8(c))
}

// Apply runs the coercion on v.
func (c Coercion) Apply(v any) any {
	switch c {
	case ToText:
		return toText(v)
	case BooleanDefault:
		if isFalsy(v) {
			return false
		}
		return v
	default:
		return v
	}
}

func isTextHint(hint string) bool {
	return strings.EqualFold(strings.TrimSpace(hint), "text")
}

func toText(v any) any {
	switch x := Normalize(v).(type) {
	case nil:
		return nil
	case string:
		return x
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}
