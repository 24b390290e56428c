package inference

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"

	"multinet/internal/models"
)

// Coerce converts v to the Go value stored for a column of type t. Empty
// values become nil. An error means v does not conform.
func Coerce(t models.ColumnType, v any) (any, error) {
	if IsEmpty(v) {
		return nil, nil
	}

	switch t {
	case models.ColumnTypeIgnored:
		return nil, nil
	case models.ColumnTypeBoolean:
		switch val := v.(type) {
		case bool:
			return val, nil
		case string:
			if b, ok := ParseBool(strings.TrimSpace(val)); ok {
				return b, nil
			}
		}
		return nil, fmt.Errorf("%q is not a boolean", ToString(v))
	case models.ColumnTypeNumber:
		switch val := v.(type) {
		case float64:
			return normalizeFloat(val), nil
		case int:
			return int64(val), nil
		case int64:
			return val, nil
		case string:
			if n, ok := ParseNumber(strings.TrimSpace(val)); ok {
				return n, nil
			}
		}
		return nil, fmt.Errorf("%q is not a number", ToString(v))
	case models.ColumnTypeDate:
		switch val := v.(type) {
		case time.Time:
			return val.UTC().Format(time.RFC3339), nil
		case string:
			if d, ok := ParseDate(strings.TrimSpace(val)); ok {
				return d.UTC().Format(time.RFC3339), nil
			}
		}
		return nil, fmt.Errorf("%q is not a date", ToString(v))
	default:
		return ToString(v), nil
	}
}

func normalizeFloat(f float64) any {
	if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return f
}

// ToString renders raw values the way they would read in a CSV cell.
func ToString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case map[string]any, []any:
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
	if s, err := cast.ToStringE(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}
