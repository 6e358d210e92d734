package relate

import (
	"fmt"
	"reflect"
	"strconv"
)

// asString normalizes a raw column value to a string; drivers may return
// text columns as []byte.
func asString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// keyOf normalizes a key value for map lookups, so that an int64 read back
// from the driver still matches the int the caller assigned.
func keyOf(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// isZero reports whether a primary-key value is unset.
func isZero(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case int64:
		return v == 0
	case int:
		return v == 0
	case string:
		return v == ""
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			return rv.IsNil()
		}
		return rv.IsZero()
	}
}
