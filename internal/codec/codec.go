// Package codec maps native values to and from the typed-field document
// format used by the remote store. Every value is wrapped in an explicit
// type marker, e.g. {"stringValue": "x"} or {"integerValue": "5"}.
//
// Nesting is bounded: a top-level object gets one level of typed sub-fields,
// and an object inside an array gets one level of typed sub-fields; anything
// deeper is flattened to its string representation. Existing stored
// documents depend on this exact shape, so the bound is deliberate.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cast"
)

// Wire marker keys.
const (
	keyNull      = "nullValue"
	keyString    = "stringValue"
	keyInteger   = "integerValue"
	keyDouble    = "doubleValue"
	keyBoolean   = "booleanValue"
	keyTimestamp = "timestampValue"
	keyMap       = "mapValue"
	keyArray     = "arrayValue"
	keyFields    = "fields"
	keyValues    = "values"
)

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// EncodeFields encodes a native object into a wire field set.
func EncodeFields(obj map[string]any) map[string]any {
	fields := make(map[string]any, len(obj))
	for name, value := range obj {
		fields[name] = EncodeValue(value)
	}
	return fields
}

// EncodeValue encodes one native value into its typed wire form.
func EncodeValue(v any) map[string]any {
	return encodeValue(v, false)
}

// encodeValue encodes v. When nested is true the value sits inside an
// already-nested container, so maps and arrays are flattened to strings
// instead of recursed into.
func encodeValue(v any, nested bool) map[string]any {
	switch val := v.(type) {
	case nil:
		return map[string]any{keyNull: nil}

	case string:
		return map[string]any{keyString: val}

	case bool:
		return map[string]any{keyBoolean: val}

	case time.Time:
		return map[string]any{keyTimestamp: val.UTC().Format(timestampLayout)}

	case int:
		return map[string]any{keyInteger: strconv.FormatInt(int64(val), 10)}
	case int32:
		return map[string]any{keyInteger: strconv.FormatInt(int64(val), 10)}
	case int64:
		return map[string]any{keyInteger: strconv.FormatInt(val, 10)}

	case float32:
		return encodeFloat(float64(val))
	case float64:
		return encodeFloat(val)

	case []any:
		if nested {
			return map[string]any{keyString: stringify(val)}
		}
		if len(val) == 0 {
			return map[string]any{keyArray: map[string]any{}}
		}
		values := make([]any, 0, len(val))
		for _, elem := range val {
			values = append(values, encodeElement(elem))
		}
		return map[string]any{keyArray: map[string]any{keyValues: values}}

	case []string:
		if nested {
			return map[string]any{keyString: stringify(val)}
		}
		if len(val) == 0 {
			return map[string]any{keyArray: map[string]any{}}
		}
		values := make([]any, 0, len(val))
		for _, elem := range val {
			values = append(values, map[string]any{keyString: elem})
		}
		return map[string]any{keyArray: map[string]any{keyValues: values}}

	case map[string]any:
		if nested {
			return map[string]any{keyString: stringify(val)}
		}
		fields := make(map[string]any, len(val))
		for name, sub := range val {
			fields[name] = encodeValue(sub, true)
		}
		return map[string]any{keyMap: map[string]any{keyFields: fields}}

	default:
		// Anything that fails structured encoding is coerced to a string
		// rather than raising an error.
		return map[string]any{keyString: stringify(val)}
	}
}

// encodeElement encodes one array element. Object elements get one nested
// level of typed sub-fields; containers inside those objects are stringified.
func encodeElement(elem any) map[string]any {
	if obj, ok := elem.(map[string]any); ok {
		fields := make(map[string]any, len(obj))
		for name, sub := range obj {
			fields[name] = encodeValue(sub, true)
		}
		return map[string]any{keyMap: map[string]any{keyFields: fields}}
	}
	return encodeValue(elem, true)
}

func encodeFloat(f float64) map[string]any {
	if f == float64(int64(f)) {
		return map[string]any{keyInteger: strconv.FormatInt(int64(f), 10)}
	}
	return map[string]any{keyDouble: f}
}

// stringify renders a value the way the legacy data was stored: a plain
// string representation, not JSON. fmt renders slices with JSON-looking
// brackets ("[1]" parses as an array), so any output starting with a brace
// or bracket gets a leading space to keep decodeString from reparsing a
// flattened container back into structure.
func stringify(v any) string {
	s, err := cast.ToStringE(v)
	if err != nil {
		s = fmt.Sprintf("%v", v)
	}
	if len(s) > 0 && (s[0] == '{' || s[0] == '[') {
		s = " " + s
	}
	return s
}

// DecodeFields decodes a wire field set back into a native object.
func DecodeFields(fields map[string]any) map[string]any {
	obj := make(map[string]any, len(fields))
	for name, raw := range fields {
		if m, ok := raw.(map[string]any); ok {
			obj[name] = DecodeValue(m)
		}
	}
	return obj
}

// DecodeValue decodes one typed wire value back into its native form.
func DecodeValue(m map[string]any) any {
	if _, ok := m[keyNull]; ok {
		return nil
	}
	if s, ok := m[keyString].(string); ok {
		return decodeString(s)
	}
	if raw, ok := m[keyInteger]; ok {
		n, err := strconv.ParseInt(cast.ToString(raw), 10, 64)
		if err != nil {
			return cast.ToString(raw)
		}
		return n
	}
	if raw, ok := m[keyDouble]; ok {
		return cast.ToFloat64(raw)
	}
	if raw, ok := m[keyBoolean]; ok {
		return cast.ToBool(raw)
	}
	if s, ok := m[keyTimestamp].(string); ok {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return s
		}
		return t.UTC()
	}
	if mv, ok := m[keyMap].(map[string]any); ok {
		fields, _ := mv[keyFields].(map[string]any)
		return DecodeFields(fields)
	}
	if av, ok := m[keyArray].(map[string]any); ok {
		rawValues, _ := av[keyValues].([]any)
		values := make([]any, 0, len(rawValues))
		for _, raw := range rawValues {
			if elem, ok := raw.(map[string]any); ok {
				values = append(values, DecodeValue(elem))
			}
		}
		return values
	}
	return nil
}

// decodeString applies the legacy heuristic: any stored string that looks
// like structured data is opportunistically parsed and replaced by the
// parsed result when parsing succeeds. Kept for compatibility with data
// written by earlier clients.
func decodeString(s string) any {
	if len(s) == 0 || (s[0] != '{' && s[0] != '[') {
		return s
	}
	var parsed any
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return s
	}
	return parsed
}
