// Package remote implements the repository interfaces on top of the remote
// document store client.
package remote

import "time"

// Decoded field sets are loosely typed; these helpers tolerate the handful
// of shapes the codec can hand back.

func str(fields map[string]any, key string) string {
	if s, ok := fields[key].(string); ok {
		return s
	}
	return ""
}

func f64(fields map[string]any, key string) float64 {
	switch v := fields[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func i(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func b(fields map[string]any, key string) bool {
	v, _ := fields[key].(bool)
	return v
}

func ts(fields map[string]any, key string) time.Time {
	if t, ok := fields[key].(time.Time); ok {
		return t
	}
	return time.Time{}
}

func obj(fields map[string]any, key string) map[string]any {
	if m, ok := fields[key].(map[string]any); ok {
		return m
	}
	return nil
}

func strSlice(fields map[string]any, key string) []string {
	raw, ok := fields[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
