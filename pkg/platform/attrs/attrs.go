// Package attrs provides helpers for slog-style variadic key/value lists.
package attrs

// ExtractString scans a ("key", value, ...) attribute list for the given key
// and returns its string value. Returns "" when the key is absent or its value
// is not a string.
func ExtractString(kv []any, key string) string {
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := kv[i+1].(string); ok {
			return v
		}
		return ""
	}
	return ""
}

// ExtractInt scans a ("key", value, ...) attribute list for the given key and
// returns its int value, or 0 when absent or mistyped.
func ExtractInt(kv []any, key string) int {
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := kv[i+1].(int); ok {
			return v
		}
		return 0
	}
	return 0
}
