// Package attrs reads values back out of slog-style key/value attribute lists.
package attrs

// ExtractString extracts a string value from a key-value attribute slice.
// The slice should be formatted as [key1, value1, key2, value2, ...].
// Returns empty string if the key is not found or the value is not a string.
func ExtractString(attrs []any, key string) string {
	v, _ := Extract[string](attrs, key)
	return v
}

// Extract returns the first value stored under key that has type T.
func Extract[T any](attrs []any, key string) (T, bool) {
	var zero T
	for i := 0; i < len(attrs)-1; i += 2 {
		k, ok := attrs[i].(string)
		if !ok || k != key {
			continue
		}
		if v, ok := attrs[i+1].(T); ok {
			return v, true
		}
	}
	return zero, false
}
