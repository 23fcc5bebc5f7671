package events

import "encoding/json"

// toMapViaJSON marshals v to JSON then unmarshals into a map, giving a
// deterministic map[string]any view of any typed payload struct. Errors are
// swallowed deliberately: payload structs are internally defined and always
// JSON-safe, so a marshal failure here would indicate a programming error
// the caller cannot act on at this boundary.
func toMapViaJSON(v any) map[string]any {
	b, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]any{}
	}
	return m
}
