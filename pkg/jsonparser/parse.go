package jsonparser

import (
	"encoding/json"
	"strings"
)

// ParseObject implements the partial-JSON parser contract of spec.md §4.B:
//   - empty/whitespace input -> empty object
//   - complete valid JSON -> the standard parse
//   - truncated string values -> the string so far, closing quote synthesized
//   - truncated numbers/literals -> may be dropped, never throws
//   - invalid junk -> empty object
//   - pure function
//
// It is used to update a tool call's arguments as bytes arrive (so a
// subscriber can render progress) and once more on toolcall_end with the
// full accumulated text to produce the final arguments object.
func ParseObject(jsonText string) map[string]interface{} {
	trimmed := strings.TrimSpace(jsonText)
	if trimmed == "" {
		return map[string]interface{}{}
	}

	if obj, ok := tryUnmarshalObject(jsonText); ok {
		return obj
	}

	repaired := fixJSON(jsonText)
	if repaired == "" {
		return map[string]interface{}{}
	}

	if obj, ok := tryUnmarshalObject(repaired); ok {
		return obj
	}

	return map[string]interface{}{}
}

func tryUnmarshalObject(s string) (map[string]interface{}, bool) {
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return obj, true
}
