// Package tool converts the canonical model.Tool declaration into each
// provider's wire function-calling schema (spec.md §4.D, step 3).
package tool

import (
	"encoding/json"
	"fmt"

	"github.com/corvid-labs/chatmux/pkg/model"
)

// ToOpenAIFormat converts tools to the OpenAI Responses/Chat Completions
// function-tool shape.
func ToOpenAIFormat(tools []model.Tool) []map[string]interface{} {
	result := make([]map[string]interface{}, len(tools))
	for i, t := range tools {
		result[i] = map[string]interface{}{
			"type":        "function",
			"name":        t.Name,
			"description": t.Description,
			"parameters":  nonNilSchema(t.Parameters),
		}
	}
	return result
}

// ToAnthropicFormat converts tools to Anthropic's tool format.
func ToAnthropicFormat(tools []model.Tool) []map[string]interface{} {
	result := make([]map[string]interface{}, len(tools))
	for i, t := range tools {
		result[i] = map[string]interface{}{
			"name":         t.Name,
			"description":  t.Description,
			"input_schema": nonNilSchema(t.Parameters),
		}
	}
	return result
}

// ToGoogleFormat converts tools to Google GenAI's function-declaration
// format, rewriting the JSON Schema per spec.md §4.D step 3: Google does not
// support `const` or a homogeneous `anyOf` of `const` values, so both are
// rewritten into `enum`.
func ToGoogleFormat(tools []model.Tool) []map[string]interface{} {
	result := make([]map[string]interface{}, len(tools))
	for i, t := range tools {
		result[i] = map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  googleSchema(t.Parameters),
		}
	}
	return result
}

func nonNilSchema(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return params
}

// googleSchema deep-copies a JSON Schema, rewriting `const` to a one-element
// `enum` and a homogeneous `anyOf` of `const` values to an `enum` listing
// each value, since Google's schema dialect supports neither construct.
func googleSchema(schema map[string]interface{}) map[string]interface{} {
	if schema == nil {
		return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
	}
	return rewriteGoogleNode(schema).(map[string]interface{})
}

func rewriteGoogleNode(node interface{}) interface{} {
	switch n := node.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(n))
		for k, v := range n {
			out[k] = rewriteGoogleNode(v)
		}
		if constVal, ok := out["const"]; ok {
			delete(out, "const")
			out["enum"] = []interface{}{constVal}
		}
		if anyOf, ok := out["anyOf"].([]interface{}); ok {
			if enumVals, ok := constOnlyAnyOfToEnum(anyOf); ok {
				delete(out, "anyOf")
				out["enum"] = enumVals
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(n))
		for i, v := range n {
			out[i] = rewriteGoogleNode(v)
		}
		return out
	default:
		return node
	}
}

// constOnlyAnyOfToEnum recognizes an anyOf whose every branch is a bare
// {"const": X} (optionally alongside a shared "type") and flattens it to a
// single enum of the X values.
func constOnlyAnyOfToEnum(anyOf []interface{}) ([]interface{}, bool) {
	if len(anyOf) == 0 {
		return nil, false
	}
	values := make([]interface{}, 0, len(anyOf))
	for _, branch := range anyOf {
		m, ok := branch.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m["const"]
		if !ok {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

// ParseToolCallArguments parses tool call arguments from a JSON string, raw
// bytes, or an already-decoded map.
func ParseToolCallArguments(args interface{}) (map[string]interface{}, error) {
	switch v := args.(type) {
	case map[string]interface{}:
		return v, nil
	case string:
		var result map[string]interface{}
		if err := json.Unmarshal([]byte(v), &result); err != nil {
			return nil, fmt.Errorf("parse tool arguments JSON: %w", err)
		}
		return result, nil
	case []byte:
		var result map[string]interface{}
		if err := json.Unmarshal(v, &result); err != nil {
			return nil, fmt.Errorf("parse tool arguments JSON: %w", err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported tool arguments type: %T", args)
	}
}

// FindTool finds a tool by name in a list of tools.
func FindTool(toolName string, tools []model.Tool) (*model.Tool, error) {
	for i := range tools {
		if tools[i].Name == toolName {
			return &tools[i], nil
		}
	}
	return nil, fmt.Errorf("tool not found: %s", toolName)
}
