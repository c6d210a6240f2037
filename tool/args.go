package tool

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StringArg returns the string argument key or "" when absent.
func StringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

// RequiredStringArg returns the non-blank string argument key.
func RequiredStringArg(args map[string]any, key string) (string, error) {
	s := StringArg(args, key)
	if strings.TrimSpace(s) == "" {
		return "", &ValidationError{Field: key, Message: "must be a non-empty string"}
	}

	return s, nil
}

// IntArg returns the numeric argument key truncated to int, or def.
func IntArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}

	return def
}

// BoolArg returns the boolean argument key or def.
func BoolArg(args map[string]any, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}

	return def
}

// StringSliceArg returns the string elements of the array argument key.
func StringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}

	return nil
}

// StringMapArg flattens the object argument key into string values.
func StringMapArg(args map[string]any, key string) map[string]string {
	obj, ok := args[key].(map[string]any)
	if !ok {
		return nil
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		switch tv := v.(type) {
		case string:
			out[k] = tv
		default:
			b, _ := json.Marshal(tv)
			out[k] = string(b)
		}
	}

	return out
}

// JSONResult renders v as indented JSON for the model.
func JSONResult(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	return string(b), nil
}

// GuardrailError wraps a policy rejection so the result carries the
// GUARDRAIL code and the original sentinel stays matchable.
func GuardrailError(tool string, err error) *ToolError {
	return &ToolError{Tool: tool, Message: err.Error(), Code: CodeGuardrail, Err: err}
}
