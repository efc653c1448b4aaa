package namespaces

// Small JSON-Schema builders used across the namespace method
// declarations — keeping these literal makes each Method's
// ParamSchema read like the wire shape it validates.

func objectSchema(properties map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		s["required"] = req
	}
	return s
}

func stringType() map[string]any { return map[string]any{"type": "string"} }
func boolType() map[string]any   { return map[string]any{"type": "boolean"} }
func intType() map[string]any    { return map[string]any{"type": "integer"} }
func numberType() map[string]any { return map[string]any{"type": "number"} }
func arrayType(items map[string]any) map[string]any {
	return map[string]any{"type": "array", "items": items}
}
