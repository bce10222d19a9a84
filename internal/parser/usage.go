package parser

// extractUsage reads a usage sub-object's recognized keys, accepting both
// the snake_case names CLI backends typically emit and their camelCase
// equivalents (§4.4).
func extractUsage(m map[string]any) Usage {
	var u Usage
	u.InputTokens = intField(m, "input_tokens", "inputTokens")
	u.OutputTokens = intField(m, "output_tokens", "outputTokens")
	u.CacheReadInputTokens = intField(m, "cache_read_input_tokens", "cacheReadInputTokens")
	u.CacheWriteInputTokens = intField(m, "cache_write_input_tokens", "cacheWriteInputTokens")
	u.TotalTokens = intField(m, "total_tokens", "totalTokens")
	return u
}

func intField(m map[string]any, keys ...string) int {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			switch n := v.(type) {
			case float64:
				return int(n)
			case int:
				return n
			}
		}
	}
	return 0
}

func stringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
