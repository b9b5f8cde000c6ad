package llm

import "strings"

// ExtractJSONObject pulls the first top-level JSON object out of a model
// response. Providers wrap JSON in prose or markdown fences often enough that
// callers should never unmarshal the raw text directly.
func ExtractJSONObject(text string) string {
	content := strings.TrimSpace(text)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return ""
}
