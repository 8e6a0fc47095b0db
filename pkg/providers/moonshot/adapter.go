// Package moonshot adapts the Kimi (Moonshot AI) Chat Completions API
// (OpenAI-compatible shape, spec.md §6) to the canonical model.
package moonshot

import "github.com/corvid-labs/chatmux/pkg/providerutils/openaicompat"

const apiName = "moonshot"

// NewAdapter creates an Adapter for Kimi's Chat Completions endpoint. If
// baseURL is empty, the public Moonshot API is used.
func NewAdapter(apiKey, baseURL string) *openaicompat.Adapter {
	return openaicompat.NewAdapter(apiKey, baseURL, openaicompat.Config{
		APIName:        apiName,
		DefaultBaseURL: "https://api.moonshot.ai/v1",
		EnvVar:         "KIMI_API_KEY",
		ReasoningField: "reasoning_content",
		CachedTokensFromUsage: func(usage map[string]interface{}) int {
			if v, ok := usage["cached_tokens"].(float64); ok {
				return int(v)
			}
			return 0
		},
	})
}
