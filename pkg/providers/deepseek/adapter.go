// Package deepseek adapts the DeepSeek Chat Completions API (OpenAI-
// compatible shape, spec.md §6) to the canonical model.
package deepseek

import "github.com/corvid-labs/chatmux/pkg/providerutils/openaicompat"

const apiName = "deepseek"

// NewAdapter creates an Adapter for DeepSeek's Chat Completions endpoint. If
// baseURL is empty, the public DeepSeek API is used.
func NewAdapter(apiKey, baseURL string) *openaicompat.Adapter {
	return openaicompat.NewAdapter(apiKey, baseURL, openaicompat.Config{
		APIName:        apiName,
		DefaultBaseURL: "https://api.deepseek.com/v1",
		EnvVar:         "DEEPSEEK_API_KEY",
		ReasoningField: "reasoning_content",
		CachedTokensFromUsage: func(usage map[string]interface{}) int {
			if v, ok := usage["prompt_cache_hit_tokens"].(float64); ok {
				return int(v)
			}
			return 0
		},
	})
}
