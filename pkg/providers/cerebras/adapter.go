// Package cerebras adapts the Cerebras Chat Completions API (OpenAI-
// compatible shape, spec.md §6) to the canonical model. Cerebras' GLM
// models have no dedicated reasoning field: reasoning is a leading
// "<think>...</think>" prefix of the message content (spec.md §4.D.1).
package cerebras

import "github.com/corvid-labs/chatmux/pkg/providerutils/openaicompat"

const apiName = "cerebras"

// NewAdapter creates an Adapter for Cerebras' Chat Completions endpoint. If
// baseURL is empty, the public Cerebras API is used.
func NewAdapter(apiKey, baseURL string) *openaicompat.Adapter {
	return openaicompat.NewAdapter(apiKey, baseURL, openaicompat.Config{
		APIName:        apiName,
		DefaultBaseURL: "https://api.cerebras.ai/v1",
		EnvVar:         "CEREBRAS_API_KEY",
		ThinkTag:       true,
		CachedTokensFromUsage: func(usage map[string]interface{}) int {
			details, _ := usage["prompt_tokens_details"].(map[string]interface{})
			if v, ok := details["cached_tokens"].(float64); ok {
				return int(v)
			}
			return 0
		},
	})
}
