// Package zai adapts the Z.AI Chat Completions API (OpenAI-compatible
// shape, spec.md §6) to the canonical model.
package zai

import "github.com/corvid-labs/chatmux/pkg/providerutils/openaicompat"

const apiName = "zai"

// NewAdapter creates an Adapter for Z.AI's Chat Completions endpoint. If
// baseURL is empty, the public Z.AI API is used.
func NewAdapter(apiKey, baseURL string) *openaicompat.Adapter {
	return openaicompat.NewAdapter(apiKey, baseURL, openaicompat.Config{
		APIName:        apiName,
		DefaultBaseURL: "https://api.z.ai/api/paas/v4",
		EnvVar:         "ZAI_API_KEY",
		ReasoningField: "reasoning_content",
		CachedTokensFromUsage: func(usage map[string]interface{}) int {
			details, _ := usage["prompt_tokens_details"].(map[string]interface{})
			if v, ok := details["cached_tokens"].(float64); ok {
				return int(v)
			}
			return 0
		},
	})
}
