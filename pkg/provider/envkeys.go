package provider

import "os"

// envKeyByAPI maps each api identifier to the environment variable Complete
// and Stream fall back to when model.Options.APIKey is empty (spec.md §6).
var envKeyByAPI = map[string]string{
	"openai-responses": "OPENAI_API_KEY",
	"anthropic":        "ANTHROPIC_API_KEY",
	"google":           "GEMINI_API_KEY",
	"deepseek":         "DEEPSEEK_API_KEY",
	"cerebras":         "CEREBRAS_API_KEY",
	"zai":              "ZAI_API_KEY",
	"moonshot":         "KIMI_API_KEY",
}

// EnvVarForAPI returns the environment variable name holding api's
// credential, or "" if api is unknown.
func EnvVarForAPI(api string) string {
	return envKeyByAPI[api]
}

// APIKeyFromEnv reads api's credential from its environment variable, or
// returns "" if unset or api is unknown.
func APIKeyFromEnv(api string) string {
	v := envKeyByAPI[api]
	if v == "" {
		return ""
	}
	return os.Getenv(v)
}
