package model

// Tool is a callable capability a model may invoke, declared with a JSON
// Schema parameter contract.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON Schema
}

// Context is everything an adapter needs to build one model request:
// the message history, an optional system prompt, and the tool set.
type Context struct {
	Messages     []Message
	SystemPrompt string
	Tools        []Tool
}

// Options carries per-call generation knobs that are not part of Context.
type Options struct {
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	TopK             *int
	StopSequences    []string
	APIKey           string
	Headers          map[string]string
}
