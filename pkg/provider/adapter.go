package provider

import (
	"context"

	"github.com/corvid-labs/chatmux/pkg/eventstream"
	"github.com/corvid-labs/chatmux/pkg/model"
)

// Adapter is the Component D contract (spec.md §4.D): build a wire request
// from a Context, run it against one provider, and translate the response —
// whole or streamed — back into the canonical model. One Adapter instance
// serves one wire dialect (Anthropic Messages, OpenAI Responses, Google
// GenAI, or an OpenAI-compatible Chat Completions variant); it is a plain
// generalization of this package's pre-existing per-model-class
// LanguageModel/EmbeddingModel/... split, narrowed to the single chat
// surface this spec covers.
type Adapter interface {
	// API identifies this adapter's wire dialect (e.g. "anthropic",
	// "openai-responses", "google", "deepseek"), used for nativeMessage
	// round-trip checks (spec.md §4.D.4) and for error attribution.
	API() string

	// Complete runs one non-streaming model turn.
	Complete(ctx context.Context, m model.Model, c model.Context, opts model.Options) (model.AssistantMessage, error)

	// Stream runs one streaming model turn. The returned stream's result is
	// the same AssistantMessage Complete would have returned; its events are
	// the canonical AssistantEvent sequence described in spec.md §3.
	Stream(ctx context.Context, m model.Model, c model.Context, opts model.Options) (*eventstream.Stream[model.AssistantEvent, model.AssistantMessage], error)
}
