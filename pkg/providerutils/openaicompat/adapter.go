// Package openaicompat implements one Adapter against the OpenAI-compatible
// Chat Completions shape shared by DeepSeek, Cerebras, Z.AI, and Kimi
// (spec.md §6): "a provider is this shape plus a few field names." Each of
// those four provider packages is a thin Config literal over this adapter
// rather than four near-duplicate HTTP clients.
package openaicompat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/corvid-labs/chatmux/pkg/eventstream"
	"github.com/corvid-labs/chatmux/pkg/internal/http"
	"github.com/corvid-labs/chatmux/pkg/jsonparser"
	"github.com/corvid-labs/chatmux/pkg/model"
	aierrors "github.com/corvid-labs/chatmux/pkg/provider/errors"
	"github.com/corvid-labs/chatmux/pkg/providerutils"
	"github.com/corvid-labs/chatmux/pkg/providerutils/prompt"
	"github.com/corvid-labs/chatmux/pkg/providerutils/streaming"
	"github.com/corvid-labs/chatmux/pkg/providerutils/tool"
)

const thinkTagOpen = "<think>"
const thinkTagClose = "</think>"

// Config parameterizes the one quirk per provider spec.md §6 calls out:
// where the reasoning text lives on the wire, and where the cached-token
// count lives inside usage.
type Config struct {
	// APIName identifies the adapter's wire dialect for stop-reason mapping,
	// error attribution, and nativeMessage round-trip checks.
	APIName string

	// DefaultBaseURL is used when the caller does not override it.
	DefaultBaseURL string

	// EnvVar is the environment variable MissingCredentialError names.
	EnvVar string

	// ReasoningField is the response/delta JSON field carrying reasoning
	// text (e.g. "reasoning_content" for DeepSeek/Z.AI/Kimi). Empty means
	// the provider has no dedicated field; see ThinkTag.
	ReasoningField string

	// ThinkTag is true for providers (Cerebras' GLM models) that emit
	// reasoning inline as a leading "<think>...</think>" prefix of the
	// message content rather than a separate field, per spec.md §4.D.1.
	ThinkTag bool

	// CachedTokensFromUsage extracts the cached-token count nested inside a
	// provider's raw usage object, per spec.md §4.D.2 (OpenAI-style
	// cached_tokens, Cerebras/Z.AI prompt_tokens_details.cached_tokens,
	// DeepSeek prompt_cache_hit_tokens, Kimi cached_tokens).
	CachedTokensFromUsage func(usage map[string]interface{}) int
}

// Adapter implements provider.Adapter for one OpenAI-compatible Chat
// Completions dialect, configured by Config.
type Adapter struct {
	cfg    Config
	client *http.Client
	apiKey string
}

// NewAdapter creates an Adapter for the dialect described by cfg. If baseURL
// is empty, cfg.DefaultBaseURL is used.
func NewAdapter(apiKey, baseURL string, cfg Config) *Adapter {
	if baseURL == "" {
		baseURL = cfg.DefaultBaseURL
	}
	return &Adapter{
		cfg: cfg,
		client: http.NewClient(http.Config{
			BaseURL: baseURL,
		}),
		apiKey: apiKey,
	}
}

// API identifies this adapter's wire dialect.
func (a *Adapter) API() string { return a.cfg.APIName }

func (a *Adapter) resolveKey(opts model.Options) (string, error) {
	if opts.APIKey != "" {
		return opts.APIKey, nil
	}
	if a.apiKey != "" {
		return a.apiKey, nil
	}
	return "", aierrors.NewMissingCredentialError(a.cfg.APIName, a.cfg.EnvVar)
}

func (a *Adapter) headers(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

func (a *Adapter) buildRequest(m model.Model, c model.Context, opts model.Options, stream bool) (map[string]interface{}, error) {
	turns, err := prompt.Render(c.Messages, a.cfg.APIName)
	if err != nil {
		return nil, err
	}

	messages := make([]map[string]interface{}, 0, len(turns)+1)
	if c.SystemPrompt != "" {
		messages = append(messages, map[string]interface{}{"role": "system", "content": c.SystemPrompt})
	}
	for _, t := range turns {
		if t.Role == prompt.RoleAssistant {
			if native, ok := t.Native.(map[string]interface{}); ok {
				messages = append(messages, native)
				continue
			}
		}
		messages = append(messages, a.renderTurn(t))
	}

	body := map[string]interface{}{
		"model":    m.ID,
		"messages": messages,
		"stream":   stream,
	}
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	if opts.MaxTokens != nil {
		body["max_tokens"] = *opts.MaxTokens
	} else if m.MaxTokens > 0 {
		body["max_tokens"] = m.MaxTokens
	}
	if len(opts.StopSequences) > 0 {
		body["stop"] = opts.StopSequences
	}
	if len(c.Tools) > 0 && m.SupportsTools() {
		functions := tool.ToOpenAIFormat(c.Tools)
		wire := make([]map[string]interface{}, len(functions))
		for i, f := range functions {
			wire[i] = map[string]interface{}{"type": "function", "function": f}
		}
		body["tools"] = wire
	}
	return body, nil
}

// renderTurn maps one cross-provider-translated turn onto the Chat
// Completions message shape. Assistant turns carrying a Thinking part are
// encoded either via ReasoningField or, for ThinkTag dialects, as a leading
// "<think>...</think>" prefix of the content string (spec.md §4.D.1).
func (a *Adapter) renderTurn(t prompt.Turn) map[string]interface{} {
	if t.Role == prompt.RoleTool {
		for _, p := range t.Parts {
			if tr, ok := p.(prompt.ToolResultPart); ok {
				text := tr.Text
				if tr.IsError {
					text = "[TOOL ERROR] " + text
				}
				return map[string]interface{}{"role": "tool", "tool_call_id": tr.ToolCallID, "content": text}
			}
		}
	}

	role := string(t.Role)
	msg := map[string]interface{}{"role": role}

	var text strings.Builder
	var reasoning string
	var toolCalls []map[string]interface{}
	for _, p := range t.Parts {
		switch part := p.(type) {
		case prompt.TextPart:
			text.WriteString(part.Text)
		case prompt.ThinkingPart:
			reasoning += part.Text
		case prompt.ToolCallPart:
			argsJSON := part.ArgumentsJSON
			if argsJSON == "" {
				if b, err := json.Marshal(part.Arguments); err == nil {
					argsJSON = string(b)
				}
			}
			toolCalls = append(toolCalls, map[string]interface{}{
				"id":   part.ID,
				"type": "function",
				"function": map[string]interface{}{
					"name":      part.Name,
					"arguments": argsJSON,
				},
			})
		}
	}

	content := text.String()
	if reasoning != "" {
		if a.cfg.ThinkTag {
			content = thinkTagOpen + reasoning + thinkTagClose + content
		} else if a.cfg.ReasoningField != "" {
			msg[a.cfg.ReasoningField] = reasoning
		} else {
			content = "<thinking>" + reasoning + "</thinking>" + content
		}
	}
	msg["content"] = content
	if len(toolCalls) > 0 {
		msg["tool_calls"] = toolCalls
	}
	return msg
}

// Complete runs one non-streaming Chat Completions turn.
func (a *Adapter) Complete(ctx context.Context, m model.Model, c model.Context, opts model.Options) (model.AssistantMessage, error) {
	key, err := a.resolveKey(opts)
	if err != nil {
		return model.AssistantMessage{}, err
	}
	body, err := a.buildRequest(m, c, opts, false)
	if err != nil {
		return model.AssistantMessage{}, err
	}

	var wire chatCompletionResponse
	if err := a.client.DoJSON(ctx, http.Request{
		Method: "POST", Path: "/chat/completions", Headers: a.headers(key), Body: body,
	}, &wire); err != nil {
		return model.AssistantMessage{}, fmt.Errorf("%s complete: %w", a.cfg.APIName, err)
	}
	return a.toAssistantMessage(wire, m.ID)
}

type chatCompletionResponse struct {
	ID      string                 `json:"id"`
	Choices []chatCompletionChoice `json:"choices"`
	Usage   chatCompletionUsage    `json:"usage"`
}

type chatCompletionChoice struct {
	Message      chatCompletionMessage `json:"message"`
	FinishReason string                `json:"finish_reason"`
}

type chatCompletionMessage struct {
	Role             string                   `json:"role"`
	Content          string                   `json:"content"`
	ReasoningContent string                   `json:"reasoning_content"`
	Reasoning        string                   `json:"reasoning"`
	ToolCalls        []chatCompletionToolCall `json:"tool_calls"`
}

type chatCompletionToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type chatCompletionUsage struct {
	PromptTokens        int                    `json:"prompt_tokens"`
	CompletionTokens     int                    `json:"completion_tokens"`
	TotalTokens          int                    `json:"total_tokens"`
	PromptCacheHitTokens int                    `json:"prompt_cache_hit_tokens"`
	PromptTokensDetails  map[string]interface{} `json:"prompt_tokens_details"`
	CachedTokens         int                    `json:"cached_tokens"`
	Raw                  map[string]interface{} `json:"-"`
}

func (a *Adapter) cachedTokens(u chatCompletionUsage) int {
	if a.cfg.CachedTokensFromUsage != nil {
		raw := map[string]interface{}{
			"prompt_cache_hit_tokens": float64(u.PromptCacheHitTokens),
			"cached_tokens":           float64(u.CachedTokens),
			"prompt_tokens_details":   u.PromptTokensDetails,
		}
		return a.cfg.CachedTokensFromUsage(raw)
	}
	return u.PromptCacheHitTokens + u.CachedTokens
}

func (a *Adapter) toModelUsage(u chatCompletionUsage) model.Usage {
	cached := a.cachedTokens(u)
	input := u.PromptTokens - cached
	if input < 0 {
		input = 0
	}
	usage := model.Usage{Input: input, Output: u.CompletionTokens, CacheRead: cached, TotalTokens: u.TotalTokens}
	return usage.WithTotal()
}

// reasoningOf returns the reasoning text on msg via whichever field this
// dialect populates, defaulting to ReasoningContent (the common DeepSeek/
// Z.AI/Kimi name) when Config doesn't name one explicitly.
func (a *Adapter) reasoningOf(msg chatCompletionMessage) string {
	if a.cfg.ReasoningField == "reasoning" {
		return msg.Reasoning
	}
	if msg.ReasoningContent != "" {
		return msg.ReasoningContent
	}
	return msg.Reasoning
}

// splitThinkTag extracts a leading "<think>...</think>" block from content
// for ThinkTag dialects, returning (reasoning, remaining content).
func splitThinkTag(content string) (string, string) {
	if !strings.HasPrefix(content, thinkTagOpen) {
		return "", content
	}
	rest := content[len(thinkTagOpen):]
	end := strings.Index(rest, thinkTagClose)
	if end < 0 {
		return rest, ""
	}
	return rest[:end], rest[end+len(thinkTagClose):]
}

func (a *Adapter) toAssistantMessage(wire chatCompletionResponse, modelID string) (model.AssistantMessage, error) {
	if len(wire.Choices) == 0 {
		return model.AssistantMessage{}, aierrors.NewProtocolError(a.cfg.APIName, "completion response carried no choices")
	}
	choice := wire.Choices[0]
	msg := choice.Message

	reasoning := a.reasoningOf(msg)
	content := msg.Content
	if a.cfg.ThinkTag {
		tagged, rest := splitThinkTag(content)
		if tagged != "" {
			reasoning = tagged
			content = rest
		}
	}

	var resp model.AssistantResponse
	if reasoning != "" {
		resp = append(resp, model.ThinkingBlock{Text: reasoning})
	}
	if content != "" {
		resp = append(resp, model.ResponseBlock{Content: model.Content{model.TextBlock{Text: content}}})
	}
	for _, tc := range msg.ToolCalls {
		args, err := tool.ParseToolCallArguments(tc.Function.Arguments)
		if err != nil {
			args = map[string]interface{}{}
		}
		resp = append(resp, model.ToolCallBlock{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	stopReason, err := providerutils.MapStopReason(a.cfg.APIName, choice.FinishReason)
	if err != nil {
		return model.AssistantMessage{}, err
	}
	if resp.HasToolCall() {
		stopReason = model.StopReasonToolUse
	}

	return model.AssistantMessage{
		ID:            wire.ID,
		API:           a.cfg.APIName,
		Model:         modelID,
		StopReason:    stopReason,
		Content:       resp,
		Usage:         a.toModelUsage(wire.Usage),
		NativeMessage: nativeMessage(msg),
	}, nil
}

func nativeMessage(msg chatCompletionMessage) map[string]interface{} {
	native := map[string]interface{}{"role": "assistant", "content": msg.Content}
	if msg.ReasoningContent != "" {
		native["reasoning_content"] = msg.ReasoningContent
	}
	if msg.Reasoning != "" {
		native["reasoning"] = msg.Reasoning
	}
	if len(msg.ToolCalls) > 0 {
		calls := make([]map[string]interface{}, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			calls[i] = map[string]interface{}{
				"id": tc.ID, "type": "function",
				"function": map[string]interface{}{"name": tc.Function.Name, "arguments": tc.Function.Arguments},
			}
		}
		native["tool_calls"] = calls
	}
	return native
}

// Stream runs one streaming Chat Completions turn.
func (a *Adapter) Stream(ctx context.Context, m model.Model, c model.Context, opts model.Options) (*eventstream.Stream[model.AssistantEvent, model.AssistantMessage], error) {
	key, err := a.resolveKey(opts)
	if err != nil {
		return nil, err
	}
	body, err := a.buildRequest(m, c, opts, true)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.DoStream(ctx, http.Request{
		Method: "POST", Path: "/chat/completions", Headers: a.headers(key), Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("%s stream: %w", a.cfg.APIName, err)
	}

	s := eventstream.New[model.AssistantEvent, model.AssistantMessage](16)
	go a.pump(resp.Body, m.ID, s)
	return s, nil
}

// streamBlock accumulates one content block (text, reasoning, or a single
// tool call) across chunks.
type streamBlock struct {
	kind         string // "text", "reasoning", "tool_call"
	text         string
	toolCallID   string
	toolCallName string
	argsRaw      string
}

// pump reads the provider's SSE "chat.completion.chunk" stream and drives s
// until [DONE] or EOF, translating OpenAI-compatible deltas into canonical
// AssistantEvents. Text and reasoning each get one block; tool calls get one
// block per delta.tool_calls[].index.
func (a *Adapter) pump(body io.ReadCloser, modelID string, s *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]) {
	defer body.Close()
	parser := streaming.NewSSEParser(body)

	const (
		textIndex      = 0
		reasoningIndex = 1
		toolBaseIndex  = 2
	)

	var (
		messageID   string
		stopReason  model.StopReason = model.StopReasonStop
		usage       model.Usage
		blocks             = map[int]*streamBlock{}
		order       []int
		textOpened  bool
		reasonOpened bool
		errMessage  string
		thinkBuffer string // raw content accumulated pre-split, for ThinkTag dialects
	)

	s.Push(model.AssistantEvent{Kind: model.EventStart})

	for {
		evt, err := parser.Next()
		if err != nil {
			if err != io.EOF {
				errMessage = err.Error()
			}
			break
		}
		if evt.Data == "" || evt.Data == "[DONE]" {
			if evt.Data == "[DONE]" {
				break
			}
			continue
		}

		var chunk map[string]interface{}
		if jsonErr := json.Unmarshal([]byte(evt.Data), &chunk); jsonErr != nil {
			continue
		}
		if u, ok := chunk["usage"].(map[string]interface{}); ok && u != nil {
			usage = mergeChunkUsage(usage, a, u)
		}
		choices, _ := chunk["choices"].([]interface{})
		if len(choices) == 0 {
			continue
		}
		choice, _ := choices[0].(map[string]interface{})
		if fr, ok := choice["finish_reason"].(string); ok && fr != "" {
			if mapped, mapErr := providerutils.MapStopReason(a.cfg.APIName, fr); mapErr == nil {
				stopReason = mapped
			}
		}
		delta, _ := choice["delta"].(map[string]interface{})
		if delta == nil {
			continue
		}

		if id, ok := delta["id"].(string); ok && id != "" {
			messageID = id
		}

		if reasoningText, ok := stringFieldAny(delta, a.reasoningDeltaField()); ok && reasoningText != "" {
			if !reasonOpened {
				blocks[reasoningIndex] = &streamBlock{kind: "reasoning"}
				order = append(order, reasoningIndex)
				reasonOpened = true
				s.Push(model.AssistantEvent{Kind: model.EventThinkingStart, ContentIndex: reasoningIndex})
			}
			blocks[reasoningIndex].text += reasoningText
			s.Push(model.AssistantEvent{Kind: model.EventThinkingDelta, ContentIndex: reasoningIndex, TextDelta: reasoningText})
		}

		if contentText, ok := delta["content"].(string); ok && contentText != "" {
			if a.cfg.ThinkTag {
				thinkBuffer += contentText
				reasoning, rest := splitThinkTag(thinkBuffer)
				if reasoning != "" && !reasonOpened {
					blocks[reasoningIndex] = &streamBlock{kind: "reasoning", text: reasoning}
					order = append(order, reasoningIndex)
					reasonOpened = true
					s.Push(model.AssistantEvent{Kind: model.EventThinkingStart, ContentIndex: reasoningIndex})
					s.Push(model.AssistantEvent{Kind: model.EventThinkingDelta, ContentIndex: reasoningIndex, TextDelta: reasoning})
				}
				contentText = rest
				thinkBuffer = ""
			}
			if contentText != "" {
				if !textOpened {
					blocks[textIndex] = &streamBlock{kind: "text"}
					order = append(order, textIndex)
					textOpened = true
					s.Push(model.AssistantEvent{Kind: model.EventTextStart, ContentIndex: textIndex})
				}
				blocks[textIndex].text += contentText
				s.Push(model.AssistantEvent{Kind: model.EventTextDelta, ContentIndex: textIndex, TextDelta: contentText})
			}
		}

		if rawCalls, ok := delta["tool_calls"].([]interface{}); ok {
			for _, rc := range rawCalls {
				tc, _ := rc.(map[string]interface{})
				if tc == nil {
					continue
				}
				idx := toolBaseIndex + intFieldAny(tc, "index")
				st, exists := blocks[idx]
				if !exists {
					st = &streamBlock{kind: "tool_call"}
					blocks[idx] = st
					order = append(order, idx)
				}
				if id, ok := tc["id"].(string); ok && id != "" {
					st.toolCallID = id
				}
				if fn, ok := tc["function"].(map[string]interface{}); ok {
					if name, ok := fn["name"].(string); ok && name != "" {
						st.toolCallName = name
					}
					if !exists {
						s.Push(model.AssistantEvent{Kind: model.EventToolCallStart, ContentIndex: idx, ToolCallID: st.toolCallID, ToolCallName: st.toolCallName})
					}
					if args, ok := fn["arguments"].(string); ok && args != "" {
						st.argsRaw += args
						s.Push(model.AssistantEvent{
							Kind: model.EventToolCallDelta, ContentIndex: idx,
							ToolCallID: st.toolCallID, ToolCallName: st.toolCallName,
							ToolCallDelta: args, Arguments: jsonparser.ParseObject(st.argsRaw),
						})
					}
				} else if !exists {
					s.Push(model.AssistantEvent{Kind: model.EventToolCallStart, ContentIndex: idx, ToolCallID: st.toolCallID, ToolCallName: st.toolCallName})
				}
			}
		}
	}

	if reasonOpened {
		s.Push(model.AssistantEvent{Kind: model.EventThinkingEnd, ContentIndex: reasoningIndex})
	}
	if textOpened {
		s.Push(model.AssistantEvent{Kind: model.EventTextEnd, ContentIndex: textIndex})
	}
	for _, idx := range order {
		if idx >= toolBaseIndex {
			st := blocks[idx]
			s.Push(model.AssistantEvent{
				Kind: model.EventToolCallEnd, ContentIndex: idx,
				ToolCallID: st.toolCallID, ToolCallName: st.toolCallName,
				Arguments: jsonparser.ParseObject(st.argsRaw),
			})
		}
	}

	resp := assembleStreamResponse(blocks, order, toolBaseIndex)
	if resp.HasToolCall() {
		stopReason = model.StopReasonToolUse
	}
	usage = usage.WithTotal()

	final := model.AssistantMessage{
		ID: messageID, API: a.cfg.APIName, Model: modelID,
		StopReason: stopReason, Content: resp, Usage: usage,
		ErrorMessage: errMessage,
	}
	if errMessage != "" {
		final.StopReason = model.StopReasonError
	}
	s.End(final)
}

func (a *Adapter) reasoningDeltaField() string {
	if a.cfg.ReasoningField != "" {
		return a.cfg.ReasoningField
	}
	return "reasoning_content"
}

func assembleStreamResponse(blocks map[int]*streamBlock, order []int, toolBaseIndex int) model.AssistantResponse {
	var resp model.AssistantResponse
	for _, idx := range order {
		st := blocks[idx]
		switch st.kind {
		case "reasoning":
			resp = append(resp, model.ThinkingBlock{Text: st.text})
		case "text":
			resp = append(resp, model.ResponseBlock{Content: model.Content{model.TextBlock{Text: st.text}}})
		case "tool_call":
			resp = append(resp, model.ToolCallBlock{ID: st.toolCallID, Name: st.toolCallName, Arguments: jsonparser.ParseObject(st.argsRaw)})
		}
	}
	return resp
}

func mergeChunkUsage(acc model.Usage, a *Adapter, raw map[string]interface{}) model.Usage {
	var wire chatCompletionUsage
	b, _ := json.Marshal(raw)
	_ = json.Unmarshal(b, &wire)
	merged := a.toModelUsage(wire)
	if acc.Input == 0 {
		acc.Input = merged.Input
	}
	acc.Output = merged.Output
	if acc.CacheRead == 0 {
		acc.CacheRead = merged.CacheRead
	}
	return acc
}

func stringFieldAny(m map[string]interface{}, key string) (string, bool) {
	v, ok := m[key].(string)
	return v, ok
}

func intFieldAny(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
