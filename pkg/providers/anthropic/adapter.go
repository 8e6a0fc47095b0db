// Package anthropic adapts the Anthropic Messages API to the canonical
// model (spec.md §4.D), including the beta-header and identity-block quirks
// named in spec.md §6.
package anthropic

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

const apiName = "anthropic"

// fineGrainedToolStreamingBeta and oauthBeta are the beta header values
// named in spec.md §6.
const (
	fineGrainedToolStreamingBeta = "fine-grained-tool-streaming-2025-05-14"
	oauthBeta                    = "oauth-2025-04-20"
)

// claudeCodeIdentityBlock is the mandatory system block Anthropic requires
// ahead of the caller's own system prompt when authenticating with an OAuth
// token, per spec.md §6.
const claudeCodeIdentityBlock = "You are Claude Code, Anthropic's official CLI for Claude."

// Adapter implements provider.Adapter for the Anthropic Messages API.
type Adapter struct {
	client *http.Client
	apiKey string
}

// NewAdapter creates an Adapter. If baseURL is empty, the public Anthropic
// API is used.
func NewAdapter(apiKey, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &Adapter{
		apiKey: apiKey,
		client: http.NewClient(http.Config{
			BaseURL: baseURL,
			Headers: map[string]string{"anthropic-version": "2023-06-01"},
		}),
	}
}

// API identifies this adapter's wire dialect.
func (a *Adapter) API() string { return apiName }

func isOAuthKey(key string) bool {
	return strings.HasPrefix(key, "sk-ant-oat")
}

func headersFor(key string) map[string]string {
	h := map[string]string{}
	betas := []string{fineGrainedToolStreamingBeta}
	if isOAuthKey(key) {
		h["Authorization"] = "Bearer " + key
		betas = append(betas, oauthBeta)
	} else {
		h["x-api-key"] = key
	}
	h["anthropic-beta"] = strings.Join(betas, ",")
	return h
}

func systemBlocksFor(key string, c model.Context) []map[string]interface{} {
	var blocks []map[string]interface{}
	if isOAuthKey(key) {
		blocks = append(blocks, map[string]interface{}{
			"type": "text",
			"text": claudeCodeIdentityBlock,
			"cache_control": map[string]interface{}{"type": "ephemeral"},
		})
	}
	if c.SystemPrompt != "" {
		blocks = append(blocks, map[string]interface{}{
			"type":          "text",
			"text":          c.SystemPrompt,
			"cache_control": map[string]interface{}{"type": "ephemeral"},
		})
	}
	return blocks
}

func (a *Adapter) buildRequest(key string, m model.Model, c model.Context, opts model.Options, stream bool) (map[string]interface{}, error) {
	turns, err := prompt.Render(c.Messages, apiName)
	if err != nil {
		return nil, err
	}

	messages := make([]map[string]interface{}, 0, len(turns))
	for _, t := range turns {
		if t.Role == prompt.RoleAssistant {
			if native, ok := t.Native.(map[string]interface{}); ok {
				messages = append(messages, native)
				continue
			}
		}
		messages = append(messages, renderAnthropicTurn(t))
	}

	body := map[string]interface{}{
		"model":    m.ID,
		"messages": messages,
		"stream":   stream,
	}
	if blocks := systemBlocksFor(key, c); len(blocks) > 0 {
		body["system"] = blocks
	}
	maxTokens := m.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}
	body["max_tokens"] = maxTokens
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	if opts.TopK != nil {
		body["top_k"] = *opts.TopK
	}
	if len(opts.StopSequences) > 0 {
		body["stop_sequences"] = opts.StopSequences
	}
	if len(c.Tools) > 0 && m.SupportsTools() {
		body["tools"] = tool.ToAnthropicFormat(c.Tools)
	}
	if m.Reasoning {
		body["thinking"] = map[string]interface{}{"type": "enabled", "budget_tokens": 10000}
	}
	return body, nil
}

func renderAnthropicTurn(t prompt.Turn) map[string]interface{} {
	role := string(t.Role)
	if t.Role == prompt.RoleTool {
		role = "user"
	}
	msg := map[string]interface{}{"role": role}

	if t.Role != prompt.RoleTool && len(t.Parts) == 1 {
		if tp, ok := t.Parts[0].(prompt.TextPart); ok {
			msg["content"] = tp.Text
			return msg
		}
	}

	blocks := make([]map[string]interface{}, 0, len(t.Parts))
	for _, p := range t.Parts {
		switch part := p.(type) {
		case prompt.TextPart:
			blocks = append(blocks, map[string]interface{}{"type": "text", "text": part.Text})
		case prompt.ThinkingPart:
			blocks = append(blocks, map[string]interface{}{"type": "thinking", "thinking": part.Text})
		case prompt.ToolCallPart:
			blocks = append(blocks, map[string]interface{}{
				"type":  "tool_use",
				"id":    part.ID,
				"name":  part.Name,
				"input": part.Arguments,
			})
		case prompt.ToolResultPart:
			blocks = append(blocks, map[string]interface{}{
				"type":        "tool_result",
				"tool_use_id": part.ToolCallID,
				"content":     part.Text,
				"is_error":    part.IsError,
			})
		case prompt.ImagePart:
			blocks = append(blocks, map[string]interface{}{
				"type": "image",
				"source": map[string]interface{}{
					"type":       "base64",
					"media_type": part.MimeType,
					"data":       part.Base64,
				},
			})
		}
	}
	msg["content"] = blocks
	return msg
}

// resolveKey returns opts.APIKey if the caller supplied one, else the
// adapter's configured key. A missing key at invocation time is fatal, per
// spec.md §6.
func (a *Adapter) resolveKey(opts model.Options) (string, error) {
	if opts.APIKey != "" {
		return opts.APIKey, nil
	}
	if a.apiKey != "" {
		return a.apiKey, nil
	}
	return "", aierrors.NewMissingCredentialError(apiName, "ANTHROPIC_API_KEY")
}

// Complete runs one non-streaming Anthropic Messages turn.
func (a *Adapter) Complete(ctx context.Context, m model.Model, c model.Context, opts model.Options) (model.AssistantMessage, error) {
	key, err := a.resolveKey(opts)
	if err != nil {
		return model.AssistantMessage{}, err
	}
	body, err := a.buildRequest(key, m, c, opts, false)
	if err != nil {
		return model.AssistantMessage{}, err
	}

	var wire messagesResponse
	if err := a.client.DoJSON(ctx, http.Request{
		Method: "POST", Path: "/v1/messages", Headers: headersFor(key), Body: body,
	}, &wire); err != nil {
		return model.AssistantMessage{}, fmt.Errorf("anthropic complete: %w", err)
	}

	return wire.toAssistantMessage(m.ID)
}

// messagesResponse mirrors the subset of the Messages API response this
// adapter needs.
type messagesResponse struct {
	ID         string                  `json:"id"`
	StopReason string                  `json:"stop_reason"`
	Content    []messagesContentBlock  `json:"content"`
	Usage      messagesUsage           `json:"usage"`
}

type messagesContentBlock struct {
	Type     string                 `json:"type"`
	Text     string                 `json:"text"`
	Thinking string                 `json:"thinking"`
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Input    map[string]interface{} `json:"input"`
}

type messagesUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
}

func (u messagesUsage) toModelUsage() model.Usage {
	usage := model.Usage{
		Input:      u.InputTokens,
		Output:     u.OutputTokens,
		CacheWrite: u.CacheCreationInputTokens,
		CacheRead:  u.CacheReadInputTokens,
	}
	return usage.WithTotal()
}

func (r messagesResponse) toAssistantMessage(modelID string) (model.AssistantMessage, error) {
	var resp model.AssistantResponse
	for _, b := range r.Content {
		switch b.Type {
		case "text":
			resp = append(resp, model.ResponseBlock{Content: model.Content{model.TextBlock{Text: b.Text}}})
		case "thinking":
			resp = append(resp, model.ThinkingBlock{Text: b.Thinking})
		case "tool_use":
			resp = append(resp, model.ToolCallBlock{ID: b.ID, Name: b.Name, Arguments: b.Input})
		}
	}

	stopReason, err := providerutils.MapStopReason(apiName, r.StopReason)
	if err != nil {
		return model.AssistantMessage{}, err
	}
	if resp.HasToolCall() {
		stopReason = model.StopReasonToolUse
	}

	return model.AssistantMessage{
		ID:            r.ID,
		API:           apiName,
		Model:         modelID,
		StopReason:    stopReason,
		Content:       resp,
		Usage:         r.Usage.toModelUsage(),
		NativeMessage: nativeAssistantMessage(r),
	}, nil
}

func nativeAssistantMessage(r messagesResponse) map[string]interface{} {
	blocks := make([]map[string]interface{}, 0, len(r.Content))
	for _, b := range r.Content {
		switch b.Type {
		case "text":
			blocks = append(blocks, map[string]interface{}{"type": "text", "text": b.Text})
		case "thinking":
			blocks = append(blocks, map[string]interface{}{"type": "thinking", "thinking": b.Thinking})
		case "tool_use":
			blocks = append(blocks, map[string]interface{}{"type": "tool_use", "id": b.ID, "name": b.Name, "input": b.Input})
		}
	}
	return map[string]interface{}{"role": "assistant", "content": blocks}
}

// Stream runs one streaming Anthropic Messages turn, translating the
// provider's content_block_start/delta/stop + message_delta/stop event
// sequence into canonical AssistantEvents.
func (a *Adapter) Stream(ctx context.Context, m model.Model, c model.Context, opts model.Options) (*eventstream.Stream[model.AssistantEvent, model.AssistantMessage], error) {
	key, err := a.resolveKey(opts)
	if err != nil {
		return nil, err
	}
	body, err := a.buildRequest(key, m, c, opts, true)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.DoStream(ctx, http.Request{
		Method: "POST", Path: "/v1/messages", Headers: headersFor(key), Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic stream: %w", err)
	}

	s := eventstream.New[model.AssistantEvent, model.AssistantMessage](16)
	go a.pump(resp.Body, m.ID, s)
	return s, nil
}

// blockState accumulates one content_block's partial state across deltas.
type blockState struct {
	kind          string // "text", "thinking", "tool_use"
	text          string
	toolCallID    string
	toolCallName  string
	argsRaw       string // accumulated partial_json for a tool_use block
}

// pump reads the Anthropic SSE response and drives s until message_stop (or
// a stream error), translating each wire event into one or more canonical
// AssistantEvents.
func (a *Adapter) pump(body io.ReadCloser, modelID string, s *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]) {
	defer body.Close()
	parser := streaming.NewSSEParser(body)

	var (
		messageID  string
		stopReason model.StopReason = model.StopReasonStop
		usage      model.Usage
		blocks     = map[int]*blockState{}
		order      []int
		errMessage string
	)

	for {
		evt, err := parser.Next()
		if err != nil {
			if err != io.EOF {
				errMessage = err.Error()
			}
			break
		}
		if evt.Data == "" {
			continue
		}

		var payload map[string]interface{}
		if jsonErr := decodeJSON(evt.Data, &payload); jsonErr != nil {
			continue
		}

		switch stringField(payload, "type") {
		case "message_start":
			msg, _ := payload["message"].(map[string]interface{})
			messageID, _ = msg["id"].(string)
			if u, ok := msg["usage"].(map[string]interface{}); ok {
				usage.Input = intField(u, "input_tokens")
				usage.CacheWrite = intField(u, "cache_creation_input_tokens")
				usage.CacheRead = intField(u, "cache_read_input_tokens")
			}
			s.Push(model.AssistantEvent{Kind: model.EventStart})

		case "content_block_start":
			idx := intField(payload, "index")
			cb, _ := payload["content_block"].(map[string]interface{})
			kind := stringField(cb, "type")
			st := &blockState{kind: kind}
			if kind == "tool_use" {
				st.toolCallID, _ = cb["id"].(string)
				st.toolCallName, _ = cb["name"].(string)
			}
			blocks[idx] = st
			order = append(order, idx)

			switch kind {
			case "text":
				s.Push(model.AssistantEvent{Kind: model.EventTextStart, ContentIndex: idx})
			case "thinking":
				s.Push(model.AssistantEvent{Kind: model.EventThinkingStart, ContentIndex: idx})
			case "tool_use":
				s.Push(model.AssistantEvent{Kind: model.EventToolCallStart, ContentIndex: idx, ToolCallID: st.toolCallID, ToolCallName: st.toolCallName})
			}

		case "content_block_delta":
			idx := intField(payload, "index")
			st := blocks[idx]
			if st == nil {
				continue
			}
			delta, _ := payload["delta"].(map[string]interface{})
			switch stringField(delta, "type") {
			case "text_delta":
				text, _ := delta["text"].(string)
				st.text += text
				s.Push(model.AssistantEvent{Kind: model.EventTextDelta, ContentIndex: idx, TextDelta: text})
			case "thinking_delta":
				text, _ := delta["thinking"].(string)
				st.text += text
				s.Push(model.AssistantEvent{Kind: model.EventThinkingDelta, ContentIndex: idx, TextDelta: text})
			case "input_json_delta":
				chunk, _ := delta["partial_json"].(string)
				st.argsRaw += chunk
				s.Push(model.AssistantEvent{
					Kind: model.EventToolCallDelta, ContentIndex: idx,
					ToolCallID: st.toolCallID, ToolCallName: st.toolCallName,
					ToolCallDelta: chunk, Arguments: jsonparser.ParseObject(st.argsRaw),
				})
			}

		case "content_block_stop":
			idx := intField(payload, "index")
			st := blocks[idx]
			if st == nil {
				continue
			}
			switch st.kind {
			case "text":
				s.Push(model.AssistantEvent{Kind: model.EventTextEnd, ContentIndex: idx})
			case "thinking":
				s.Push(model.AssistantEvent{Kind: model.EventThinkingEnd, ContentIndex: idx})
			case "tool_use":
				s.Push(model.AssistantEvent{
					Kind: model.EventToolCallEnd, ContentIndex: idx,
					ToolCallID: st.toolCallID, ToolCallName: st.toolCallName,
					Arguments: jsonparser.ParseObject(st.argsRaw),
				})
			}

		case "message_delta":
			if delta, ok := payload["delta"].(map[string]interface{}); ok {
				if wireStop := stringField(delta, "stop_reason"); wireStop != "" {
					if mapped, mapErr := providerutils.MapStopReason(apiName, wireStop); mapErr == nil {
						stopReason = mapped
					}
				}
			}
			if u, ok := payload["usage"].(map[string]interface{}); ok {
				usage.Output = intField(u, "output_tokens")
			}

		case "message_stop":
			// Terminal marker; final assembly happens after the loop exits.
		}
	}

	resp := assembleResponse(blocks, order)
	if resp.HasToolCall() {
		stopReason = model.StopReasonToolUse
	}
	usage = usage.WithTotal()

	final := model.AssistantMessage{
		ID: messageID, API: apiName, Model: modelID,
		StopReason: stopReason, Content: resp, Usage: usage,
		ErrorMessage:  errMessage,
		NativeMessage: assembleNative(blocks, order),
	}
	if errMessage != "" {
		final.StopReason = model.StopReasonError
	}
	s.End(final)
}

func assembleResponse(blocks map[int]*blockState, order []int) model.AssistantResponse {
	var resp model.AssistantResponse
	for _, idx := range order {
		st := blocks[idx]
		switch st.kind {
		case "text":
			resp = append(resp, model.ResponseBlock{Content: model.Content{model.TextBlock{Text: st.text}}})
		case "thinking":
			resp = append(resp, model.ThinkingBlock{Text: st.text})
		case "tool_use":
			resp = append(resp, model.ToolCallBlock{ID: st.toolCallID, Name: st.toolCallName, Arguments: jsonparser.ParseObject(st.argsRaw)})
		}
	}
	return resp
}

func assembleNative(blocks map[int]*blockState, order []int) map[string]interface{} {
	wireBlocks := make([]map[string]interface{}, 0, len(order))
	for _, idx := range order {
		st := blocks[idx]
		switch st.kind {
		case "text":
			wireBlocks = append(wireBlocks, map[string]interface{}{"type": "text", "text": st.text})
		case "thinking":
			wireBlocks = append(wireBlocks, map[string]interface{}{"type": "thinking", "thinking": st.text})
		case "tool_use":
			wireBlocks = append(wireBlocks, map[string]interface{}{
				"type": "tool_use", "id": st.toolCallID, "name": st.toolCallName,
				"input": jsonparser.ParseObject(st.argsRaw),
			})
		}
	}
	return map[string]interface{}{"role": "assistant", "content": wireBlocks}
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func intField(m map[string]interface{}, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func decodeJSON(data string, out interface{}) error {
	return json.Unmarshal([]byte(data), out)
}
