// Package openresponses adapts the OpenAI Responses API to the canonical
// model (spec.md §4.D), including the `developer`-role system prompt and
// concatenated reasoning-summary parts named in spec.md §6.
package openresponses

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

const apiName = "openai-responses"

// Adapter implements provider.Adapter for the OpenAI Responses API.
type Adapter struct {
	client *http.Client
	apiKey string
}

// NewAdapter creates an Adapter. If baseURL is empty, the public OpenAI API
// is used.
func NewAdapter(apiKey, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &Adapter{apiKey: apiKey, client: http.NewClient(http.Config{BaseURL: baseURL})}
}

// API identifies this adapter's wire dialect.
func (a *Adapter) API() string { return apiName }

func (a *Adapter) resolveKey(opts model.Options) (string, error) {
	if opts.APIKey != "" {
		return opts.APIKey, nil
	}
	if a.apiKey != "" {
		return a.apiKey, nil
	}
	return "", aierrors.NewMissingCredentialError(apiName, "OPENAI_API_KEY")
}

func (a *Adapter) buildRequest(m model.Model, c model.Context, opts model.Options, stream bool) (map[string]interface{}, error) {
	turns, err := prompt.Render(c.Messages, apiName)
	if err != nil {
		return nil, err
	}

	var input []map[string]interface{}
	if c.SystemPrompt != "" {
		input = append(input, map[string]interface{}{
			"role":    "developer",
			"content": []map[string]interface{}{{"type": "input_text", "text": c.SystemPrompt}},
		})
	}
	for _, t := range turns {
		if t.Role == prompt.RoleAssistant {
			if native, ok := t.Native.([]map[string]interface{}); ok {
				input = append(input, native...)
				continue
			}
		}
		input = append(input, renderResponsesTurn(t)...)
	}

	body := map[string]interface{}{
		"model":  m.ID,
		"input":  input,
		"stream": stream,
	}
	if opts.Temperature != nil {
		body["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		body["top_p"] = *opts.TopP
	}
	maxTokens := m.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	if maxTokens > 0 {
		body["max_output_tokens"] = maxTokens
	}
	if len(c.Tools) > 0 && m.SupportsTools() {
		body["tools"] = tool.ToOpenAIFormat(c.Tools)
	}
	if m.Reasoning {
		body["reasoning"] = map[string]interface{}{"summary": "auto"}
	}
	return body, nil
}

// renderResponsesTurn renders one prompt.Turn into zero or more Responses
// API input items. A tool-result turn becomes one function_call_output
// item; a user/assistant turn becomes one message item, with any
// ToolCallPart split out into a sibling function_call item, since the
// Responses API represents tool calls as top-level items rather than
// content parts.
func renderResponsesTurn(t prompt.Turn) []map[string]interface{} {
	if t.Role == prompt.RoleTool {
		for _, p := range t.Parts {
			if tr, ok := p.(prompt.ToolResultPart); ok {
				text := tr.Text
				if tr.IsError {
					text = "[TOOL ERROR] " + text
				}
				return []map[string]interface{}{{
					"type":    "function_call_output",
					"call_id": tr.ToolCallID,
					"output":  text,
				}}
			}
		}
		return nil
	}

	contentType := "input_text"
	role := string(t.Role)
	if t.Role == prompt.RoleAssistant {
		contentType = "output_text"
	}

	var items []map[string]interface{}
	var content []map[string]interface{}
	var reasoningText string
	for _, p := range t.Parts {
		switch part := p.(type) {
		case prompt.TextPart:
			content = append(content, map[string]interface{}{"type": contentType, "text": part.Text})
		case prompt.ThinkingPart:
			reasoningText += part.Text
		case prompt.ImagePart:
			content = append(content, map[string]interface{}{
				"type":      "input_image",
				"image_url": "data:" + part.MimeType + ";base64," + part.Base64,
			})
		case prompt.FilePart:
			content = append(content, map[string]interface{}{
				"type":      "input_file",
				"file_data": "data:" + part.MimeType + ";base64," + part.Base64,
				"filename":  part.Name,
			})
		case prompt.ToolCallPart:
			argsJSON := part.ArgumentsJSON
			if argsJSON == "" {
				if b, err := json.Marshal(part.Arguments); err == nil {
					argsJSON = string(b)
				}
			}
			items = append(items, map[string]interface{}{
				"type": "function_call", "call_id": part.ID, "name": part.Name, "arguments": argsJSON,
			})
		}
	}

	if reasoningText != "" {
		items = append(items, map[string]interface{}{
			"type":    "reasoning",
			"summary": []map[string]interface{}{{"type": "summary_text", "text": reasoningText}},
		})
	}
	if len(content) > 0 {
		items = append([]map[string]interface{}{{"role": role, "content": content}}, items...)
	}
	return items
}

// resolveKey header
func (a *Adapter) headers(key string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + key}
}

// Complete runs one non-streaming Responses turn.
func (a *Adapter) Complete(ctx context.Context, m model.Model, c model.Context, opts model.Options) (model.AssistantMessage, error) {
	key, err := a.resolveKey(opts)
	if err != nil {
		return model.AssistantMessage{}, err
	}
	body, err := a.buildRequest(m, c, opts, false)
	if err != nil {
		return model.AssistantMessage{}, err
	}

	var wire responsesResponse
	if err := a.client.DoJSON(ctx, http.Request{
		Method: "POST", Path: "/responses", Headers: a.headers(key), Body: body,
	}, &wire); err != nil {
		return model.AssistantMessage{}, fmt.Errorf("openai-responses complete: %w", err)
	}
	return wire.toAssistantMessage(m.ID)
}

type responsesResponse struct {
	ID                string             `json:"id"`
	Status            string             `json:"status"`
	Output            []responsesItem    `json:"output"`
	Usage             responsesUsage     `json:"usage"`
	IncompleteDetails *incompleteDetails `json:"incomplete_details"`
}

type incompleteDetails struct {
	Reason string `json:"reason"`
}

type responsesItem struct {
	Type      string                `json:"type"`
	Role      string                `json:"role"`
	Content   []responsesContent    `json:"content"`
	Summary   []responsesSummary    `json:"summary"`
	CallID    string                `json:"call_id"`
	Name      string                `json:"name"`
	Arguments string                `json:"arguments"`
}

type responsesContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesSummary struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesUsage struct {
	InputTokens        int                    `json:"input_tokens"`
	OutputTokens       int                    `json:"output_tokens"`
	InputTokensDetails map[string]interface{} `json:"input_tokens_details"`
}

func (u responsesUsage) toModelUsage() model.Usage {
	cached := 0
	if v, ok := u.InputTokensDetails["cached_tokens"].(float64); ok {
		cached = int(v)
	}
	input := u.InputTokens - cached
	if input < 0 {
		input = 0
	}
	usage := model.Usage{Input: input, Output: u.OutputTokens, CacheRead: cached}
	return usage.WithTotal()
}

// statusStopReason maps status/incomplete_details.reason onto the canonical
// stop reason, since the Responses API reports completion via `status`
// rather than a per-choice finish_reason string.
func statusStopReason(status string, incomplete *incompleteDetails) (model.StopReason, error) {
	switch status {
	case "completed":
		return model.StopReasonStop, nil
	case "incomplete":
		if incomplete != nil && incomplete.Reason == "max_output_tokens" {
			return model.StopReasonLength, nil
		}
		return model.StopReasonError, nil
	case "failed", "cancelled":
		return model.StopReasonError, nil
	default:
		return providerutils.MapStopReason(apiName, status)
	}
}

func (r responsesResponse) toAssistantMessage(modelID string) (model.AssistantMessage, error) {
	var resp model.AssistantResponse
	for _, item := range r.Output {
		switch item.Type {
		case "message":
			var text strings.Builder
			for _, c := range item.Content {
				text.WriteString(c.Text)
			}
			resp = append(resp, model.ResponseBlock{Content: model.Content{model.TextBlock{Text: text.String()}}})
		case "reasoning":
			resp = append(resp, model.ThinkingBlock{Text: joinSummary(item.Summary)})
		case "function_call":
			args, err := tool.ParseToolCallArguments(item.Arguments)
			if err != nil {
				args = map[string]interface{}{}
			}
			resp = append(resp, model.ToolCallBlock{ID: item.CallID, Name: item.Name, Arguments: args})
		}
	}

	stopReason, err := statusStopReason(r.Status, r.IncompleteDetails)
	if err != nil {
		return model.AssistantMessage{}, err
	}
	if resp.HasToolCall() {
		stopReason = model.StopReasonToolUse
	}

	return model.AssistantMessage{
		ID: r.ID, API: apiName, Model: modelID,
		StopReason: stopReason, Content: resp, Usage: r.Usage.toModelUsage(),
	}, nil
}

// joinSummary concatenates a reasoning item's summary parts with "\n\n",
// per spec.md §6.
func joinSummary(parts []responsesSummary) string {
	texts := make([]string, len(parts))
	for i, p := range parts {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n\n")
}

// Stream runs one streaming Responses turn over SSE.
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
		Method: "POST", Path: "/responses", Headers: a.headers(key), Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("openai-responses stream: %w", err)
	}

	s := eventstream.New[model.AssistantEvent, model.AssistantMessage](16)
	go a.pump(resp.Body, m.ID, s)
	return s, nil
}

// responsesBlock tracks one output item's in-progress state, keyed by its
// output_index.
type responsesBlock struct {
	kind       string // "text", "reasoning", "function_call"
	text       string
	callID     string
	name       string
	argsRaw    string
}

// pump reads the Responses API SSE stream, keyed by the structured `type`
// field on each event (response.output_item.added/.output_text.delta/
// .reasoning_summary_text.delta/.function_call_arguments.delta/.completed),
// translating into canonical AssistantEvents.
func (a *Adapter) pump(body io.ReadCloser, modelID string, s *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]) {
	defer body.Close()
	parser := streaming.NewSSEParser(body)

	var (
		messageID  string
		stopReason model.StopReason = model.StopReasonStop
		usage      model.Usage
		blocks     = map[int]*responsesBlock{}
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
		if jsonErr := json.Unmarshal([]byte(evt.Data), &payload); jsonErr != nil {
			continue
		}

		switch stringField(payload, "type") {
		case "response.created":
			s.Push(model.AssistantEvent{Kind: model.EventStart})
			if respObj, ok := payload["response"].(map[string]interface{}); ok {
				messageID, _ = respObj["id"].(string)
			}

		case "response.output_item.added":
			idx := intField(payload, "output_index")
			item, _ := payload["item"].(map[string]interface{})
			kind := stringField(item, "type")
			switch kind {
			case "message":
				blocks[idx] = &responsesBlock{kind: "text"}
				order = append(order, idx)
				s.Push(model.AssistantEvent{Kind: model.EventTextStart, ContentIndex: idx})
			case "reasoning":
				blocks[idx] = &responsesBlock{kind: "reasoning"}
				order = append(order, idx)
				s.Push(model.AssistantEvent{Kind: model.EventThinkingStart, ContentIndex: idx})
			case "function_call":
				callID, _ := item["call_id"].(string)
				name, _ := item["name"].(string)
				blocks[idx] = &responsesBlock{kind: "function_call", callID: callID, name: name}
				order = append(order, idx)
				s.Push(model.AssistantEvent{Kind: model.EventToolCallStart, ContentIndex: idx, ToolCallID: callID, ToolCallName: name})
			}

		case "response.output_text.delta":
			idx := intField(payload, "output_index")
			st := blocks[idx]
			if st == nil {
				continue
			}
			delta, _ := payload["delta"].(string)
			st.text += delta
			s.Push(model.AssistantEvent{Kind: model.EventTextDelta, ContentIndex: idx, TextDelta: delta})

		case "response.output_text.done":
			idx := intField(payload, "output_index")
			if st := blocks[idx]; st != nil {
				if text, ok := payload["text"].(string); ok {
					st.text = text
				}
			}

		case "response.reasoning_summary_text.delta":
			idx := intField(payload, "output_index")
			st := blocks[idx]
			if st == nil {
				continue
			}
			delta, _ := payload["delta"].(string)
			st.text += delta
			s.Push(model.AssistantEvent{Kind: model.EventThinkingDelta, ContentIndex: idx, TextDelta: delta})

		case "response.reasoning_summary_text.done":
			idx := intField(payload, "output_index")
			if st := blocks[idx]; st != nil {
				if text, ok := payload["text"].(string); ok {
					st.text = text
				}
			}

		case "response.function_call_arguments.delta":
			idx := intField(payload, "output_index")
			st := blocks[idx]
			if st == nil {
				continue
			}
			delta, _ := payload["delta"].(string)
			st.argsRaw += delta
			s.Push(model.AssistantEvent{
				Kind: model.EventToolCallDelta, ContentIndex: idx,
				ToolCallID: st.callID, ToolCallName: st.name,
				ToolCallDelta: delta, Arguments: jsonparser.ParseObject(st.argsRaw),
			})

		case "response.function_call_arguments.done":
			idx := intField(payload, "output_index")
			if st := blocks[idx]; st != nil {
				if args, ok := payload["arguments"].(string); ok {
					st.argsRaw = args
				}
			}

		case "response.output_item.done":
			idx := intField(payload, "output_index")
			st := blocks[idx]
			if st == nil {
				continue
			}
			switch st.kind {
			case "text":
				s.Push(model.AssistantEvent{Kind: model.EventTextEnd, ContentIndex: idx})
			case "reasoning":
				s.Push(model.AssistantEvent{Kind: model.EventThinkingEnd, ContentIndex: idx})
			case "function_call":
				s.Push(model.AssistantEvent{
					Kind: model.EventToolCallEnd, ContentIndex: idx,
					ToolCallID: st.callID, ToolCallName: st.name,
					Arguments: jsonparser.ParseObject(st.argsRaw),
				})
			}

		case "response.completed", "response.incomplete", "response.failed":
			if respObj, ok := payload["response"].(map[string]interface{}); ok {
				status, _ := respObj["status"].(string)
				var incomplete *incompleteDetails
				if id, ok := respObj["incomplete_details"].(map[string]interface{}); ok {
					reason, _ := id["reason"].(string)
					incomplete = &incompleteDetails{Reason: reason}
				}
				if mapped, mapErr := statusStopReason(status, incomplete); mapErr == nil {
					stopReason = mapped
				}
				if u, ok := respObj["usage"].(map[string]interface{}); ok {
					var wireUsage responsesUsage
					if b, mErr := json.Marshal(u); mErr == nil {
						_ = json.Unmarshal(b, &wireUsage)
					}
					merged := wireUsage.toModelUsage()
					if usage.Input == 0 {
						usage.Input = merged.Input
					}
					usage.Output = merged.Output
					if usage.CacheRead == 0 {
						usage.CacheRead = merged.CacheRead
					}
				}
			}
		}
	}

	resp := assembleResponsesResponse(blocks, order)
	if resp.HasToolCall() {
		stopReason = model.StopReasonToolUse
	}
	usage = usage.WithTotal()

	final := model.AssistantMessage{
		ID: messageID, API: apiName, Model: modelID,
		StopReason: stopReason, Content: resp, Usage: usage,
		ErrorMessage: errMessage,
	}
	if errMessage != "" {
		final.StopReason = model.StopReasonError
	}
	s.End(final)
}

func assembleResponsesResponse(blocks map[int]*responsesBlock, order []int) model.AssistantResponse {
	var resp model.AssistantResponse
	for _, idx := range order {
		st := blocks[idx]
		switch st.kind {
		case "text":
			resp = append(resp, model.ResponseBlock{Content: model.Content{model.TextBlock{Text: st.text}}})
		case "reasoning":
			resp = append(resp, model.ThinkingBlock{Text: st.text})
		case "function_call":
			resp = append(resp, model.ToolCallBlock{ID: st.callID, Name: st.name, Arguments: jsonparser.ParseObject(st.argsRaw)})
		}
	}
	return resp
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
