// Package google adapts the Google GenAI (Gemini) API to the canonical
// model (spec.md §4.D), including the JSON Schema `const`/`anyOf` rewrite
// Google's tool-schema dialect requires (spec.md §6).
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/corvid-labs/chatmux/pkg/eventstream"
	"github.com/corvid-labs/chatmux/pkg/internal/http"
	"github.com/corvid-labs/chatmux/pkg/model"
	aierrors "github.com/corvid-labs/chatmux/pkg/provider/errors"
	"github.com/corvid-labs/chatmux/pkg/providerutils"
	"github.com/corvid-labs/chatmux/pkg/providerutils/prompt"
	"github.com/corvid-labs/chatmux/pkg/providerutils/streaming"
	"github.com/corvid-labs/chatmux/pkg/providerutils/tool"
)

const apiName = "google"

// Adapter implements provider.Adapter for the Google GenAI generateContent
// API.
type Adapter struct {
	client *http.Client
	apiKey string
}

// NewAdapter creates an Adapter. If baseURL is empty, the public Gemini API
// endpoint is used.
func NewAdapter(apiKey, baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
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
	return "", aierrors.NewMissingCredentialError(apiName, "GEMINI_API_KEY")
}

func (a *Adapter) buildRequest(m model.Model, c model.Context, opts model.Options) (map[string]interface{}, error) {
	turns, err := prompt.Render(c.Messages, apiName)
	if err != nil {
		return nil, err
	}

	var contents []map[string]interface{}
	for _, t := range turns {
		if t.Role == prompt.RoleAssistant {
			if native, ok := t.Native.(map[string]interface{}); ok {
				contents = append(contents, native)
				continue
			}
		}
		contents = append(contents, renderGoogleTurn(t))
	}

	body := map[string]interface{}{"contents": contents}
	if c.SystemPrompt != "" {
		body["systemInstruction"] = map[string]interface{}{
			"parts": []map[string]interface{}{{"text": c.SystemPrompt}},
		}
	}

	genConfig := map[string]interface{}{}
	if opts.Temperature != nil {
		genConfig["temperature"] = *opts.Temperature
	}
	if opts.TopP != nil {
		genConfig["topP"] = *opts.TopP
	}
	if opts.TopK != nil {
		genConfig["topK"] = *opts.TopK
	}
	maxTokens := m.MaxTokens
	if opts.MaxTokens != nil {
		maxTokens = *opts.MaxTokens
	}
	if maxTokens > 0 {
		genConfig["maxOutputTokens"] = maxTokens
	}
	if len(opts.StopSequences) > 0 {
		genConfig["stopSequences"] = opts.StopSequences
	}
	if len(genConfig) > 0 {
		body["generationConfig"] = genConfig
	}

	if len(c.Tools) > 0 && m.SupportsTools() {
		decls, err := googleFunctionDeclarations(c.Tools)
		if err != nil {
			return nil, err
		}
		body["tools"] = []map[string]interface{}{{"functionDeclarations": decls}}
	}
	return body, nil
}

// googleFunctionDeclarations rejects unresolved $ref in a tool's parameter
// schema rather than silently dropping it, per spec.md §9's open question on
// Google's $ref handling.
func googleFunctionDeclarations(tools []model.Tool) ([]map[string]interface{}, error) {
	for _, t := range tools {
		if containsRef(t.Parameters) {
			return nil, aierrors.NewTranslationUnsupportedError("canonical", apiName, "tool schema $ref")
		}
	}
	return tool.ToGoogleFormat(tools), nil
}

func containsRef(node interface{}) bool {
	switch n := node.(type) {
	case map[string]interface{}:
		if _, ok := n["$ref"]; ok {
			return true
		}
		for _, v := range n {
			if containsRef(v) {
				return true
			}
		}
	case []interface{}:
		for _, v := range n {
			if containsRef(v) {
				return true
			}
		}
	}
	return false
}

func renderGoogleTurn(t prompt.Turn) map[string]interface{} {
	role := "user"
	if t.Role == prompt.RoleAssistant {
		role = "model"
	}

	var parts []map[string]interface{}
	for _, p := range t.Parts {
		switch part := p.(type) {
		case prompt.TextPart:
			parts = append(parts, map[string]interface{}{"text": part.Text})
		case prompt.ThinkingPart:
			parts = append(parts, map[string]interface{}{"text": part.Text, "thought": true})
		case prompt.ToolCallPart:
			parts = append(parts, map[string]interface{}{
				"functionCall": map[string]interface{}{"name": part.Name, "args": part.Arguments},
			})
		case prompt.ToolResultPart:
			text := part.Text
			if part.IsError {
				text = "[TOOL ERROR] " + text
			}
			parts = append(parts, map[string]interface{}{
				"functionResponse": map[string]interface{}{
					"name":     part.ToolName,
					"response": map[string]interface{}{"output": text},
				},
			})
		case prompt.ImagePart:
			parts = append(parts, map[string]interface{}{
				"inlineData": map[string]interface{}{"mimeType": part.MimeType, "data": part.Base64},
			})
		}
	}
	return map[string]interface{}{"role": role, "parts": parts}
}

func modelPath(modelID string) string {
	return "/v1beta/models/" + modelID
}

// Complete runs one non-streaming generateContent turn.
func (a *Adapter) Complete(ctx context.Context, m model.Model, c model.Context, opts model.Options) (model.AssistantMessage, error) {
	key, err := a.resolveKey(opts)
	if err != nil {
		return model.AssistantMessage{}, err
	}
	body, err := a.buildRequest(m, c, opts)
	if err != nil {
		return model.AssistantMessage{}, err
	}

	var wire generateContentResponse
	if err := a.client.DoJSON(ctx, http.Request{
		Method: "POST", Path: modelPath(m.ID) + ":generateContent",
		Headers: map[string]string{"x-goog-api-key": key}, Body: body,
	}, &wire); err != nil {
		return model.AssistantMessage{}, fmt.Errorf("google complete: %w", err)
	}
	return wire.toAssistantMessage(m.ID)
}

type generateContentResponse struct {
	Candidates    []googleCandidate `json:"candidates"`
	UsageMetadata googleUsage       `json:"usageMetadata"`
}

type googleCandidate struct {
	Content      googleContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type googleContent struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text         string                 `json:"text"`
	Thought      bool                   `json:"thought"`
	FunctionCall *googleFunctionCall    `json:"functionCall"`
}

type googleFunctionCall struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args"`
}

type googleUsage struct {
	PromptTokenCount        int `json:"promptTokenCount"`
	CandidatesTokenCount    int `json:"candidatesTokenCount"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount"`
	CachedContentTokenCount int `json:"cachedContentTokenCount"`
}

// toModelUsage applies spec.md §4.D.2's Google rule: input excludes cached
// content tokens, output includes the thinking-token count.
func (u googleUsage) toModelUsage() model.Usage {
	input := u.PromptTokenCount - u.CachedContentTokenCount
	if input < 0 {
		input = 0
	}
	usage := model.Usage{
		Input:     input,
		Output:    u.CandidatesTokenCount + u.ThoughtsTokenCount,
		CacheRead: u.CachedContentTokenCount,
	}
	return usage.WithTotal()
}

func (r generateContentResponse) toAssistantMessage(modelID string) (model.AssistantMessage, error) {
	if len(r.Candidates) == 0 {
		return model.AssistantMessage{}, aierrors.NewProtocolError(apiName, "generateContent response carried no candidates")
	}
	cand := r.Candidates[0]

	var resp model.AssistantResponse
	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			resp = append(resp, model.ToolCallBlock{Name: p.FunctionCall.Name, Arguments: p.FunctionCall.Args})
		case p.Thought:
			resp = append(resp, model.ThinkingBlock{Text: p.Text})
		default:
			resp = append(resp, model.ResponseBlock{Content: model.Content{model.TextBlock{Text: p.Text}}})
		}
	}

	stopReason, err := providerutils.MapStopReason(apiName, cand.FinishReason)
	if err != nil {
		return model.AssistantMessage{}, err
	}
	if resp.HasToolCall() {
		stopReason = model.StopReasonToolUse
	}

	return model.AssistantMessage{
		API: apiName, Model: modelID,
		StopReason:    stopReason,
		Content:       resp,
		Usage:         r.UsageMetadata.toModelUsage(),
		NativeMessage: map[string]interface{}{"role": "model", "parts": nativeParts(cand.Content.Parts)},
	}, nil
}

func nativeParts(parts []googlePart) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.FunctionCall != nil:
			out = append(out, map[string]interface{}{"functionCall": map[string]interface{}{"name": p.FunctionCall.Name, "args": p.FunctionCall.Args}})
		case p.Thought:
			out = append(out, map[string]interface{}{"text": p.Text, "thought": true})
		default:
			out = append(out, map[string]interface{}{"text": p.Text})
		}
	}
	return out
}

// Stream runs one streaming streamGenerateContent turn over SSE.
func (a *Adapter) Stream(ctx context.Context, m model.Model, c model.Context, opts model.Options) (*eventstream.Stream[model.AssistantEvent, model.AssistantMessage], error) {
	key, err := a.resolveKey(opts)
	if err != nil {
		return nil, err
	}
	body, err := a.buildRequest(m, c, opts)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.DoStream(ctx, http.Request{
		Method: "POST", Path: modelPath(m.ID) + ":streamGenerateContent",
		Headers: map[string]string{"x-goog-api-key": key}, Query: map[string]string{"alt": "sse"}, Body: body,
	})
	if err != nil {
		return nil, fmt.Errorf("google stream: %w", err)
	}

	s := eventstream.New[model.AssistantEvent, model.AssistantMessage](16)
	go a.pump(resp.Body, m.ID, s)
	return s, nil
}

// pump reads the streamGenerateContent SSE response. Google's stream is
// chunked by whole-part rather than incremental text, so each chunk both
// opens and closes its own block; there is no separate delta phase.
func (a *Adapter) pump(body io.ReadCloser, modelID string, s *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]) {
	defer body.Close()
	parser := streaming.NewSSEParser(body)

	var (
		stopReason model.StopReason = model.StopReasonStop
		usage      model.Usage
		resp       model.AssistantResponse
		idx        int
		errMessage string
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
		if evt.Data == "" {
			continue
		}

		var chunk generateContentResponse
		if jsonErr := json.Unmarshal([]byte(evt.Data), &chunk); jsonErr != nil {
			continue
		}
		if chunk.UsageMetadata.PromptTokenCount > 0 {
			merged := chunk.UsageMetadata.toModelUsage()
			if usage.Input == 0 {
				usage.Input = merged.Input
			}
			usage.Output = merged.Output
			if usage.CacheRead == 0 {
				usage.CacheRead = merged.CacheRead
			}
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]
		if cand.FinishReason != "" {
			if mapped, mapErr := providerutils.MapStopReason(apiName, cand.FinishReason); mapErr == nil {
				stopReason = mapped
			}
		}
		for _, p := range cand.Content.Parts {
			switch {
			case p.FunctionCall != nil:
				s.Push(model.AssistantEvent{Kind: model.EventToolCallStart, ContentIndex: idx, ToolCallName: p.FunctionCall.Name})
				s.Push(model.AssistantEvent{Kind: model.EventToolCallEnd, ContentIndex: idx, ToolCallName: p.FunctionCall.Name, Arguments: p.FunctionCall.Args})
				resp = append(resp, model.ToolCallBlock{Name: p.FunctionCall.Name, Arguments: p.FunctionCall.Args})
			case p.Thought:
				s.Push(model.AssistantEvent{Kind: model.EventThinkingStart, ContentIndex: idx})
				s.Push(model.AssistantEvent{Kind: model.EventThinkingDelta, ContentIndex: idx, TextDelta: p.Text})
				s.Push(model.AssistantEvent{Kind: model.EventThinkingEnd, ContentIndex: idx})
				resp = append(resp, model.ThinkingBlock{Text: p.Text})
			default:
				s.Push(model.AssistantEvent{Kind: model.EventTextStart, ContentIndex: idx})
				s.Push(model.AssistantEvent{Kind: model.EventTextDelta, ContentIndex: idx, TextDelta: p.Text})
				s.Push(model.AssistantEvent{Kind: model.EventTextEnd, ContentIndex: idx})
				resp = append(resp, model.ResponseBlock{Content: model.Content{model.TextBlock{Text: p.Text}}})
			}
			idx++
		}
	}

	if resp.HasToolCall() {
		stopReason = model.StopReasonToolUse
	}
	usage = usage.WithTotal()

	final := model.AssistantMessage{
		API: apiName, Model: modelID,
		StopReason: stopReason, Content: resp, Usage: usage,
		ErrorMessage: errMessage,
	}
	if errMessage != "" {
		final.StopReason = model.StopReasonError
	}
	s.End(final)
}
