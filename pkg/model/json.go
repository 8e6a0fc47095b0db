package model

import (
	"encoding/json"
	"fmt"
)

// contentBlockEnvelope is the wire shape used to serialize/deserialize the
// ContentBlock tagged union: a discriminant "type" field alongside the
// variant's own fields.
type contentBlockEnvelope struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// MarshalJSON implements json.Marshaler for Content by tagging each block
// with its "type" discriminant.
func (c Content) MarshalJSON() ([]byte, error) {
	envs := make([]contentBlockEnvelope, len(c))
	for i, b := range c {
		switch v := b.(type) {
		case TextBlock:
			envs[i] = contentBlockEnvelope{Type: "text", Text: v.Text}
		case ImageBlock:
			envs[i] = contentBlockEnvelope{Type: "image", Data: v.Data, MimeType: v.MimeType}
		case FileBlock:
			envs[i] = contentBlockEnvelope{Type: "file", Data: v.Data, MimeType: v.MimeType, Filename: v.Filename}
		default:
			return nil, fmt.Errorf("model: unknown content block type %T", b)
		}
	}
	return json.Marshal(envs)
}

// UnmarshalJSON implements json.Unmarshaler for Content.
func (c *Content) UnmarshalJSON(data []byte) error {
	var envs []contentBlockEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	out := make(Content, 0, len(envs))
	for _, e := range envs {
		switch e.Type {
		case "text":
			out = append(out, TextBlock{Text: e.Text})
		case "image":
			out = append(out, ImageBlock{Data: e.Data, MimeType: e.MimeType})
		case "file":
			out = append(out, FileBlock{Data: e.Data, MimeType: e.MimeType, Filename: e.Filename})
		default:
			return fmt.Errorf("model: unknown content block type %q", e.Type)
		}
	}
	*c = out
	return nil
}

// assistantBlockEnvelope is the wire shape for the AssistantBlock union.
type assistantBlockEnvelope struct {
	Type      string                 `json:"type"`
	Content   Content                `json:"content,omitempty"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// MarshalJSON implements json.Marshaler for AssistantResponse.
func (r AssistantResponse) MarshalJSON() ([]byte, error) {
	envs := make([]assistantBlockEnvelope, len(r))
	for i, b := range r {
		switch v := b.(type) {
		case ResponseBlock:
			envs[i] = assistantBlockEnvelope{Type: "response", Content: v.Content}
		case ThinkingBlock:
			envs[i] = assistantBlockEnvelope{Type: "thinking", Text: v.Text}
		case ToolCallBlock:
			envs[i] = assistantBlockEnvelope{Type: "toolCall", ID: v.ID, Name: v.Name, Arguments: v.Arguments}
		default:
			return nil, fmt.Errorf("model: unknown assistant block type %T", b)
		}
	}
	return json.Marshal(envs)
}

// UnmarshalJSON implements json.Unmarshaler for AssistantResponse.
func (r *AssistantResponse) UnmarshalJSON(data []byte) error {
	var envs []assistantBlockEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	out := make(AssistantResponse, 0, len(envs))
	for _, e := range envs {
		switch e.Type {
		case "response":
			out = append(out, ResponseBlock{Content: e.Content})
		case "thinking":
			out = append(out, ThinkingBlock{Text: e.Text})
		case "toolCall":
			out = append(out, ToolCallBlock{ID: e.ID, Name: e.Name, Arguments: e.Arguments})
		default:
			return fmt.Errorf("model: unknown assistant block type %q", e.Type)
		}
	}
	*r = out
	return nil
}

// messageEnvelope is the wire shape for the Message tagged union. NativeData
// carries AssistantMessage.NativeMessage as opaque, adapter-specific JSON
// (per spec.md §4.A, the native form is not deserialized back into a typed
// Go value here).
type messageEnvelope struct {
	Kind         string                 `json:"kind"`
	ID           string                 `json:"id"`
	Content      Content                `json:"content,omitempty"`
	Timestamp    int64                  `json:"timestamp,omitempty"`
	ToolCallID   string                 `json:"toolCallId,omitempty"`
	ToolName     string                 `json:"toolName,omitempty"`
	IsError      bool                   `json:"isError,omitempty"`
	Error        *ToolResultError       `json:"error,omitempty"`
	Details      map[string]interface{} `json:"details,omitempty"`
	API          string                 `json:"api,omitempty"`
	Model        string                 `json:"model,omitempty"`
	DurationMs   int64                  `json:"duration,omitempty"`
	StopReason   StopReason             `json:"stopReason,omitempty"`
	AssistantMsg AssistantResponse      `json:"assistantContent,omitempty"`
	Usage        Usage                  `json:"usage,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	NativeData   json.RawMessage        `json:"nativeMessage,omitempty"`
	Payload      interface{}            `json:"payload,omitempty"`
}

// MarshalMessage serializes a single Message to its envelope form. The
// nativeMessage field is marshaled opaquely via json.Marshal of whatever
// interface{} the adapter stored there.
func MarshalMessage(m Message) ([]byte, error) {
	switch v := m.(type) {
	case UserMessage:
		return json.Marshal(messageEnvelope{Kind: "user", ID: v.ID, Content: v.Content, Timestamp: v.Timestamp})
	case ToolResultMessage:
		return json.Marshal(messageEnvelope{
			Kind: "toolResult", ID: v.ID, ToolCallID: v.ToolCallID, ToolName: v.ToolName,
			Content: v.Content, IsError: v.IsError, Error: v.Error, Details: v.Details, Timestamp: v.Timestamp,
		})
	case AssistantMessage:
		var native json.RawMessage
		if v.NativeMessage != nil {
			b, err := json.Marshal(v.NativeMessage)
			if err != nil {
				return nil, err
			}
			native = b
		}
		return json.Marshal(messageEnvelope{
			Kind: "assistant", ID: v.ID, API: v.API, Model: v.Model, Timestamp: v.Timestamp,
			DurationMs: v.DurationMs, StopReason: v.StopReason, AssistantMsg: v.Content,
			Usage: v.Usage, ErrorMessage: v.ErrorMessage, NativeData: native,
		})
	case CustomMessage:
		return json.Marshal(messageEnvelope{Kind: "custom", ID: v.ID, Payload: v.Payload, Timestamp: v.Timestamp})
	default:
		return nil, fmt.Errorf("model: unknown message type %T", m)
	}
}

// UnmarshalMessage deserializes a single Message from its envelope form.
// AssistantMessage.NativeMessage is left as the raw map[string]interface{}
// decoding of the stored JSON since its concrete shape is adapter-specific
// and opaque to this package.
func UnmarshalMessage(data []byte) (Message, error) {
	var e messageEnvelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	switch e.Kind {
	case "user":
		return UserMessage{ID: e.ID, Content: e.Content, Timestamp: e.Timestamp}, nil
	case "toolResult":
		return ToolResultMessage{
			ID: e.ID, ToolCallID: e.ToolCallID, ToolName: e.ToolName, Content: e.Content,
			IsError: e.IsError, Error: e.Error, Details: e.Details, Timestamp: e.Timestamp,
		}, nil
	case "assistant":
		var native interface{}
		if len(e.NativeData) > 0 {
			if err := json.Unmarshal(e.NativeData, &native); err != nil {
				return nil, err
			}
		}
		return AssistantMessage{
			ID: e.ID, API: e.API, Model: e.Model, Timestamp: e.Timestamp, DurationMs: e.DurationMs,
			StopReason: e.StopReason, Content: e.AssistantMsg, Usage: e.Usage,
			ErrorMessage: e.ErrorMessage, NativeMessage: native,
		}, nil
	case "custom":
		return CustomMessage{ID: e.ID, Payload: e.Payload, Timestamp: e.Timestamp}, nil
	default:
		return nil, fmt.Errorf("model: unknown message kind %q", e.Kind)
	}
}

// MarshalMessages serializes an ordered message list.
func MarshalMessages(msgs []Message) ([]byte, error) {
	raws := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		b, err := MarshalMessage(m)
		if err != nil {
			return nil, err
		}
		raws[i] = b
	}
	return json.Marshal(raws)
}

// UnmarshalMessages deserializes an ordered message list.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	out := make([]Message, len(raws))
	for i, r := range raws {
		m, err := UnmarshalMessage(r)
		if err != nil {
			return nil, err
		}
		out[i] = m
	}
	return out, nil
}
