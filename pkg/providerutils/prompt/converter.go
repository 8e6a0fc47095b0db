// Package prompt renders the canonical model.Context message history into a
// provider-agnostic intermediate form that each adapter's request builder
// maps onto its own wire JSON (spec.md §4.D.1).
package prompt

import (
	"encoding/json"
	"fmt"

	"github.com/corvid-labs/chatmux/pkg/model"
)

// Role is the coarse speaker of a rendered turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Part is one piece of a rendered turn's content, in emission order.
type Part interface{ isPart() }

// TextPart is plain text, from a user message, a Response block, or a tool
// result's text content.
type TextPart struct{ Text string }

func (TextPart) isPart() {}

// ImagePart is base64-encoded inline image data.
type ImagePart struct {
	MimeType string
	Base64   string
}

func (ImagePart) isPart() {}

// FilePart is a non-image attachment, base64-encoded inline.
type FilePart struct {
	MimeType string
	Name     string
	Base64   string
}

func (FilePart) isPart() {}

// ThinkingPart is a model's reasoning trace. WireNative is filled in by the
// adapter if its target API has a first-class reasoning field; otherwise the
// adapter calls WrapThinking to fold it into the text body, per spec.md
// §4.D.1.
type ThinkingPart struct{ Text string }

func (ThinkingPart) isPart() {}

// ToolCallPart is a function call an assistant turn made.
type ToolCallPart struct {
	ID            string
	Name          string
	Arguments     map[string]interface{}
	ArgumentsJSON string // Arguments stringified, for wire formats that demand a JSON string
}

func (ToolCallPart) isPart() {}

// ToolResultPart is the outcome of one tool invocation.
type ToolResultPart struct {
	ToolCallID string
	ToolName   string
	Text       string
	IsError    bool
}

func (ToolResultPart) isPart() {}

// Turn is one rendered history entry.
type Turn struct {
	Role Role
	Parts []Part

	// Native is the adapter's own wire-format representation of this turn,
	// populated only when the message was produced by, and is being rendered
	// back for, the same provider (model.AssistantMessage.API == targetAPI).
	// Per spec.md §4.D.4 an adapter should prefer Native when non-nil and of
	// a type it recognizes, falling back to Parts otherwise.
	Native interface{}
}

// Render converts a message history into a provider-agnostic turn sequence.
// targetAPI identifies the adapter calling Render, so it can decide whether
// an assistant turn's Native form applies.
func Render(messages []model.Message, targetAPI string) ([]Turn, error) {
	turns := make([]Turn, 0, len(messages))
	for _, msg := range messages {
		switch m := msg.(type) {
		case model.CustomMessage:
			continue // opaque caller data, never sent to a model
		case model.UserMessage:
			turns = append(turns, Turn{Role: RoleUser, Parts: contentParts(m.Content)})
		case model.ToolResultMessage:
			turns = append(turns, Turn{Role: RoleTool, Parts: []Part{toolResultPart(m)}})
		case model.AssistantMessage:
			turn := Turn{Role: RoleAssistant}
			if m.API == targetAPI && m.NativeMessage != nil {
				turn.Native = m.NativeMessage
			}
			parts, err := assistantParts(m.Content)
			if err != nil {
				return nil, err
			}
			turn.Parts = parts
			turns = append(turns, turn)
		default:
			return nil, fmt.Errorf("prompt: unknown message kind %T", msg)
		}
	}
	return turns, nil
}

func contentParts(c model.Content) []Part {
	parts := make([]Part, 0, len(c))
	for _, block := range c {
		switch b := block.(type) {
		case model.TextBlock:
			parts = append(parts, TextPart{Text: b.Text})
		case model.ImageBlock:
			parts = append(parts, ImagePart{MimeType: b.MimeType, Base64: b.Data})
		case model.FileBlock:
			parts = append(parts, FilePart{MimeType: b.MimeType, Name: b.Filename, Base64: b.Data})
		}
	}
	return parts
}

func toolResultPart(m model.ToolResultMessage) Part {
	text := m.Content.Text()
	if m.IsError && m.Error != nil && text == "" {
		text = m.Error.Message
	}
	return ToolResultPart{ToolCallID: m.ToolCallID, ToolName: m.ToolName, Text: text, IsError: m.IsError}
}

func assistantParts(resp model.AssistantResponse) ([]Part, error) {
	parts := make([]Part, 0, len(resp))
	for _, block := range resp {
		switch b := block.(type) {
		case model.ThinkingBlock:
			parts = append(parts, ThinkingPart{Text: b.Text})
		case model.ResponseBlock:
			parts = append(parts, TextPart{Text: b.Content.Text()})
		case model.ToolCallBlock:
			argsJSON, err := StringifyArguments(b.Arguments)
			if err != nil {
				return nil, fmt.Errorf("stringify arguments for tool call %s: %w", b.Name, err)
			}
			parts = append(parts, ToolCallPart{ID: b.ID, Name: b.Name, Arguments: b.Arguments, ArgumentsJSON: argsJSON})
		}
	}
	return parts, nil
}

// StringifyArguments renders tool call arguments as a JSON string, for wire
// formats (OpenAI-style function calling) that require arguments as a
// string rather than an inline object.
func StringifyArguments(args map[string]interface{}) (string, error) {
	if args == nil {
		return "{}", nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// WrapThinking folds reasoning text into the assistant's text body for
// providers with no first-class reasoning field (spec.md §4.D.1).
func WrapThinking(text string) string {
	return "<thinking>" + text + "</thinking>"
}

// ExtractSystemMessage returns the system prompt to send, unchanged — kept
// as a named accessor since several adapters (Anthropic, Google) send it as
// a distinct field rather than a message in the list.
func ExtractSystemMessage(ctx model.Context) string {
	return ctx.SystemPrompt
}
