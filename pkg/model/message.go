package model

// Message is one entry in a conversation history. Implementations are
// UserMessage, ToolResultMessage, AssistantMessage, and CustomMessage. The
// marker-interface-with-unexported-method shape mirrors the teacher's
// ContentPart/ToolResultContentBlock pattern, generalized to a true tagged
// union of message kinds rather than a single struct with a Role field.
type Message interface {
	isMessage()
	MessageID() string
}

// UserMessage is text and/or attachments supplied by the caller.
type UserMessage struct {
	ID        string
	Content   Content
	Timestamp int64 // ms epoch; 0 if unset
}

func (UserMessage) isMessage()        {}
func (m UserMessage) MessageID() string { return m.ID }

// ToolResultError is the optional error payload on a failed tool result.
type ToolResultError struct {
	Message string
	Name    string
	Stack   string
}

// ToolResultMessage is the outcome of one tool invocation, appended to the
// history after the tool runs.
type ToolResultMessage struct {
	ID         string
	ToolCallID string
	ToolName   string
	Content    Content
	IsError    bool
	Error      *ToolResultError
	Details    map[string]interface{}
	Timestamp  int64
}

func (ToolResultMessage) isMessage()          {}
func (m ToolResultMessage) MessageID() string { return m.ID }

// AssistantMessage is one completed model turn.
type AssistantMessage struct {
	ID           string
	API          string
	Model        string
	Timestamp    int64
	DurationMs   int64
	StopReason   StopReason
	Content      AssistantResponse
	Usage        Usage
	ErrorMessage string
	// NativeMessage is the adapter's own wire-format representation of this
	// message, opaque outside the adapter that produced it. Used for
	// same-provider round-trip per spec.md §4.D.4.
	NativeMessage interface{}
}

func (AssistantMessage) isMessage()          {}
func (m AssistantMessage) MessageID() string { return m.ID }

// CustomMessage is opaque caller data, filtered out before any model call.
type CustomMessage struct {
	ID        string
	Payload   interface{}
	Timestamp int64
}

func (CustomMessage) isMessage()          {}
func (m CustomMessage) MessageID() string { return m.ID }
