package agent

import (
	"sort"
	"sync"

	"github.com/corvid-labs/chatmux/pkg/model"
)

// AgentEventKind tags the variant of an AgentEvent (spec.md §4.F.3).
type AgentEventKind string

const (
	EventAgentStart          AgentEventKind = "agent_start"
	EventTurnStart           AgentEventKind = "turn_start"
	EventMessageStart        AgentEventKind = "message_start"
	EventMessageUpdate       AgentEventKind = "message_update"
	EventMessageEnd          AgentEventKind = "message_end"
	EventToolExecutionStart  AgentEventKind = "tool_execution_start"
	EventToolExecutionUpdate AgentEventKind = "tool_execution_update"
	EventToolExecutionEnd    AgentEventKind = "tool_execution_end"
	EventTurnEnd             AgentEventKind = "turn_end"
	EventAgentEnd            AgentEventKind = "agent_end"
)

// AgentEvent is one item published to a Conversation's subscribers. Which
// fields are populated depends on Kind; see the per-kind comments below.
type AgentEvent struct {
	Kind AgentEventKind

	// MessageType/MessageID/Message are set on message_start/_update/_end.
	MessageType string
	MessageID   string
	Message     model.Message

	// Assistant is the raw adapter event forwarded verbatim on
	// message_update, per spec.md §4.F.2 step 5.
	Assistant *model.AssistantEvent

	// ToolCallID/ToolName/ToolArguments are set on tool_execution_start/
	// _update/_end.
	ToolCallID    string
	ToolName      string
	ToolArguments map[string]interface{}
	ToolUpdate    interface{}
	ToolResult    *ToolOutput

	// AgentMessages carries every message appended during this prompt/
	// continue invocation, set on agent_end.
	AgentMessages []model.Message

	// Err carries the terminal error for an errored message_end.
	Err error
}

// Subscriber receives AgentEvents published by a Conversation's bus.
type Subscriber func(AgentEvent)

// Bus is a simple fan-out list of callbacks (spec.md §9's "Event fan-out to
// subscribers... A simple list of callbacks; errors in callbacks are caught
// and logged but do not abort the loop"). Delivery is synchronous, in
// subscription order, at-least-once per subscriber.
type Bus struct {
	mu      sync.Mutex
	nextID  int
	subs    map[int]Subscriber
	onPanic func(recovered interface{})
}

// NewBus creates an empty Bus. onPanic, if non-nil, is invoked with the
// recovered value whenever a subscriber panics; it must not itself panic.
func NewBus(onPanic func(recovered interface{})) *Bus {
	return &Bus{subs: make(map[int]Subscriber), onPanic: onPanic}
}

// Subscribe registers fn and returns an unsubscribe function.
func (b *Bus) Subscribe(fn Subscriber) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers evt to every current subscriber, synchronously and in
// subscription order. A subscriber snapshot is taken under lock so that a
// subscriber unsubscribing itself mid-callback cannot deadlock or skip
// siblings queued behind it.
func (b *Bus) Publish(evt AgentEvent) {
	b.mu.Lock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	snapshot := make([]Subscriber, 0, len(ids))
	for _, id := range ids {
		snapshot = append(snapshot, b.subs[id])
	}
	b.mu.Unlock()

	for _, fn := range snapshot {
		b.safeDeliver(fn, evt)
	}
}

func (b *Bus) safeDeliver(fn Subscriber, evt AgentEvent) {
	defer func() {
		if r := recover(); r != nil && b.onPanic != nil {
			b.onPanic(r)
		}
	}()
	fn(evt)
}
