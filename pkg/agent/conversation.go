// Package agent implements Component F (spec.md §4.F): a stateful,
// single-prompt-at-a-time controller that drives a provider.Adapter through
// an agentic tool-execution loop and fans out every step to subscribers.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvid-labs/chatmux/pkg/model"
	"github.com/corvid-labs/chatmux/pkg/provider"
	aierrors "github.com/corvid-labs/chatmux/pkg/provider/errors"
	"github.com/corvid-labs/chatmux/pkg/schema"
)

func now() int64 { return time.Now().UnixMilli() }

// QueueMode governs how many pending queued messages drain per turn
// boundary (spec.md §4.F.2 step 8).
type QueueMode string

const (
	QueueOneAtATime QueueMode = "one-at-a-time"
	QueueAll        QueueMode = "all"
)

// QueuedMessage is one entry in the message queue: Original is the caller's
// own record of what was enqueued; LLM is the message appended to the
// conversation and sent to the model at the next turn boundary.
type QueuedMessage struct {
	Original model.Message
	LLM      model.Message
}

// Init bundles the construction-time configuration of a Conversation.
type Init struct {
	Adapter      provider.Adapter
	Model        model.Model
	Options      model.Options
	Tools        []ToolDef
	SystemPrompt string
	CostLimit    *float64
	ContextLimit *int
	QueueMode    QueueMode

	// MessageTransformer, if set, is applied to a copy of the message
	// history before each model call (spec.md §4.F.2 step 3); the stored
	// history is never mutated by it.
	MessageTransformer func([]model.Message) []model.Message

	// OnSubscriberPanic, if set, is invoked with the recovered value when a
	// subscriber callback panics (spec.md §4.F.3).
	OnSubscriberPanic func(recovered interface{})
}

// Conversation is the Component F controller described by spec.md §4.F.
type Conversation struct {
	mu sync.Mutex

	messages     []model.Message
	tools        []ToolDef
	systemPrompt string

	adapter provider.Adapter
	model   model.Model
	options model.Options

	isStreaming      bool
	pendingToolCalls map[string]struct{}
	lastErr          error

	totalCost       float64
	totalTokens     int
	lastInputTokens int

	costLimit    *float64
	contextLimit *int

	queue     []QueuedMessage
	queueMode QueueMode

	messageTransformer func([]model.Message) []model.Message

	bus *Bus

	validator *schema.ToolValidator

	cancel context.CancelFunc
	idleCh chan struct{}
}

// New creates a Conversation ready to accept prompt().
func New(init Init) *Conversation {
	mode := init.QueueMode
	if mode == "" {
		mode = QueueOneAtATime
	}
	idle := make(chan struct{})
	close(idle)

	return &Conversation{
		tools:              append([]ToolDef(nil), init.Tools...),
		systemPrompt:       init.SystemPrompt,
		adapter:            init.Adapter,
		model:              init.Model,
		options:            init.Options,
		pendingToolCalls:   make(map[string]struct{}),
		costLimit:          init.CostLimit,
		contextLimit:       init.ContextLimit,
		queueMode:          mode,
		messageTransformer: init.MessageTransformer,
		bus:                NewBus(init.OnSubscriberPanic),
		validator:          schema.NewToolValidator(),
		idleCh:             idle,
	}
}

// --- Setters (legal between prompts, per spec.md §5) ---

func (c *Conversation) SetProvider(a provider.Adapter, m model.Model, opts model.Options) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapter, c.model, c.options = a, m, opts
}

func (c *Conversation) SetTools(tools []ToolDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = append([]ToolDef(nil), tools...)
}

func (c *Conversation) SetSystemPrompt(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemPrompt = s
}

func (c *Conversation) SetCostLimit(limit *float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.costLimit = limit
}

func (c *Conversation) SetContextLimit(limit *int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contextLimit = limit
}

func (c *Conversation) SetQueueMode(mode QueueMode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueMode = mode
}

// Subscribe registers fn against the event bus and returns an unsubscribe
// function.
func (c *Conversation) Subscribe(fn Subscriber) func() {
	return c.bus.Subscribe(fn)
}

// --- Message-history mutators ---

func (c *Conversation) AppendMessage(m model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, m)
}

func (c *Conversation) AppendMessages(ms []model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, ms...)
}

func (c *Conversation) ReplaceMessages(ms []model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append([]model.Message(nil), ms...)
}

func (c *Conversation) ClearMessages() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

func (c *Conversation) RemoveMessage(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.messages {
		if m.MessageID() == id {
			c.messages = append(c.messages[:i], c.messages[i+1:]...)
			return
		}
	}
}

func (c *Conversation) UpdateMessage(id string, fn func(model.Message) model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.messages {
		if m.MessageID() == id {
			c.messages[i] = fn(m)
			return
		}
	}
}

// Messages returns a snapshot of the current history.
func (c *Conversation) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Message(nil), c.messages...)
}

// QueueMessage enqueues q for injection at the next turn boundary
// (spec.md §4.F.2 step 8). Legal from any goroutine, including mid-prompt.
func (c *Conversation) QueueMessage(q QueuedMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, q)
}

// --- Lifecycle ---

// WaitForIdle resolves when isStreaming becomes false, or ctx is canceled.
func (c *Conversation) WaitForIdle(ctx context.Context) error {
	c.mu.Lock()
	ch := c.idleCh
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abort trips the cancellation token of the in-flight prompt, if any. It is
// idempotent and a no-op when nothing is streaming.
func (c *Conversation) Abort() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset aborts any in-flight prompt, then clears messages, error, and
// pendingToolCalls. Usage counters are preserved (process-wide accounting,
// spec.md §4.F.1).
func (c *Conversation) Reset(ctx context.Context) {
	c.Abort()
	_ = c.WaitForIdle(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.lastErr = nil
	c.pendingToolCalls = make(map[string]struct{})
}

// Prompt appends a user message built from text and attachments, then runs
// the agent loop to completion, returning every message appended during
// this invocation. Only one prompt may run at a time; a concurrent
// invocation fails with BusyError.
func (c *Conversation) Prompt(ctx context.Context, text string, attachments ...model.ContentBlock) ([]model.Message, error) {
	content := model.Content{model.TextBlock{Text: text}}
	content = append(content, attachments...)
	userMsg := model.UserMessage{ID: uuid.NewString(), Content: content, Timestamp: now()}

	return c.run(ctx, func() {
		c.mu.Lock()
		c.messages = append(c.messages, userMsg)
		c.mu.Unlock()
	})
}

// Continue runs the loop without adding a user message, typically after an
// external recovery step such as trimming history following a
// ContextOverflow error.
func (c *Conversation) Continue(ctx context.Context) ([]model.Message, error) {
	return c.run(ctx, func() {})
}

// run is the shared entry point for Prompt and Continue: it claims
// isStreaming, records the starting length of the history, invokes seed to
// add whatever this invocation contributes up front, then drives the turn
// loop to completion.
func (c *Conversation) run(ctx context.Context, seed func()) ([]model.Message, error) {
	c.mu.Lock()
	if c.isStreaming {
		c.mu.Unlock()
		return nil, aierrors.NewBusyError()
	}
	c.isStreaming = true
	c.idleCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	startIdx := len(c.messages)
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.isStreaming = false
		c.cancel = nil
		close(c.idleCh)
		c.mu.Unlock()
	}()

	seed()

	c.bus.Publish(AgentEvent{Kind: EventAgentStart})

	err := c.loop(runCtx)

	c.mu.Lock()
	added := append([]model.Message(nil), c.messages[startIdx:]...)
	if err != nil {
		c.lastErr = err
	}
	c.mu.Unlock()

	if err != nil {
		return added, err
	}

	c.bus.Publish(AgentEvent{Kind: EventAgentEnd, AgentMessages: added})
	return added, nil
}

// loop runs the turn loop (spec.md §4.F.2) until step 9's continuation
// condition is false, or a budget/overflow error terminates it early.
func (c *Conversation) loop(ctx context.Context) error {
	for {
		c.bus.Publish(AgentEvent{Kind: EventTurnStart})

		if err := c.preflightBudgetCheck(); err != nil {
			return err
		}

		assistantMsg, err := c.runOneModelCall(ctx)
		if err != nil {
			return err
		}

		hasToolCalls := assistantMsg.Content.HasToolCall()
		toolCallIDs := pendingIDs(assistantMsg)

		c.mu.Lock()
		for _, id := range toolCallIDs {
			c.pendingToolCalls[id] = struct{}{}
		}
		c.mu.Unlock()

		if IsContextOverflow(assistantMsg, c.model.ContextWindow) {
			return aierrors.NewContextOverflowError(overflowDetail(assistantMsg))
		}

		hasMoreActionsAfterModel := hasToolCalls || c.queueLen() > 0
		if err := c.postflightBudgetCheck(hasMoreActionsAfterModel); err != nil {
			return err
		}

		if hasToolCalls {
			if err := c.executeToolCalls(ctx, assistantMsg); err != nil {
				return err
			}
		}

		queueProducedMessages := c.drainQueue()

		if assistantMsg.StopReason == model.StopReasonToolUse || queueProducedMessages {
			continue
		}

		c.bus.Publish(AgentEvent{Kind: EventTurnEnd})
		return nil
	}
}

func pendingIDs(msg model.AssistantMessage) []string {
	var ids []string
	for _, tc := range msg.Content.ToolCalls() {
		ids = append(ids, tc.ID)
	}
	return ids
}

func overflowDetail(msg model.AssistantMessage) string {
	if msg.ErrorMessage != "" {
		return msg.ErrorMessage
	}
	return fmt.Sprintf("input tokens %d exceed context window", msg.Usage.Input+msg.Usage.CacheRead)
}

func (c *Conversation) queueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Conversation) preflightBudgetCheck() error {
	c.mu.Lock()
	costLimit, totalCost := c.costLimit, c.totalCost
	contextLimit, lastInput := c.contextLimit, c.lastInputTokens
	c.mu.Unlock()

	if costLimit != nil && totalCost >= *costLimit {
		return aierrors.NewCostLimitExceededError(totalCost, *costLimit)
	}
	if contextLimit != nil && lastInput >= *contextLimit {
		return aierrors.NewContextLimitExceededError(lastInput, *contextLimit)
	}
	return nil
}

func (c *Conversation) postflightBudgetCheck(hasMoreActions bool) error {
	if !hasMoreActions {
		return nil
	}
	c.mu.Lock()
	costLimit, totalCost := c.costLimit, c.totalCost
	contextLimit, lastInput := c.contextLimit, c.lastInputTokens
	c.mu.Unlock()

	if costLimit != nil && totalCost >= *costLimit {
		return aierrors.NewCostLimitExceededError(totalCost, *costLimit)
	}
	if contextLimit != nil && lastInput >= *contextLimit {
		return aierrors.NewContextLimitExceededError(lastInput, *contextLimit)
	}
	return nil
}

// runOneModelCall performs steps 3-6 of the turn loop: transform, stream,
// forward events, and assemble the final usage/history update.
func (c *Conversation) runOneModelCall(ctx context.Context) (model.AssistantMessage, error) {
	c.mu.Lock()
	historyCopy := append([]model.Message(nil), c.messages...)
	transformer := c.messageTransformer
	tools := toolsToModelTools(c.tools)
	systemPrompt := c.systemPrompt
	m := c.model
	opts := c.options
	adapter := c.adapter
	c.mu.Unlock()

	transformed := historyCopy
	if transformer != nil {
		transformed = transformer(append([]model.Message(nil), historyCopy...))
	}

	modelCtx := model.Context{Messages: transformed, SystemPrompt: systemPrompt, Tools: tools}

	messageID := uuid.NewString()
	c.bus.Publish(AgentEvent{Kind: EventMessageStart, MessageType: "assistant", MessageID: messageID})

	stream, err := adapter.Stream(ctx, m, modelCtx, opts)
	if err != nil {
		return model.AssistantMessage{}, err
	}

	for evt := range stream.All {
		evtCopy := evt
		c.bus.Publish(AgentEvent{
			Kind: EventMessageUpdate, MessageType: "assistant", MessageID: messageID,
			Assistant: &evtCopy,
		})
	}

	assistantMsg := stream.Result()
	if assistantMsg.ID == "" {
		assistantMsg.ID = messageID
	}
	if assistantMsg.Timestamp == 0 {
		assistantMsg.Timestamp = now()
	}

	c.mu.Lock()
	c.messages = append(c.messages, assistantMsg)
	c.totalCost += assistantMsg.Usage.Cost.Total
	c.totalTokens += assistantMsg.Usage.TotalTokens
	c.lastInputTokens = assistantMsg.Usage.Input
	c.mu.Unlock()

	c.bus.Publish(AgentEvent{Kind: EventMessageEnd, MessageType: "assistant", MessageID: assistantMsg.ID, Message: assistantMsg})

	return assistantMsg, nil
}

// executeToolCalls runs step 7: every ToolCall in msg, in emission order,
// sequentially unless every matching ToolDef opts into Parallel.
func (c *Conversation) executeToolCalls(ctx context.Context, msg model.AssistantMessage) error {
	calls := msg.Content.ToolCalls()
	if len(calls) == 0 {
		return nil
	}

	c.mu.Lock()
	defs := append([]ToolDef(nil), c.tools...)
	c.mu.Unlock()

	allParallel := true
	for _, tc := range calls {
		d, ok := findToolDef(defs, tc.Name)
		if !ok || !d.Parallel {
			allParallel = false
			break
		}
	}

	if allParallel && len(calls) > 1 {
		var wg sync.WaitGroup
		results := make([]model.ToolResultMessage, len(calls))
		for i, tc := range calls {
			wg.Add(1)
			go func(i int, tc model.ToolCallBlock) {
				defer wg.Done()
				results[i] = c.runOneTool(ctx, defs, tc)
			}(i, tc)
		}
		wg.Wait()
		for _, r := range results {
			c.appendToolResult(r)
		}
		return nil
	}

	for _, tc := range calls {
		result := c.runOneTool(ctx, defs, tc)
		c.appendToolResult(result)
	}
	return nil
}

func (c *Conversation) appendToolResult(r model.ToolResultMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, r)
	delete(c.pendingToolCalls, r.ToolCallID)
	c.mu.Unlock()
}

// runOneTool validates arguments, invokes the handler, and publishes the
// tool_execution_start/_update/_end events for one call.
func (c *Conversation) runOneTool(ctx context.Context, defs []ToolDef, tc model.ToolCallBlock) model.ToolResultMessage {
	c.bus.Publish(AgentEvent{
		Kind: EventToolExecutionStart, ToolCallID: tc.ID, ToolName: tc.Name, ToolArguments: tc.Arguments,
	})

	def, ok := findToolDef(defs, tc.Name)
	if !ok {
		return c.finishTool(tc, ToolOutput{
			IsError: true,
			Content: model.Content{model.TextBlock{Text: fmt.Sprintf("unknown tool %q", tc.Name)}},
		})
	}

	if _, err := c.validator.Validate(def.Tool.Name, def.Tool.Parameters, tc.Arguments); err != nil {
		verr := aierrors.NewSchemaValidationError(tc.Name, fmt.Sprintf("%v", tc.Arguments), err)
		return c.finishTool(tc, ToolOutput{
			IsError: true,
			Content: model.Content{model.TextBlock{Text: verr.Error()}},
		})
	}

	report := func(update interface{}) {
		c.bus.Publish(AgentEvent{Kind: EventToolExecutionUpdate, ToolCallID: tc.ID, ToolName: tc.Name, ToolUpdate: update})
	}

	output, err := def.Handler(ctx, tc.Arguments, report)
	if err != nil {
		output = ToolOutput{IsError: true, Content: model.Content{model.TextBlock{Text: err.Error()}}}
	}

	return c.finishTool(tc, output)
}

func (c *Conversation) finishTool(tc model.ToolCallBlock, output ToolOutput) model.ToolResultMessage {
	result := model.ToolResultMessage{
		ID: uuid.NewString(), ToolCallID: tc.ID, ToolName: tc.Name,
		Content: output.Content, IsError: output.IsError, Details: output.Details,
		Timestamp: now(),
	}
	if output.IsError {
		result.Error = &model.ToolResultError{Message: result.Content.Text()}
	}

	c.bus.Publish(AgentEvent{
		Kind: EventToolExecutionEnd, ToolCallID: tc.ID, ToolName: tc.Name,
		ToolResult: &output,
	})

	return result
}

// drainQueue runs step 8: dequeues one (QueueOneAtATime) or all
// (QueueAll) pending messages, in FIFO order regardless of mode, and
// appends their LLM variant to the conversation. It reports whether any
// message was produced.
func (c *Conversation) drainQueue() bool {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}

	var drained []QueuedMessage
	if c.queueMode == QueueAll {
		drained = c.queue
		c.queue = nil
	} else {
		drained = c.queue[:1]
		c.queue = c.queue[1:]
	}
	c.mu.Unlock()

	if len(drained) == 0 {
		return false
	}
	for _, q := range drained {
		c.AppendMessage(q.LLM)
	}
	return true
}
