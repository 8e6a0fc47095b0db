package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corvid-labs/chatmux/pkg/eventstream"
	"github.com/corvid-labs/chatmux/pkg/model"
	aierrors "github.com/corvid-labs/chatmux/pkg/provider/errors"
)

// mockAdapter scripts one Stream result per call, in order, so each test
// can drive a Conversation through a known sequence of turns without a real
// provider.
type mockAdapter struct {
	api   string
	calls int
	fns   []func(ctx context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]
}

func (m *mockAdapter) API() string { return m.api }

func (m *mockAdapter) Complete(ctx context.Context, mdl model.Model, c model.Context, opts model.Options) (model.AssistantMessage, error) {
	s, err := m.Stream(ctx, mdl, c, opts)
	if err != nil {
		return model.AssistantMessage{}, err
	}
	return s.Result(), nil
}

func (m *mockAdapter) Stream(ctx context.Context, _ model.Model, _ model.Context, _ model.Options) (*eventstream.Stream[model.AssistantEvent, model.AssistantMessage], error) {
	idx := m.calls
	m.calls++
	if idx >= len(m.fns) {
		s := eventstream.New[model.AssistantEvent, model.AssistantMessage](1)
		s.End(model.AssistantMessage{StopReason: model.StopReasonStop})
		return s, nil
	}
	return m.fns[idx](ctx), nil
}

func textStream(text string, usage model.Usage) func(context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage] {
	return func(ctx context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage] {
		s := eventstream.New[model.AssistantEvent, model.AssistantMessage](8)
		s.Push(model.AssistantEvent{Kind: model.EventStart})
		s.Push(model.AssistantEvent{Kind: model.EventTextStart, ContentIndex: 0})
		s.Push(model.AssistantEvent{Kind: model.EventTextDelta, ContentIndex: 0, TextDelta: text})
		s.Push(model.AssistantEvent{Kind: model.EventTextEnd, ContentIndex: 0})
		s.End(model.AssistantMessage{
			StopReason: model.StopReasonStop,
			Content:    model.AssistantResponse{model.ResponseBlock{Content: model.Content{model.TextBlock{Text: text}}}},
			Usage:      usage,
		})
		return s
	}
}

func toolCallStream(callID, name string, args map[string]interface{}, usage model.Usage) func(context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage] {
	return func(ctx context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage] {
		s := eventstream.New[model.AssistantEvent, model.AssistantMessage](8)
		s.Push(model.AssistantEvent{Kind: model.EventStart})
		s.Push(model.AssistantEvent{Kind: model.EventToolCallStart, ContentIndex: 0, ToolCallID: callID, ToolCallName: name})
		s.Push(model.AssistantEvent{Kind: model.EventToolCallEnd, ContentIndex: 0, ToolCallID: callID, ToolCallName: name, Arguments: args})
		s.End(model.AssistantMessage{
			StopReason: model.StopReasonToolUse,
			Content:    model.AssistantResponse{model.ToolCallBlock{ID: callID, Name: name, Arguments: args}},
			Usage:      usage,
		})
		return s
	}
}

func errorStream(errMsg string, usage model.Usage) func(context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage] {
	return func(ctx context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage] {
		s := eventstream.New[model.AssistantEvent, model.AssistantMessage](2)
		s.Push(model.AssistantEvent{Kind: model.EventStart})
		s.End(model.AssistantMessage{StopReason: model.StopReasonError, ErrorMessage: errMsg, Usage: usage})
		return s
	}
}

func calculatorTool() ToolDef {
	return ToolDef{
		Tool: model.Tool{
			Name:        "calculate",
			Description: "Evaluate a basic arithmetic expression",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"expression": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"expression"},
			},
		},
		Handler: func(ctx context.Context, args map[string]interface{}, report ProgressFunc) (ToolOutput, error) {
			return ToolOutput{Content: model.Content{model.TextBlock{Text: "291"}}}, nil
		},
	}
}

// Scenario 1 — single-turn tool call.
func TestConversation_SingleTurnToolCall(t *testing.T) {
	adapter := &mockAdapter{api: "mock", fns: []func(context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]{
		toolCallStream("call_1", "calculate", map[string]interface{}{"expression": "2*123+45"}, model.Usage{Input: 10, Output: 5}),
		textStream("The answer is 291.", model.Usage{Input: 20, Output: 5}),
	}}

	c := New(Init{Adapter: adapter, Model: model.Model{ContextWindow: 200000}, Tools: []ToolDef{calculatorTool()}})

	added, err := c.Prompt(context.Background(), "What is 2 * 123 + 45? Use the calculator tool.")
	require.NoError(t, err)
	require.Len(t, added, 4) // user, assistant(toolUse), toolResult, assistant(stop)

	toolResult, ok := added[2].(model.ToolResultMessage)
	require.True(t, ok)
	assert.Equal(t, "291", toolResult.Content.Text())
	assert.False(t, toolResult.IsError)

	final, ok := added[3].(model.AssistantMessage)
	require.True(t, ok)
	assert.Contains(t, final.Content.Text(), "291")

	assert.Empty(t, c.pendingToolCalls)
}

// Scenario 2 — abort mid-stream.
func TestConversation_AbortMidStream(t *testing.T) {
	started := make(chan struct{})
	adapter := &mockAdapter{api: "mock", fns: []func(context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]{
		func(ctx context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage] {
			s := eventstream.New[model.AssistantEvent, model.AssistantMessage](4)
			go func() {
				s.Push(model.AssistantEvent{Kind: model.EventStart})
				s.Push(model.AssistantEvent{Kind: model.EventTextStart, ContentIndex: 0})
				close(started)
				<-ctx.Done()
				s.End(model.AssistantMessage{StopReason: model.StopReasonAborted, Usage: model.Usage{Input: 42}})
			}()
			return s
		},
	}}

	c := New(Init{Adapter: adapter, Model: model.Model{}})

	var mu eventRecorder
	c.Subscribe(mu.record)

	resultCh := make(chan struct {
		msgs []model.Message
		err  error
	}, 1)
	go func() {
		msgs, err := c.Prompt(context.Background(), "tell me a long story")
		resultCh <- struct {
			msgs []model.Message
			err  error
		}{msgs, err}
	}()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("stream never started")
	}
	c.Abort()

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		require.NotEmpty(t, r.msgs)
		last := r.msgs[len(r.msgs)-1].(model.AssistantMessage)
		assert.Equal(t, model.StopReasonAborted, last.StopReason)
		assert.Greater(t, last.Usage.Input, 0)
	case <-time.After(2 * time.Second):
		t.Fatal("prompt never returned after abort")
	}
}

// Scenario 3 — context overflow recovery.
func TestConversation_ContextOverflowRecovery(t *testing.T) {
	adapter := &mockAdapter{api: "mock", fns: []func(context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]{
		errorStream("prompt is too long: 213462 tokens > 200000 maximum", model.Usage{}),
		textStream("ok, trimmed", model.Usage{Input: 10, Output: 2}),
	}}

	c := New(Init{Adapter: adapter, Model: model.Model{ContextWindow: 200000}})

	_, err := c.Prompt(context.Background(), "a very long message")
	require.Error(t, err)
	assert.True(t, aierrors.IsContextOverflowError(err))

	c.ReplaceMessages(nil)
	added, err := c.Continue(context.Background())
	require.NoError(t, err)
	require.Len(t, added, 1)
}

// Scenario 4 — cost-limit pre-flight vs. post-flight.
func TestConversation_CostLimitPreflightAndPostflight(t *testing.T) {
	limit := 1e-8
	adapter := &mockAdapter{api: "mock", fns: []func(context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]{
		textStream("hi", model.Usage{Input: 1, Output: 1, Cost: model.Cost{Total: 1e-6}}),
	}}

	c := New(Init{Adapter: adapter, Model: model.Model{}, CostLimit: &limit})

	added, err := c.Prompt(context.Background(), "just say hi")
	require.NoError(t, err, "no more actions means the turn completes even over budget")
	require.NotEmpty(t, added)

	_, err = c.Prompt(context.Background(), "again")
	require.Error(t, err)
	assert.True(t, aierrors.IsCostLimitExceededError(err))
}

func TestConversation_CostLimitPostflightWithPendingToolCalls(t *testing.T) {
	tinyLimit := 1e-9
	adapter := &mockAdapter{api: "mock", fns: []func(context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]{
		toolCallStream("call_1", "calculate", map[string]interface{}{"expression": "1+1"}, model.Usage{Input: 1, Output: 1, Cost: model.Cost{Total: 1e-6}}),
	}}

	c := New(Init{Adapter: adapter, Model: model.Model{}, Tools: []ToolDef{calculatorTool()}, CostLimit: &tinyLimit})

	_, err := c.Prompt(context.Background(), "use the tool")
	require.Error(t, err)
	assert.True(t, aierrors.IsCostLimitExceededError(err))
}

// Scenario 6 — streaming partial tool args.
func TestConversation_StreamingPartialToolArgs(t *testing.T) {
	fullArgs := `{"query":"vitest testing"}`
	adapter := &mockAdapter{api: "mock", fns: []func(context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage]{
		func(ctx context.Context) *eventstream.Stream[model.AssistantEvent, model.AssistantMessage] {
			s := eventstream.New[model.AssistantEvent, model.AssistantMessage](16)
			s.Push(model.AssistantEvent{Kind: model.EventStart})
			s.Push(model.AssistantEvent{Kind: model.EventToolCallStart, ContentIndex: 0, ToolCallID: "call_9", ToolCallName: "search"})
			chunkSize := len(fullArgs) / 10
			if chunkSize == 0 {
				chunkSize = 1
			}
			for i := 0; i < len(fullArgs); i += chunkSize {
				end := i + chunkSize
				if end > len(fullArgs) {
					end = len(fullArgs)
				}
				s.Push(model.AssistantEvent{Kind: model.EventToolCallDelta, ContentIndex: 0, ToolCallID: "call_9", ToolCallDelta: fullArgs[i:end]})
			}
			s.Push(model.AssistantEvent{Kind: model.EventToolCallEnd, ContentIndex: 0, ToolCallID: "call_9", ToolCallName: "search", Arguments: map[string]interface{}{"query": "vitest testing"}})
			s.End(model.AssistantMessage{
				StopReason: model.StopReasonToolUse,
				Content:    model.AssistantResponse{model.ToolCallBlock{ID: "call_9", Name: "search", Arguments: map[string]interface{}{"query": "vitest testing"}}},
			})
			return s
		},
		textStream("done", model.Usage{}),
	}}

	searchTool := ToolDef{
		Tool: model.Tool{Name: "search", Parameters: map[string]interface{}{
			"type": "object", "properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
		}},
		Handler: func(ctx context.Context, args map[string]interface{}, report ProgressFunc) (ToolOutput, error) {
			assert.Equal(t, "vitest testing", args["query"])
			return ToolOutput{Content: model.Content{model.TextBlock{Text: "ok"}}}, nil
		},
	}

	c := New(Init{Adapter: adapter, Model: model.Model{}, Tools: []ToolDef{searchTool}})

	added, err := c.Prompt(context.Background(), "search for something")
	require.NoError(t, err)

	toolResult := added[2].(model.ToolResultMessage)
	assert.False(t, toolResult.IsError)
}

// eventRecorder is a no-op Subscriber sink; it records nothing and only gives
// a test a subscriber to register.
type eventRecorder struct{}

func (r *eventRecorder) record(AgentEvent) {}
