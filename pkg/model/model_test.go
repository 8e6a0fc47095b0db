package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSurrogates_DropsUnpaired(t *testing.T) {
	// U+D800 alone, followed by plain "a", is an unpaired high surrogate.
	unpaired := string([]rune{0xD800}) + "a"
	assert.Equal(t, "a", SanitizeSurrogates(unpaired))
}

func TestSanitizeSurrogates_PreservesValidEmoji(t *testing.T) {
	// Family emoji built from ZWJ-joined surrogate pairs must round-trip.
	family := "\U0001F468‍\U0001F469‍\U0001F467" // man ZWJ woman ZWJ girl
	assert.Equal(t, family, SanitizeSurrogates(family))

	skinTone := "\U0001F44D\U0001F3FD" // thumbs up + medium skin tone modifier
	assert.Equal(t, skinTone, SanitizeSurrogates(skinTone))
}

func TestSanitizeSurrogates_Idempotent(t *testing.T) {
	s := "hello \U0001F600 world"
	once := SanitizeSurrogates(s)
	twice := SanitizeSurrogates(once)
	assert.Equal(t, once, twice)
}

func TestUsage_WithTotalAndDeriveCost(t *testing.T) {
	u := Usage{Input: 100, Output: 50, CacheRead: 10, CacheWrite: 5}
	u = u.WithTotal()
	assert.Equal(t, 165, u.TotalTokens)

	u = u.DeriveCost(CostRate{InputPerM: 3, OutputPerM: 15, CacheReadPerM: 0.3, CacheWritePerM: 3.75})
	assert.InDelta(t, 100*3/1e6, u.Cost.Input, 1e-12)
	assert.InDelta(t, 50*15/1e6, u.Cost.Output, 1e-12)
	assert.GreaterOrEqual(t, u.Cost.Total, 0.0)
}

func TestAssistantResponse_HasToolCallForcesCoercion(t *testing.T) {
	r := AssistantResponse{
		ResponseBlock{Content: Content{TextBlock{Text: "ok"}}},
		ToolCallBlock{ID: "call_1", Name: "calculate", Arguments: map[string]interface{}{"expression": "2*123+45"}},
	}
	assert.True(t, r.HasToolCall())
	assert.Equal(t, "ok", r.Text())
	calls := r.ToolCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "calculate", calls[0].Name)
}

func TestMessage_JSONRoundTrip(t *testing.T) {
	msgs := []Message{
		UserMessage{ID: "u1", Content: Content{TextBlock{Text: "hi"}}, Timestamp: 1},
		AssistantMessage{
			ID: "a1", API: "anthropic", Model: "claude-sonnet", StopReason: StopReasonToolUse,
			Content: AssistantResponse{
				ThinkingBlock{Text: "thinking..."},
				ToolCallBlock{ID: "call_1", Name: "calculate", Arguments: map[string]interface{}{"expression": "2*123+45"}},
			},
			Usage:         Usage{Input: 10, Output: 5, TotalTokens: 15},
			NativeMessage: map[string]interface{}{"role": "assistant"},
		},
		ToolResultMessage{ID: "t1", ToolCallID: "call_1", ToolName: "calculate", Content: Content{TextBlock{Text: "291"}}},
		CustomMessage{ID: "c1", Payload: map[string]interface{}{"k": "v"}},
	}

	data, err := MarshalMessages(msgs)
	require.NoError(t, err)

	round, err := UnmarshalMessages(data)
	require.NoError(t, err)
	require.Len(t, round, 4)

	u, ok := round[0].(UserMessage)
	require.True(t, ok)
	assert.Equal(t, "hi", u.Content.Text())

	a, ok := round[1].(AssistantMessage)
	require.True(t, ok)
	assert.Equal(t, StopReasonToolUse, a.StopReason)
	assert.True(t, a.Content.HasToolCall())

	tr, ok := round[2].(ToolResultMessage)
	require.True(t, ok)
	assert.Equal(t, "291", tr.Content.Text())

	_, ok = round[3].(CustomMessage)
	require.True(t, ok)
}
