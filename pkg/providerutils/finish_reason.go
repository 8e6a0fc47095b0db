package providerutils

import (
	"github.com/corvid-labs/chatmux/pkg/model"
	"github.com/corvid-labs/chatmux/pkg/provider/errors"
)

// stopReasonTable is the canonical mapping of spec.md §4.D.3: every wire
// stop/finish reason string this pack's providers can emit, mapped to one
// of the five canonical StopReason values.
var stopReasonTable = map[string]model.StopReason{
	// stop
	"end_turn":       model.StopReasonStop,
	"stop":           model.StopReasonStop,
	"completed":      model.StopReasonStop,
	"STOP":           model.StopReasonStop,
	"pause_turn":     model.StopReasonStop,
	"stop_sequence":  model.StopReasonStop,

	// length
	"max_tokens":   model.StopReasonLength,
	"length":       model.StopReasonLength,
	"incomplete":   model.StopReasonLength,
	"MAX_TOKENS":   model.StopReasonLength,

	// toolUse
	"tool_use":   model.StopReasonToolUse,
	"tool_calls": model.StopReasonToolUse,

	// error
	"refusal":                  model.StopReasonError,
	"content_filter":           model.StopReasonError,
	"safety":                   model.StopReasonError,
	"failed":                   model.StopReasonError,
	"cancelled":                model.StopReasonError,
	"sensitive":                model.StopReasonError,
	"network_error":            model.StopReasonError,
	"malformed_function_call":  model.StopReasonError,
	"unexpected_tool_call":     model.StopReasonError,
	"recitation":               model.StopReasonError,
	"SAFETY":                   model.StopReasonError,
	"OTHER":                    model.StopReasonError,
	"PROHIBITED_CONTENT":       model.StopReasonError,
	"SPII":                     model.StopReasonError,
	"BLOCKLIST":                model.StopReasonError,
	"RECITATION":               model.StopReasonError,
	"MALFORMED_FUNCTION_CALL":  model.StopReasonError,
	"FINISH_REASON_UNSPECIFIED": model.StopReasonError,

	// Z.AI / Kimi / DeepSeek / Cerebras (OpenAI-compatible) finish reasons not
	// already covered above.
	"function_call": model.StopReasonToolUse,
}

// MapStopReason maps a provider's wire stop/finish reason string to the
// canonical StopReason, per spec.md §4.D.3. An unrecognized value is a
// protocol error, not silently-coerced data: callers must handle the table
// exhaustively rather than defaulting an unknown reason to "stop".
func MapStopReason(provider, wireReason string) (model.StopReason, error) {
	if sr, ok := stopReasonTable[wireReason]; ok {
		return sr, nil
	}
	return "", errors.NewProtocolError(provider, "unknown stop reason: "+wireReason)
}
