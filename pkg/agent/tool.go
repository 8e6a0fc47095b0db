package agent

import (
	"context"

	"github.com/corvid-labs/chatmux/pkg/model"
)

// ToolOutput is what a ToolHandler returns on success or on a handled
// failure; Conversation wraps it into a ToolResultMessage. A handler that
// wants to report a failure without returning an error sets IsError itself.
type ToolOutput struct {
	Content model.Content
	IsError bool
	Details map[string]interface{}
}

// ProgressFunc reports an in-progress update from a running tool; Conversation
// forwards each call as a tool_execution_update event (spec.md §4.F.2). A
// handler that never calls it simply never opts in to progress events.
type ProgressFunc func(update interface{})

// ToolHandler invokes one tool call. Returning a non-nil error is equivalent
// to returning ToolOutput{IsError: true, Content: <err.Error() as text>}.
type ToolHandler func(ctx context.Context, args map[string]interface{}, report ProgressFunc) (ToolOutput, error)

// ToolDef pairs a tool's canonical declaration (sent to the model) with the
// handler that executes it (spec.md §4.F.2, step 7) and the tool validator's
// schema. Parallel marks the tool set as safe for concurrent execution
// within one turn (spec.md §4.F.2's "may parallelize only when the tool set
// declares itself parallel-safe"); Conversation only runs tool calls
// concurrently when every matching ToolDef in the turn sets it.
type ToolDef struct {
	Tool     model.Tool
	Handler  ToolHandler
	Parallel bool
}

func toolsToModelTools(defs []ToolDef) []model.Tool {
	tools := make([]model.Tool, len(defs))
	for i, d := range defs {
		tools[i] = d.Tool
	}
	return tools
}

func findToolDef(defs []ToolDef, name string) (ToolDef, bool) {
	for _, d := range defs {
		if d.Tool.Name == name {
			return d, true
		}
	}
	return ToolDef{}, false
}
