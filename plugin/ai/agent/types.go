// Package agent implements the conversation state machine: the per-turn
// model/tool loop with a checkpoint boundary at every step.
package agent

import (
	"github.com/hrygo/loom/plugin/ai"
	"github.com/hrygo/loom/plugin/ai/agent/state"
)

// StreamEventKind discriminates stream events pushed during a turn.
type StreamEventKind string

const (
	// EventToken is an incremental chunk of assistant text.
	EventToken StreamEventKind = "token"
	// EventToolUse signals that a tool is being dispatched.
	EventToolUse StreamEventKind = "tool_use"
	// EventToolResult carries a tool's output.
	EventToolResult StreamEventKind = "tool_result"
	// EventAnswer carries the terminal assistant text.
	EventAnswer StreamEventKind = "answer"
	// EventError carries a turn-level failure.
	EventError StreamEventKind = "error"
)

// StreamEvent is one unit of incremental output during a turn.
type StreamEvent struct {
	Kind     StreamEventKind `json:"kind"`
	Content  string          `json:"content"`
	ToolName string          `json:"tool_name,omitempty"`
}

// EventCallback receives stream events as the turn progresses. Backpressure
// is the transport's concern; the callback should not block for long.
type EventCallback func(event StreamEvent)

// TurnResult is the outcome of one completed turn.
type TurnResult struct {
	// Response is the terminal assistant text.
	Response string
	// State is the checkpointed conversation state after the turn.
	State *state.ChatState
	// UsedTool reports whether any tool executed during the turn.
	UsedTool bool
	// CheckpointRef points at the turn's final checkpoint.
	CheckpointRef string
}

func toProviderMessages(messages []state.Message) []ai.ChatMessage {
	out := make([]ai.ChatMessage, 0, len(messages))
	for _, m := range messages {
		pm := ai.ChatMessage{
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		switch m.Role {
		case state.RoleSystem:
			pm.Role = "system"
		case state.RoleHuman:
			pm.Role = "user"
		case state.RoleAssistant:
			pm.Role = "assistant"
		case state.RoleTool:
			pm.Role = "tool"
		case state.RoleContext:
			// Context entries ride as system messages for the model.
			pm.Role = "system"
			pm.Content = "Relevant document context:\n" + m.Content
		}
		for _, tc := range m.ToolCalls {
			pm.ToolCalls = append(pm.ToolCalls, ai.ToolCallRequest{
				ID:        tc.ID,
				Name:      tc.Name,
				Arguments: tc.Arguments,
			})
		}
		out = append(out, pm)
	}
	return out
}
