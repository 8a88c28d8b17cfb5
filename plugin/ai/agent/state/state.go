// Package state defines the conversation snapshot that checkpoints persist
// and the state machine advances.
package state

// Role is the explicit discriminant of a message. Dispatching on it replaces
// run-time type inspection.
type Role string

const (
	RoleSystem    Role = "system"
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	// RoleContext marks a synthetic document-context entry inserted before
	// a human message. It is embedded in the snapshot for the step that
	// used it and filtered from the history view.
	RoleContext Role = "context"
)

// ToolCall is a tool invocation recorded on an assistant message.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Message is one entry of a thread's conversation history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// ToolCalls is set on assistant messages that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool message back to the assistant request.
	ToolCallID string `json:"tool_call_id,omitempty"`
	// Name is the tool name on tool messages.
	Name string `json:"name,omitempty"`
}

// ChatState is the conversation snapshot persisted in every checkpoint.
type ChatState struct {
	ThreadID    string    `json:"thread_id"`
	Messages    []Message `json:"messages"`
	HasDocument bool      `json:"has_document"`
}

// Clone returns a deep-enough copy: the message slice is copied so appends
// on the clone never alias the original.
func (s *ChatState) Clone() *ChatState {
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	return &ChatState{
		ThreadID:    s.ThreadID,
		Messages:    msgs,
		HasDocument: s.HasDocument,
	}
}
