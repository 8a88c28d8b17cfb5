package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/lithammer/shortuuid/v4"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/plugin/ai"
	"github.com/hrygo/loom/plugin/ai/agent/state"
	"github.com/hrygo/loom/plugin/ai/agent/tools"
	"github.com/hrygo/loom/plugin/ai/checkpoint"
)

const systemPrompt = `You are a helpful assistant. Use the available tools when a question needs live data (weather, stock prices, web search) or arithmetic; otherwise answer directly. Keep answers concise.`

// ModelClient is the boundary to the language model.
type ModelClient interface {
	ChatWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.ToolDefinition, onToken func(string)) (*ai.ChatResult, error)
}

// Retriever is the boundary to the document context cache.
type Retriever interface {
	HasDocument(ctx context.Context, threadID string) bool
	Retrieve(ctx context.Context, query, threadID string, k int) ([]string, error)
}

// Config tunes the engine.
type Config struct {
	// Namespace partitions checkpoint history within a thread.
	Namespace string
	// MaxToolHops bounds the model/tool loop per turn.
	MaxToolHops int
	// RetrievalTopK is the number of document snippets per augmentation.
	RetrievalTopK int
}

// Engine advances one thread by exactly one user turn: it invokes the
// model, dispatches requested tools, and persists a checkpoint at every
// completed node.
//
// The control flow is an explicit two-state loop:
//
//	Start -> ModelInvoked -> {ToolDispatch -> ModelInvoked}* -> Terminal
type Engine struct {
	model     ModelClient
	saver     *checkpoint.Saver
	registry  *tools.Registry
	retriever Retriever
	config    Config
}

// NewEngine creates an engine. retriever may be nil when document grounding
// is disabled.
func NewEngine(model ModelClient, saver *checkpoint.Saver, registry *tools.Registry, retriever Retriever, config Config) *Engine {
	if config.MaxToolHops <= 0 {
		config.MaxToolHops = 8
	}
	if config.RetrievalTopK <= 0 {
		config.RetrievalTopK = 4
	}
	return &Engine{
		model:     model,
		saver:     saver,
		registry:  registry,
		retriever: retriever,
		config:    config,
	}
}

// LoadState returns the thread's latest durable conversation state, with
// any pending tool writes folded in so history is consistent. Returns an
// empty state when the thread has no checkpoints yet.
func (e *Engine) LoadState(ctx context.Context, threadID string) (*state.ChatState, *checkpoint.Ref, error) {
	tuple, err := e.saver.GetTuple(ctx, threadID, e.config.Namespace, nil)
	if err != nil {
		return nil, nil, err
	}
	if tuple == nil {
		return &state.ChatState{ThreadID: threadID}, nil, nil
	}
	st := tuple.State.Clone()
	if err := e.foldPendingWrites(ctx, tuple.Ref, st); err != nil {
		return nil, nil, err
	}
	return st, &tuple.Ref, nil
}

// foldPendingWrites appends tool results that were durably recorded for the
// checkpoint but not yet embedded in a follow-up snapshot. A resumed step
// must not re-execute those tools.
func (e *Engine) foldPendingWrites(ctx context.Context, ref checkpoint.Ref, st *state.ChatState) error {
	last := lastMessage(st.Messages)
	if last == nil || last.Role != state.RoleAssistant || len(last.ToolCalls) == 0 {
		return nil
	}

	writes, err := e.saver.PendingWrites(ctx, ref)
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	seen := map[string]bool{}
	for _, m := range st.Messages {
		if m.Role == state.RoleTool {
			seen[m.ToolCallID] = true
		}
	}
	for _, w := range writes {
		if w.Channel != writeChannelTool {
			continue
		}
		var msg state.Message
		if err := json.Unmarshal(w.Value, &msg); err != nil {
			return lerrors.Wrap(err, lerrors.ErrCodeCorruptCheckpoint, "undecodable checkpoint write")
		}
		if !seen[msg.ToolCallID] {
			st.Messages = append(st.Messages, msg)
			seen[msg.ToolCallID] = true
			slog.Debug("folded pending tool write", "thread", st.ThreadID, "tool", msg.Name)
		}
	}
	return nil
}

// writeChannelTool is the logical output slot for tool-result writes.
const writeChannelTool = "tool"

// RunTurn executes one complete user turn. callback may be nil for
// non-streaming callers. On TOOL_LOOP_EXCEEDED the returned result still
// carries the checkpointed partial state alongside the error.
func (e *Engine) RunTurn(ctx context.Context, threadID, userMessage string, callback EventCallback) (*TurnResult, error) {
	st, parentRef, err := e.LoadState(ctx, threadID)
	if err != nil {
		return nil, err
	}

	if len(st.Messages) == 0 {
		st.Messages = append(st.Messages, state.Message{Role: state.RoleSystem, Content: systemPrompt})
	}

	// Context entries are scoped to the turn that derived them. Drop any
	// carried over from earlier snapshots so the model never sees stale
	// document context; this turn re-derives its own below.
	st.Messages = dropContextMessages(st.Messages)

	// Pre-step augmentation: ground the new message in the uploaded
	// document when one exists. Failure here degrades to an unaugmented
	// turn; it never fails the chat.
	st.HasDocument = e.retriever != nil && e.retriever.HasDocument(ctx, threadID)
	if st.HasDocument {
		snippets, err := e.retriever.Retrieve(ctx, userMessage, threadID, e.config.RetrievalTopK)
		if err != nil {
			slog.Warn("document retrieval failed, answering without context",
				"thread", threadID, "error", err)
		} else if len(snippets) > 0 {
			st.Messages = append(st.Messages, state.Message{
				Role:    state.RoleContext,
				Content: joinSnippets(snippets),
			})
		}
	}
	st.Messages = append(st.Messages, state.Message{Role: state.RoleHuman, Content: userMessage})

	step := 0
	parentID := refID(parentRef)
	result := &TurnResult{State: st}

	for hop := 0; ; hop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if hop >= e.config.MaxToolHops {
			// Partial progress is already durable; surface the bound as a
			// typed error and let the outer boundary render text.
			return result, lerrors.Newf(lerrors.ErrCodeToolLoopExceeded,
				"turn exceeded %d tool hops", e.config.MaxToolHops)
		}

		// ModelInvoked
		var onToken func(string)
		if callback != nil {
			onToken = func(chunk string) {
				callback(StreamEvent{Kind: EventToken, Content: chunk})
			}
		}
		resp, err := e.model.ChatWithTools(ctx, toProviderMessages(st.Messages), e.registry.Definitions(), onToken)
		if err != nil {
			return nil, err
		}

		assistant := state.Message{Role: state.RoleAssistant, Content: resp.Content}
		for _, tc := range resp.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, state.ToolCall(tc))
		}
		st.Messages = append(st.Messages, assistant)

		step++
		ref, err := e.putCheckpoint(ctx, st, parentID, step)
		if err != nil {
			return nil, err
		}
		parentID = &ref.CheckpointID
		result.CheckpointRef = ref.CheckpointID

		if !resp.HasToolCalls() {
			// Terminal
			result.Response = resp.Content
			if callback != nil {
				callback(StreamEvent{Kind: EventAnswer, Content: resp.Content})
			}
			return result, nil
		}

		// ToolDispatch: execute synchronously, record results as writes
		// before the checkpoint that consumes them.
		result.UsedTool = true
		taskID := shortuuid.New()
		writes := make([]checkpoint.Write, 0, len(resp.ToolCalls))
		for _, tc := range resp.ToolCalls {
			if callback != nil {
				callback(StreamEvent{Kind: EventToolUse, ToolName: tc.Name, Content: tc.Arguments})
			}
			output := e.registry.Execute(ctx, tc.Name, tc.Arguments)
			toolMsg := state.Message{
				Role:       state.RoleTool,
				Content:    output,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			}
			writes = append(writes, checkpoint.Write{Channel: writeChannelTool, Value: toolMsg})
			st.Messages = append(st.Messages, toolMsg)
			if callback != nil {
				callback(StreamEvent{Kind: EventToolResult, ToolName: tc.Name, Content: output})
			}
		}
		if err := e.saver.PutWrites(ctx, ref, taskID, writes); err != nil {
			return nil, err
		}

		step++
		ref, err = e.putCheckpoint(ctx, st, parentID, step)
		if err != nil {
			return nil, err
		}
		parentID = &ref.CheckpointID
		result.CheckpointRef = ref.CheckpointID
	}
}

func (e *Engine) putCheckpoint(ctx context.Context, st *state.ChatState, parentID *string, step int) (checkpoint.Ref, error) {
	ref := checkpoint.Ref{
		ThreadID:     st.ThreadID,
		Namespace:    e.config.Namespace,
		CheckpointID: checkpoint.NewID(),
	}
	return e.saver.Put(ctx, ref, parentID, st, &checkpoint.Metadata{
		Source:    "turn",
		Step:      step,
		CreatedTs: time.Now().UnixMilli(),
	})
}

// AnswerFromSnippets performs a single grounded completion over the given
// document snippets, outside any thread history and without tools.
func (e *Engine) AnswerFromSnippets(ctx context.Context, question string, snippets []string) (string, error) {
	prompt := "Based on the following context from a document, answer the question.\n\n" +
		"Context:\n" + joinSnippets(snippets) + "\n\n" +
		"Question: " + question + "\n\n" +
		"Provide a clear and concise answer based only on the information in the context. " +
		"If the context doesn't contain relevant information, say so."
	resp, err := e.model.ChatWithTools(ctx, []ai.ChatMessage{
		{Role: "user", Content: prompt},
	}, nil, nil)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// HistoryView returns the user-facing history: human messages and
// content-bearing assistant messages, in order. System, context and tool
// entries, and assistant messages that only carried tool calls, are
// excluded.
func HistoryView(messages []state.Message) []state.Message {
	out := make([]state.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case state.RoleHuman:
			out = append(out, m)
		case state.RoleAssistant:
			if m.Content != "" {
				out = append(out, state.Message{Role: state.RoleAssistant, Content: m.Content})
			}
		}
	}
	return out
}

func dropContextMessages(messages []state.Message) []state.Message {
	out := messages[:0]
	for _, m := range messages {
		if m.Role != state.RoleContext {
			out = append(out, m)
		}
	}
	return out
}

func lastMessage(messages []state.Message) *state.Message {
	if len(messages) == 0 {
		return nil
	}
	return &messages[len(messages)-1]
}

func refID(ref *checkpoint.Ref) *string {
	if ref == nil {
		return nil
	}
	return &ref.CheckpointID
}

func joinSnippets(snippets []string) string {
	joined := ""
	for i, s := range snippets {
		if i > 0 {
			joined += "\n---\n"
		}
		joined += s
	}
	return joined
}
