package agent

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/internal/profile"
	"github.com/hrygo/loom/plugin/ai"
	"github.com/hrygo/loom/plugin/ai/agent/state"
	"github.com/hrygo/loom/plugin/ai/agent/tools"
	"github.com/hrygo/loom/plugin/ai/checkpoint"
	"github.com/hrygo/loom/store"
	"github.com/hrygo/loom/store/db/sqlite"
)

// fakeModel replays scripted responses and records what it was sent.
type fakeModel struct {
	script []*ai.ChatResult
	calls  int
	seen   [][]ai.ChatMessage
}

func (f *fakeModel) ChatWithTools(_ context.Context, messages []ai.ChatMessage, _ []ai.ToolDefinition, onToken func(string)) (*ai.ChatResult, error) {
	f.seen = append(f.seen, messages)
	resp := f.script[len(f.script)-1]
	if f.calls < len(f.script) {
		resp = f.script[f.calls]
	}
	f.calls++
	if onToken != nil && resp.Content != "" {
		onToken(resp.Content)
	}
	return resp, nil
}

func newTestSaver(t *testing.T) *checkpoint.Saver {
	t.Helper()
	dir := t.TempDir()
	p := &profile.Profile{Mode: "dev", Driver: "sqlite", Data: dir, DSN: filepath.Join(dir, "loom_test.db")}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return checkpoint.NewSaver(st)
}

func calculatorRegistry() *tools.Registry {
	return tools.NewRegistry(tools.NewCalculatorTool())
}

func TestRunTurnDirectAnswer(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{script: []*ai.ChatResult{{Content: "Hello there"}}}
	engine := NewEngine(model, newTestSaver(t), calculatorRegistry(), nil, Config{})

	result, err := engine.RunTurn(ctx, "t1", "hi", nil)
	require.NoError(t, err)
	require.Equal(t, "Hello there", result.Response)
	require.False(t, result.UsedTool)
	require.NotEmpty(t, result.CheckpointRef)

	// The first message sent to the model is the system prompt, then the
	// user message.
	require.Equal(t, "system", model.seen[0][0].Role)
	require.Equal(t, "user", model.seen[0][1].Role)
}

func TestRunTurnWithToolHop(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{script: []*ai.ChatResult{
		{ToolCalls: []ai.ToolCallRequest{{ID: "call_1", Name: "calculator", Arguments: `{"first_num":21,"second_num":2,"operator":"*"}`}}},
		{Content: "The answer is 42."},
	}}
	saver := newTestSaver(t)
	engine := NewEngine(model, saver, calculatorRegistry(), nil, Config{})

	var events []StreamEvent
	result, err := engine.RunTurn(ctx, "t1", "what is 21*2?", func(e StreamEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)
	require.Equal(t, "The answer is 42.", result.Response)
	require.True(t, result.UsedTool)

	// Second model call sees the tool result after the assistant request.
	second := model.seen[1]
	require.Equal(t, "assistant", second[len(second)-2].Role)
	require.Equal(t, "tool", second[len(second)-1].Role)
	require.Contains(t, second[len(second)-1].Content, "42")

	kinds := make([]StreamEventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	require.Contains(t, kinds, EventToolUse)
	require.Contains(t, kinds, EventToolResult)
	require.Equal(t, EventAnswer, kinds[len(kinds)-1])

	// Every node left a durable checkpoint: assistant request, tool
	// results, terminal answer.
	tuples, err := saver.List(ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, tuples, 3)
}

func TestRunTurnToolFailureFeedsBack(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{script: []*ai.ChatResult{
		{ToolCalls: []ai.ToolCallRequest{{ID: "call_1", Name: "calculator", Arguments: `{"first_num":1,"second_num":0,"operator":"/"}`}}},
		{Content: "That division is undefined."},
	}}
	engine := NewEngine(model, newTestSaver(t), calculatorRegistry(), nil, Config{})

	result, err := engine.RunTurn(ctx, "t1", "what is 1/0?", nil)
	require.NoError(t, err)
	require.Equal(t, "That division is undefined.", result.Response)

	// The failure reached the model as an error payload in a tool message,
	// not as an aborted turn.
	second := model.seen[1]
	last := second[len(second)-1]
	require.Equal(t, "tool", last.Role)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(last.Content), &payload))
	require.NotEmpty(t, payload["error"])
}

func TestRunTurnUnknownToolFeedsBack(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{script: []*ai.ChatResult{
		{ToolCalls: []ai.ToolCallRequest{{ID: "call_1", Name: "no_such_tool", Arguments: `{}`}}},
		{Content: "Sorry, I cannot do that."},
	}}
	engine := NewEngine(model, newTestSaver(t), calculatorRegistry(), nil, Config{})

	result, err := engine.RunTurn(ctx, "t1", "use the mystery tool", nil)
	require.NoError(t, err)
	require.Equal(t, "Sorry, I cannot do that.", result.Response)
	require.Contains(t, model.seen[1][len(model.seen[1])-1].Content, "unknown tool")
}

func TestRunTurnToolLoopExceeded(t *testing.T) {
	ctx := context.Background()
	// The model never stops asking for the calculator.
	model := &fakeModel{script: []*ai.ChatResult{
		{ToolCalls: []ai.ToolCallRequest{{ID: "call_1", Name: "calculator", Arguments: `{"first_num":1,"second_num":1,"operator":"+"}`}}},
	}}
	saver := newTestSaver(t)
	engine := NewEngine(model, saver, calculatorRegistry(), nil, Config{MaxToolHops: 2})

	result, err := engine.RunTurn(ctx, "t1", "loop forever", nil)
	require.Error(t, err)
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeToolLoopExceeded))
	require.NotNil(t, result)
	require.Equal(t, 2, model.calls)

	// Partial progress stayed durable.
	tuples, err := saver.List(ctx, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, tuples)
}

func TestRunTurnCarriesHistoryAcrossTurns(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{script: []*ai.ChatResult{
		{Content: "first answer"},
		{Content: "second answer"},
	}}
	engine := NewEngine(model, newTestSaver(t), calculatorRegistry(), nil, Config{})

	_, err := engine.RunTurn(ctx, "t1", "first question", nil)
	require.NoError(t, err)
	_, err = engine.RunTurn(ctx, "t1", "second question", nil)
	require.NoError(t, err)

	second := model.seen[1]
	var contents []string
	for _, m := range second {
		contents = append(contents, m.Content)
	}
	require.Contains(t, contents, "first question")
	require.Contains(t, contents, "first answer")
	require.Contains(t, contents, "second question")
}

func TestLoadStateFoldsPendingWrites(t *testing.T) {
	ctx := context.Background()
	saver := newTestSaver(t)
	engine := NewEngine(&fakeModel{script: []*ai.ChatResult{{Content: "x"}}}, saver, calculatorRegistry(), nil, Config{})

	// A crash after PutWrites but before the follow-up checkpoint leaves
	// the latest snapshot ending in an assistant tool request, with the
	// tool results only present as writes.
	st := &state.ChatState{ThreadID: "t1", Messages: []state.Message{
		{Role: state.RoleHuman, Content: "what is 2+2?"},
		{Role: state.RoleAssistant, ToolCalls: []state.ToolCall{
			{ID: "call_1", Name: "calculator", Arguments: `{"first_num":2,"second_num":2,"operator":"+"}`},
		}},
	}}
	ref, err := saver.Put(ctx, checkpoint.Ref{ThreadID: "t1", CheckpointID: checkpoint.NewID()}, nil, st, nil)
	require.NoError(t, err)
	require.NoError(t, saver.PutWrites(ctx, ref, "task-a", []checkpoint.Write{
		{Channel: "tool", Value: state.Message{Role: state.RoleTool, Content: `{"result":4}`, ToolCallID: "call_1", Name: "calculator"}},
	}))

	loaded, loadedRef, err := engine.LoadState(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, loadedRef)
	require.Len(t, loaded.Messages, 3)
	last := loaded.Messages[len(loaded.Messages)-1]
	require.Equal(t, state.RoleTool, last.Role)
	require.Equal(t, "call_1", last.ToolCallID)
}

func TestHistoryViewFiltering(t *testing.T) {
	messages := []state.Message{
		{Role: state.RoleSystem, Content: "be helpful"},
		{Role: state.RoleContext, Content: "doc snippet"},
		{Role: state.RoleHuman, Content: "question"},
		{Role: state.RoleAssistant, ToolCalls: []state.ToolCall{{ID: "call_1", Name: "calculator"}}},
		{Role: state.RoleTool, Content: `{"result":4}`, ToolCallID: "call_1"},
		{Role: state.RoleAssistant, Content: "final answer"},
	}

	view := HistoryView(messages)
	require.Len(t, view, 2)
	require.Equal(t, state.RoleHuman, view[0].Role)
	require.Equal(t, "question", view[0].Content)
	require.Equal(t, state.RoleAssistant, view[1].Role)
	require.Equal(t, "final answer", view[1].Content)
}

// fakeRetriever serves fixed snippets.
type fakeRetriever struct {
	has      bool
	snippets []string
}

func (f *fakeRetriever) HasDocument(context.Context, string) bool { return f.has }
func (f *fakeRetriever) Retrieve(context.Context, string, string, int) ([]string, error) {
	return f.snippets, nil
}

func TestRunTurnAugmentsWithDocumentContext(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{script: []*ai.ChatResult{{Content: "grounded answer"}}}
	retriever := &fakeRetriever{has: true, snippets: []string{"relevant chunk"}}
	engine := NewEngine(model, newTestSaver(t), calculatorRegistry(), retriever, Config{})

	result, err := engine.RunTurn(ctx, "t1", "what does the document say?", nil)
	require.NoError(t, err)
	require.Equal(t, "grounded answer", result.Response)
	require.True(t, result.State.HasDocument)

	var sawContext bool
	for _, m := range model.seen[0] {
		if m.Role == "system" && len(m.Content) > 0 && m.Content != systemPrompt {
			sawContext = true
			require.Contains(t, m.Content, "relevant chunk")
		}
	}
	require.True(t, sawContext)

	// Context rides in the snapshot but never in the history view.
	view := HistoryView(result.State.Messages)
	for _, m := range view {
		require.NotContains(t, m.Content, "relevant chunk")
	}
}

func TestAnswerFromSnippets(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{script: []*ai.ChatResult{{Content: "it says dogs bark"}}}
	engine := NewEngine(model, newTestSaver(t), calculatorRegistry(), nil, Config{})

	answer, err := engine.AnswerFromSnippets(ctx, "what do dogs do?", []string{"dogs bark", "cats purr"})
	require.NoError(t, err)
	require.Equal(t, "it says dogs bark", answer)

	// One standalone completion: a single user message carrying both the
	// snippets and the question, with no tools offered.
	require.Len(t, model.seen, 1)
	require.Len(t, model.seen[0], 1)
	require.Equal(t, "user", model.seen[0][0].Role)
	require.Contains(t, model.seen[0][0].Content, "dogs bark")
	require.Contains(t, model.seen[0][0].Content, "what do dogs do?")
}

func TestRunTurnDropsStaleDocumentContext(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{script: []*ai.ChatResult{{Content: "first"}, {Content: "second"}}}
	retriever := &fakeRetriever{has: true, snippets: []string{"chunk one"}}
	engine := NewEngine(model, newTestSaver(t), calculatorRegistry(), retriever, Config{})

	_, err := engine.RunTurn(ctx, "t1", "first question", nil)
	require.NoError(t, err)

	retriever.snippets = []string{"chunk two"}
	result, err := engine.RunTurn(ctx, "t1", "second question", nil)
	require.NoError(t, err)

	// The second request carries exactly one context block, freshly derived
	// for this turn; the first turn's block does not reappear.
	var contexts []string
	for _, m := range model.seen[1] {
		if m.Role == "system" && m.Content != systemPrompt {
			contexts = append(contexts, m.Content)
		}
	}
	require.Len(t, contexts, 1)
	require.Contains(t, contexts[0], "chunk two")
	require.NotContains(t, contexts[0], "chunk one")

	// The snapshot keeps only the current turn's context entry.
	var stored []string
	for _, m := range result.State.Messages {
		if m.Role == state.RoleContext {
			stored = append(stored, m.Content)
		}
	}
	require.Equal(t, []string{"chunk two"}, stored)
}
