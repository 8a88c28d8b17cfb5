package chat

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/internal/profile"
	"github.com/hrygo/loom/plugin/ai"
	"github.com/hrygo/loom/plugin/ai/agent"
	"github.com/hrygo/loom/plugin/ai/agent/tools"
	"github.com/hrygo/loom/plugin/ai/checkpoint"
	"github.com/hrygo/loom/plugin/ai/rag"
	"github.com/hrygo/loom/store"
	"github.com/hrygo/loom/store/db/sqlite"
)

type fakeModel struct {
	script []*ai.ChatResult
	calls  int
}

func (f *fakeModel) ChatWithTools(_ context.Context, _ []ai.ChatMessage, _ []ai.ToolDefinition, onToken func(string)) (*ai.ChatResult, error) {
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

type fakeTitler struct {
	title string
	fail  bool
	calls int
}

func (f *fakeTitler) GenerateStructured(_ context.Context, _ string, out any) error {
	f.calls++
	if f.fail {
		return lerrors.New(lerrors.ErrCodeInvalidArgument, "model unavailable")
	}
	return json.Unmarshal([]byte(`{"title":"`+f.title+`"}`), out)
}

type hashEmbedder struct{}

func (hashEmbedder) Embeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 8)
		for j, r := range text {
			v[j%8] += float32(r%31) / 31
		}
		out[i] = v
	}
	return out, nil
}

func newTestService(t *testing.T, model agent.ModelClient, titler TitleGenerator, maxHops int) (*Service, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	p := &profile.Profile{Mode: "dev", Driver: "sqlite", Data: dir, DSN: filepath.Join(dir, "loom_test.db")}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	st := store.New(driver, p)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	artifacts, err := rag.NewArtifactStore(filepath.Join(dir, "documents"))
	require.NoError(t, err)
	docs := rag.NewService(st, hashEmbedder{}, artifacts, 1000, 200)

	engine := agent.NewEngine(model, checkpoint.NewSaver(st), tools.NewRegistry(tools.NewCalculatorTool()), docs, agent.Config{MaxToolHops: maxHops})
	return NewService(st, engine, docs, titler), st
}

func TestSendTurnGeneratesTitle(t *testing.T) {
	ctx := context.Background()
	titler := &fakeTitler{title: "Paris Weather Chat"}
	svc, st := newTestService(t, &fakeModel{script: []*ai.ChatResult{{Content: "It is sunny."}}}, titler, 8)

	thread, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	require.Equal(t, store.DefaultThreadTitle, thread.Title)

	reply, err := svc.SendTurn(ctx, thread.ID, "weather in paris?")
	require.NoError(t, err)
	require.Equal(t, "It is sunny.", reply.Response)
	require.NotEmpty(t, reply.CheckpointID)

	named, err := st.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	require.Equal(t, "Paris Weather Chat", named.Title)
	require.GreaterOrEqual(t, named.UpdatedTs, thread.UpdatedTs)
}

func TestTitleFallbackOnGenerationFailure(t *testing.T) {
	ctx := context.Background()
	titler := &fakeTitler{fail: true}
	svc, st := newTestService(t, &fakeModel{script: []*ai.ChatResult{{Content: "hello"}}}, titler, 8)

	thread, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	_, err = svc.SendTurn(ctx, thread.ID, "hi")
	require.NoError(t, err)

	named, err := st.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	require.Equal(t, thread.ID[:8]+"...", named.Title)
}

func TestTitleGeneratedOnlyOnce(t *testing.T) {
	ctx := context.Background()
	titler := &fakeTitler{title: "Some Title"}
	svc, _ := newTestService(t, &fakeModel{script: []*ai.ChatResult{{Content: "answer"}}}, titler, 8)

	thread, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	_, err = svc.SendTurn(ctx, thread.ID, "one")
	require.NoError(t, err)
	_, err = svc.SendTurn(ctx, thread.ID, "two")
	require.NoError(t, err)
	require.Equal(t, 1, titler.calls)
}

func TestSendTurnValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeModel{script: []*ai.ChatResult{{Content: "x"}}}, nil, 8)

	_, err := svc.SendTurn(context.Background(), "", "hi")
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeInvalidArgument))

	_, err = svc.SendTurn(context.Background(), "t1", "")
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeInvalidArgument))
}

func TestDegradedReplyOnToolLoop(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{script: []*ai.ChatResult{
		{ToolCalls: []ai.ToolCallRequest{{ID: "call_1", Name: "calculator", Arguments: `{"first_num":1,"second_num":1,"operator":"+"}`}}},
	}}
	svc, _ := newTestService(t, model, nil, 2)

	thread, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	reply, err := svc.SendTurn(ctx, thread.ID, "loop forever")
	require.NoError(t, err)
	require.True(t, reply.Degraded)
	require.Equal(t, degradedResponse, reply.Response)
	require.True(t, reply.UsedTool)
}

func TestGetHistoryFiltersInternalMessages(t *testing.T) {
	ctx := context.Background()
	model := &fakeModel{script: []*ai.ChatResult{
		{ToolCalls: []ai.ToolCallRequest{{ID: "call_1", Name: "calculator", Arguments: `{"first_num":21,"second_num":2,"operator":"*"}`}}},
		{Content: "It is 42."},
	}}
	svc, _ := newTestService(t, model, nil, 8)

	thread, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	_, err = svc.SendTurn(ctx, thread.ID, "what is 21*2?")
	require.NoError(t, err)

	history, err := svc.GetHistory(ctx, thread.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, "what is 21*2?", history[0].Content)
	require.Equal(t, "It is 42.", history[1].Content)
}

func TestGetHistoryUnknownThread(t *testing.T) {
	svc, _ := newTestService(t, &fakeModel{script: []*ai.ChatResult{{Content: "x"}}}, nil, 8)
	_, err := svc.GetHistory(context.Background(), "missing")
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeNotFound))
}

func TestRenameThread(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, &fakeModel{script: []*ai.ChatResult{{Content: "x"}}}, nil, 8)

	thread, err := svc.CreateThread(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.RenameThread(ctx, thread.ID, "My Thread"))
	named, err := st.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	require.Equal(t, "My Thread", named.Title)

	err = svc.RenameThread(ctx, thread.ID, "")
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeInvalidArgument))

	err = svc.RenameThread(ctx, "missing", "Title")
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeNotFound))
}

func TestDeleteThreadRemovesEverything(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, &fakeModel{script: []*ai.ChatResult{{Content: "answer"}}}, nil, 8)

	thread, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	_, err = svc.SendTurn(ctx, thread.ID, "hello")
	require.NoError(t, err)
	_, err = svc.IngestDocument(ctx, thread.ID, "doc.txt", []byte("document content"))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteThread(ctx, thread.ID))

	_, err = svc.GetHistory(ctx, thread.ID)
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeNotFound))

	doc, err := st.GetDocumentMetadata(ctx, thread.ID)
	require.NoError(t, err)
	require.Nil(t, doc)

	threads, err := svc.ListThreads(ctx)
	require.NoError(t, err)
	require.Empty(t, threads)
}

func TestIngestAndQueryDocument(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, &fakeModel{script: []*ai.ChatResult{{Content: "dogs bark when excited"}}}, nil, 8)

	thread, err := svc.CreateThread(ctx)
	require.NoError(t, err)

	meta, err := svc.IngestDocument(ctx, thread.ID, "animals.txt", []byte("cats purr\fdogs bark"))
	require.NoError(t, err)
	require.Equal(t, 2, meta.ChunksCount)

	answer, err := svc.QueryDocument(ctx, thread.ID, "dogs bark", 1)
	require.NoError(t, err)
	require.Equal(t, "dogs bark when excited", answer.Answer)
	require.Equal(t, []string{"dogs bark"}, answer.Snippets)
	require.Equal(t, "animals.txt", answer.SourceFile)

	_, err = svc.QueryDocument(ctx, thread.ID, "", 1)
	require.True(t, lerrors.IsCode(err, lerrors.ErrCodeInvalidArgument))
}

func TestListThreadsOrdersByActivity(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, &fakeModel{script: []*ai.ChatResult{{Content: "x"}}}, nil, 8)

	a, err := svc.CreateThread(ctx)
	require.NoError(t, err)
	b, err := svc.CreateThread(ctx)
	require.NoError(t, err)

	// Activity on a bumps it above b.
	require.NoError(t, st.TouchThread(ctx, a.ID, b.UpdatedTs+100))

	threads, err := svc.ListThreads(ctx)
	require.NoError(t, err)
	require.Len(t, threads, 2)
	require.Equal(t, a.ID, threads[0].ID)
}

func TestUpdatedTsStrictlyIncreasesAcrossTurns(t *testing.T) {
	ctx := context.Background()
	svc, st := newTestService(t, &fakeModel{script: []*ai.ChatResult{{Content: "x"}}}, nil, 8)

	thread, err := svc.CreateThread(ctx)
	require.NoError(t, err)

	_, err = svc.SendTurn(ctx, thread.ID, "first")
	require.NoError(t, err)
	afterFirst, err := st.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	require.Greater(t, afterFirst.UpdatedTs, thread.UpdatedTs)

	// Back-to-back turns, possibly within the same millisecond, still
	// strictly advance the activity timestamp.
	_, err = svc.SendTurn(ctx, thread.ID, "second")
	require.NoError(t, err)
	afterSecond, err := st.GetThread(ctx, thread.ID)
	require.NoError(t, err)
	require.Greater(t, afterSecond.UpdatedTs, afterFirst.UpdatedTs)
}
