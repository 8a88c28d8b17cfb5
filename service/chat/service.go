// Package chat is the application service over the conversation engine: it
// owns thread lifecycle, per-thread turn serialization, title generation,
// and the user-facing history view.
package chat

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	lerrors "github.com/hrygo/loom/internal/errors"
	"github.com/hrygo/loom/plugin/ai/agent"
	"github.com/hrygo/loom/plugin/ai/agent/state"
	"github.com/hrygo/loom/plugin/ai/rag"
	"github.com/hrygo/loom/store"
)

// degradedResponse is returned when a turn ran out of tool hops. Partial
// progress is already checkpointed.
const degradedResponse = "I couldn't finish answering within the allowed number of tool steps. " +
	"Please try rephrasing or narrowing the question."

// Reply is the outcome of one turn.
type Reply struct {
	ThreadID     string `json:"thread_id"`
	Response     string `json:"response"`
	CheckpointID string `json:"checkpoint_id"`
	UsedTool     bool   `json:"used_tool"`
	// Degraded marks a reply produced after hitting the tool-hop bound.
	Degraded bool `json:"degraded,omitempty"`
}

// Service coordinates the store, the engine and the document cache.
type Service struct {
	store  *store.Store
	engine *agent.Engine
	docs   *rag.Service
	titler TitleGenerator
	locks  *keyedLock
}

// NewService wires the chat service. titler may be nil to disable title
// generation; docs may be nil to disable document grounding.
func NewService(st *store.Store, engine *agent.Engine, docs *rag.Service, titler TitleGenerator) *Service {
	return &Service{
		store:  st,
		engine: engine,
		docs:   docs,
		titler: titler,
		locks:  newKeyedLock(),
	}
}

// CreateThread registers a fresh thread with the default title.
func (s *Service) CreateThread(ctx context.Context) (*store.Thread, error) {
	now := time.Now().UnixMilli()
	thread, err := s.store.UpsertThread(ctx, &store.Thread{
		ID:        uuid.NewString(),
		Title:     store.DefaultThreadTitle,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to create thread")
	}
	return thread, nil
}

// SendTurn runs one blocking turn and returns the final reply.
func (s *Service) SendTurn(ctx context.Context, threadID, message string) (*Reply, error) {
	return s.runTurn(ctx, threadID, message, nil)
}

// StreamTurn runs one turn, pushing incremental events to callback. The
// final reply is also returned so transports can close cleanly.
func (s *Service) StreamTurn(ctx context.Context, threadID, message string, callback agent.EventCallback) (*Reply, error) {
	return s.runTurn(ctx, threadID, message, callback)
}

func (s *Service) runTurn(ctx context.Context, threadID, message string, callback agent.EventCallback) (*Reply, error) {
	if threadID == "" {
		return nil, lerrors.New(lerrors.ErrCodeInvalidArgument, "thread id is required")
	}
	if message == "" {
		return nil, lerrors.New(lerrors.ErrCodeInvalidArgument, "message is required")
	}

	s.locks.Lock(threadID)
	defer s.locks.Unlock(threadID)

	thread, err := s.ensureThread(ctx, threadID)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.RunTurn(ctx, threadID, message, callback)
	degraded := false
	switch {
	case err == nil:
	case lerrors.IsCode(err, lerrors.ErrCodeToolLoopExceeded):
		// The turn aborted but its partial progress is durable. The user
		// gets a textual explanation, not an error.
		slog.Warn("turn hit tool-hop bound", "thread", threadID)
		degraded = true
		result.Response = degradedResponse
		if callback != nil {
			callback(agent.StreamEvent{Kind: agent.EventAnswer, Content: degradedResponse})
		}
	default:
		return nil, err
	}

	if err := s.store.TouchThread(ctx, threadID, time.Now().UnixMilli()); err != nil {
		slog.Warn("failed to touch thread", "thread", threadID, "error", err)
	}
	s.maybeGenerateTitle(ctx, thread, message, result.Response)

	return &Reply{
		ThreadID:     threadID,
		Response:     result.Response,
		CheckpointID: result.CheckpointRef,
		UsedTool:     result.UsedTool,
		Degraded:     degraded,
	}, nil
}

// ensureThread returns the registry row, creating one when the thread is
// only known through checkpoints or is entirely new.
func (s *Service) ensureThread(ctx context.Context, threadID string) (*store.Thread, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to load thread")
	}
	if thread != nil {
		return thread, nil
	}
	now := time.Now().UnixMilli()
	thread, err = s.store.UpsertThread(ctx, &store.Thread{
		ID:        threadID,
		Title:     store.DefaultThreadTitle,
		CreatedTs: now,
		UpdatedTs: now,
	})
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to register thread")
	}
	return thread, nil
}

// maybeGenerateTitle names the thread after its first real exchange. Runs
// inline; a slow model delays the reply, not correctness.
func (s *Service) maybeGenerateTitle(ctx context.Context, thread *store.Thread, userMessage, response string) {
	if s.titler == nil || thread.Title != store.DefaultThreadTitle || response == "" {
		return
	}
	title := generateTitle(ctx, s.titler, thread.ID, userMessage, response)
	if err := s.store.UpdateThread(ctx, &store.UpdateThread{ID: thread.ID, Title: &title}); err != nil {
		slog.Warn("failed to save generated title", "thread", thread.ID, "error", err)
	}
}

// ListThreads returns all known threads, including ones only visible
// through checkpoints, most recently active first.
func (s *Service) ListThreads(ctx context.Context) ([]*store.Thread, error) {
	threads, err := s.store.ListThreadsReconciled(ctx)
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to list threads")
	}
	return threads, nil
}

// GetThread returns one registry row.
func (s *Service) GetThread(ctx context.Context, threadID string) (*store.Thread, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to load thread")
	}
	if thread == nil {
		return nil, lerrors.Newf(lerrors.ErrCodeNotFound, "thread %s not found", threadID)
	}
	return thread, nil
}

// GetHistory returns the user-facing conversation view: human messages and
// content-bearing assistant replies. Unknown threads are NOT_FOUND.
func (s *Service) GetHistory(ctx context.Context, threadID string) ([]state.Message, error) {
	st, ref, err := s.engine.LoadState(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		thread, err := s.store.GetThread(ctx, threadID)
		if err != nil {
			return nil, lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to load thread")
		}
		if thread == nil {
			return nil, lerrors.Newf(lerrors.ErrCodeNotFound, "thread %s not found", threadID)
		}
	}
	return agent.HistoryView(st.Messages), nil
}

// RenameThread sets a user-chosen title.
func (s *Service) RenameThread(ctx context.Context, threadID, title string) error {
	if title == "" {
		return lerrors.New(lerrors.ErrCodeInvalidArgument, "title is required")
	}
	if _, err := s.GetThread(ctx, threadID); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	if err := s.store.UpdateThread(ctx, &store.UpdateThread{ID: threadID, Title: &title, UpdatedTs: &now}); err != nil {
		return lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to rename thread")
	}
	return nil
}

// DeleteThread removes the thread, its checkpoints, writes, document
// metadata, index and artifact. Deleting an unknown thread is a no-op.
func (s *Service) DeleteThread(ctx context.Context, threadID string) error {
	s.locks.Lock(threadID)
	defer s.locks.Unlock(threadID)

	if s.docs != nil {
		if err := s.docs.Forget(threadID); err != nil {
			slog.Warn("failed to remove document artifact", "thread", threadID, "error", err)
		}
	}
	if err := s.store.DeleteThreadData(ctx, threadID); err != nil {
		return lerrors.Wrap(err, lerrors.ErrCodePersistenceFailed, "failed to delete thread data")
	}
	return nil
}

// IngestDocument attaches a document to the thread, replacing any previous
// one.
func (s *Service) IngestDocument(ctx context.Context, threadID, filename string, content []byte) (*store.DocumentMetadata, error) {
	if s.docs == nil {
		return nil, lerrors.New(lerrors.ErrCodeInvalidArgument, "document grounding is disabled")
	}
	s.locks.Lock(threadID)
	defer s.locks.Unlock(threadID)

	if _, err := s.ensureThread(ctx, threadID); err != nil {
		return nil, err
	}
	meta, err := s.docs.Ingest(ctx, threadID, filename, content)
	if err != nil {
		return nil, err
	}
	if err := s.store.TouchThread(ctx, threadID, time.Now().UnixMilli()); err != nil {
		slog.Warn("failed to touch thread", "thread", threadID, "error", err)
	}
	return meta, nil
}

// DocumentInfo describes the thread's current document.
func (s *Service) DocumentInfo(ctx context.Context, threadID string) (*store.DocumentMetadata, error) {
	if s.docs == nil {
		return nil, lerrors.New(lerrors.ErrCodeNoDocument, "document grounding is disabled")
	}
	return s.docs.Describe(ctx, threadID)
}

// DocumentAnswer is the result of a direct document query.
type DocumentAnswer struct {
	ThreadID   string   `json:"thread_id"`
	Answer     string   `json:"answer"`
	Snippets   []string `json:"snippets"`
	SourceFile string   `json:"source_file"`
}

// QueryDocument answers a question from the thread's document alone: it
// retrieves relevant snippets and runs one grounded completion over them,
// outside the conversation history. Retrieval failures are reported directly
// here, unlike the chat path which degrades.
func (s *Service) QueryDocument(ctx context.Context, threadID, query string, k int) (*DocumentAnswer, error) {
	if s.docs == nil {
		return nil, lerrors.New(lerrors.ErrCodeNoDocument, "document grounding is disabled")
	}
	if query == "" {
		return nil, lerrors.New(lerrors.ErrCodeInvalidArgument, "query is required")
	}
	snippets, err := s.docs.Retrieve(ctx, query, threadID, k)
	if err != nil {
		return nil, err
	}
	meta, err := s.docs.Describe(ctx, threadID)
	if err != nil {
		return nil, err
	}
	answer, err := s.engine.AnswerFromSnippets(ctx, query, snippets)
	if err != nil {
		return nil, err
	}
	return &DocumentAnswer{
		ThreadID:   threadID,
		Answer:     answer,
		Snippets:   snippets,
		SourceFile: meta.Filename,
	}, nil
}
