// Package ai provides the language-model and embedding provider boundary.
// Everything behind Provider is an external collaborator; the rest of the
// codebase never imports the OpenAI client directly.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Config holds the AI provider configuration.
type Config struct {
	BaseURL        string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	MaxRetries     int
	Timeout        time.Duration
	// RequestsPerSecond limits outbound model calls. Zero disables limiting.
	RequestsPerSecond float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:        "https://api.openai.com/v1",
		ChatModel:      "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		MaxRetries:     3,
		Timeout:        60 * time.Second,
	}
}

// ToolDefinition describes a callable tool advertised to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON schema object for the tool arguments.
	Parameters json.RawMessage
}

// ToolCallRequest is a tool invocation the model asked for.
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments string
}

// ChatMessage is the provider-level message representation.
type ChatMessage struct {
	Role       string
	Content    string
	ToolCalls  []ToolCallRequest
	ToolCallID string
	Name       string
}

// ChatResult is one model response: textual content and zero or more
// requested tool calls.
type ChatResult struct {
	Content   string
	ToolCalls []ToolCallRequest
}

// HasToolCalls reports whether the model asked for a tool.
func (r *ChatResult) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Provider provides chat, structured output and embedding capabilities.
type Provider struct {
	client  *openai.Client
	config  *Config
	limiter *rate.Limiter
}

// NewProvider creates a new AI provider.
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.APIKey == "" {
		return nil, errors.New("API key is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4o-mini"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Provider{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		limiter: limiter,
	}, nil
}

// ChatWithTools performs one chat completion with the given tool set. When
// onToken is non-nil the completion is streamed and content deltas are
// forwarded to it as they arrive; tool-call deltas are accumulated into the
// returned result either way.
func (p *Provider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition, onToken func(string)) (*ChatResult, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.config.ChatModel,
		Messages: toOpenAIMessages(messages),
		Tools:    toOpenAITools(tools),
	}

	var result *ChatResult
	err := p.doWithRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		var err error
		if onToken != nil {
			result, err = p.streamCompletion(ctx, req, onToken)
		} else {
			result, err = p.completion(ctx, req)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	return result, nil
}

func (p *Provider) completion(ctx context.Context, req openai.ChatCompletionRequest) (*ChatResult, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty chat response")
	}
	choice := resp.Choices[0].Message
	return &ChatResult{
		Content:   choice.Content,
		ToolCalls: fromOpenAIToolCalls(choice.ToolCalls),
	}, nil
}

func (p *Provider) streamCompletion(ctx context.Context, req openai.ChatCompletionRequest, onToken func(string)) (*ChatResult, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	result := &ChatResult{}
	// Tool-call deltas arrive as fragments keyed by index; stitch them
	// back together before returning.
	pending := map[int]*ToolCallRequest{}
	order := []int{}

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			result.Content += delta.Content
			onToken(delta.Content)
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := pending[idx]
			if !ok {
				call = &ToolCallRequest{}
				pending[idx] = call
				order = append(order, idx)
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Function.Name != "" {
				call.Name = tc.Function.Name
			}
			call.Arguments += tc.Function.Arguments
		}
	}

	for _, idx := range order {
		result.ToolCalls = append(result.ToolCalls, *pending[idx])
	}
	return result, nil
}

// GenerateStructured performs a JSON-mode completion and decodes the result
// into out. Used for typed outputs such as thread titles.
func (p *Provider) GenerateStructured(ctx context.Context, prompt string, out any) error {
	req := openai.ChatCompletionRequest{
		Model: p.config.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	return p.doWithRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		resp, err := p.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return errors.New("empty chat response")
		}
		return json.Unmarshal([]byte(resp.Choices[0].Message.Content), out)
	})
}

// Embeddings generates embedding vectors for the given texts.
func (p *Provider) Embeddings(ctx context.Context, texts []string) ([][]float32, error) {
	var result [][]float32
	err := p.doWithRetry(ctx, func() error {
		ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()

		resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(p.config.EmbeddingModel),
		})
		if err != nil {
			return err
		}
		if len(resp.Data) != len(texts) {
			return fmt.Errorf("embedding count mismatch: got %d, want %d", len(resp.Data), len(texts))
		}
		result = make([][]float32, len(resp.Data))
		for i, d := range resp.Data {
			result[i] = d.Embedding
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	return result, nil
}

// doWithRetry executes fn with exponential backoff, honoring the rate
// limiter before every attempt.
func (p *Provider) doWithRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < p.config.MaxRetries; attempt++ {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			if ctx.Err() != nil {
				return err
			}
			if attempt < p.config.MaxRetries-1 {
				waitTime := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				slog.Debug("AI request failed, retrying",
					"attempt", attempt+1,
					"wait_time", waitTime,
					"error", err)
				select {
				case <-time.After(waitTime):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return lastErr
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func fromOpenAIToolCalls(calls []openai.ToolCall) []ToolCallRequest {
	out := make([]ToolCallRequest, 0, len(calls))
	for _, tc := range calls {
		out = append(out, ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}
