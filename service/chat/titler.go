package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const titleMaxWords = 5

// TitleGenerator produces structured output from a prompt. Satisfied by the
// AI provider.
type TitleGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, out any) error
}

type titleResponse struct {
	Title string `json:"title"`
}

// generateTitle derives a short thread title from the first exchange.
// Failures fall back to a truncated thread id so a thread is never left
// unnamed once it has content.
func generateTitle(ctx context.Context, gen TitleGenerator, threadID, userMessage, assistantReply string) string {
	prompt := fmt.Sprintf(
		"Summarize this conversation opening as a title of at most %d words. "+
			"Respond as JSON: {\"title\": \"...\"}.\n\nUser: %s\n\nAssistant: %s",
		titleMaxWords, clip(userMessage, 500), clip(assistantReply, 500))

	var resp titleResponse
	if err := gen.GenerateStructured(ctx, prompt, &resp); err != nil {
		slog.Warn("title generation failed, using fallback", "thread", threadID, "error", err)
		return fallbackTitle(threadID)
	}

	title := strings.TrimSpace(resp.Title)
	if title == "" {
		return fallbackTitle(threadID)
	}
	words := strings.Fields(title)
	if len(words) > titleMaxWords {
		title = strings.Join(words[:titleMaxWords], " ")
	}
	return title
}

func fallbackTitle(threadID string) string {
	if len(threadID) > 8 {
		return threadID[:8] + "..."
	}
	return threadID
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
