package stages

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	llmx "github.com/athena-research/athena-agent/agent/llm"
	promptx "github.com/athena-research/athena-agent/agent/prompt"
	statex "github.com/athena-research/athena-agent/agent/state"
	logx "github.com/athena-research/athena-agent/pkg/logger"
)

// Rewriter turns the latest message into a context-free question for
// the retrieval backends. Rewriting is best-effort: any failure falls
// back to the raw message, never to an error.
type Rewriter struct {
	client    contractx.ModelClient
	prompts   promptx.PromptSet
	model     string
	maxTokens int
	logger    zerolog.Logger
}

func NewRewriter(client contractx.ModelClient, prompts promptx.PromptSet, cfg llmx.Config) (*Rewriter, error) {
	if client == nil {
		return nil, errors.New("model client is required")
	}
	return &Rewriter{
		client:    client,
		prompts:   prompts,
		model:     cfg.ModelFor(llmx.RoleStructured),
		maxTokens: cfg.MaxCompletionToken,
		logger:    logx.Component("rewriter"),
	}, nil
}

// Standalone returns the context-free form of the latest message.
// Without history there is nothing to resolve and the message passes
// through unchanged.
func (w *Rewriter) Standalone(ctx context.Context, history []contractx.Message, latest string) string {
	if len(history) == 0 {
		return latest
	}

	promptText := w.prompts.Standalone
	promptText = strings.ReplaceAll(promptText, "{{conversationHistory}}",
		statex.FormatConversationHistory(chronological(history)))
	promptText = strings.ReplaceAll(promptText, "{{latestMessage}}", latest)

	completion, err := w.client.CreateChatCompletion(ctx, contractx.CompletionRequest{
		Model:     w.model,
		Messages:  []contractx.ChatMessage{{Role: contractx.RoleUser, Content: promptText}},
		MaxTokens: w.maxTokens,
	})
	if err != nil {
		w.logger.Warn().Err(err).Msg("standalone_rewrite_failed")
		return latest
	}

	rewritten := strings.TrimSpace(completion.Content)
	if rewritten == "" {
		return latest
	}
	return rewritten
}
