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
	pricingx "github.com/athena-research/athena-agent/pkg/pricing"
)

// Replier produces the user-facing reply. Grounded turns stream the
// completion and persist the partial text after every chunk so the
// viewer can render it live; ungrounded turns fall back to a
// web-search-augmented completion, which does not stream.
type Replier struct {
	client     contractx.ModelClient
	store      contractx.Store
	checkpoint Checkpointer
	prompts    promptx.PromptSet
	model      string
	maxTokens  int
	logger     zerolog.Logger
}

func NewReplier(
	client contractx.ModelClient,
	store contractx.Store,
	checkpoint Checkpointer,
	prompts promptx.PromptSet,
	cfg llmx.Config,
) (*Replier, error) {
	if client == nil {
		return nil, errors.New("model client is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if checkpoint == nil {
		checkpoint = NopCheckpointer{}
	}
	return &Replier{
		client:     client,
		store:      store,
		checkpoint: checkpoint,
		prompts:    prompts,
		model:      cfg.ModelFor(llmx.RoleReply),
		maxTokens:  cfg.MaxCompletionToken,
		logger:     logx.Component("replier"),
	}, nil
}

// Execute runs the reply stage. history arrives most-recent first, as
// the store returns it.
func (r *Replier) Execute(ctx context.Context, exec *contractx.ExecContext, history []contractx.Message) (*contractx.ActionResult, error) {
	st := exec.State
	statex.StartStep(st, contractx.ActionReply)
	defer statex.EndStep(st, contractx.ActionReply)
	statex.RecordCost(st, contractx.ActionReply, pricingx.PriceFloat(contractx.ActionReply))

	grounded := statex.HasRetrievalEvidence(st)
	template := r.selectTemplate(grounded, st.Values.Source, st.Values.IsDeepResearch)
	promptText := injectEvidence(template, composeEvidence(exec))

	window := historyWindow(st.Values.Source)
	if len(history) > window {
		history = history[:window]
	}
	messages := historyMessages(history)
	messages = append(messages, contractx.ChatMessage{
		Role:    contractx.RoleUser,
		Content: exec.Message.Question,
	})

	var (
		raw     string
		results []contractx.WebSearchResult
	)
	if grounded || st.Values.IsDeepResearch {
		completion, err := r.client.CreateChatCompletion(ctx, contractx.CompletionRequest{
			Model:             r.model,
			SystemInstruction: promptText,
			Messages:          messages,
			MaxTokens:         r.maxTokens,
			Stream:            true,
			OnStreamChunk: func(chunk, fullText string) error {
				st.Values.FinalResponse = fullText
				r.checkpoint.Checkpoint(ctx, st)
				return nil
			},
		})
		if err != nil {
			return nil, err
		}
		raw = completion.Content
	} else {
		completion, err := r.client.CreateChatCompletionWebSearch(ctx, contractx.CompletionRequest{
			Model:             r.model,
			SystemInstruction: promptText,
			Messages:          messages,
			MaxTokens:         r.maxTokens,
		})
		if err != nil {
			return nil, err
		}
		raw = completion.CleanedLLMOutput
		results = statex.CleanWebSearchResults(completion.WebSearchResults)
	}

	text := llmx.ParseJSONEnvelope(raw)

	st.Values.FinalResponse = text
	st.Values.WebSearchResults = results

	// The message row keeps the raw model output; the parsed text is
	// what the state exposes to the viewer.
	if exec.Message.ID != "" {
		if err := r.store.UpdateMessage(ctx, exec.Message.ID, contractx.MessagePatch{Content: &raw}); err != nil {
			r.logger.Warn().Err(err).Str("message_id", exec.Message.ID).Msg("update_message_failed")
		}
	}

	return &contractx.ActionResult{
		Thought:          st.Values.Thought,
		Text:             text,
		Actions:          []string{contractx.ActionReply},
		Papers:           statex.UniquePapers(st),
		WebSearchResults: results,
	}, nil
}

func (r *Replier) selectTemplate(grounded bool, source string, deepResearch bool) string {
	if deepResearch {
		return r.prompts.ReplyDeepResearch
	}
	if source == contractx.SourceTwitter {
		if grounded {
			return r.prompts.ReplyTwitter
		}
		return r.prompts.ReplyTwitterWeb
	}
	if grounded {
		return r.prompts.Reply
	}
	return r.prompts.ReplyWeb
}

// historyMessages expands persisted turns into alternating chat
// messages, oldest first.
func historyMessages(history []contractx.Message) []contractx.ChatMessage {
	out := make([]contractx.ChatMessage, 0, len(history)*2)
	for _, msg := range chronological(history) {
		if q := strings.TrimSpace(msg.Question); q != "" {
			out = append(out, contractx.ChatMessage{Role: contractx.RoleUser, Content: q})
		}
		if c := strings.TrimSpace(msg.Content); c != "" {
			out = append(out, contractx.ChatMessage{Role: contractx.RoleAssistant, Content: c})
		}
	}
	return out
}
