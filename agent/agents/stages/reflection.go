package stages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	llmx "github.com/athena-research/athena-agent/agent/llm"
	promptx "github.com/athena-research/athena-agent/agent/prompt"
	statex "github.com/athena-research/athena-agent/agent/state"
	logx "github.com/athena-research/athena-agent/pkg/logger"
	pricingx "github.com/athena-research/athena-agent/pkg/pricing"
)

// Reflector updates the conversation's cross-turn memory at the end of
// a turn. The first turn with findings bootstraps the memory directly
// from the request state, without a model call; later turns ask the
// model to reconcile old memory with new findings and merge the answer
// key by key, last write wins.
type Reflector struct {
	client    contractx.ModelClient
	prompts   promptx.PromptSet
	model     string
	maxTokens int
	logger    zerolog.Logger
}

func NewReflector(client contractx.ModelClient, prompts promptx.PromptSet, cfg llmx.Config) (*Reflector, error) {
	if client == nil {
		return nil, errors.New("model client is required")
	}
	return &Reflector{
		client:    client,
		prompts:   prompts,
		model:     cfg.ModelFor(llmx.RoleReflection),
		maxTokens: cfg.MaxCompletionToken,
		logger:    logx.Component("reflector"),
	}, nil
}

// Execute mutates exec.Conversation in place; the caller persists it.
// Malformed model output is a hard failure: a bad merge would corrupt
// memory for every following turn.
func (r *Reflector) Execute(ctx context.Context, exec *contractx.ExecContext) error {
	st := exec.State
	statex.StartStep(st, contractx.StageReflection)
	defer statex.EndStep(st, contractx.StageReflection)
	statex.RecordCost(st, contractx.StageReflection, pricingx.PriceFloat(contractx.StageReflection))

	if exec.Conversation.Values.Empty() {
		r.bootstrap(exec)
		return nil
	}

	raw, err := r.reconcile(ctx, exec)
	if err != nil {
		return err
	}
	return r.merge(exec, raw)
}

func (r *Reflector) bootstrap(exec *contractx.ExecContext) {
	st := exec.State
	exec.Conversation.Values = contractx.ConversationValues{
		Hypothesis: st.Values.Hypothesis,
		Papers:     statex.UniquePapers(st),
	}
	if s := strings.TrimSpace(st.Values.SemanticScholarSynthesis); s != "" {
		exec.Conversation.Values.KeyInsights = []string{s}
	}
	r.logger.Info().Str("conversation_id", exec.Conversation.ID).Msg("memory_bootstrapped")
}

func (r *Reflector) reconcile(ctx context.Context, exec *contractx.ExecContext) (string, error) {
	turnFindings := map[string]any{
		"hypothesis":    exec.State.Values.Hypothesis,
		"papers":        statex.UniquePapers(exec.State),
		"finalResponse": exec.State.Values.FinalResponse,
	}

	promptText := r.prompts.Reflection
	promptText = strings.ReplaceAll(promptText, "{{conversationMemory}}", marshalForPrompt(exec.Conversation.Values))
	promptText = strings.ReplaceAll(promptText, "{{turnFindings}}", marshalForPrompt(turnFindings))
	promptText = strings.ReplaceAll(promptText, "{{userMessage}}", exec.Message.Question)

	completion, err := r.client.CreateChatCompletion(ctx, contractx.CompletionRequest{
		Model:     r.model,
		Messages:  []contractx.ChatMessage{{Role: contractx.RoleUser, Content: promptText}},
		MaxTokens: r.maxTokens,
	})
	if err != nil {
		return "", err
	}
	return completion.Content, nil
}

// merge applies the model's answer one top-level key at a time. Keys
// absent from the answer keep their previous value; keys present
// replace it wholesale.
func (r *Reflector) merge(exec *contractx.ExecContext, raw string) error {
	var keyed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(llmx.ParseJSONEnvelope(raw)), &keyed); err != nil {
		return fmt.Errorf("%w: reflection output is not a JSON object: %v", contractx.ErrSchemaViolation, err)
	}

	values := &exec.Conversation.Values
	for key, val := range keyed {
		var err error
		switch key {
		case "hypothesis":
			err = json.Unmarshal(val, &values.Hypothesis)
		case "papers":
			err = json.Unmarshal(val, &values.Papers)
		case "keyInsights":
			err = json.Unmarshal(val, &values.KeyInsights)
		case "methodology":
			err = json.Unmarshal(val, &values.Methodology)
		default:
			if values.Extra == nil {
				values.Extra = make(map[string]any, 4)
			}
			var decoded any
			if err = json.Unmarshal(val, &decoded); err == nil {
				values.Extra[key] = decoded
			}
		}
		if err != nil {
			return fmt.Errorf("%w: reflection key %q: %v", contractx.ErrSchemaViolation, key, err)
		}
	}

	r.logger.Info().
		Str("conversation_id", exec.Conversation.ID).
		Int("merged_keys", len(keyed)).
		Msg("memory_merged")
	return nil
}
