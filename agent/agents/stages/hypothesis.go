package stages

import (
	"context"
	"encoding/json"
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

// noveltyGuideline is appended to deep-research hypothesis prompts,
// where the working hypothesis is part of the evidence and must not be
// restated.
const noveltyGuideline = "\n\nThe hypothesis must be novel: do not restate " +
	"the working hypothesis or any claim already present in the evidence."

var hypothesisSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"hypothesis": map[string]any{"type": "string"},
		"reasoning":  map[string]any{"type": "string"},
	},
	"required":             []string{"hypothesis", "reasoning"},
	"additionalProperties": false,
}

// Hypothesizer formulates a testable hypothesis in two passes: a free
// generation pass picks the strongest candidate, then a structured pass
// distills it into a schema-validated record for the conversation
// memory.
type Hypothesizer struct {
	client          contractx.ModelClient
	store           contractx.Store
	prompts         promptx.PromptSet
	model           string
	structuredModel string
	maxTokens       int
	logger          zerolog.Logger
}

func NewHypothesizer(client contractx.ModelClient, store contractx.Store, prompts promptx.PromptSet, cfg llmx.Config) (*Hypothesizer, error) {
	if client == nil {
		return nil, errors.New("model client is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	return &Hypothesizer{
		client:          client,
		store:           store,
		prompts:         prompts,
		model:           cfg.ModelFor(llmx.RoleHypothesis),
		structuredModel: cfg.ModelFor(llmx.RoleStructured),
		maxTokens:       cfg.MaxCompletionToken,
		logger:          logx.Component("hypothesizer"),
	}, nil
}

func (h *Hypothesizer) Execute(ctx context.Context, exec *contractx.ExecContext) (*contractx.ActionResult, error) {
	st := exec.State
	statex.StartStep(st, contractx.ActionHypothesis)
	defer statex.EndStep(st, contractx.ActionHypothesis)
	statex.RecordCost(st, contractx.ActionHypothesis, pricingx.PriceFloat(contractx.ActionHypothesis))

	grounded := statex.HasRetrievalEvidence(st)
	template := h.selectTemplate(grounded, st.Values.IsDeepResearch)
	promptText := injectEvidence(
		statex.ComposePrompt(st, h.fillQuestion(template, exec)),
		composeEvidence(exec),
	)
	if st.Values.IsDeepResearch {
		promptText += noveltyGuideline
	}

	var (
		raw     string
		results []contractx.WebSearchResult
	)
	if grounded || st.Values.IsDeepResearch {
		completion, err := h.client.CreateChatCompletion(ctx, contractx.CompletionRequest{
			Model:             h.model,
			SystemInstruction: h.prompts.System,
			Messages:          []contractx.ChatMessage{{Role: contractx.RoleUser, Content: promptText}},
			MaxTokens:         h.maxTokens,
		})
		if err != nil {
			return nil, err
		}
		raw = completion.Content
	} else {
		completion, err := h.client.CreateChatCompletionWebSearch(ctx, contractx.CompletionRequest{
			Model:             h.model,
			SystemInstruction: h.prompts.System,
			Messages:          []contractx.ChatMessage{{Role: contractx.RoleUser, Content: promptText}},
			MaxTokens:         h.maxTokens,
		})
		if err != nil {
			return nil, err
		}
		raw = completion.CleanedLLMOutput
		results = statex.CleanWebSearchResults(completion.WebSearchResults)
	}

	hypothesis, reasoning := h.distill(ctx, raw)

	st.Values.Hypothesis = hypothesis
	st.Values.Thought = reasoning
	st.Values.FinalResponse = raw
	st.Values.WebSearchResults = results

	if exec.Message.ID != "" {
		if err := h.store.UpdateMessage(ctx, exec.Message.ID, contractx.MessagePatch{Content: &raw}); err != nil {
			h.logger.Warn().Err(err).Str("message_id", exec.Message.ID).Msg("update_message_failed")
		}
	}

	return &contractx.ActionResult{
		Thought:          reasoning,
		Text:             raw,
		Actions:          []string{contractx.ActionHypothesis},
		Papers:           statex.UniquePapers(st),
		WebSearchResults: results,
	}, nil
}

// distill runs the structured extraction pass. A failed pass is not
// fatal: the full prose falls back to being the hypothesis itself.
func (h *Hypothesizer) distill(ctx context.Context, prose string) (hypothesis, reasoning string) {
	completion, err := h.client.CreateChatCompletion(ctx, contractx.CompletionRequest{
		Model: h.structuredModel,
		SystemInstruction: "Extract the single central hypothesis and its " +
			"supporting reasoning from the text. Quote the hypothesis as " +
			"one self-contained statement.",
		Messages:       []contractx.ChatMessage{{Role: contractx.RoleUser, Content: prose}},
		MaxTokens:      h.maxTokens,
		ResponseSchema: hypothesisSchema,
		SchemaName:     "hypothesis",
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("structured_pass_failed")
		return prose, ""
	}

	var out struct {
		Hypothesis string `json:"hypothesis"`
		Reasoning  string `json:"reasoning"`
	}
	if err := json.Unmarshal([]byte(llmx.ParseJSONEnvelope(completion.Content)), &out); err != nil || strings.TrimSpace(out.Hypothesis) == "" {
		h.logger.Warn().Err(err).Msg("structured_pass_unparseable")
		return prose, ""
	}
	return out.Hypothesis, out.Reasoning
}

func (h *Hypothesizer) selectTemplate(grounded, deepResearch bool) string {
	if deepResearch {
		return h.prompts.HypothesisDeepResearch
	}
	if grounded {
		return h.prompts.Hypothesis
	}
	return h.prompts.HypothesisWeb
}

// fillQuestion substitutes the question placeholder with the
// context-free rewrite when one exists.
func (h *Hypothesizer) fillQuestion(template string, exec *contractx.ExecContext) string {
	question := exec.Message.Question
	if q, ok := exec.State.Values.Extra["standaloneQuestion"].(string); ok && strings.TrimSpace(q) != "" {
		question = q
	}
	return strings.ReplaceAll(template, "{{question}}", question)
}
