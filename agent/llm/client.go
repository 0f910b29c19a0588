// Package llm wraps the OpenRouter gateway into the uniform model
// client the pipeline stages call: plain completions with optional
// streaming or structured output, and web-search-augmented completions
// that return cleaned prose plus structured citations.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog/log"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	openrouterx "github.com/athena-research/athena-agent/pkg/openrouter"
)

type Client struct {
	sdk                 *openaisdk.Client
	temperature         float32
	webSearchMaxResults int
}

var _ contractx.ModelClient = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sdk, err := openrouterx.NewSDKClient(cfg.Gateway(RoleReply))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrConfigMissing, err)
	}

	return &Client{
		sdk:                 sdk,
		temperature:         cfg.Temperature,
		webSearchMaxResults: cfg.WebSearchMaxResults,
	}, nil
}

func (c *Client) CreateChatCompletion(ctx context.Context, req contractx.CompletionRequest) (*contractx.Completion, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	if req.Stream && req.OnStreamChunk != nil {
		return c.streamCompletion(ctx, params, req.OnStreamChunk)
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: model=%s: %v", contractx.ErrModelInvoke, req.Model, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: model=%s", contractx.ErrEmptyCompletion, req.Model)
	}

	return &contractx.Completion{
		Content: completion.Choices[0].Message.Content,
		Usage: contractx.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func (c *Client) CreateChatCompletionWebSearch(ctx context.Context, req contractx.CompletionRequest) (*contractx.WebSearchCompletion, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params,
		openrouterx.WebSearchPlugin(c.webSearchMaxResults))
	if err != nil {
		return nil, fmt.Errorf("%w: model=%s web search: %v", contractx.ErrModelInvoke, req.Model, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: model=%s", contractx.ErrEmptyCompletion, req.Model)
	}

	msg := completion.Choices[0].Message
	results := make([]contractx.WebSearchResult, 0, len(msg.Annotations))
	for i, ann := range msg.Annotations {
		if ann.Type != "url_citation" {
			continue
		}
		results = append(results, contractx.WebSearchResult{
			Title:       ann.URLCitation.Title,
			URL:         ann.URLCitation.URL,
			OriginalURL: ann.URLCitation.URL,
			Index:       i,
		})
	}

	return &contractx.WebSearchCompletion{
		LLMOutput:        msg.Content,
		CleanedLLMOutput: stripInlineCitations(msg.Content),
		WebSearchResults: results,
	}, nil
}

func (c *Client) buildParams(req contractx.CompletionRequest) (openaisdk.ChatCompletionNewParams, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return openaisdk.ChatCompletionNewParams{}, fmt.Errorf("%w: completion model", contractx.ErrConfigMissing)
	}
	if len(req.Messages) == 0 {
		return openaisdk.ChatCompletionNewParams{}, fmt.Errorf("%w: completion has no messages", contractx.ErrValidation)
	}

	messages := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemInstruction != "" {
		messages = append(messages, openaisdk.SystemMessage(req.SystemInstruction))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case contractx.RoleSystem:
			messages = append(messages, openaisdk.SystemMessage(m.Content))
		case contractx.RoleAssistant:
			messages = append(messages, openaisdk.AssistantMessage(m.Content))
		default:
			messages = append(messages, openaisdk.UserMessage(m.Content))
		}
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:       shared.ChatModel(model),
		Messages:    messages,
		Temperature: openaisdk.Float(float64(c.temperature)),
	}

	// The gateway counts thinking tokens against the completion budget.
	maxTokens := req.MaxTokens
	if req.ThinkingBudget > 0 {
		maxTokens += req.ThinkingBudget
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(maxTokens))
	}

	if req.ResponseSchema != nil {
		name := req.SchemaName
		if name == "" {
			name = "output_schema"
		}
		params.ResponseFormat = openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   name,
					Schema: req.ResponseSchema,
					Strict: openaisdk.Bool(true),
				},
			},
		}
	}

	return params, nil
}

func (c *Client) streamCompletion(
	ctx context.Context,
	params openaisdk.ChatCompletionNewParams,
	onChunk contractx.StreamFunc,
) (*contractx.Completion, error) {
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var (
		full strings.Builder
		acc  openaisdk.ChatCompletionAccumulator
	)

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onChunk(delta, full.String()); err != nil {
			// chunk observers are advisory; generation continues
			log.Warn().Err(err).Msg("stream_chunk_callback_failed")
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("%w: model=%s stream: %v", contractx.ErrModelInvoke, params.Model, err)
	}

	content := full.String()
	if content == "" {
		return nil, fmt.Errorf("%w: model=%s stream", contractx.ErrEmptyCompletion, params.Model)
	}

	return &contractx.Completion{
		Content: content,
		Usage: contractx.Usage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
		},
	}, nil
}

var inlineCitationPattern = regexp.MustCompile(`\[([^\]]*)\]\((?:https?://)[^)]*\)`)

// stripInlineCitations reduces markdown citation links to their anchor
// text so the prose reads cleanly; the structured result list carries
// the URLs.
func stripInlineCitations(text string) string {
	return inlineCitationPattern.ReplaceAllString(text, "$1")
}

// ParseJSONEnvelope unwraps the {"message": ...} envelope the reply
// models are instructed to emit, tolerating markdown code fences. On
// any parse failure the raw text is returned untouched; the envelope is
// advisory, not enforced.
func ParseJSONEnvelope(raw string) string {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var envelope struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(trimmed), &envelope); err != nil || envelope.Message == "" {
		return raw
	}
	return envelope.Message
}
