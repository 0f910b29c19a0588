package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// KnowledgeConfig configures the persona knowledge-base backend.
type KnowledgeConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	TopK    int           `envconfig:"TOP_K" split_words:"true" default:"5"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// Knowledge retrieves persona knowledge-base chunks relevant to the
// current question.
type Knowledge struct {
	endpoint   string
	apiKey     string
	topK       int
	httpClient *http.Client
}

func NewKnowledge(cfg KnowledgeConfig) (*Knowledge, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("knowledge backend url is required")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 5
	}
	return &Knowledge{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		topK:       topK,
		httpClient: newHTTPClient(cfg.Timeout),
	}, nil
}

func (k *Knowledge) Name() string { return contractx.ProviderKnowledge }

func (k *Knowledge) Execute(ctx context.Context, exec *contractx.ExecContext) (any, error) {
	query := queryFor(exec)
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}

	var out struct {
		Chunks []contractx.KnowledgeChunk `json:"chunks"`
	}
	body := map[string]any{
		"query": query,
		"topK":  k.topK,
	}
	if err := postJSON(ctx, k.httpClient, k.endpoint, k.apiKey, body, &out); err != nil {
		return nil, err
	}

	return map[string]any{"knowledge": out.Chunks}, nil
}
