package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// KnowledgeGraphConfig configures the citation-graph retrieval backend.
type KnowledgeGraphConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Limit   int           `envconfig:"LIMIT" split_words:"true" default:"10"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
}

// KnowledgeGraph walks the citation graph around the question's
// entities and returns the connected papers with abstracts.
type KnowledgeGraph struct {
	endpoint   string
	apiKey     string
	limit      int
	httpClient *http.Client
}

func NewKnowledgeGraph(cfg KnowledgeGraphConfig) (*KnowledgeGraph, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("knowledge graph backend url is required")
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 10
	}
	return &KnowledgeGraph{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		limit:      limit,
		httpClient: newHTTPClient(cfg.Timeout),
	}, nil
}

func (g *KnowledgeGraph) Name() string { return contractx.ProviderKnowledgeGraph }

func (g *KnowledgeGraph) Execute(ctx context.Context, exec *contractx.ExecContext) (any, error) {
	query := queryFor(exec)
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}

	var out struct {
		Papers []contractx.Paper `json:"papers"`
	}
	body := map[string]any{
		"query": query,
		"limit": g.limit,
	}
	if err := postJSON(ctx, g.httpClient, g.endpoint, g.apiKey, body, &out); err != nil {
		return nil, err
	}

	return map[string]any{"kgPapers": out.Papers}, nil
}
