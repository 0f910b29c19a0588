package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// OpenScholarConfig configures the full-text scientific RAG backend.
type OpenScholarConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
}

// OpenScholar retrieves passage-level evidence from full-text papers.
// Hits carry the matched passage rather than an abstract.
type OpenScholar struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func NewOpenScholar(cfg OpenScholarConfig) (*OpenScholar, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("openscholar backend url is required")
	}
	return &OpenScholar{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: newHTTPClient(cfg.Timeout),
	}, nil
}

func (o *OpenScholar) Name() string { return contractx.ProviderOpenScholar }

func (o *OpenScholar) Execute(ctx context.Context, exec *contractx.ExecContext) (any, error) {
	query := queryFor(exec)
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}

	var out struct {
		Papers []struct {
			DOI       string `json:"doi"`
			Title     string `json:"title"`
			ChunkText string `json:"chunk_text"`
		} `json:"papers"`
	}
	if err := postJSON(ctx, o.httpClient, o.endpoint, o.apiKey, map[string]any{"question": query}, &out); err != nil {
		return nil, err
	}

	papers := make([]contractx.Paper, 0, len(out.Papers))
	for _, p := range out.Papers {
		papers = append(papers, contractx.Paper{
			DOI:       p.DOI,
			Title:     p.Title,
			ChunkText: p.ChunkText,
		})
	}
	return map[string]any{"openScholarPapers": papers}, nil
}
