package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// SemanticScholarConfig configures the bibliographic search backend.
type SemanticScholarConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true"`
	Limit   int           `envconfig:"LIMIT" split_words:"true" default:"10"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
}

// SemanticScholar runs an abstract-level bibliographic search and
// returns the hits together with a model-written synthesis of them.
type SemanticScholar struct {
	endpoint   string
	apiKey     string
	limit      int
	httpClient *http.Client
}

func NewSemanticScholar(cfg SemanticScholarConfig) (*SemanticScholar, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	if endpoint == "" {
		return nil, errors.New("semantic scholar backend url is required")
	}
	limit := cfg.Limit
	if limit <= 0 {
		limit = 10
	}
	return &SemanticScholar{
		endpoint:   endpoint,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		limit:      limit,
		httpClient: newHTTPClient(cfg.Timeout),
	}, nil
}

func (s *SemanticScholar) Name() string { return contractx.ProviderSemanticScholar }

func (s *SemanticScholar) Execute(ctx context.Context, exec *contractx.ExecContext) (any, error) {
	query := queryFor(exec)
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}

	var out struct {
		Papers    []contractx.Paper `json:"papers"`
		Synthesis string            `json:"synthesis"`
	}
	body := map[string]any{
		"query": query,
		"limit": s.limit,
	}
	if err := postJSON(ctx, s.httpClient, s.endpoint, s.apiKey, body, &out); err != nil {
		return nil, err
	}

	return map[string]any{
		"semanticScholarPapers":    out.Papers,
		"semanticScholarSynthesis": out.Synthesis,
	}, nil
}
