package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

var ErrMemoryNotFound = errors.New("conversation memory not found")

const (
	defaultMemoryKeyPrefix = "agent:conversation:"
	defaultMemoryTTL       = 7 * 24 * time.Hour
	maxMemoryResponseBytes = 2 << 20
)

type UpstashMemoryConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// MemoryOption customizes UpstashMemoryStore.
type MemoryOption func(*UpstashMemoryStore)

func WithMemoryKeyPrefix(prefix string) MemoryOption {
	return func(s *UpstashMemoryStore) {
		if trimmed := strings.TrimSpace(prefix); trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(s *UpstashMemoryStore) {
		s.ttl = ttl
	}
}

func WithMemoryHTTPClient(client *http.Client) MemoryOption {
	return func(s *UpstashMemoryStore) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// UpstashMemoryStore keeps the hot copy of each conversation's
// cross-turn memory in Upstash Redis via REST, in front of the durable
// Postgres row. Reflection writes through it; the pipeline reads it
// first and falls back to Postgres on a miss.
type UpstashMemoryStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	keyPrefix  string
	ttl        time.Duration
}

var _ contractx.MemoryStore = (*UpstashMemoryStore)(nil)

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func NewUpstashMemoryStore(cfg UpstashMemoryConfig, opts ...MemoryOption) (*UpstashMemoryStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: upstash redis url", contractx.ErrConfigMissing)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("%w: upstash redis token", contractx.ErrConfigMissing)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	store := &UpstashMemoryStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		keyPrefix:  defaultMemoryKeyPrefix,
		ttl:        defaultMemoryTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return store, nil
}

func (s *UpstashMemoryStore) Load(ctx context.Context, conversationID string) (*contractx.ConversationState, error) {
	key, err := s.redisKey(conversationID)
	if err != nil {
		return nil, err
	}

	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return nil, err
	}

	result := bytes.TrimSpace(resp.Result)
	if len(result) == 0 || bytes.Equal(result, []byte("null")) {
		return nil, ErrMemoryNotFound
	}

	var encoded string
	if err := json.Unmarshal(result, &encoded); err != nil {
		return nil, fmt.Errorf("decode memory payload: %w", err)
	}

	var cs contractx.ConversationState
	if err := json.Unmarshal([]byte(encoded), &cs); err != nil {
		return nil, fmt.Errorf("unmarshal conversation state: %w", err)
	}
	if cs.ID == "" {
		cs.ID = conversationID
	}
	return &cs, nil
}

func (s *UpstashMemoryStore) Save(ctx context.Context, cs *contractx.ConversationState) error {
	if cs == nil {
		return fmt.Errorf("%w: nil conversation state", contractx.ErrValidation)
	}
	key, err := s.redisKey(cs.ID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal conversation state: %w", err)
	}

	cmd := []any{"SET", key, string(payload)}
	if s.ttl > 0 {
		cmd = append(cmd, "EX", ttlSeconds(s.ttl))
	}

	_, err = s.exec(ctx, cmd)
	return err
}

func (s *UpstashMemoryStore) redisKey(conversationID string) (string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return "", fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}
	return s.keyPrefix + conversationID, nil
}

func (s *UpstashMemoryStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxMemoryResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
