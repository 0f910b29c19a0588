package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	openrouterx "github.com/athena-research/athena-agent/pkg/openrouter"
)

// Role is a pipeline stage's model slot. Each role can pin its own
// model; unset roles fall back to the default.
type Role string

const (
	RolePlanning   Role = "planning"
	RoleReply      Role = "reply"
	RoleHypothesis Role = "hypothesis"
	RoleReflection Role = "reflection"
	RoleStructured Role = "structured"
)

type Config struct {
	BaseURL            string  `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string  `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string  `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int     `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"4096"`
	Temperature        float32 `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	SiteURL            string  `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string  `envconfig:"SITE_NAME" split_words:"true"`

	PlanningModel   string `envconfig:"PLANNING_MODEL" split_words:"true"`
	ReplyModel      string `envconfig:"REPLY_MODEL" split_words:"true"`
	HypothesisModel string `envconfig:"HYPOTHESIS_MODEL" split_words:"true"`
	ReflectionModel string `envconfig:"REFLECTION_MODEL" split_words:"true"`
	StructuredModel string `envconfig:"STRUCTURED_MODEL" split_words:"true"`

	WebSearchMaxResults int `envconfig:"WEB_SEARCH_MAX_RESULTS" split_words:"true" default:"5"`
}

// Validate fails fast on deployment defects; a missing credential is a
// configuration error, never a retry candidate.
func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key", contractx.ErrConfigMissing)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model", contractx.ErrConfigMissing)
	}
	return nil
}

// ModelFor resolves the model id for a role.
func (c Config) ModelFor(role Role) string {
	model := strings.TrimSpace(c.Model)
	override := ""
	switch role {
	case RolePlanning:
		override = c.PlanningModel
	case RoleReply:
		override = c.ReplyModel
	case RoleHypothesis:
		override = c.HypothesisModel
	case RoleReflection:
		override = c.ReflectionModel
	case RoleStructured:
		override = c.StructuredModel
	}
	if v := strings.TrimSpace(override); v != "" {
		model = v
	}
	return model
}

// Gateway translates this config into the shared OpenRouter config for
// a given role, used both for the raw SDK client and for eino model
// construction.
func (c Config) Gateway(role Role) openrouterx.Config {
	maxTokens := c.MaxCompletionToken
	return openrouterx.Config{
		Timeout:            2 * time.Minute,
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              c.ModelFor(role),
		MaxCompletionToken: &maxTokens,
		Temperature:        c.Temperature,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
