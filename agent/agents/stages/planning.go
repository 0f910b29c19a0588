package stages

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	promptx "github.com/athena-research/athena-agent/agent/prompt"
	statex "github.com/athena-research/athena-agent/agent/state"
	logx "github.com/athena-research/athena-agent/pkg/logger"
	pricingx "github.com/athena-research/athena-agent/pkg/pricing"
	retryx "github.com/athena-research/athena-agent/pkg/retry"
)

const planningAttempts = 3

// Planner decides, per inbound message, which providers to invoke and
// which action leads the turn. The decision model is cheap and fast;
// unparseable output is retried up to planningAttempts times and then
// fails the turn.
type Planner struct {
	model   model.BaseChatModel
	prompts promptx.PromptSet
	logger  zerolog.Logger
}

func NewPlanner(chatModel model.BaseChatModel, prompts promptx.PromptSet) (*Planner, error) {
	if chatModel == nil {
		return nil, errors.New("planning chat model is required")
	}
	return &Planner{
		model:   chatModel,
		prompts: prompts,
		logger:  logx.Component("planner"),
	}, nil
}

// Decide runs the planning stage. The ledger step is closed and the
// cost estimate recorded on every exit path, including failure.
func (p *Planner) Decide(ctx context.Context, exec *contractx.ExecContext, history string) (contractx.Decision, error) {
	statex.StartStep(exec.State, contractx.StagePlanning)
	defer statex.EndStep(exec.State, contractx.StagePlanning)
	statex.RecordCost(exec.State, contractx.StagePlanning, pricingx.PriceFloat(contractx.StagePlanning))

	messages := []*schema.Message{
		schema.SystemMessage(p.prompts.System),
		schema.UserMessage(p.userPrompt(exec, history)),
	}

	decision, err := retryx.Do(ctx, planningAttempts, func(ctx context.Context, attempt int) (contractx.Decision, error) {
		out, err := p.model.Generate(ctx, messages)
		if err != nil {
			return contractx.Decision{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}

		parsed := statex.ParseKeyValueXML(out.Content)
		if parsed == nil {
			p.logger.Warn().Int("attempt", attempt).Msg("planning_output_unparseable")
			return contractx.Decision{}, contractx.ErrDecisionParse
		}

		decision, err := decisionFrom(parsed)
		if err != nil {
			p.logger.Warn().Int("attempt", attempt).Err(err).Msg("planning_decision_invalid")
			return contractx.Decision{}, err
		}
		return decision, nil
	})
	if err != nil {
		return contractx.Decision{}, err
	}

	p.logger.Info().
		Strs("actions", decision.Actions).
		Strs("providers", decision.Providers).
		Msg("planning_decision")
	return decision, nil
}

func (p *Planner) userPrompt(exec *contractx.ExecContext, history string) string {
	var b strings.Builder
	b.WriteString(p.prompts.Planning)
	b.WriteString("\n\n")
	if history != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(history)
		b.WriteString("\n\n")
	}
	if exec.State.Values.IsDeepResearch {
		b.WriteString("This turn runs in deep-research mode.\n\n")
	}
	if len(exec.Message.Files) > 0 {
		b.WriteString(fmt.Sprintf("The user attached %d file(s).\n\n", len(exec.Message.Files)))
	}
	b.WriteString("User message: ")
	b.WriteString(exec.Message.Question)
	return b.String()
}

// decisionFrom validates the parsed tag block. REPLY and HYPOTHESIS are
// mutually exclusive; unknown action names invalidate the attempt while
// unknown providers are dropped with a warning downstream.
func decisionFrom(parsed map[string]any) (contractx.Decision, error) {
	var d contractx.Decision

	if raw, ok := parsed["actions"].([]string); ok {
		for _, a := range raw {
			name := strings.ToUpper(strings.TrimSpace(a))
			if name == "" {
				continue
			}
			if name != contractx.ActionReply && name != contractx.ActionHypothesis {
				return contractx.Decision{}, fmt.Errorf("%w: unknown action %q", contractx.ErrDecisionParse, name)
			}
			d.Actions = append(d.Actions, name)
		}
	}
	if len(d.Actions) > 1 {
		return contractx.Decision{}, fmt.Errorf("%w: actions are mutually exclusive", contractx.ErrDecisionParse)
	}

	if raw, ok := parsed["providers"].([]string); ok {
		for _, prov := range raw {
			name := strings.ToUpper(strings.TrimSpace(prov))
			if name != "" {
				d.Providers = append(d.Providers, name)
			}
		}
	}

	return d, nil
}
