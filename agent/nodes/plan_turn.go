package pipelinenode

import (
	"context"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	statex "github.com/athena-research/athena-agent/agent/state"
)

// planningHistoryTurns bounds the history window fed to the planning
// prompt; it is tighter than the reply stage's window.
const planningHistoryTurns = 3

// PlanTurn asks the planner for the turn's decision. Planning failure
// after its internal retries fails the whole turn; nothing downstream
// can run without a decision.
func PlanTurn(ctx context.Context, in *GraphState, planner Planner) (*GraphState, error) {
	recent := in.History
	if len(recent) > planningHistoryTurns {
		recent = recent[:planningHistoryTurns]
	}
	history := statex.FormatConversationHistory(chronological(recent))
	decision, err := planner.Decide(ctx, in.Exec, history)
	if err != nil {
		return nil, err
	}
	in.Decision = decision
	return in, nil
}

// chronological reverses the most-recent-first history page.
func chronological(messages []contractx.Message) []contractx.Message {
	out := make([]contractx.Message, len(messages))
	for i, m := range messages {
		out[len(messages)-1-i] = m
	}
	return out
}
