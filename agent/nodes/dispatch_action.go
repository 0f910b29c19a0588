package pipelinenode

import (
	"context"
	"fmt"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// DispatchAction runs the stage the planner selected. An empty action
// list is a deliberate silent turn, not an error.
func DispatchAction(
	ctx context.Context,
	in *GraphState,
	reply ReplyStage,
	hypothesis HypothesisStage,
) (*GraphState, error) {
	switch in.Decision.Action() {
	case "":
		return in, nil
	case contractx.ActionReply:
		result, err := reply.Execute(ctx, in.Exec, in.History)
		if err != nil {
			return nil, err
		}
		in.Action = result
	case contractx.ActionHypothesis:
		result, err := hypothesis.Execute(ctx, in.Exec)
		if err != nil {
			return nil, err
		}
		in.Action = result
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, in.Decision.Action())
	}

	in.Responded = true
	return in, nil
}
