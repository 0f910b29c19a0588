package pipelinenode

import (
	"context"

	"github.com/rs/zerolog"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	statex "github.com/athena-research/athena-agent/agent/state"
)

// FinalizeTurn closes any step the stages left open, records the
// wall-clock response time on the message row, and assembles the
// turn's result. now returns unix milliseconds.
func FinalizeTurn(
	ctx context.Context,
	in *GraphState,
	store contractx.Store,
	now func() int64,
	logger zerolog.Logger,
) (GraphOutput, error) {
	st := in.Exec.State

	for _, name := range statex.OpenSteps(st) {
		logger.Warn().Str("step", name).Msg("closing_dangling_step")
		statex.EndStep(st, name)
	}

	// Response time feeds the primary channel's UI; external channels
	// have nowhere to show it.
	if in.Responded && in.Exec.Message.ID != "" && st.Values.Source != contractx.SourceTwitter {
		elapsed := now() - in.StartedAt
		if err := store.UpdateMessage(ctx, in.Exec.Message.ID, contractx.MessagePatch{ResponseTimeMS: &elapsed}); err != nil {
			logger.Warn().Err(err).Str("message_id", in.Exec.Message.ID).Msg("record_response_time_failed")
		}
	}

	out := GraphOutput{
		Responded: in.Responded,
		Action:    in.Decision.Action(),
		Reply:     in.Action,
		Providers: in.Providers,
		StateID:   st.ID,
		MessageID: in.Exec.Message.ID,
	}
	return out, nil
}
