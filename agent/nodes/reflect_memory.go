package pipelinenode

import (
	"context"

	"github.com/rs/zerolog"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// ReflectMemory reconciles the conversation memory with this turn's
// findings and persists the result to both the durable store and the
// cache. Silent turns leave memory untouched. A reflection failure is
// fatal for the turn: partial merges must never reach storage. A
// persistence failure after a clean merge is not: the user already has
// their answer, so it is logged and the turn completes.
func ReflectMemory(
	ctx context.Context,
	in *GraphState,
	reflector ReflectionStage,
	store contractx.Store,
	memory contractx.MemoryStore,
	logger zerolog.Logger,
) (*GraphState, error) {
	if !in.Responded {
		return in, nil
	}

	if err := reflector.Execute(ctx, in.Exec); err != nil {
		return nil, err
	}

	cs := in.Exec.Conversation
	if err := store.UpdateConversationState(ctx, cs.ID, &cs.Values); err != nil {
		logger.Warn().Err(err).Str("conversation_id", cs.ID).Msg("persist_conversation_state_failed")
	}
	if memory != nil {
		if err := memory.Save(ctx, cs); err != nil {
			logger.Warn().Err(err).Str("conversation_id", cs.ID).Msg("memory_cache_save_failed")
		}
	}

	return in, nil
}
