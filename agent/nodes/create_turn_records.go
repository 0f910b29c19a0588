package pipelinenode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	statex "github.com/athena-research/athena-agent/agent/state"
)

const historyPageSize = 5

// CreateTurnRecords persists the turn's state and message rows, pulls
// the recent history page, and loads the conversation's cross-turn
// memory. The memory cache is consulted first; a miss falls through to
// the durable store, and a conversation seen for the first time starts
// with empty memory.
func CreateTurnRecords(
	ctx context.Context,
	in *GraphState,
	store contractx.Store,
	memory contractx.MemoryStore,
	logger zerolog.Logger,
) (*GraphState, error) {
	exec := in.Exec
	conversationID := exec.Message.ConversationID

	if err := store.CreateState(ctx, exec.State); err != nil {
		return nil, fmt.Errorf("create state: %w", err)
	}

	exec.Message.StateID = exec.State.ID
	created, err := store.CreateMessage(ctx, exec.Message)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	exec.Message = created
	exec.State.Values.MessageID = created.ID

	history, err := store.GetMessagesByConversation(ctx, conversationID, historyPageSize)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	// Drop the row just written for this turn; the prompt gets the
	// question separately.
	in.History = history[:0]
	for _, msg := range history {
		if msg.ID != created.ID {
			in.History = append(in.History, msg)
		}
	}

	in.Exec.Conversation = loadConversationMemory(ctx, conversationID, store, memory, logger)
	return in, nil
}

func loadConversationMemory(
	ctx context.Context,
	conversationID string,
	store contractx.Store,
	memory contractx.MemoryStore,
	logger zerolog.Logger,
) *contractx.ConversationState {
	if memory != nil {
		cs, err := memory.Load(ctx, conversationID)
		if err == nil && cs != nil {
			return cs
		}
		if err != nil && !errors.Is(err, statex.ErrMemoryNotFound) {
			logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("memory_cache_load_failed")
		}
	}

	cs, err := store.GetConversationState(ctx, conversationID)
	if err == nil && cs != nil {
		return cs
	}
	if err != nil && !errors.Is(err, statex.ErrConversationNotFound) {
		logger.Warn().Err(err).Str("conversation_id", conversationID).Msg("conversation_state_load_failed")
	}

	return &contractx.ConversationState{ID: conversationID}
}
