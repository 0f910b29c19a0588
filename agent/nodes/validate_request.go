package pipelinenode

import (
	"fmt"
	"strings"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// ValidateRequest normalizes the inbound message and seeds the turn's
// request state. now returns unix milliseconds.
func ValidateRequest(in GraphInput, now func() int64) (*GraphState, error) {
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is empty", ErrInvalidMessage)
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", ErrInvalidMessage)
	}

	source := strings.TrimSpace(strings.ToLower(in.Source))
	if source == "" {
		source = contractx.SourceUI
	}

	exec := &contractx.ExecContext{
		State: &contractx.State{
			Values: contractx.StateValues{
				Source:         source,
				ConversationID: conversationID,
				IsDeepResearch: in.IsDeepResearch,
			},
		},
		Message: &contractx.Message{
			ConversationID: conversationID,
			UserID:         strings.TrimSpace(in.UserID),
			Question:       question,
			Source:         source,
			Files:          in.Files,
		},
	}

	return &GraphState{Exec: exec, StartedAt: now()}, nil
}
