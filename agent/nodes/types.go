// Package pipelinenode contains the graph nodes of the message
// pipeline. Nodes are plain functions over *GraphState so each can be
// exercised in isolation; the pipeline wires them into a compiled
// graph.
package pipelinenode

import (
	"context"
	"errors"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

var (
	ErrInvalidMessage = errors.New("inbound message is invalid")
	ErrUnknownAction  = errors.New("planner selected an unknown action")
)

// GraphInput is one inbound message.
type GraphInput struct {
	ConversationID string
	UserID         string
	Question       string
	Source         string
	Files          []contractx.FileMeta
	IsDeepResearch bool
}

// GraphState is threaded through every node of one turn.
type GraphState struct {
	Exec *contractx.ExecContext

	// History is the persisted turn page, most recent first.
	History []contractx.Message

	Decision  contractx.Decision
	Providers []contractx.ProviderResult
	Action    *contractx.ActionResult
	Responded bool

	// StartedAt is unix milliseconds at validation time, used for the
	// persisted response-time figure.
	StartedAt int64
}

// GraphOutput is the turn's final result.
type GraphOutput = contractx.TurnResult

// Stage dependencies, satisfied by the stages package and by test
// fakes.
type (
	Planner interface {
		Decide(ctx context.Context, exec *contractx.ExecContext, history string) (contractx.Decision, error)
	}

	ReplyStage interface {
		Execute(ctx context.Context, exec *contractx.ExecContext, history []contractx.Message) (*contractx.ActionResult, error)
	}

	HypothesisStage interface {
		Execute(ctx context.Context, exec *contractx.ExecContext) (*contractx.ActionResult, error)
	}

	ReflectionStage interface {
		Execute(ctx context.Context, exec *contractx.ExecContext) error
	}

	StandaloneRewriter interface {
		Standalone(ctx context.Context, history []contractx.Message, latest string) string
	}
)
