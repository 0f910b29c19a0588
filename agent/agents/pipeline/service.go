// Package pipeline wires the turn's stages into a compiled graph and
// exposes the single entry point the transports call.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	nodex "github.com/athena-research/athena-agent/agent/nodes"
	logx "github.com/athena-research/athena-agent/pkg/logger"
)

var ErrInvalidMessage = nodex.ErrInvalidMessage

// Deps are the pipeline's collaborators. Store, Registry, Planner,
// Reply, Hypothesis and Reflector are required; Memory and Rewriter
// are optional and degrade gracefully when absent.
type Deps struct {
	Store      contractx.Store
	Memory     contractx.MemoryStore
	Registry   contractx.Registry
	Checkpoint *StateCheckpointer

	Planner    nodex.Planner
	Rewriter   nodex.StandaloneRewriter
	Reply      nodex.ReplyStage
	Hypothesis nodex.HypothesisStage
	Reflector  nodex.ReflectionStage
}

type Pipeline struct {
	deps Deps

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now    func() int64
	logger zerolog.Logger
}

func New(deps Deps) (*Pipeline, error) {
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("provider registry is required")
	}
	if deps.Planner == nil {
		return nil, errors.New("planner is required")
	}
	if deps.Reply == nil {
		return nil, errors.New("reply stage is required")
	}
	if deps.Hypothesis == nil {
		return nil, errors.New("hypothesis stage is required")
	}
	if deps.Reflector == nil {
		return nil, errors.New("reflector is required")
	}
	if deps.Checkpoint == nil {
		deps.Checkpoint = NewCheckpointer(deps.Store)
	}
	if deps.Rewriter == nil {
		deps.Rewriter = passthroughRewriter{}
	}

	p := &Pipeline{
		deps:   deps,
		now:    func() int64 { return time.Now().UnixMilli() },
		logger: logx.Component("pipeline"),
	}

	graphRunner, err := p.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	p.graphRunner = graphRunner

	return p, nil
}

// HandleMessage runs one inbound message through the full turn.
func (p *Pipeline) HandleMessage(ctx context.Context, in nodex.GraphInput) (nodex.GraphOutput, error) {
	out, err := p.graphRunner.Invoke(ctx, in)
	if err != nil {
		p.logger.Error().Err(err).Str("conversation_id", in.ConversationID).Msg("turn_failed")
		return nodex.GraphOutput{}, err
	}
	return out, nil
}

type passthroughRewriter struct{}

func (passthroughRewriter) Standalone(_ context.Context, _ []contractx.Message, latest string) string {
	return latest
}
