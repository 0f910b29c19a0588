package pipeline

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/athena-research/athena-agent/agent/nodes"
)

// compileTurnGraph builds the linear turn graph. The request state is
// checkpointed after every stage boundary so its persisted row tracks
// the turn in near real time.
func (p *Pipeline) compileTurnGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, p.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("create_turn_records",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.CreateTurnRecords(ctx, in, p.deps.Store, p.deps.Memory, p.logger)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node create_turn_records: %w", err)
	}

	if err := graph.AddLambdaNode("rewrite_standalone",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.RewriteStandalone(ctx, in, p.deps.Rewriter)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node rewrite_standalone: %w", err)
	}

	if err := graph.AddLambdaNode("plan_turn",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			out, err := nodex.PlanTurn(ctx, in, p.deps.Planner)
			p.checkpoint(ctx, in)
			return out, err
		}),
	); err != nil {
		return nil, fmt.Errorf("add node plan_turn: %w", err)
	}

	if err := graph.AddLambdaNode("execute_providers",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			out, err := nodex.ExecuteProviders(ctx, in, p.deps.Registry, p.logger)
			p.checkpoint(ctx, in)
			return out, err
		}),
	); err != nil {
		return nil, fmt.Errorf("add node execute_providers: %w", err)
	}

	if err := graph.AddLambdaNode("dispatch_action",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			out, err := nodex.DispatchAction(ctx, in, p.deps.Reply, p.deps.Hypothesis)
			p.checkpoint(ctx, in)
			return out, err
		}),
	); err != nil {
		return nil, fmt.Errorf("add node dispatch_action: %w", err)
	}

	if err := graph.AddLambdaNode("reflect_memory",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			out, err := nodex.ReflectMemory(ctx, in, p.deps.Reflector, p.deps.Store, p.deps.Memory, p.logger)
			p.checkpoint(ctx, in)
			return out, err
		}),
	); err != nil {
		return nil, fmt.Errorf("add node reflect_memory: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_turn",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			out, err := nodex.FinalizeTurn(ctx, in, p.deps.Store, p.now, p.logger)
			p.checkpoint(ctx, in)
			return out, err
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_turn: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "create_turn_records"},
		{"create_turn_records", "rewrite_standalone"},
		{"rewrite_standalone", "plan_turn"},
		{"plan_turn", "execute_providers"},
		{"execute_providers", "dispatch_action"},
		{"dispatch_action", "reflect_memory"},
		{"reflect_memory", "finalize_turn"},
		{"finalize_turn", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("pipeline.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile turn graph: %w", err)
	}
	return runner, nil
}

func (p *Pipeline) checkpoint(ctx context.Context, in *nodex.GraphState) {
	if in != nil && in.Exec != nil {
		p.deps.Checkpoint.Checkpoint(ctx, in.Exec.State)
	}
}
