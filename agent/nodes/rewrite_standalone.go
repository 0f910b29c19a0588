package pipelinenode

import (
	"context"
)

// RewriteStandalone stores the context-free form of the question for
// the retrieval providers. The raw question is kept untouched on the
// message row.
func RewriteStandalone(ctx context.Context, in *GraphState, rewriter StandaloneRewriter) (*GraphState, error) {
	standalone := rewriter.Standalone(ctx, in.History, in.Exec.Message.Question)
	if standalone != "" && standalone != in.Exec.Message.Question {
		if in.Exec.State.Values.Extra == nil {
			in.Exec.State.Values.Extra = make(map[string]any, 4)
		}
		in.Exec.State.Values.Extra["standaloneQuestion"] = standalone
	}
	return in, nil
}
