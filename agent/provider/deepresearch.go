package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// Default job set dispatched for a deep-research turn. Each runs as an
// independent external analysis whose answer is delivered back through
// the job callback.
var defaultDeepResearchJobs = []string{
	"LITERATURE-SWEEP",
	"MECHANISM-ANALYSIS",
	"CONTRADICTION-CHECK",
}

// DeepResearch enqueues long-running analysis jobs through the message
// queue instead of answering inline. The turn carries on; results are
// folded into a later turn's state by the callback handler.
type DeepResearch struct {
	dispatcher contractx.JobDispatcher
	jobTypes   []string
}

func NewDeepResearch(dispatcher contractx.JobDispatcher, jobTypes ...string) (*DeepResearch, error) {
	if dispatcher == nil {
		return nil, errors.New("job dispatcher is required")
	}
	if len(jobTypes) == 0 {
		jobTypes = defaultDeepResearchJobs
	}
	return &DeepResearch{dispatcher: dispatcher, jobTypes: jobTypes}, nil
}

func (d *DeepResearch) Name() string { return contractx.ProviderDeepResearch }

func (d *DeepResearch) Execute(ctx context.Context, exec *contractx.ExecContext) (any, error) {
	query := queryFor(exec)
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("empty query")
	}

	payload := map[string]any{"question": query}
	if exec.State != nil {
		payload["stateId"] = exec.State.ID
		payload["hypothesis"] = exec.State.Values.Hypothesis
	}
	if exec.Conversation != nil {
		payload["conversationId"] = exec.Conversation.ID
	}

	ids := make(map[string]string, len(d.jobTypes))
	for _, jobType := range d.jobTypes {
		id, err := d.dispatcher.Publish(ctx, jobType, payload)
		if err != nil {
			return nil, fmt.Errorf("dispatch %s: %w", jobType, err)
		}
		ids[jobType] = id
	}

	return map[string]any{"deepResearchJobIDs": ids}, nil
}
