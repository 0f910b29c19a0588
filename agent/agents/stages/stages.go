// Package stages implements the model-calling stages of a turn:
// planning, reply, hypothesis, reflection and the standalone-question
// rewrite. Each stage opens and closes its ledger step and records its
// a-priori cost estimate; persistence of intermediate state goes
// through the Checkpointer so a polling viewer sees progress while the
// turn is still running.
package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	statex "github.com/athena-research/athena-agent/agent/state"
)

// Checkpointer persists the request state mid-stage. Implementations
// must swallow storage errors; a failed checkpoint degrades the live
// view but never fails the turn.
type Checkpointer interface {
	Checkpoint(ctx context.Context, st *contractx.State)
}

// NopCheckpointer is used where no live view exists, e.g. tests.
type NopCheckpointer struct{}

func (NopCheckpointer) Checkpoint(context.Context, *contractx.State) {}

// historyWindow is how many persisted turns feed the reply prompt.
// The short-form channel has no persisted thread of its own, so it
// gets none.
func historyWindow(source string) int {
	if source == contractx.SourceTwitter {
		return 0
	}
	return 5
}

// chronological reverses a most-recent-first message page in place
// order for prompt assembly.
func chronological(messages []contractx.Message) []contractx.Message {
	out := make([]contractx.Message, len(messages))
	for i, m := range messages {
		out[len(messages)-1-i] = m
	}
	return out
}

// composeEvidence renders everything the fan-out gathered into the
// grounding block that precedes the task instructions. Section order is
// fixed so prompt caching stays effective across turns. Deep-research
// turns substitute the working hypothesis and completed analysis jobs
// for the retrieval evidence instead of stacking both.
func composeEvidence(exec *contractx.ExecContext) string {
	st := exec.State
	var b strings.Builder

	if st.Values.IsDeepResearch {
		if len(st.Values.DeepResearchJobs) > 0 {
			b.WriteString("# Completed analysis jobs:\n")
			for _, job := range st.Values.DeepResearchJobs {
				fmt.Fprintf(&b, "## %s\n%s\n", job.JobType, job.Answer)
			}
			b.WriteString("\n")
		}
		if h := strings.TrimSpace(st.Values.Hypothesis); h != "" {
			b.WriteString("# Working hypothesis:\n")
			b.WriteString(h)
			b.WriteString("\n\n")
		}
	} else {
		if len(st.Values.Knowledge) > 0 {
			b.WriteString("# Background knowledge:\n")
			for _, chunk := range st.Values.Knowledge {
				fmt.Fprintf(&b, "- %s: %s\n", chunk.Title, chunk.Content)
			}
			b.WriteString("\n")
		}

		if papers := statex.UniquePapers(st); len(papers) > 0 {
			b.WriteString("# Evidence papers:\n")
			for _, p := range papers {
				fmt.Fprintf(&b, "- [%s] %s: %s\n", p.DOI, p.Title, p.Abstract)
			}
			b.WriteString("\n")
		}

		if s := strings.TrimSpace(st.Values.SemanticScholarSynthesis); s != "" {
			b.WriteString("# Literature synthesis:\n")
			b.WriteString(s)
			b.WriteString("\n\n")
		}

		if h := strings.TrimSpace(st.Values.Hypothesis); h != "" {
			b.WriteString("# Working hypothesis:\n")
			b.WriteString(h)
			b.WriteString("\n\n")
		}
	}

	if exec.Conversation != nil && !exec.Conversation.Values.Empty() {
		cv := exec.Conversation.Values
		b.WriteString("# Conversation memory:\n")
		if cv.Hypothesis != "" {
			b.WriteString("Hypothesis: " + cv.Hypothesis + "\n")
		}
		for _, insight := range cv.KeyInsights {
			b.WriteString("- " + insight + "\n")
		}
		if cv.Methodology != "" {
			b.WriteString("Methodology: " + cv.Methodology + "\n")
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// taskMarker separates grounding context from task instructions inside
// the reply templates.
const taskMarker = "# Task:"

// injectEvidence places the evidence block on the line after the task
// marker. Templates without the marker get the block prepended.
func injectEvidence(template, evidence string) string {
	if strings.TrimSpace(evidence) == "" {
		return template
	}
	idx := strings.Index(template, taskMarker)
	if idx < 0 {
		return evidence + "\n\n" + template
	}
	lineEnd := strings.Index(template[idx:], "\n")
	if lineEnd < 0 {
		return template + "\n\n" + evidence
	}
	pos := idx + lineEnd + 1
	return template[:pos] + "\n" + evidence + "\n\n" + template[pos:]
}

// marshalForPrompt renders a value as compact JSON for prompt
// embedding, falling back to the empty object on marshal failure.
func marshalForPrompt(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
