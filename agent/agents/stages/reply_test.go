package stages

import (
	"context"
	"strings"
	"testing"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	llmx "github.com/athena-research/athena-agent/agent/llm"
	promptx "github.com/athena-research/athena-agent/agent/prompt"
)

func testLLMConfig() llmx.Config {
	return llmx.Config{
		APIKey:             "test-key",
		Model:              "test-model",
		MaxCompletionToken: 512,
	}
}

func TestReplierGroundedTurnStreamsAndPersists(t *testing.T) {
	t.Parallel()

	client := &fakeModelClient{
		completions:  []*contractx.Completion{{Content: `{"message": "rapamycin inhibits mTOR"}`}},
		streamChunks: []string{"rapa", "mycin"},
	}
	store := newFakeStore()
	chk := &countingCheckpointer{}

	replier, err := NewReplier(client, store, chk, promptx.LoadPromptSet(), testLLMConfig())
	if err != nil {
		t.Fatalf("NewReplier() error = %v", err)
	}

	exec := newExecContext(contractx.SourceUI)
	exec.State.Values.KGPapers = []contractx.Paper{{DOI: "10.1/a", Title: "T", Abstract: "A"}}

	result, err := replier.Execute(context.Background(), exec, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Text != "rapamycin inhibits mTOR" {
		t.Fatalf("envelope not unwrapped: %q", result.Text)
	}
	if exec.State.Values.FinalResponse != "rapamycin inhibits mTOR" {
		t.Fatalf("final response not set: %q", exec.State.Values.FinalResponse)
	}
	if chk.calls != 2 {
		t.Fatalf("expected one checkpoint per chunk, got %d", chk.calls)
	}
	if chk.lastFinal != "rapamycin" {
		t.Fatalf("cumulative text should be persisted per chunk, got %q", chk.lastFinal)
	}

	if len(client.chatRequests) != 1 || len(client.webRequests) != 0 {
		t.Fatalf("grounded turn must not use web search: chat=%d web=%d", len(client.chatRequests), len(client.webRequests))
	}
	if !client.chatRequests[0].Stream {
		t.Fatal("grounded turn should stream")
	}
	if !strings.Contains(client.chatRequests[0].SystemInstruction, "# Evidence papers:") {
		t.Fatal("evidence block missing from prompt")
	}
	if !strings.Contains(client.chatRequests[0].SystemInstruction, taskMarker) {
		t.Fatal("task instructions missing from prompt")
	}

	patch, ok := store.patches["m1"]
	if !ok || patch.Content == nil || *patch.Content != `{"message": "rapamycin inhibits mTOR"}` {
		t.Fatalf("raw output should land on the message row: %#v", patch)
	}

	step := exec.State.Values.Steps[contractx.ActionReply]
	if step == nil || step.InProgress() {
		t.Fatalf("reply step should be closed: %#v", step)
	}
}

func TestReplierStreamReplayIsIdempotent(t *testing.T) {
	t.Parallel()

	run := func(passes int) (string, string) {
		client := &fakeModelClient{
			completions:  []*contractx.Completion{{Content: `{"message": "rapamycin inhibits mTOR"}`}},
			streamChunks: []string{"rapa", "mycin"},
			streamPasses: passes,
		}
		chk := &countingCheckpointer{}
		replier, err := NewReplier(client, newFakeStore(), chk, promptx.LoadPromptSet(), testLLMConfig())
		if err != nil {
			t.Fatalf("NewReplier() error = %v", err)
		}

		exec := newExecContext(contractx.SourceUI)
		exec.State.Values.KGPapers = []contractx.Paper{{DOI: "10.1/a"}}
		if _, err := replier.Execute(context.Background(), exec, nil); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		return exec.State.Values.FinalResponse, chk.lastFinal
	}

	onceFinal, onceCheckpoint := run(1)
	twiceFinal, twiceCheckpoint := run(2)

	if twiceFinal != onceFinal {
		t.Fatalf("replayed stream changed the final response: %q vs %q", twiceFinal, onceFinal)
	}
	if twiceCheckpoint != onceCheckpoint {
		t.Fatalf("replayed stream changed the persisted partial: %q vs %q", twiceCheckpoint, onceCheckpoint)
	}
}

func TestReplierUngroundedTurnUsesWebSearch(t *testing.T) {
	t.Parallel()

	client := &fakeModelClient{
		webResults: []*contractx.WebSearchCompletion{{
			LLMOutput:        "raw [1](https://x)",
			CleanedLLMOutput: "clean answer",
			WebSearchResults: []contractx.WebSearchResult{
				{Title: "https://nature.com/a", URL: "https://nature.com/a", Index: 0},
			},
		}},
	}
	store := newFakeStore()

	replier, err := NewReplier(client, store, nil, promptx.LoadPromptSet(), testLLMConfig())
	if err != nil {
		t.Fatalf("NewReplier() error = %v", err)
	}

	exec := newExecContext(contractx.SourceUI)
	result, err := replier.Execute(context.Background(), exec, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(client.webRequests) != 1 || len(client.chatRequests) != 0 {
		t.Fatalf("ungrounded turn must use web search: chat=%d web=%d", len(client.chatRequests), len(client.webRequests))
	}
	if result.Text != "clean answer" {
		t.Fatalf("unexpected text: %q", result.Text)
	}
	if len(result.WebSearchResults) != 1 || result.WebSearchResults[0].Title != "www.nature.com" {
		t.Fatalf("results should be cleaned: %#v", result.WebSearchResults)
	}
}

func TestReplierHistoryWindowPerSource(t *testing.T) {
	t.Parallel()

	history := make([]contractx.Message, 6)
	for i := range history {
		history[i] = contractx.Message{Question: "q", Content: "a"}
	}

	for _, tt := range []struct {
		source string
		want   int
	}{
		{source: contractx.SourceUI, want: 5},
		{source: contractx.SourceTwitter, want: 0},
	} {
		client := &fakeModelClient{
			completions: []*contractx.Completion{{Content: `{"message": "ok"}`}},
		}
		replier, err := NewReplier(client, newFakeStore(), nil, promptx.LoadPromptSet(), testLLMConfig())
		if err != nil {
			t.Fatalf("NewReplier() error = %v", err)
		}

		exec := newExecContext(tt.source)
		exec.State.Values.KGPapers = []contractx.Paper{{DOI: "10.1/a"}}
		if _, err := replier.Execute(context.Background(), exec, history); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		// Each history turn becomes two chat messages plus the live
		// question.
		got := len(client.chatRequests[0].Messages)
		if got != tt.want*2+1 {
			t.Fatalf("source %s: got %d prompt messages, want %d", tt.source, got, tt.want*2+1)
		}
	}
}

func TestReplierSelectTemplate(t *testing.T) {
	t.Parallel()

	prompts := promptx.LoadPromptSet()
	replier, err := NewReplier(&fakeModelClient{}, newFakeStore(), nil, prompts, testLLMConfig())
	if err != nil {
		t.Fatalf("NewReplier() error = %v", err)
	}

	tests := []struct {
		name         string
		grounded     bool
		source       string
		deepResearch bool
		want         string
	}{
		{"deep research wins", true, contractx.SourceUI, true, prompts.ReplyDeepResearch},
		{"ui grounded", true, contractx.SourceUI, false, prompts.Reply},
		{"ui ungrounded", false, contractx.SourceUI, false, prompts.ReplyWeb},
		{"twitter grounded", true, contractx.SourceTwitter, false, prompts.ReplyTwitter},
		{"twitter ungrounded", false, contractx.SourceTwitter, false, prompts.ReplyTwitterWeb},
	}
	for _, tt := range tests {
		if got := replier.selectTemplate(tt.grounded, tt.source, tt.deepResearch); got != tt.want {
			t.Fatalf("%s: wrong template selected", tt.name)
		}
	}
}

func TestReplierEnvelopeFallback(t *testing.T) {
	t.Parallel()

	client := &fakeModelClient{
		completions: []*contractx.Completion{{Content: "plain prose, no envelope"}},
	}
	replier, err := NewReplier(client, newFakeStore(), nil, promptx.LoadPromptSet(), testLLMConfig())
	if err != nil {
		t.Fatalf("NewReplier() error = %v", err)
	}

	exec := newExecContext(contractx.SourceUI)
	exec.State.Values.OpenScholarPapers = []contractx.Paper{{DOI: "10.1/b", ChunkText: "p"}}

	result, err := replier.Execute(context.Background(), exec, nil)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Text != "plain prose, no envelope" {
		t.Fatalf("raw text should pass through when the envelope is absent: %q", result.Text)
	}
}
