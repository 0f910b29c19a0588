package stages

import (
	"context"
	"errors"
	"strings"
	"testing"

	contractx "github.com/athena-research/athena-agent/agent/contract"
	promptx "github.com/athena-research/athena-agent/agent/prompt"
)

func TestRewriterStandalone(t *testing.T) {
	t.Parallel()

	client := &fakeModelClient{
		completions: []*contractx.Completion{{Content: "  What does rapamycin do to mTOR signalling?  "}},
	}
	w, err := NewRewriter(client, promptx.LoadPromptSet(), testLLMConfig())
	if err != nil {
		t.Fatalf("NewRewriter() error = %v", err)
	}

	history := []contractx.Message{{Question: "tell me about rapamycin", Content: "it is an mTOR inhibitor"}}
	got := w.Standalone(context.Background(), history, "what does it do?")
	if got != "What does rapamycin do to mTOR signalling?" {
		t.Fatalf("Standalone() = %q", got)
	}

	prompt := client.chatRequests[0].Messages[0].Content
	if !strings.Contains(prompt, "User: tell me about rapamycin") {
		t.Fatal("history missing from rewrite prompt")
	}
	if !strings.Contains(prompt, "what does it do?") {
		t.Fatal("latest message missing from rewrite prompt")
	}
}

func TestRewriterStandaloneFallsBackOnFailure(t *testing.T) {
	t.Parallel()

	client := &fakeModelClient{err: errors.New("gateway down")}
	w, err := NewRewriter(client, promptx.LoadPromptSet(), testLLMConfig())
	if err != nil {
		t.Fatalf("NewRewriter() error = %v", err)
	}

	history := []contractx.Message{{Question: "q", Content: "a"}}
	if got := w.Standalone(context.Background(), history, "latest"); got != "latest" {
		t.Fatalf("failure should fall back to the raw message, got %q", got)
	}
}

func TestRewriterStandaloneNoHistoryPassthrough(t *testing.T) {
	t.Parallel()

	client := &fakeModelClient{err: errors.New("must not be called")}
	w, err := NewRewriter(client, promptx.LoadPromptSet(), testLLMConfig())
	if err != nil {
		t.Fatalf("NewRewriter() error = %v", err)
	}

	if got := w.Standalone(context.Background(), nil, "hello"); got != "hello" {
		t.Fatalf("Standalone() = %q", got)
	}
	if len(client.chatRequests) != 0 {
		t.Fatal("no-history rewrite must not call the model")
	}
}
