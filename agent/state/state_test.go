package state

import (
	"testing"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

func withFakeClock(t *testing.T, ticks ...int64) {
	t.Helper()
	orig := nowMillis
	idx := 0
	nowMillis = func() int64 {
		if idx >= len(ticks) {
			return ticks[len(ticks)-1]
		}
		v := ticks[idx]
		idx++
		return v
	}
	t.Cleanup(func() { nowMillis = orig })
}

func TestStartAndEndStep(t *testing.T) {
	withFakeClock(t, 100, 250)

	st := &contractx.State{}
	StartStep(st, "PLANNING")

	step := st.Values.Steps["PLANNING"]
	if step == nil || step.Start != 100 {
		t.Fatalf("unexpected step after start: %#v", step)
	}
	if !step.InProgress() {
		t.Fatal("step should be in progress before EndStep")
	}

	EndStep(st, "PLANNING")
	if step.End != 250 {
		t.Fatalf("unexpected end time: %d", step.End)
	}
	if step.InProgress() {
		t.Fatal("step should be closed after EndStep")
	}
}

func TestEndStepWithoutStart(t *testing.T) {
	withFakeClock(t, 500)

	st := &contractx.State{}
	EndStep(st, "REPLY")

	step := st.Values.Steps["REPLY"]
	if step == nil || step.End != 500 {
		t.Fatalf("unexpected step: %#v", step)
	}
}

func TestOpenSteps(t *testing.T) {
	withFakeClock(t, 1, 2, 3)

	st := &contractx.State{}
	StartStep(st, "PLANNING")
	StartStep(st, "KNOWLEDGE")
	EndStep(st, "PLANNING")

	open := OpenSteps(st)
	if len(open) != 1 || open[0] != "KNOWLEDGE" {
		t.Fatalf("unexpected open steps: %#v", open)
	}
}

func TestRecordCost(t *testing.T) {
	t.Parallel()

	st := &contractx.State{}
	RecordCost(st, "PLANNING", 0.002)
	RecordCost(st, "PLANNING", 0.004)

	if got := st.Values.EstimatedCostsUSD["PLANNING"]; got != 0.004 {
		t.Fatalf("expected last write to win, got %v", got)
	}
}

func TestAddVariablesRoutesWellKnownKeys(t *testing.T) {
	t.Parallel()

	st := &contractx.State{}
	AddVariables(st, map[string]any{
		"hypothesis":               "h1",
		"kgPapers":                 []contractx.Paper{{DOI: "10.1/x"}},
		"semanticScholarSynthesis": "the field agrees on X",
		"deepResearchJobs":         []contractx.JobResult{{JobType: "survival", Answer: "hr 0.7"}},
		"customKey":                42,
	})

	if st.Values.Hypothesis != "h1" {
		t.Fatalf("hypothesis not routed: %q", st.Values.Hypothesis)
	}
	if len(st.Values.KGPapers) != 1 {
		t.Fatalf("kgPapers not routed: %#v", st.Values.KGPapers)
	}
	if st.Values.SemanticScholarSynthesis != "the field agrees on X" {
		t.Fatalf("synthesis not routed to its typed field: %q", st.Values.SemanticScholarSynthesis)
	}
	if _, leaked := st.Values.Extra["semanticScholarSynthesis"]; leaked {
		t.Fatalf("synthesis must not land in extra: %#v", st.Values.Extra)
	}
	if len(st.Values.DeepResearchJobs) != 1 || st.Values.DeepResearchJobs[0].JobType != "survival" {
		t.Fatalf("job results not routed: %#v", st.Values.DeepResearchJobs)
	}
	if st.Values.Extra["customKey"] != 42 {
		t.Fatalf("unknown key not preserved: %#v", st.Values.Extra)
	}
}

func TestUniquePapersDedupByDOI(t *testing.T) {
	t.Parallel()

	st := &contractx.State{
		Values: contractx.StateValues{
			KGPapers: []contractx.Paper{
				{DOI: "10.1/a", Title: "graph copy", Abstract: "from graph"},
				{DOI: "", Title: "no doi"},
			},
			OpenScholarPapers: []contractx.Paper{
				{DOI: "10.1/a", Title: "chunk copy", ChunkText: "passage"},
				{DOI: "10.1/b", Title: "second", ChunkText: "passage b"},
			},
		},
	}

	papers := UniquePapers(st)
	if len(papers) != 2 {
		t.Fatalf("expected 2 unique papers, got %d: %#v", len(papers), papers)
	}
	if papers[0].DOI != "10.1/a" || papers[0].Title != "graph copy" {
		t.Fatalf("first occurrence should win: %#v", papers[0])
	}
	if papers[1].DOI != "10.1/b" || papers[1].Abstract != "passage b" {
		t.Fatalf("chunk text should become the abstract: %#v", papers[1])
	}
}

func TestHasRetrievalEvidence(t *testing.T) {
	t.Parallel()

	st := &contractx.State{}
	if HasRetrievalEvidence(st) {
		t.Fatal("empty state should have no evidence")
	}
	st.Values.SemanticScholarPapers = []contractx.Paper{{DOI: "10.1/c"}}
	if !HasRetrievalEvidence(st) {
		t.Fatal("expected evidence after adding papers")
	}
}

func TestComposePromptSubstitutesScalars(t *testing.T) {
	t.Parallel()

	st := &contractx.State{
		Values: contractx.StateValues{
			Hypothesis:     "senolytics extend lifespan",
			ConversationID: "c1",
		},
	}

	out := ComposePrompt(st, "H: {{hypothesis}} / C: {{conversationId}} / missing: {{nope}}")
	want := "H: senolytics extend lifespan / C: c1 / missing: {{nope}}"
	if out != want {
		t.Fatalf("ComposePrompt() = %q, want %q", out, want)
	}
}

func TestFormatConversationHistory(t *testing.T) {
	t.Parallel()

	got := FormatConversationHistory([]contractx.Message{
		{Question: "q1", Content: "a1"},
		{Question: "q2"},
	})
	want := "User: q1\nAssistant: a1\nUser: q2"
	if got != want {
		t.Fatalf("FormatConversationHistory() = %q, want %q", got, want)
	}

	if got := FormatConversationHistory(nil); got != "" {
		t.Fatalf("expected empty history, got %q", got)
	}
}

func TestCleanWebSearchResults(t *testing.T) {
	t.Parallel()

	in := []contractx.WebSearchResult{
		{Title: "https://nature.com/articles/s41586", URL: "u1"},
		{Title: "www.cell.com", URL: "u2"},
		{Title: "A real headline", URL: "u3"},
	}

	out := CleanWebSearchResults(in)
	if out[0].Title != "www.nature.com" {
		t.Fatalf("unexpected title: %q", out[0].Title)
	}
	if out[1].Title != "www.cell.com" {
		t.Fatalf("unexpected title: %q", out[1].Title)
	}
	if out[2].Title != "A real headline" {
		t.Fatalf("plain title should pass through: %q", out[2].Title)
	}
}
