package pipelinenode

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

type fakeProvider struct {
	name string
	data any
	err  error
	boom bool
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Execute(ctx context.Context, exec *contractx.ExecContext) (any, error) {
	if f.boom {
		panic("provider exploded")
	}
	return f.data, f.err
}

type fakeRegistry map[string]contractx.Provider

func (r fakeRegistry) Get(name string) (contractx.Provider, bool) {
	p, ok := r[name]
	return p, ok
}

func (r fakeRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	return names
}

func turnState(providers ...string) *GraphState {
	return &GraphState{
		Exec: &contractx.ExecContext{
			State:        &contractx.State{ID: "s1"},
			Conversation: &contractx.ConversationState{ID: "c1"},
			Message:      &contractx.Message{ID: "m1", ConversationID: "c1", Question: "q"},
		},
		Decision: contractx.Decision{Providers: providers},
	}
}

func TestExecuteProvidersAllSettle(t *testing.T) {
	t.Parallel()

	registry := fakeRegistry{
		contractx.ProviderKnowledgeGraph: &fakeProvider{
			name: contractx.ProviderKnowledgeGraph,
			data: map[string]any{"kgPapers": []contractx.Paper{{DOI: "10.1/a"}}},
		},
		contractx.ProviderOpenScholar: &fakeProvider{
			name: contractx.ProviderOpenScholar,
			err:  errors.New("backend timeout"),
		},
		contractx.ProviderSemanticScholar: &fakeProvider{
			name: contractx.ProviderSemanticScholar,
			boom: true,
		},
	}

	in := turnState(
		contractx.ProviderKnowledgeGraph,
		contractx.ProviderOpenScholar,
		contractx.ProviderSemanticScholar,
		contractx.ProviderFileUpload,
		"MYSTERY",
	)

	out, err := ExecuteProviders(context.Background(), in, registry, zerolog.Nop())
	if err != nil {
		t.Fatalf("ExecuteProviders() error = %v", err)
	}
	if len(out.Providers) != 5 {
		t.Fatalf("every selection must settle, got %d results", len(out.Providers))
	}

	byName := map[string]contractx.ProviderResult{}
	for _, r := range out.Providers {
		byName[r.Provider] = r
	}

	if !byName[contractx.ProviderKnowledgeGraph].OK {
		t.Fatal("healthy provider should succeed")
	}
	if byName[contractx.ProviderOpenScholar].OK || byName[contractx.ProviderOpenScholar].Error == "" {
		t.Fatalf("failing provider should carry its error: %#v", byName[contractx.ProviderOpenScholar])
	}
	if byName[contractx.ProviderSemanticScholar].OK {
		t.Fatal("panicking provider must settle as a failure")
	}
	if !byName[contractx.ProviderFileUpload].OK {
		t.Fatal("file upload selection is acknowledged without execution")
	}
	if byName["MYSTERY"].OK || byName["MYSTERY"].Error != "unknown provider" {
		t.Fatalf("unknown provider should fail cleanly: %#v", byName["MYSTERY"])
	}

	st := in.Exec.State
	if len(st.Values.KGPapers) != 1 {
		t.Fatalf("successful provider output should be merged: %#v", st.Values.KGPapers)
	}
	for _, name := range in.Decision.Providers {
		step := st.Values.Steps[name]
		if step == nil || step.InProgress() {
			t.Fatalf("step %s should be closed: %#v", name, step)
		}
		_, priced := st.Values.EstimatedCostsUSD[name]
		if name == contractx.ProviderFileUpload {
			if priced {
				t.Fatal("file upload was charged at ingestion and must not be priced again")
			}
			continue
		}
		if !priced {
			t.Fatalf("cost for %s should be recorded", name)
		}
	}
}

func TestExecuteProvidersNoSelection(t *testing.T) {
	t.Parallel()

	in := turnState()
	out, err := ExecuteProviders(context.Background(), in, fakeRegistry{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("ExecuteProviders() error = %v", err)
	}
	if len(out.Providers) != 0 {
		t.Fatalf("expected no results, got %#v", out.Providers)
	}
}
