// Package state implements the step ledger and the request/conversation
// state helpers threaded through every pipeline stage.
package state

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// nowMillis is swappable in tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// StartStep opens (or re-opens) the named step. Re-opening overwrites
// the prior start and clears any recorded end.
func StartStep(st *contractx.State, name string) {
	if st.Values.Steps == nil {
		st.Values.Steps = make(map[string]*contractx.Step, 8)
	}
	st.Values.Steps[name] = &contractx.Step{Start: nowMillis()}
}

// EndStep closes the named step, creating the entry if it is absent so
// out-of-order calls never panic.
func EndStep(st *contractx.State, name string) {
	if st.Values.Steps == nil {
		st.Values.Steps = make(map[string]*contractx.Step, 8)
	}
	step, ok := st.Values.Steps[name]
	if !ok {
		step = &contractx.Step{}
		st.Values.Steps[name] = step
	}
	step.End = nowMillis()
}

// OpenSteps returns the names of steps still in progress.
func OpenSteps(st *contractx.State) []string {
	var open []string
	for name, step := range st.Values.Steps {
		if step.InProgress() {
			open = append(open, name)
		}
	}
	return open
}

// RecordCost writes the a-priori estimate for one capability into the
// ledger, initializing the cost map on first use.
func RecordCost(st *contractx.State, name string, usd float64) {
	if st.Values.EstimatedCostsUSD == nil {
		st.Values.EstimatedCostsUSD = make(map[string]float64, 8)
	}
	st.Values.EstimatedCostsUSD[name] = usd
}

// AddVariables shallow-merges dynamic values into the request state,
// last write wins. Well-known keys land on their typed fields; anything
// else is preserved in the Extra map for forward compatibility with new
// provider outputs.
func AddVariables(st *contractx.State, vars map[string]any) {
	for key, val := range vars {
		switch key {
		case "hypothesis":
			if s, ok := val.(string); ok {
				st.Values.Hypothesis = s
				continue
			}
		case "finalResponse":
			if s, ok := val.(string); ok {
				st.Values.FinalResponse = s
				continue
			}
		case "thought":
			if s, ok := val.(string); ok {
				st.Values.Thought = s
				continue
			}
		case "source":
			if s, ok := val.(string); ok {
				st.Values.Source = s
				continue
			}
		case "webSearchResults":
			if rs, ok := val.([]contractx.WebSearchResult); ok {
				st.Values.WebSearchResults = rs
				continue
			}
		case "knowledge":
			if ks, ok := val.([]contractx.KnowledgeChunk); ok {
				st.Values.Knowledge = ks
				continue
			}
		case "openScholarPapers":
			if ps, ok := val.([]contractx.Paper); ok {
				st.Values.OpenScholarPapers = ps
				continue
			}
		case "semanticScholarPapers":
			if ps, ok := val.([]contractx.Paper); ok {
				st.Values.SemanticScholarPapers = ps
				continue
			}
		case "semanticScholarSynthesis":
			if s, ok := val.(string); ok {
				st.Values.SemanticScholarSynthesis = s
				continue
			}
		case "kgPapers":
			if ps, ok := val.([]contractx.Paper); ok {
				st.Values.KGPapers = ps
				continue
			}
		case "deepResearchJobs":
			if js, ok := val.([]contractx.JobResult); ok {
				st.Values.DeepResearchJobs = js
				continue
			}
		}
		if st.Values.Extra == nil {
			st.Values.Extra = make(map[string]any, 4)
		}
		st.Values.Extra[key] = val
	}
}

// UniquePapers merges the retrieval collections and deduplicates by
// DOI, keeping the first occurrence and dropping papers without one.
// Chunk-level backends contribute their passage text as the abstract.
func UniquePapers(st *contractx.State) []contractx.Paper {
	merged := make([]contractx.Paper, 0,
		len(st.Values.KGPapers)+len(st.Values.OpenScholarPapers)+len(st.Values.SemanticScholarPapers))

	merged = append(merged, st.Values.KGPapers...)
	for _, p := range st.Values.OpenScholarPapers {
		if p.ChunkText != "" {
			p.Abstract = p.ChunkText
			p.ChunkText = ""
		}
		merged = append(merged, p)
	}
	merged = append(merged, st.Values.SemanticScholarPapers...)

	seen := make(map[string]struct{}, len(merged))
	unique := merged[:0]
	for _, p := range merged {
		if p.DOI == "" {
			continue
		}
		if _, dup := seen[p.DOI]; dup {
			continue
		}
		seen[p.DOI] = struct{}{}
		unique = append(unique, p)
	}
	return unique
}

// HasRetrievalEvidence reports whether any evidence collection is
// non-empty; the action stage switches to live web grounding when none
// is.
func HasRetrievalEvidence(st *contractx.State) bool {
	return len(st.Values.KGPapers) > 0 ||
		len(st.Values.OpenScholarPapers) > 0 ||
		len(st.Values.SemanticScholarPapers) > 0
}

// ComposePrompt substitutes {{key}} placeholders in a template with the
// request state's scalar values.
func ComposePrompt(st *contractx.State, template string) string {
	raw, err := json.Marshal(st.Values)
	if err != nil {
		return template
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return template
	}

	for key, val := range flat {
		placeholder := "{{" + key + "}}"
		if !strings.Contains(template, placeholder) {
			continue
		}
		switch v := val.(type) {
		case string:
			template = strings.ReplaceAll(template, placeholder, v)
		case float64, bool:
			template = strings.ReplaceAll(template, placeholder, fmt.Sprint(v))
		}
	}
	return template
}

// FormatConversationHistory renders persisted turns as alternating
// "User:"/"Assistant:" lines. Each stored message carries both sides of
// one turn. Input must already be in chronological order.
func FormatConversationHistory(messages []contractx.Message) string {
	if len(messages) == 0 {
		return ""
	}
	lines := make([]string, 0, len(messages)*2)
	for _, msg := range messages {
		if msg.Question != "" {
			lines = append(lines, "User: "+msg.Question)
		}
		if msg.Content != "" {
			lines = append(lines, "Assistant: "+msg.Content)
		}
	}
	return strings.Join(lines, "\n")
}

// CleanWebSearchResults normalizes result titles that are bare URLs
// down to their "www.<host>" form; unparseable titles pass through.
func CleanWebSearchResults(results []contractx.WebSearchResult) []contractx.WebSearchResult {
	cleaned := make([]contractx.WebSearchResult, len(results))
	for i, r := range results {
		title := r.Title
		if strings.HasPrefix(title, "http://") || strings.HasPrefix(title, "https://") || strings.HasPrefix(title, "www.") {
			toParse := title
			if strings.HasPrefix(title, "www.") {
				toParse = "https://" + title
			}
			if u, err := url.Parse(toParse); err == nil && u.Hostname() != "" {
				host := u.Hostname()
				if !strings.HasPrefix(host, "www.") {
					host = "www." + host
				}
				title = host
			}
		}
		r.Title = title
		cleaned[i] = r
	}
	return cleaned
}
