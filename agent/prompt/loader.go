package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/system.txt
	systemRaw string

	//go:embed template/planning.txt
	planningRaw string

	//go:embed template/reply.txt
	replyRaw string

	//go:embed template/reply_web.txt
	replyWebRaw string

	//go:embed template/reply_twitter.txt
	replyTwitterRaw string

	//go:embed template/reply_twitter_web.txt
	replyTwitterWebRaw string

	//go:embed template/reply_deep_research.txt
	replyDeepResearchRaw string

	//go:embed template/hypothesis.txt
	hypothesisRaw string

	//go:embed template/hypothesis_web.txt
	hypothesisWebRaw string

	//go:embed template/hypothesis_deep_research.txt
	hypothesisDeepResearchRaw string

	//go:embed template/reflection.txt
	reflectionRaw string

	//go:embed template/standalone.txt
	standaloneRaw string
)

// PromptSet holds loaded prompt content. The text itself is opaque
// persona configuration; the runtime only cares about the placeholder
// contract of each template.
type PromptSet struct {
	System string

	Planning string

	Reply             string
	ReplyWeb          string
	ReplyTwitter      string
	ReplyTwitterWeb   string
	ReplyDeepResearch string

	Hypothesis             string
	HypothesisWeb          string
	HypothesisDeepResearch string

	Reflection string
	Standalone string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		System:                 strings.TrimSpace(systemRaw),
		Planning:               strings.TrimSpace(planningRaw),
		Reply:                  strings.TrimSpace(replyRaw),
		ReplyWeb:               strings.TrimSpace(replyWebRaw),
		ReplyTwitter:           strings.TrimSpace(replyTwitterRaw),
		ReplyTwitterWeb:        strings.TrimSpace(replyTwitterWebRaw),
		ReplyDeepResearch:      strings.TrimSpace(replyDeepResearchRaw),
		Hypothesis:             strings.TrimSpace(hypothesisRaw),
		HypothesisWeb:          strings.TrimSpace(hypothesisWebRaw),
		HypothesisDeepResearch: strings.TrimSpace(hypothesisDeepResearchRaw),
		Reflection:             strings.TrimSpace(reflectionRaw),
		Standalone:             strings.TrimSpace(standaloneRaw),
	}
}
