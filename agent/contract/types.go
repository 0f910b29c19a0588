package contract

import "time"

// Channel the inbound message arrived on. The short-form channel gets
// denser reply templates and no persisted history.
const (
	SourceUI      = "ui"
	SourceTwitter = "twitter"
)

// Action and stage names. These double as step-ledger keys and as
// capability names in the price table.
const (
	ActionReply      = "REPLY"
	ActionHypothesis = "HYPOTHESIS"
	StagePlanning    = "PLANNING"
	StageReflection  = "REFLECTION"
)

// Provider names known at startup. FILE-UPLOAD runs before planning and
// is only acknowledged during fan-out.
const (
	ProviderKnowledge       = "KNOWLEDGE"
	ProviderOpenScholar     = "OPENSCHOLAR"
	ProviderSemanticScholar = "SEMANTIC-SCHOLAR"
	ProviderKnowledgeGraph  = "KNOWLEDGE-GRAPH"
	ProviderFileUpload      = "FILE-UPLOAD"
	ProviderDeepResearch    = "DEEP-RESEARCH"
)

// Step is a named, timed span in a turn's ledger. Times are unix
// milliseconds so the persisted row is directly consumable by the
// polling viewer. End == 0 means the step is still in progress.
type Step struct {
	Start int64 `json:"start"`
	End   int64 `json:"end,omitempty"`
}

func (s *Step) InProgress() bool {
	return s != nil && s.End == 0
}

// Paper is a bibliographic record. Identity is the DOI; papers without
// one are dropped during deduplication.
type Paper struct {
	DOI      string `json:"doi"`
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	// ChunkText carries the retrieved passage for chunk-level backends;
	// it substitutes for the abstract when present.
	ChunkText string `json:"chunkText,omitempty"`
}

// KnowledgeChunk is a persona knowledge-base excerpt.
type KnowledgeChunk struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// WebSearchResult is one grounding citation from a web-search-augmented
// completion.
type WebSearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	OriginalURL string `json:"originalUrl"`
	Index       int    `json:"index"`
}

// JobResult is the outcome of one external deep-research job.
type JobResult struct {
	JobType string `json:"jobType"`
	Answer  string `json:"answer"`
}

// StateValues is the request state's value set. The well-known fields
// cover everything the pipeline reads or writes; Extra preserves
// provider-specific additions without loosening the rest of the schema.
type StateValues struct {
	Steps             map[string]*Step   `json:"steps,omitempty"`
	EstimatedCostsUSD map[string]float64 `json:"estimatedCostsUSD,omitempty"`

	Source         string `json:"source,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	IsDeepResearch bool   `json:"isDeepResearch,omitempty"`

	Knowledge                []KnowledgeChunk `json:"knowledge,omitempty"`
	OpenScholarPapers        []Paper          `json:"openScholarPapers,omitempty"`
	SemanticScholarPapers    []Paper          `json:"semanticScholarPapers,omitempty"`
	SemanticScholarSynthesis string           `json:"semanticScholarSynthesis,omitempty"`
	KGPapers                 []Paper          `json:"kgPapers,omitempty"`
	DeepResearchJobs         []JobResult      `json:"deepResearchJobs,omitempty"`

	Hypothesis       string            `json:"hypothesis,omitempty"`
	FinalResponse    string            `json:"finalResponse,omitempty"`
	Thought          string            `json:"thought,omitempty"`
	WebSearchResults []WebSearchResult `json:"webSearchResults,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// State is owned exclusively by one in-flight turn. It is persisted
// after every stage boundary so a concurrent viewer can reconstruct
// progress at any point.
type State struct {
	ID     string      `json:"id,omitempty"`
	Values StateValues `json:"values"`
}

// ConversationValues is the cross-turn memory mutated only by the
// reflection stage.
type ConversationValues struct {
	Hypothesis  string         `json:"hypothesis,omitempty"`
	Papers      []Paper        `json:"papers,omitempty"`
	KeyInsights []string       `json:"keyInsights,omitempty"`
	Methodology string         `json:"methodology,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Empty reports whether the conversation has accumulated anything yet;
// the first reflective turn bootstraps instead of merging.
func (v ConversationValues) Empty() bool {
	return v.Hypothesis == "" &&
		len(v.Papers) == 0 &&
		len(v.KeyInsights) == 0 &&
		v.Methodology == "" &&
		len(v.Extra) == 0
}

// ConversationState outlives any single turn.
type ConversationState struct {
	ID     string             `json:"id,omitempty"`
	Values ConversationValues `json:"values"`
}

// FileMeta describes an uploaded file attached to a message.
type FileMeta struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Message is one turn's durable record: the user's question and,
// once the action stage completes, the raw model output.
type Message struct {
	ID             string     `json:"id,omitempty"`
	ConversationID string     `json:"conversation_id"`
	UserID         string     `json:"user_id"`
	Question       string     `json:"question"`
	Content        string     `json:"content"`
	Source         string     `json:"source"`
	StateID        string     `json:"state_id"`
	Files          []FileMeta `json:"files,omitempty"`
	ResponseTimeMS int64      `json:"response_time,omitempty"`
	CreatedAt      time.Time  `json:"created_at,omitempty"`
}

// MessagePatch is a partial update applied to a persisted message.
type MessagePatch struct {
	Content        *string `json:"content,omitempty"`
	ResponseTimeMS *int64  `json:"response_time,omitempty"`
}

// Decision is planning's output: which providers to invoke and which
// action leads. An empty action list means "do not respond".
type Decision struct {
	Actions   []string `json:"actions"`
	Providers []string `json:"providers"`
}

// Action returns the leading action, or "" for a silent turn.
func (d Decision) Action() string {
	if len(d.Actions) == 0 {
		return ""
	}
	return d.Actions[0]
}

// ProviderResult is the settled outcome of one fan-out call. Failures
// are recorded here, never propagated to siblings.
type ProviderResult struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"`
	Data     any    `json:"data,omitempty"`
}

// ActionResult is the user-visible outcome of the action stage.
type ActionResult struct {
	Thought          string            `json:"thought"`
	Text             string            `json:"text"`
	Actions          []string          `json:"actions"`
	Papers           []Paper           `json:"papers"`
	WebSearchResults []WebSearchResult `json:"webSearchResults"`
}

// TurnResult is what the caller gets back for one inbound message.
type TurnResult struct {
	Responded bool             `json:"responded"`
	Action    string           `json:"action,omitempty"`
	Reply     *ActionResult    `json:"reply,omitempty"`
	Providers []ProviderResult `json:"providers,omitempty"`
	StateID   string           `json:"state_id,omitempty"`
	MessageID string           `json:"message_id,omitempty"`
}
