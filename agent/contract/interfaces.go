package contract

import "context"

// ExecContext is what every provider and stage receives: the turn's
// request state, the conversation's cross-turn memory, and the inbound
// message. State is owned by the current turn; Conversation is
// write-shared and only mutated by reflection.
type ExecContext struct {
	State        *State
	Conversation *ConversationState
	Message      *Message
}

// Provider is one named external retrieval/augmentation capability.
type Provider interface {
	Name() string
	Execute(ctx context.Context, exec *ExecContext) (any, error)
}

// Registry resolves providers by name. It is built at startup and
// passed by reference; there is no ambient lookup.
type Registry interface {
	Get(name string) (Provider, bool)
	Names() []string
}

// Store is the durable storage collaborator. Value writes replace the
// whole values object atomically so a polling reader never observes a
// partial update.
type Store interface {
	CreateMessage(ctx context.Context, m *Message) (*Message, error)
	UpdateMessage(ctx context.Context, id string, patch MessagePatch) error
	// GetMessagesByConversation returns the most recent messages first;
	// callers reverse for chronological prompts.
	GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]Message, error)

	CreateState(ctx context.Context, st *State) error
	UpdateState(ctx context.Context, id string, values *StateValues) error

	GetConversationState(ctx context.Context, conversationID string) (*ConversationState, error)
	UpdateConversationState(ctx context.Context, id string, values *ConversationValues) error
}

// MemoryStore caches conversation state in front of the durable store.
type MemoryStore interface {
	Load(ctx context.Context, conversationID string) (*ConversationState, error)
	Save(ctx context.Context, cs *ConversationState) error
}

// ChatMessage is one prompt message.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// StreamFunc receives each incremental delta plus the cumulative text.
type StreamFunc func(chunk string, fullText string) error

// CompletionRequest parameterizes one model call.
type CompletionRequest struct {
	Model             string
	SystemInstruction string
	Messages          []ChatMessage
	MaxTokens         int
	ThinkingBudget    int
	// ResponseSchema, when set, requests strict structured output
	// validating against the given JSON schema.
	ResponseSchema map[string]any
	SchemaName     string
	Stream         bool
	OnStreamChunk  StreamFunc
}

// Usage is the vendor-reported token accounting.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Completion is a plain chat completion.
type Completion struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// WebSearchCompletion is a web-search-augmented completion: the raw
// output, the output with citation markers stripped, and the structured
// result list.
type WebSearchCompletion struct {
	LLMOutput        string            `json:"llmOutput"`
	CleanedLLMOutput string            `json:"cleanedLLMOutput"`
	WebSearchResults []WebSearchResult `json:"webSearchResults"`
}

// ModelClient is the uniform LLM invocation surface.
type ModelClient interface {
	CreateChatCompletion(ctx context.Context, req CompletionRequest) (*Completion, error)
	CreateChatCompletionWebSearch(ctx context.Context, req CompletionRequest) (*WebSearchCompletion, error)
}

// JobDispatcher enqueues external deep-research jobs.
type JobDispatcher interface {
	Publish(ctx context.Context, jobType string, payload any) (string, error)
}
