package stages

import (
	"context"
	"errors"
	"sync"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

// fakeModelClient replays scripted completions and records every
// request it receives.
type fakeModelClient struct {
	mu sync.Mutex

	completions []*contractx.Completion
	webResults  []*contractx.WebSearchCompletion
	err         error

	// streamChunks, when set, are fed through OnStreamChunk before the
	// final completion is returned. streamPasses > 1 delivers the same
	// sequence again from the start, the way a reconnecting upstream
	// replays a stream.
	streamChunks []string
	streamPasses int

	chatRequests []contractx.CompletionRequest
	webRequests  []contractx.CompletionRequest
}

func (f *fakeModelClient) CreateChatCompletion(ctx context.Context, req contractx.CompletionRequest) (*contractx.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.chatRequests = append(f.chatRequests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.completions) == 0 {
		return nil, errors.New("no fake completion left")
	}

	out := f.completions[0]
	f.completions = f.completions[1:]

	if req.Stream && req.OnStreamChunk != nil {
		passes := f.streamPasses
		if passes < 1 {
			passes = 1
		}
		for pass := 0; pass < passes; pass++ {
			full := ""
			for _, chunk := range f.streamChunks {
				full += chunk
				if err := req.OnStreamChunk(chunk, full); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

func (f *fakeModelClient) CreateChatCompletionWebSearch(ctx context.Context, req contractx.CompletionRequest) (*contractx.WebSearchCompletion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.webRequests = append(f.webRequests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.webResults) == 0 {
		return nil, errors.New("no fake web completion left")
	}
	out := f.webResults[0]
	f.webResults = f.webResults[1:]
	return out, nil
}

// fakeStore records message patches; everything else is inert.
type fakeStore struct {
	mu      sync.Mutex
	patches map[string]contractx.MessagePatch
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{patches: make(map[string]contractx.MessagePatch)}
}

func (s *fakeStore) CreateMessage(ctx context.Context, m *contractx.Message) (*contractx.Message, error) {
	created := *m
	created.ID = "m1"
	return &created, nil
}

func (s *fakeStore) UpdateMessage(ctx context.Context, id string, patch contractx.MessagePatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches[id] = patch
	return nil
}

func (s *fakeStore) GetMessagesByConversation(ctx context.Context, conversationID string, limit int) ([]contractx.Message, error) {
	return nil, nil
}

func (s *fakeStore) CreateState(ctx context.Context, st *contractx.State) error {
	if st.ID == "" {
		st.ID = "s1"
	}
	return nil
}

func (s *fakeStore) UpdateState(ctx context.Context, id string, values *contractx.StateValues) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	return nil
}

func (s *fakeStore) GetConversationState(ctx context.Context, conversationID string) (*contractx.ConversationState, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStore) UpdateConversationState(ctx context.Context, id string, values *contractx.ConversationValues) error {
	return nil
}

// countingCheckpointer counts Checkpoint calls and remembers the last
// persisted final response.
type countingCheckpointer struct {
	mu        sync.Mutex
	calls     int
	lastFinal string
}

func (c *countingCheckpointer) Checkpoint(_ context.Context, st *contractx.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastFinal = st.Values.FinalResponse
}

func newExecContext(source string) *contractx.ExecContext {
	return &contractx.ExecContext{
		State: &contractx.State{
			ID: "s1",
			Values: contractx.StateValues{
				Source:         source,
				ConversationID: "c1",
				MessageID:      "m1",
			},
		},
		Conversation: &contractx.ConversationState{ID: "c1"},
		Message: &contractx.Message{
			ID:             "m1",
			ConversationID: "c1",
			Question:       "does rapamycin extend lifespan?",
			Source:         source,
		},
	}
}
