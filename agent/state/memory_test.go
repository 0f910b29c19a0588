package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	contractx "github.com/athena-research/athena-agent/agent/contract"
)

func TestUpstashMemoryStoreRedisKey(t *testing.T) {
	t.Parallel()

	store, err := NewUpstashMemoryStore(UpstashMemoryConfig{URL: "https://example.upstash.io", Token: "t"})
	if err != nil {
		t.Fatalf("NewUpstashMemoryStore() error = %v", err)
	}

	got, err := store.redisKey("c1")
	if err != nil {
		t.Fatalf("redisKey() error = %v", err)
	}
	if got != "agent:conversation:c1" {
		t.Fatalf("redisKey() = %q", got)
	}

	if _, err := store.redisKey("   "); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty id, got %v", err)
	}
}

func TestUpstashMemoryStoreSaveSetsTTL(t *testing.T) {
	t.Parallel()

	var gotCommand []any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("unexpected authorization header: %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotCommand); err != nil {
			t.Errorf("decode command: %v", err)
		}
		fmt.Fprint(w, `{"result":"OK"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashMemoryStore(
		UpstashMemoryConfig{URL: server.URL, Token: "token"},
		WithMemoryTTL(time.Hour),
	)
	if err != nil {
		t.Fatalf("NewUpstashMemoryStore() error = %v", err)
	}

	err = store.Save(context.Background(), &contractx.ConversationState{
		ID:     "c1",
		Values: contractx.ConversationValues{Hypothesis: "h"},
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if len(gotCommand) != 5 {
		t.Fatalf("unexpected command: %#v", gotCommand)
	}
	if gotCommand[0] != "SET" || gotCommand[1] != "agent:conversation:c1" {
		t.Fatalf("unexpected command head: %#v", gotCommand[:2])
	}
	if gotCommand[3] != "EX" || gotCommand[4] != float64(3600) {
		t.Fatalf("unexpected ttl args: %#v", gotCommand[3:])
	}
}

func TestUpstashMemoryStoreLoadRoundTrip(t *testing.T) {
	t.Parallel()

	cs := contractx.ConversationState{
		ID: "c1",
		Values: contractx.ConversationValues{
			Hypothesis: "senolytics clear senescent cells",
			Papers:     []contractx.Paper{{DOI: "10.1/a", Title: "T"}},
		},
	}
	payload, err := json.Marshal(cs)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	envelope, err := json.Marshal(string(payload))
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"result":%s}`, envelope)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashMemoryStore(UpstashMemoryConfig{URL: server.URL, Token: "token"})
	if err != nil {
		t.Fatalf("NewUpstashMemoryStore() error = %v", err)
	}

	got, err := store.Load(context.Background(), "c1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Values.Hypothesis != cs.Values.Hypothesis || len(got.Values.Papers) != 1 {
		t.Fatalf("unexpected state: %#v", got.Values)
	}
}

func TestUpstashMemoryStoreLoadMiss(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"result":null}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashMemoryStore(UpstashMemoryConfig{URL: server.URL, Token: "token"})
	if err != nil {
		t.Fatalf("NewUpstashMemoryStore() error = %v", err)
	}

	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, ErrMemoryNotFound) {
		t.Fatalf("expected ErrMemoryNotFound, got %v", err)
	}
}

func TestUpstashMemoryStoreRedisError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"WRONGPASS invalid token"}`)
	}))
	t.Cleanup(server.Close)

	store, err := NewUpstashMemoryStore(UpstashMemoryConfig{URL: server.URL, Token: "bad"})
	if err != nil {
		t.Fatalf("NewUpstashMemoryStore() error = %v", err)
	}

	if _, err := store.Load(context.Background(), "c1"); err == nil {
		t.Fatal("expected error from redis error payload")
	}
}
