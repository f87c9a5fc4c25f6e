package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/richinex/convo/llm"
	"github.com/richinex/convo/storage"
)

// fakeProvider is a scripted provider: it returns queued replies in order
// and records the messages it was sent.
type fakeProvider struct {
	replies   []llm.LLMResponse
	err       error
	requests  [][]llm.ChatMessage
	callCount int
}

func (f *fakeProvider) Name() string  { return "fake" }
func (f *fakeProvider) Model() string { return "fake-model" }

func (f *fakeProvider) Chat(ctx context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	f.requests = append(f.requests, messages)
	if f.err != nil {
		return llm.LLMResponse{}, f.err
	}
	if f.callCount >= len(f.replies) {
		return llm.LLMResponse{Content: "out of script"}, nil
	}
	reply := f.replies[f.callCount]
	f.callCount++
	return reply, nil
}

func (f *fakeProvider) ChatWithTools(ctx context.Context, messages []llm.ChatMessage, tools []llm.ToolDefinition) (llm.LLMResponse, error) {
	return f.Chat(ctx, messages)
}

func (f *fakeProvider) StreamChat(ctx context.Context, messages []llm.ChatMessage, chunks chan<- string) (*llm.TokenUsage, error) {
	f.requests = append(f.requests, messages)
	if f.err != nil {
		return nil, f.err
	}
	if f.callCount < len(f.replies) {
		reply := f.replies[f.callCount]
		f.callCount++
		for _, r := range reply.Content {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			select {
			case chunks <- string(r):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, nil
}

func newTestConversation(t *testing.T, provider llm.Provider) *Conversation {
	t.Helper()

	store, err := storage.NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return New(DefaultConfig("conv-1"), provider, store)
}

func TestAskStoresBothTurnsAndReturnsReply(t *testing.T) {
	provider := &fakeProvider{replies: []llm.LLMResponse{{Content: "4"}}}
	conv := newTestConversation(t, provider)
	ctx := context.Background()

	answer, err := conv.Ask(ctx, "2+2?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer != "4" {
		t.Errorf("expected '4', got %q", answer)
	}

	turns, err := conv.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != storage.RoleUser || turns[0].Content != "2+2?" {
		t.Errorf("expected {user, 2+2?}, got {%s, %s}", turns[0].Role, turns[0].Content)
	}
	if turns[1].Role != storage.RoleAssistant || turns[1].Content != "4" {
		t.Errorf("expected {assistant, 4}, got {%s, %s}", turns[1].Role, turns[1].Content)
	}
}

func TestAskSendsSystemPromptAndTranscript(t *testing.T) {
	provider := &fakeProvider{replies: []llm.LLMResponse{{Content: "hi"}, {Content: "again"}}}
	conv := newTestConversation(t, provider)
	ctx := context.Background()

	if _, err := conv.Ask(ctx, "hello"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if _, err := conv.Ask(ctx, "more"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(provider.requests))
	}

	first := provider.requests[0]
	if len(first) != 2 || first[0].Role != "system" || first[1].Content != "hello" {
		t.Errorf("unexpected first request: %v", first)
	}
	if first[0].Content != DefaultSystemPrompt {
		t.Errorf("expected default system prompt, got %q", first[0].Content)
	}

	// Second request carries the full prior exchange.
	second := provider.requests[1]
	want := []string{"system", "user", "assistant", "user"}
	if len(second) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(second))
	}
	for i, role := range want {
		if second[i].Role != role {
			t.Errorf("message %d: expected role %s, got %s", i, role, second[i].Role)
		}
	}

	// The system prompt must never land in the transcript.
	turns, err := conv.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	for _, turn := range turns {
		if turn.Content == DefaultSystemPrompt {
			t.Error("system prompt leaked into stored transcript")
		}
	}
}

func TestAskRemoteFailureKeepsUserTurn(t *testing.T) {
	remoteErr := &llm.RemoteServiceError{Provider: "fake", StatusCode: 500, Message: "boom"}
	provider := &fakeProvider{err: remoteErr}
	conv := newTestConversation(t, provider)
	ctx := context.Background()

	_, err := conv.Ask(ctx, "hello")
	if err == nil {
		t.Fatal("expected error")
	}

	var remote *llm.RemoteServiceError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteServiceError, got %T", err)
	}

	turns, err := conv.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 1 {
		t.Fatalf("expected only the user turn, got %d turns", len(turns))
	}
	if turns[0].Role != storage.RoleUser || turns[0].Content != "hello" {
		t.Errorf("expected {user, hello}, got {%s, %s}", turns[0].Role, turns[0].Content)
	}
}

func TestAskRetryAfterFailureResendsUnansweredTurn(t *testing.T) {
	provider := &fakeProvider{err: &llm.RemoteServiceError{Provider: "fake", Message: "down"}}
	conv := newTestConversation(t, provider)
	ctx := context.Background()

	if _, err := conv.Ask(ctx, "first"); err == nil {
		t.Fatal("expected error")
	}

	provider.err = nil
	provider.replies = []llm.LLMResponse{{Content: "recovered"}}

	if _, err := conv.Ask(ctx, "second"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	// The retried request carries the earlier unanswered user turn.
	last := provider.requests[len(provider.requests)-1]
	var contents []string
	for _, m := range last {
		if m.Role == "user" {
			contents = append(contents, m.Content)
		}
	}
	if len(contents) != 2 || contents[0] != "first" || contents[1] != "second" {
		t.Errorf("expected both user turns in context, got %v", contents)
	}
}

func TestAskEmptyMessage(t *testing.T) {
	provider := &fakeProvider{}
	conv := newTestConversation(t, provider)
	ctx := context.Background()

	if _, err := conv.Ask(ctx, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}

	turns, err := conv.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected no turns stored, got %d", len(turns))
	}
}

func TestAskMessageLimitWindowsContext(t *testing.T) {
	provider := &fakeProvider{replies: []llm.LLMResponse{
		{Content: "r1"}, {Content: "r2"}, {Content: "r3"},
	}}

	store, err := storage.NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	config := DefaultConfig("conv-1")
	config.MessageLimit = 3
	conv := New(config, provider, store)
	ctx := context.Background()

	for _, q := range []string{"q1", "q2", "q3"} {
		if _, err := conv.Ask(ctx, q); err != nil {
			t.Fatalf("Ask failed: %v", err)
		}
	}

	// Third request: system prompt plus at most 3 windowed turns.
	last := provider.requests[2]
	if len(last) != 4 {
		t.Fatalf("expected 4 messages (system + 3 turns), got %d", len(last))
	}

	// Storage still keeps the full transcript.
	turns, err := conv.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 6 {
		t.Errorf("expected full transcript of 6 turns, got %d", len(turns))
	}
}

func TestAskWithToolsStoresPlaceholderTurn(t *testing.T) {
	args, _ := json.Marshal(map[string]any{"city": "Berlin"})
	provider := &fakeProvider{replies: []llm.LLMResponse{
		{ToolCalls: []llm.ToolCall{{ID: "call-1", Name: "get_weather", Arguments: args}}},
	}}
	conv := newTestConversation(t, provider)
	ctx := context.Background()

	tools := []llm.ToolDefinition{{
		Name:        "get_weather",
		Description: "Look up the weather",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"city": map[string]interface{}{"type": "string"},
			},
		},
	}}

	reply, err := conv.AskWithTools(ctx, "weather in berlin?", tools)
	if err != nil {
		t.Fatalf("AskWithTools failed: %v", err)
	}
	if !reply.IsToolCall() {
		t.Fatal("expected a tool call reply")
	}
	if reply.ToolCalls[0].Name != "get_weather" {
		t.Errorf("expected get_weather, got %s", reply.ToolCalls[0].Name)
	}

	turns, err := conv.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[1].Role != storage.RoleAssistant || turns[1].Content != "Ok, done." {
		t.Errorf("expected placeholder assistant turn, got {%s, %s}", turns[1].Role, turns[1].Content)
	}
}

func TestAskStreamForwardsChunksAndPersists(t *testing.T) {
	provider := &fakeProvider{replies: []llm.LLMResponse{{Content: "hello"}}}
	conv := newTestConversation(t, provider)
	ctx := context.Background()

	chunks := make(chan string, 16)
	reply, err := conv.AskStream(ctx, "hi", chunks)
	if err != nil {
		t.Fatalf("AskStream failed: %v", err)
	}
	close(chunks)

	if reply != "hello" {
		t.Errorf("expected 'hello', got %q", reply)
	}

	var streamed string
	for chunk := range chunks {
		streamed += chunk
	}
	if streamed != "hello" {
		t.Errorf("expected streamed 'hello', got %q", streamed)
	}

	turns, err := conv.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 2 || turns[1].Content != "hello" {
		t.Errorf("expected persisted assistant turn, got %v", turns)
	}
}

func TestAskStreamReturnsWhenConsumerStopsDraining(t *testing.T) {
	provider := &fakeProvider{replies: []llm.LLMResponse{{Content: "a long streamed reply"}}}
	conv := newTestConversation(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// A consumer that reads one chunk, cancels, and walks away.
	chunks := make(chan string)
	go func() {
		<-chunks
		cancel()
	}()

	done := make(chan struct{})
	var askErr error
	go func() {
		defer close(done)
		_, askErr = conv.AskStream(ctx, "hi", chunks)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("AskStream did not return after the consumer stopped draining")
	}

	if !errors.Is(askErr, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", askErr)
	}
}

func TestMetadataRoundTripThroughConversation(t *testing.T) {
	conv := newTestConversation(t, &fakeProvider{})
	ctx := context.Background()

	meta, err := conv.Metadata(ctx)
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if meta != nil {
		t.Errorf("expected nil metadata on untouched conversation, got %v", meta)
	}

	if err := conv.SetMetadata(ctx, storage.Metadata{"user": "alice"}); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if err := conv.SetMetadata(ctx, storage.Metadata{"topic": "math"}); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	meta, err = conv.Metadata(ctx)
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if meta["topic"] != "math" {
		t.Errorf("expected topic 'math', got %v", meta["topic"])
	}
	if _, ok := meta["user"]; ok {
		t.Error("expected replacement, not merge")
	}
}

func TestConversationsAreIsolated(t *testing.T) {
	store, err := storage.NewSqliteInMemory()
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	provider := &fakeProvider{replies: []llm.LLMResponse{{Content: "to a"}}}
	convA := New(DefaultConfig("conv-a"), provider, store)
	convB := New(DefaultConfig("conv-b"), provider, store)
	ctx := context.Background()

	if _, err := convA.Ask(ctx, "hello a"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if err := convA.SetMetadata(ctx, storage.Metadata{"owner": "a"}); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}

	turns, err := convB.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("conv-b should have no turns, got %d", len(turns))
	}

	meta, err := convB.Metadata(ctx)
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if meta != nil {
		t.Errorf("conv-b should have no metadata, got %v", meta)
	}
}

func TestDeleteRemovesConversation(t *testing.T) {
	provider := &fakeProvider{replies: []llm.LLMResponse{{Content: "hi"}}}
	conv := newTestConversation(t, provider)
	ctx := context.Background()

	if _, err := conv.Ask(ctx, "hello"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if err := conv.Delete(ctx); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	turns, err := conv.History(ctx)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(turns) != 0 {
		t.Errorf("expected empty history after delete, got %d turns", len(turns))
	}
}

func TestBuilderInMemory(t *testing.T) {
	provider := &fakeProvider{replies: []llm.LLMResponse{{Content: "ok"}}}

	conv, err := NewBuilder("conv-1").
		SystemPrompt("Be terse.").
		InMemory().
		Provider(provider).
		Open()
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer conv.Close()

	if _, err := conv.Ask(context.Background(), "hi"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	if provider.requests[0][0].Content != "Be terse." {
		t.Errorf("expected custom system prompt, got %q", provider.requests[0][0].Content)
	}
}

func TestBuilderGeneratesIDWhenEmpty(t *testing.T) {
	b := NewBuilder("")
	if b.config.ID == "" {
		t.Error("expected generated conversation ID")
	}
}
