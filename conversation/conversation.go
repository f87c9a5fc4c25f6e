// Package conversation maintains multi-turn conversations with a hosted
// LLM completion API, persisting turns and per-conversation metadata in a
// local SQLite database keyed by conversation ID.
//
// A Conversation is not safe for concurrent use against the same ID:
// interleaved Ask calls can interleave their turn appends. Serialize calls
// per conversation ID; distinct IDs are independent.
package conversation

import (
	"context"
	"errors"
	"strings"

	"github.com/richinex/convo/llm"
	"github.com/richinex/convo/storage"
)

// ErrEmptyMessage is returned by Ask variants for blank messages.
var ErrEmptyMessage = errors.New("conversation: empty message")

// toolAckContent is stored as the assistant turn when the model answers
// with tool calls instead of text.
const toolAckContent = "Ok, done."

// Conversation owns one conversation's transcript and metadata record.
type Conversation struct {
	config    Config
	provider  llm.Provider
	store     storage.ConversationStorage
	ownsStore bool
}

// Open binds to (or lazily creates) the conversation with the given ID,
// using the OpenAI provider and the default database file. The credential
// is not validated here; invalid keys surface on the first remote call.
func Open(conversationID, apiKey string) (*Conversation, error) {
	return NewBuilder(conversationID).APIKey(apiKey).Open()
}

// New creates a conversation over an explicit provider and store.
// The caller keeps ownership of the store; Close will not close it.
func New(config Config, provider llm.Provider, store storage.ConversationStorage) *Conversation {
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	return &Conversation{
		config:   config,
		provider: provider,
		store:    store,
	}
}

// ID returns the conversation identifier.
func (c *Conversation) ID() string {
	return c.config.ID
}

// Provider returns the underlying completion provider.
func (c *Conversation) Provider() llm.Provider {
	return c.provider
}

// Close releases the backing store if the conversation opened it itself.
func (c *Conversation) Close() error {
	if c.ownsStore {
		return c.store.Close()
	}
	return nil
}

// Ask appends the user message to the transcript, sends the transcript to
// the completion provider, stores the response, and returns its text.
//
// The user turn is persisted before the remote call and is not rolled back
// on failure: a retried Ask resends a transcript containing the earlier
// unanswered user turn as context. Failures are *llm.RemoteServiceError or
// *storage.StorageError.
func (c *Conversation) Ask(ctx context.Context, message string) (string, error) {
	reply, err := c.ask(ctx, message, nil)
	if err != nil {
		return "", err
	}
	return reply.Text, nil
}

// AskWithTools is Ask with tool definitions the model may call. When the
// model answers with tool calls, a placeholder assistant turn is stored
// and the calls are returned for the caller to execute.
func (c *Conversation) AskWithTools(ctx context.Context, message string, tools []llm.ToolDefinition) (Reply, error) {
	return c.ask(ctx, message, tools)
}

// Reply is the outcome of one AskWithTools exchange: either text or a set
// of tool calls requested by the model.
type Reply struct {
	Text      string
	ToolCalls []llm.ToolCall
}

// IsToolCall reports whether the model requested tool calls.
func (r Reply) IsToolCall() bool {
	return len(r.ToolCalls) > 0
}

func (c *Conversation) ask(ctx context.Context, message string, tools []llm.ToolDefinition) (Reply, error) {
	if strings.TrimSpace(message) == "" {
		return Reply{}, ErrEmptyMessage
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	// The user turn is durable before the remote call; a failed call
	// must leave it behind.
	if err := c.store.AppendTurn(ctx, c.config.ID, storage.UserTurn(message)); err != nil {
		return Reply{}, err
	}

	messages, err := c.contextMessages(ctx)
	if err != nil {
		return Reply{}, err
	}

	var response llm.LLMResponse
	if len(tools) > 0 {
		response, err = c.provider.ChatWithTools(ctx, messages, tools)
	} else {
		response, err = c.provider.Chat(ctx, messages)
	}
	if err != nil {
		return Reply{}, err
	}

	if len(response.ToolCalls) > 0 {
		if err := c.store.AppendTurn(ctx, c.config.ID, storage.AssistantTurn(toolAckContent)); err != nil {
			return Reply{}, err
		}
		return Reply{ToolCalls: response.ToolCalls}, nil
	}

	text := strings.TrimSpace(response.Content)
	if err := c.store.AppendTurn(ctx, c.config.ID, storage.AssistantTurn(text)); err != nil {
		return Reply{}, err
	}

	return Reply{Text: text}, nil
}

// AskStream is Ask with the response streamed to chunks as it arrives.
// The full reply is persisted and returned once the stream ends. The
// channel is not closed; that remains the caller's to manage.
func (c *Conversation) AskStream(ctx context.Context, message string, chunks chan<- string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyMessage
	}

	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	if err := c.store.AppendTurn(ctx, c.config.ID, storage.UserTurn(message)); err != nil {
		return "", err
	}

	messages, err := c.contextMessages(ctx)
	if err != nil {
		return "", err
	}

	// Tee the stream: accumulate the full reply while forwarding chunks.
	// The forward must not block forever on a consumer that stopped
	// draining, or this call would never return.
	var reply strings.Builder
	inner := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for chunk := range inner {
			reply.WriteString(chunk)
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				// Keep accumulating so the reply can still be persisted.
			}
		}
	}()

	_, streamErr := c.provider.StreamChat(ctx, messages, inner)
	close(inner)
	<-done

	if streamErr != nil {
		return "", streamErr
	}

	text := strings.TrimSpace(reply.String())
	if err := c.store.AppendTurn(ctx, c.config.ID, storage.AssistantTurn(text)); err != nil {
		return "", err
	}

	return text, nil
}

// History returns all turns for this conversation in append order.
func (c *Conversation) History(ctx context.Context) ([]storage.Turn, error) {
	return c.store.History(ctx, c.config.ID, storage.Window{})
}

// Metadata returns the stored metadata document, or nil if none was set.
func (c *Conversation) Metadata(ctx context.Context) (storage.Metadata, error) {
	return c.store.GetMetadata(ctx, c.config.ID)
}

// SetMetadata replaces this conversation's metadata slot with doc.
func (c *Conversation) SetMetadata(ctx context.Context, doc storage.Metadata) error {
	return c.store.SetMetadata(ctx, c.config.ID, doc)
}

// Delete removes this conversation's transcript and metadata.
func (c *Conversation) Delete(ctx context.Context) error {
	return c.store.Delete(ctx, c.config.ID)
}

// contextMessages builds the provider request: system prompt first, then
// the windowed transcript.
func (c *Conversation) contextMessages(ctx context.Context) ([]llm.ChatMessage, error) {
	window := storage.Window{
		MessageLimit: c.config.MessageLimit,
		TimeLimit:    c.config.TimeLimit,
	}
	turns, err := c.store.History(ctx, c.config.ID, window)
	if err != nil {
		return nil, err
	}

	messages := make([]llm.ChatMessage, 0, len(turns)+1)
	messages = append(messages, llm.SystemMessage(c.config.SystemPrompt))
	for _, turn := range turns {
		switch turn.Role {
		case storage.RoleUser:
			messages = append(messages, llm.UserMessage(turn.Content))
		default:
			messages = append(messages, llm.AssistantMessage(turn.Content))
		}
	}
	return messages, nil
}

func (c *Conversation) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.RequestTimeout > 0 {
		return context.WithTimeout(ctx, c.config.RequestTimeout)
	}
	return ctx, func() {}
}
