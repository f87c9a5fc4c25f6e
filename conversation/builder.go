// Conversation builder for fluent configuration.
//
// Information Hiding:
// - Builder state management hidden
// - Default value application hidden
// - Provider and store construction hidden

package conversation

import (
	"time"

	"github.com/richinex/convo/llm"
	"github.com/richinex/convo/storage"
)

// Builder provides fluent configuration for opening conversations.
// Usage: conversation.NewBuilder("conv-1") - no stutter.
type Builder struct {
	config       Config
	providerType llm.ProviderType
	provider     llm.Provider
	apiKey       string
	store        storage.ConversationStorage
	inMemory     bool
	maxTokens    uint32
	temperature  *float32
}

// NewBuilder creates a builder for the given conversation ID.
// An empty ID gets a random one.
func NewBuilder(conversationID string) *Builder {
	if conversationID == "" {
		conversationID = NewID()
	}
	return &Builder{
		config:       DefaultConfig(conversationID),
		providerType: llm.ProviderOpenAI,
	}
}

// SystemPrompt sets the system prompt.
func (b *Builder) SystemPrompt(prompt string) *Builder {
	b.config.SystemPrompt = prompt
	return b
}

// Model overrides the provider's default model.
func (b *Builder) Model(model string) *Builder {
	b.config.Model = model
	return b
}

// Database sets the SQLite database path.
func (b *Builder) Database(path string) *Builder {
	b.config.DatabasePath = path
	return b
}

// InMemory keeps the transcript in memory instead of SQLite.
func (b *Builder) InMemory() *Builder {
	b.inMemory = true
	return b
}

// MessageLimit sends only the most recent N turns as context.
func (b *Builder) MessageLimit(n int) *Builder {
	b.config.MessageLimit = n
	return b
}

// TimeLimit sends only turns newer than d as context.
func (b *Builder) TimeLimit(d time.Duration) *Builder {
	b.config.TimeLimit = d
	return b
}

// RequestTimeout bounds each remote call.
func (b *Builder) RequestTimeout(d time.Duration) *Builder {
	b.config.RequestTimeout = d
	return b
}

// ProviderType selects which completion provider to build (default OpenAI).
func (b *Builder) ProviderType(t llm.ProviderType) *Builder {
	b.providerType = t
	return b
}

// APIKey sets the credential for the completion provider.
func (b *Builder) APIKey(key string) *Builder {
	b.apiKey = key
	return b
}

// MaxTokens caps response length.
func (b *Builder) MaxTokens(tokens uint32) *Builder {
	b.maxTokens = tokens
	return b
}

// Temperature sets sampling temperature.
func (b *Builder) Temperature(temp float32) *Builder {
	b.temperature = &temp
	return b
}

// Provider supplies a ready-made provider, bypassing key/type/model settings.
func (b *Builder) Provider(p llm.Provider) *Builder {
	b.provider = p
	return b
}

// Store supplies a ready-made store; the caller keeps ownership and
// Conversation.Close will not close it.
func (b *Builder) Store(s storage.ConversationStorage) *Builder {
	b.store = s
	return b
}

// Open builds the provider and store and binds the conversation.
func (b *Builder) Open() (*Conversation, error) {
	provider := b.provider
	if provider == nil {
		pb := llm.NewProviderBuilder(b.providerType)
		if b.config.Model != "" {
			pb.Model(b.config.Model)
		}
		if b.maxTokens > 0 {
			pb.MaxTokens(b.maxTokens)
		}
		if b.temperature != nil {
			pb.Temperature(*b.temperature)
		}

		var err error
		if b.apiKey != "" {
			provider, err = pb.APIKey(b.apiKey)
		} else {
			provider, err = pb.FromEnv()
		}
		if err != nil {
			return nil, err
		}
	}

	store := b.store
	ownsStore := false
	if store == nil {
		if b.inMemory {
			store = storage.NewMemoryStore()
		} else {
			var err error
			store, err = storage.OpenSqlite(b.config.DatabasePath)
			if err != nil {
				return nil, err
			}
		}
		ownsStore = true
	}

	conv := New(b.config, provider, store)
	conv.ownsStore = ownsStore
	return conv, nil
}
