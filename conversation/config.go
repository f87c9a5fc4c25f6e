// Conversation configuration types.

package conversation

import (
	"time"

	"github.com/google/uuid"
)

// DefaultSystemPrompt is sent when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful virtual assistant."

// DefaultDatabasePath is where transcripts are stored when no path is given.
const DefaultDatabasePath = "database.sqlite3"

// Config holds conversation configuration.
type Config struct {
	// ID identifies the conversation within the storage backend.
	// Any caller-chosen string; see NewID for a random one.
	ID string

	// SystemPrompt guides the assistant's behavior. It is prepended to
	// every request and never stored in the transcript.
	SystemPrompt string

	// Model overrides the provider's default model (empty = default).
	Model string

	// DatabasePath is where the SQLite database lives. Ignored when an
	// explicit store is supplied.
	DatabasePath string

	// MessageLimit sends only the most recent N turns as context
	// (0 = full transcript). Storage always keeps everything.
	MessageLimit int

	// TimeLimit sends only turns newer than this window as context
	// (0 = no window). Storage always keeps everything.
	TimeLimit time.Duration

	// RequestTimeout bounds each remote call (0 = no library-imposed
	// timeout; the caller's context still applies).
	RequestTimeout time.Duration
}

// DefaultConfig returns a configuration for the given conversation ID.
func DefaultConfig(conversationID string) Config {
	return Config{
		ID:           conversationID,
		SystemPrompt: DefaultSystemPrompt,
		DatabasePath: DefaultDatabasePath,
	}
}

// NewID returns a random conversation ID.
func NewID() string {
	return uuid.New().String()
}
