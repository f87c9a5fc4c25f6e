package storage

import "context"

// ConversationStorage defines the interface for persisting conversation
// transcripts and per-conversation metadata.
//
// Conversations are created lazily: the first AppendTurn or SetMetadata for
// an unknown ID creates its record. Reads on unknown IDs return empty
// results, never errors.
type ConversationStorage interface {
	// AppendTurn durably appends one turn to the conversation's transcript.
	AppendTurn(ctx context.Context, conversationID string, turn Turn) error

	// History returns the conversation's turns in append order, restricted
	// by the window. Returns an empty slice (not nil) for unknown IDs.
	History(ctx context.Context, conversationID string, w Window) ([]Turn, error)

	// GetMetadata returns the conversation's metadata document, or nil if
	// none was ever set.
	GetMetadata(ctx context.Context, conversationID string) (Metadata, error)

	// SetMetadata replaces the conversation's metadata slot with doc.
	// The latest write wins; there are no merge semantics.
	SetMetadata(ctx context.Context, conversationID string, doc Metadata) error

	// Delete removes the conversation's transcript and metadata.
	Delete(ctx context.Context, conversationID string) error

	// List returns all known conversation IDs, most recently updated first.
	List(ctx context.Context) ([]string, error)

	// Exists checks whether a conversation has been created.
	Exists(ctx context.Context, conversationID string) (bool, error)

	// Close releases the backing resources.
	Close() error
}
