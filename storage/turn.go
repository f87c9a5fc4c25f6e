// Package storage provides durable persistence for conversation
// transcripts and per-conversation metadata documents.
package storage

import (
	"fmt"
	"time"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the wire representation of the role.
func (r Role) String() string {
	return string(r)
}

// ParseRole converts a stored role string back into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// Turn is a single message in a conversation transcript.
type Turn struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

// UserTurn creates a turn attributed to the user. CreatedAt is filled in
// by the store at append time.
func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// AssistantTurn creates a turn attributed to the assistant.
func AssistantTurn(content string) Turn {
	return Turn{Role: RoleAssistant, Content: content}
}

// Metadata is an arbitrary JSON-serializable document attached to a
// conversation. SetMetadata replaces the whole document; there is no
// partial merge.
type Metadata map[string]any

// Window restricts how much history a query returns. The zero value
// means no restriction.
type Window struct {
	// MessageLimit caps the number of turns returned, keeping the most
	// recent ones. Zero means unlimited.
	MessageLimit int
	// TimeLimit excludes turns older than this duration. Zero means
	// unlimited.
	TimeLimit time.Duration
}
