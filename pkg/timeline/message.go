// Package timeline holds the ordered message list of a conversation and the
// reducer that folds streamed fragments into it.
//
// The list is append-only except for the most recent assistant message,
// which is mutated in place while its reply streams in:
//
//	Pending -> Streaming -> Complete
//	   \__________\______-> Failed
package timeline

import (
	"time"

	"github.com/go-go-golems/socratic/pkg/tutor"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type State string

const (
	StatePending   State = "pending"
	StateStreaming State = "streaming"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
)

// MessageID is unique within a List and increases with creation order. IDs
// are never reused, also not across resets.
type MessageID uint64

type Message struct {
	ID         MessageID         `json:"id"`
	Role       Role              `json:"role"`
	Text       string            `json:"text"`
	Attachment *tutor.Attachment `json:"attachment,omitempty"`
	Pending    bool              `json:"pending"`
	State      State             `json:"state"`
	CreatedAt  time.Time         `json:"created_at"`
	// Version is the list version of the last mutation of this message.
	Version uint64 `json:"version"`
}

// Final reports whether the message can no longer change.
func (m Message) Final() bool {
	return m.State == StateComplete || m.State == StateFailed
}

// Upsert describes one appended or mutated message.
type Upsert struct {
	ConvID  string
	Version uint64
	Message Message
}

// Snapshot is the full list at a given version.
type Snapshot struct {
	ConvID   string
	Version  uint64
	Messages []Message
}
