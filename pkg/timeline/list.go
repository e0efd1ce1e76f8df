package timeline

import (
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-go-golems/socratic/pkg/tutor"
)

var (
	ErrUnknownMessage   = errors.New("timeline: unknown message id")
	ErrMessageFinalized = errors.New("timeline: message is finalized")
	ErrNotLatest        = errors.New("timeline: only the latest assistant message can be mutated")
)

// List is the in-memory, ordered message list of one conversation. All
// methods are safe for concurrent use.
type List struct {
	convID string
	now    func() time.Time

	mu       sync.Mutex
	messages []Message
	index    map[MessageID]int
	nextID   MessageID
	version  uint64
}

func NewList(convID string) *List {
	return &List{
		convID: convID,
		now:    time.Now,
		index:  map[MessageID]int{},
	}
}

func (l *List) ConvID() string { return l.convID }

// Reset replaces the whole list with a single, complete assistant greeting.
func (l *List) Reset(greeting string) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = nil
	l.index = map[MessageID]int{}
	l.appendLocked(Message{Role: RoleAssistant, Text: greeting, State: StateComplete})
	return l.snapshotLocked()
}

// AppendExchange appends the user message and, directly after it, the pending
// assistant placeholder its reply will stream into.
func (l *List) AppendExchange(text string, att *tutor.Attachment) (user Upsert, placeholder Upsert) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u := l.appendLocked(Message{
		Role:       RoleUser,
		Text:       strings.TrimSpace(text),
		Attachment: att,
		State:      StateComplete,
	})
	p := l.appendLocked(Message{
		Role:    RoleAssistant,
		Pending: true,
		State:   StatePending,
	})
	return l.upsertLocked(u), l.upsertLocked(p)
}

// ApplyFragment concatenates frag to the placeholder. The first non-empty
// fragment clears Pending and moves the message to Streaming; empty
// fragments leave it pending.
func (l *List) ApplyFragment(id MessageID, frag string) (Upsert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, err := l.mutableLocked(id)
	if err != nil {
		return Upsert{}, err
	}
	m.Text += frag
	if frag != "" && m.Pending {
		m.Pending = false
		m.State = StateStreaming
	}
	return l.touchLocked(m), nil
}

// Complete marks the placeholder as done once its stream is exhausted.
func (l *List) Complete(id MessageID) (Upsert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, err := l.mutableLocked(id)
	if err != nil {
		return Upsert{}, err
	}
	m.Pending = false
	m.State = StateComplete
	return l.touchLocked(m), nil
}

// Fail overwrites the placeholder text with text and marks it failed.
func (l *List) Fail(id MessageID, text string) (Upsert, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, err := l.mutableLocked(id)
	if err != nil {
		return Upsert{}, err
	}
	m.Text = text
	m.Pending = false
	m.State = StateFailed
	return l.touchLocked(m), nil
}

// Get returns a copy of the message with the given id.
func (l *List) Get(id MessageID) (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return Message{}, false
	}
	return l.messages[i], true
}

func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func (l *List) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// Snapshot copies the list.
func (l *List) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// LastAssistant returns the most recent assistant message, if any.
func (l *List) LastAssistant() (Message, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].Role == RoleAssistant {
			return l.messages[i], true
		}
	}
	return Message{}, false
}

func (l *List) appendLocked(m Message) MessageID {
	l.nextID++
	l.version++
	m.ID = l.nextID
	m.Version = l.version
	m.CreatedAt = l.now()
	l.index[m.ID] = len(l.messages)
	l.messages = append(l.messages, m)
	return m.ID
}

func (l *List) mutableLocked(id MessageID) (*Message, error) {
	i, ok := l.index[id]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMessage, "id %d", id)
	}
	m := &l.messages[i]
	if m.Final() {
		return nil, errors.Wrapf(ErrMessageFinalized, "id %d", id)
	}
	if i != len(l.messages)-1 || m.Role != RoleAssistant {
		return nil, errors.Wrapf(ErrNotLatest, "id %d", id)
	}
	return m, nil
}

func (l *List) touchLocked(m *Message) Upsert {
	l.version++
	m.Version = l.version
	return Upsert{ConvID: l.convID, Version: l.version, Message: *m}
}

func (l *List) upsertLocked(id MessageID) Upsert {
	m := l.messages[l.index[id]]
	return Upsert{ConvID: l.convID, Version: m.Version, Message: m}
}

func (l *List) snapshotLocked() Snapshot {
	msgs := make([]Message, len(l.messages))
	copy(msgs, l.messages)
	return Snapshot{ConvID: l.convID, Version: l.version, Messages: msgs}
}
