package tutor

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Config configures a remote conversation. No output length cap is set.
type Config struct {
	Model             string
	SystemInstruction string
	ThinkingBudget    int32
}

// Backend is the remote conversation endpoint.
type Backend interface {
	NewChat(ctx context.Context, cfg Config) (Chat, error)
}

// Chat is one server-side conversation. SendStream must be drained (or
// abandoned) before the next call, the remote side serializes turns.
type Chat interface {
	SendStream(ctx context.Context, req Request) iter.Seq2[string, error]
}

// Session is an opaque handle on the current remote conversation.
type Session struct {
	chat       Chat
	generation uint64
	createdAt  time.Time
}

// Generation identifies the session; it increases on every reset.
func (s *Session) Generation() uint64 { return s.generation }

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Manager owns the single live conversation session.
type Manager struct {
	backend Backend
	cfg     Config

	mu         sync.Mutex
	current    *Session
	generation uint64
}

// NewManager returns a Manager that has not created a session yet.
func NewManager(backend Backend, cfg Config) *Manager {
	return &Manager{backend: backend, cfg: cfg}
}

// Reset discards the current session and opens a fresh one. On failure no
// session is left behind and the next EnsureSession retries.
func (m *Manager) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
	_, err := m.createLocked(ctx)
	return err
}

// EnsureSession returns the current session, creating one if none is alive.
func (m *Manager) EnsureSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		return m.current, nil
	}
	return m.createLocked(ctx)
}

// CurrentOrFail returns the current session without creating one.
func (m *Manager) CurrentOrFail() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil, ErrNoSession
	}
	return m.current, nil
}

// Generation returns the generation of the latest session attempt.
func (m *Manager) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generation
}

func (m *Manager) createLocked(ctx context.Context) (*Session, error) {
	m.generation++
	chat, err := m.backend.NewChat(ctx, m.cfg)
	if err != nil {
		log.Error().Err(err).Str("component", "tutor").Uint64("generation", m.generation).Msg("session creation failed")
		return nil, &SessionInitError{Err: err}
	}
	m.current = &Session{chat: chat, generation: m.generation, createdAt: time.Now()}
	log.Debug().Str("component", "tutor").Uint64("generation", m.generation).Str("model", m.cfg.Model).Msg("session created")
	return m.current, nil
}

// Send validates the input, makes sure a session exists and opens a new
// remote stream for one turn. Validation errors are returned before any
// network activity.
func (m *Manager) Send(ctx context.Context, text string, att *Attachment) (*Stream, error) {
	req, err := BuildRequest(text, att)
	if err != nil {
		return nil, err
	}
	sess, err := m.EnsureSession(ctx)
	if err != nil {
		return nil, err
	}
	return &Stream{
		generation: sess.generation,
		seq:        sess.chat.SendStream(ctx, req),
	}, nil
}
