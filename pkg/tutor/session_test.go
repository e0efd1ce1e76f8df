package tutor

import (
	"context"
	"iter"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeChat struct {
	mu        sync.Mutex
	requests  []Request
	fragments []string
	failAfter int
	failErr   error
}

func (c *fakeChat) SendStream(_ context.Context, req Request) iter.Seq2[string, error] {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()
	return func(yield func(string, error) bool) {
		for i, f := range c.fragments {
			if c.failErr != nil && i == c.failAfter {
				yield("", c.failErr)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
		if c.failErr != nil && c.failAfter >= len(c.fragments) {
			yield("", c.failErr)
		}
	}
}

type fakeBackend struct {
	mu        sync.Mutex
	chats     []*fakeChat
	configs   []Config
	createErr error
	fragments []string
}

func (b *fakeBackend) NewChat(_ context.Context, cfg Config) (Chat, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.configs = append(b.configs, cfg)
	if b.createErr != nil {
		return nil, b.createErr
	}
	c := &fakeChat{fragments: b.fragments}
	b.chats = append(b.chats, c)
	return c, nil
}

func TestManagerEnsureSessionCreatesLazily(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, DefaultConfig())

	_, err := m.CurrentOrFail()
	require.ErrorIs(t, err, ErrNoSession)

	s1, err := m.EnsureSession(context.Background())
	require.NoError(t, err)
	s2, err := m.EnsureSession(context.Background())
	require.NoError(t, err)
	require.Same(t, s1, s2)
	require.Len(t, b.chats, 1)

	cfg := b.configs[0]
	require.Equal(t, DefaultModel, cfg.Model)
	require.Equal(t, DefaultThinkingBudget, cfg.ThinkingBudget)
	require.Equal(t, SystemInstruction, cfg.SystemInstruction)
}

func TestManagerResetReplacesSession(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, DefaultConfig())

	require.NoError(t, m.Reset(context.Background()))
	first, err := m.CurrentOrFail()
	require.NoError(t, err)

	require.NoError(t, m.Reset(context.Background()))
	second, err := m.CurrentOrFail()
	require.NoError(t, err)

	require.NotSame(t, first, second)
	require.Greater(t, second.Generation(), first.Generation())
	require.Len(t, b.chats, 2)
}

func TestManagerResetFailureLeavesNoSession(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, DefaultConfig())
	require.NoError(t, m.Reset(context.Background()))

	b.createErr = errors.New("quota exceeded")
	err := m.Reset(context.Background())
	var initErr *SessionInitError
	require.ErrorAs(t, err, &initErr)

	_, err = m.CurrentOrFail()
	require.ErrorIs(t, err, ErrNoSession)

	b.createErr = nil
	_, err = m.EnsureSession(context.Background())
	require.NoError(t, err)
}

func TestSendRejectsEmptyBeforeCreatingSession(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, DefaultConfig())

	for _, text := range []string{"", "   ", "\n\t "} {
		_, err := m.Send(context.Background(), text, nil)
		require.ErrorIs(t, err, ErrEmptyMessage)
	}
	require.Empty(t, b.configs)
}

func TestSendNonEmptyTextNeverEmptyMessage(t *testing.T) {
	m := NewManager(&fakeBackend{}, DefaultConfig())
	for _, text := range []string{"x", " 1 ", "What is 2+3?", "∫ x dx"} {
		_, err := m.Send(context.Background(), text, nil)
		require.NoError(t, err)
	}
}

func TestSendTextOnlyTransmitsTrimmedString(t *testing.T) {
	b := &fakeBackend{fragments: []string{"ok"}}
	m := NewManager(b, DefaultConfig())

	s, err := m.Send(context.Background(), "  What is 2+3?  \n", nil)
	require.NoError(t, err)
	_, err = s.Collect()
	require.NoError(t, err)

	req := b.chats[0].requests[0]
	require.True(t, req.IsPlainText())
	require.Equal(t, "What is 2+3?", req.Text)
	require.Nil(t, req.Parts)
}

func TestSendTextAndAttachmentOrdersParts(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, DefaultConfig())

	att, err := ParseDataURL("data:image/png;base64,iVBORw0KGgo=", "")
	require.NoError(t, err)

	s, err := m.Send(context.Background(), "solve this", att)
	require.NoError(t, err)
	_, err = s.Collect()
	require.NoError(t, err)

	req := b.chats[0].requests[0]
	require.False(t, req.IsPlainText())
	require.Len(t, req.Parts, 2)
	require.Equal(t, "solve this", req.Parts[0].Text)
	require.True(t, req.Parts[0].IsText())
	require.Equal(t, "image/png", req.Parts[1].Attachment.MediaType)
	require.Equal(t, []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, req.Parts[1].Attachment.Data)
}

func TestSendAttachmentOnly(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, DefaultConfig())

	jpeg := []byte{0xff, 0xd8, 0xff, 0xe0}
	s, err := m.Send(context.Background(), "", &Attachment{Data: jpeg, MediaType: "image/jpeg"})
	require.NoError(t, err)
	_, err = s.Collect()
	require.NoError(t, err)

	req := b.chats[0].requests[0]
	require.Len(t, req.Parts, 1)
	require.False(t, req.Parts[0].IsText())
	require.Equal(t, jpeg, req.Parts[0].Attachment.Data)
}

func TestSendRejectsUnsupportedAttachment(t *testing.T) {
	b := &fakeBackend{}
	m := NewManager(b, DefaultConfig())

	_, err := m.Send(context.Background(), "hi", &Attachment{Data: []byte("GIF89a"), MediaType: "image/gif"})
	require.ErrorIs(t, err, ErrUnsupportedAttachment)
	require.Empty(t, b.configs)
}

func TestSendPropagatesSessionInitFailure(t *testing.T) {
	b := &fakeBackend{createErr: errors.New("bad api key")}
	m := NewManager(b, DefaultConfig())

	_, err := m.Send(context.Background(), "hi", nil)
	var initErr *SessionInitError
	require.ErrorAs(t, err, &initErr)
	require.EqualError(t, initErr.Err, "bad api key")
}

func TestStreamAccumulatesInOrder(t *testing.T) {
	frags := []string{"Let's ", "", "look at ", "2", " + ", "3", "."}
	m := NewManager(&fakeBackend{fragments: frags}, DefaultConfig())

	for n := 0; n <= len(frags); n++ {
		s, err := m.Send(context.Background(), "What is 2+3?", nil)
		require.NoError(t, err)

		acc := ""
		i := 0
		for frag, err := range s.Fragments() {
			require.NoError(t, err)
			if i == n {
				break
			}
			acc += frag
			i++
		}
		want := ""
		for _, f := range frags[:n] {
			want += f
		}
		require.Equal(t, want, acc)
	}
}

func TestStreamWrapsRemoteErrors(t *testing.T) {
	b := &fakeBackend{fragments: []string{"a", "b", "c"}}
	m := NewManager(b, DefaultConfig())
	_, err := m.EnsureSession(context.Background())
	require.NoError(t, err)
	b.chats[0].failAfter = 2
	b.chats[0].failErr = errors.New("connection reset")

	s, err := m.Send(context.Background(), "hi", nil)
	require.NoError(t, err)

	text, err := s.Collect()
	require.Equal(t, "ab", text)
	require.ErrorIs(t, err, ErrStreamFailure)
	var streamErr *StreamError
	require.ErrorAs(t, err, &streamErr)
	require.Equal(t, s.Generation(), streamErr.Generation)
}

func TestStreamIsSingleConsumer(t *testing.T) {
	m := NewManager(&fakeBackend{fragments: []string{"a"}}, DefaultConfig())
	s, err := m.Send(context.Background(), "hi", nil)
	require.NoError(t, err)

	_, err = s.Collect()
	require.NoError(t, err)
	_, err = s.Collect()
	require.ErrorIs(t, err, ErrStreamConsumed)
}

func TestStreamCarriesSessionGeneration(t *testing.T) {
	m := NewManager(&fakeBackend{}, DefaultConfig())
	require.NoError(t, m.Reset(context.Background()))
	require.NoError(t, m.Reset(context.Background()))

	s, err := m.Send(context.Background(), "hi", nil)
	require.NoError(t, err)
	require.Equal(t, m.Generation(), s.Generation())
	require.Equal(t, uint64(2), s.Generation())
}
