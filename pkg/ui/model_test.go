package ui

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/socratic/pkg/events"
	"github.com/go-go-golems/socratic/pkg/timeline"
	"github.com/go-go-golems/socratic/pkg/tutor"
)

type fakeBackend struct {
	mu        sync.Mutex
	submitted []string
	atts      []*tutor.Attachment
	resets    int
	lastReply string
}

func (b *fakeBackend) Submit(_ context.Context, text string, att *tutor.Attachment) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submitted = append(b.submitted, text)
	b.atts = append(b.atts, att)
	return nil
}

func (b *fakeBackend) Reset(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
	return nil
}

func (b *fakeBackend) LastReply() (string, bool) { return b.lastReply, b.lastReply != "" }

func newTestModel(b Backend) Model {
	m := NewModel(context.Background(), b)
	mm, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return mm.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	mm, cmd := m.Update(msg)
	out, ok := mm.(Model)
	require.True(t, ok)
	return out, cmd
}

func greeting() (*timeline.List, events.Event) {
	l := timeline.NewList("c1")
	return l, events.NewSnapshot(l.Reset("Hello! I'm your tutor."), false)
}

func TestSnapshotAndUpsertsRender(t *testing.T) {
	m := newTestModel(&fakeBackend{})
	l, snap := greeting()
	m, _ = update(t, m, EventMsg{Event: snap})
	require.Contains(t, m.renderMessages(), "Hello! I'm your tutor.")

	user, ph := l.AppendExchange("What is 2+3?", nil)
	m, _ = update(t, m, EventMsg{Event: events.NewUpsert(user, true)})
	m, _ = update(t, m, EventMsg{Event: events.NewUpsert(ph, true)})
	require.True(t, m.loading)
	require.Contains(t, m.renderMessages(), "Thinking deeply...")
	require.Contains(t, m.View(), "Thinking deeply...")

	u, err := l.ApplyFragment(ph.Message.ID, "What is 2 plus 1?")
	require.NoError(t, err)
	m, _ = update(t, m, EventMsg{Event: events.NewUpsert(u, true)})
	u, err = l.Complete(ph.Message.ID)
	require.NoError(t, err)
	m, _ = update(t, m, EventMsg{Event: events.NewUpsert(u, false)})

	require.False(t, m.loading)
	out := m.renderMessages()
	require.Contains(t, out, "What is 2+3?")
	require.Contains(t, out, "What is 2 plus 1?")
	require.NotContains(t, out, "Thinking deeply...")
}

func TestStaleUpsertIsIgnored(t *testing.T) {
	m := newTestModel(&fakeBackend{})
	l, snap := greeting()
	m, _ = update(t, m, EventMsg{Event: snap})

	_, ph := l.AppendExchange("old question", nil)
	reset := events.NewSnapshot(l.Reset("Session cleared."), false)
	m, _ = update(t, m, EventMsg{Event: reset})
	m, _ = update(t, m, EventMsg{Event: events.NewUpsert(ph, true)})

	require.False(t, m.loading)
	require.Len(t, m.view.Messages, 1)
	require.Equal(t, "Session cleared.", m.view.Messages[0].Text)
}

func TestEnterSubmitsTrimmedText(t *testing.T) {
	b := &fakeBackend{}
	m := newTestModel(b)
	m.input.SetValue("  What is 2+3?  ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.True(t, m.loading)
	require.Equal(t, "", m.input.Value())

	msg := cmd()
	require.Equal(t, submitDoneMsg{}, msg)
	require.Equal(t, []string{"What is 2+3?"}, b.submitted)

	// input is locked while a reply streams
	m.input.SetValue("again")
	_, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
}

func TestEnterWithEmptyInputDoesNothing(t *testing.T) {
	b := &fakeBackend{}
	m := newTestModel(b)
	m.input.SetValue("   ")
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.False(t, m.loading)
	require.Empty(t, b.submitted)
}

func TestAttachAndSendImageOnly(t *testing.T) {
	dir := t.TempDir()
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	path := filepath.Join(dir, "triangle.png")
	require.NoError(t, os.WriteFile(path, png, 0o600))

	b := &fakeBackend{}
	m := newTestModel(b)
	m.input.SetValue("/attach " + path)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	require.NotNil(t, m.attachment)
	require.Equal(t, "image/png", m.attachment.MediaType)
	require.Contains(t, m.View(), "triangle.png")

	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	require.Nil(t, m.attachment)
	cmd()
	require.Equal(t, []string{""}, b.submitted)
	require.NotNil(t, b.atts[0])
}

func TestAttachRejectsNonImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("just text"), 0o600))

	m := newTestModel(&fakeBackend{})
	m.input.SetValue("/attach " + path)
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, cmd())
	require.Nil(t, m.attachment)
	require.Contains(t, m.warning, "notes.txt")
}

func TestResetAsksForConfirmation(t *testing.T) {
	b := &fakeBackend{}
	m := newTestModel(b)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, m.confirm)
	require.Contains(t, m.View(), "Start a new session?")

	m.confirm.State = huh.StateCompleted
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, m.confirm)
	require.NotNil(t, cmd)
	require.Equal(t, resetDoneMsg{}, cmd())
	require.Equal(t, 1, b.resets)
}

func TestResetDeclined(t *testing.T) {
	b := &fakeBackend{}
	m := newTestModel(b)
	m.input.SetValue("/reset")
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, m.confirm)

	*m.confirmed = false
	m.confirm.State = huh.StateCompleted
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, m.confirm)
	require.Nil(t, cmd)
	require.Equal(t, 0, b.resets)
}

func TestCopyLastReply(t *testing.T) {
	var copied string
	b := &fakeBackend{lastReply: "Try subtracting 3 from both sides."}
	m := NewModel(context.Background(), b, WithClipboard(func(s string) error {
		copied = s
		return nil
	}))

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	require.NotNil(t, cmd)
	m, _ = update(t, m, cmd())
	require.Equal(t, b.lastReply, copied)
	require.Contains(t, m.status, "Copied")

	b.lastReply = ""
	m, cmd = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlY})
	require.Nil(t, cmd)
	require.NotEmpty(t, m.warning)
}

type captureSender struct {
	mu   sync.Mutex
	msgs []tea.Msg
}

func (c *captureSender) Send(msg tea.Msg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestForwardDeliversEvents(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{}, events.NewWatermillLogger(zerolog.Nop()))
	defer func() { _ = ps.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := ps.Subscribe(ctx, events.TopicForConv("c1"))
	require.NoError(t, err)

	sender := &captureSender{}
	go Forward(ctx, ch, sender)

	_, snap := greeting()
	require.NoError(t, events.NewWatermillSink(ps).Publish(ctx, snap))
	require.Eventually(t, func() bool { return sender.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	sender.mu.Lock()
	ev, ok := sender.msgs[0].(EventMsg)
	sender.mu.Unlock()
	require.True(t, ok)
	require.Equal(t, events.TypeSnapshot, ev.Event.Type)
}
