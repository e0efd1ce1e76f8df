package ui

import (
	"context"
	"os"
	"path/filepath"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/socratic/pkg/events"
	"github.com/go-go-golems/socratic/pkg/tutor"
)

// Backend is what the terminal UI drives; chatrunner.Runner implements it.
type Backend interface {
	Submit(ctx context.Context, text string, att *tutor.Attachment) error
	Reset(ctx context.Context) error
	LastReply() (string, bool)
}

// EventMsg carries a timeline event into the bubbletea program.
type EventMsg struct {
	Event events.Event
}

type submitDoneMsg struct{ err error }

type resetDoneMsg struct{ err error }

type attachedMsg struct {
	name string
	att  *tutor.Attachment
	err  error
}

type copiedMsg struct{ err error }

func submitCmd(ctx context.Context, b Backend, text string, att *tutor.Attachment) tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: b.Submit(ctx, text, att)}
	}
}

func resetCmd(ctx context.Context, b Backend) tea.Cmd {
	return func() tea.Msg {
		return resetDoneMsg{err: b.Reset(ctx)}
	}
}

// attachCmd reads an image from disk, sniffing its media type from content.
func attachCmd(path string) tea.Cmd {
	return func() tea.Msg {
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return attachedMsg{name: name, err: errors.Wrapf(err, "read %s", path)}
		}
		mt := mimetype.Detect(data)
		att, err := tutor.NewAttachment(data, mt.String())
		if err != nil {
			return attachedMsg{name: name, err: errors.Wrapf(err, "%s is %s", name, mt.String())}
		}
		return attachedMsg{name: name, att: att}
	}
}

func copyCmd(write func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: write(text)}
	}
}

// Sender is the part of *tea.Program the forwarder needs.
type Sender interface {
	Send(msg tea.Msg)
}

// StepChatForwardFunc is a function that forwards watermill messages to the UI by
// transforming them into EventMsg and injecting them into the program `p`.
func StepChatForwardFunc(p Sender) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		e, err := events.Decode(msg)
		if err != nil {
			log.Error().Err(err).Str("payload", string(msg.Payload)).Msg("Failed to parse event")
			return err
		}
		log.Trace().Str("type", string(e.Type)).Uint64("version", e.Version).Msg("Dispatching event to UI")
		p.Send(EventMsg{Event: e})
		return nil
	}
}

// Forward feeds every message from msgs to the program until msgs closes or
// ctx is done.
func Forward(ctx context.Context, msgs <-chan *message.Message, p Sender) {
	handle := StepChatForwardFunc(p)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			_ = handle(msg)
		}
	}
}
