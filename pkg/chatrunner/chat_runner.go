package chatrunner

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/socratic/pkg/events"
	"github.com/go-go-golems/socratic/pkg/timeline"
	"github.com/go-go-golems/socratic/pkg/tutor"
)

const (
	Greeting      = "Hello! I'm your Socratic Math Tutor. \n\nI'm here to help you understand math, not just solve it. Upload a photo of a problem or type it out, and we can walk through it together step-by-step."
	ResetGreeting = "Session cleared. What problem shall we tackle next?"
	ApologyText   = "I'm sorry, I encountered an error while analyzing that. Please try again."
)

// ErrBusy is returned when a message is submitted while a reply is still streaming.
var ErrBusy = errors.New("a reply is still streaming")

type Option func(*Runner)

// WithSink sets where timeline events are published. Defaults to events.NopSink.
func WithSink(s events.Sink) Option {
	return func(r *Runner) { r.sink = s }
}

// WithList uses an existing timeline list instead of a fresh one.
func WithList(l *timeline.List) Option {
	return func(r *Runner) { r.list = l }
}

// run is one in-flight exchange.
type run struct {
	cancel      context.CancelFunc
	placeholder timeline.MessageID
}

// Runner drives one conversation: it owns the message list, pairs every
// submitted message with a streaming assistant reply and publishes each
// change as an event, in order.
type Runner struct {
	convID   string
	sessions *tutor.Manager
	list     *timeline.List
	sink     events.Sink

	// mu serializes list mutations with their publication. Lock order is
	// Runner.mu before tutor.Manager's lock.
	mu      sync.Mutex
	active  *run
	loading bool
}

func NewRunner(convID string, sessions *tutor.Manager, opts ...Option) *Runner {
	r := &Runner{
		convID:   convID,
		sessions: sessions,
		sink:     events.NopSink{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.list == nil {
		r.list = timeline.NewList(convID)
	}
	return r
}

func (r *Runner) ConvID() string { return r.convID }

// Start opens the first session and shows the greeting. A failed session
// creation is only logged; the next submitted message retries it.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.sessions.Reset(ctx); err != nil {
		log.Warn().Err(err).Str("component", "chatrunner").Str("conv_id", r.convID).Msg("initial session creation failed")
	}
	r.publishLocked(ctx, events.NewSnapshot(r.list.Reset(Greeting), false))
}

// Submit sends text and an optional attachment and blocks until the reply
// has finished streaming. Invalid input and ErrBusy are returned without
// touching the list. Remote failures are not returned: they turn the reply
// into the apology message.
func (r *Runner) Submit(ctx context.Context, text string, att *tutor.Attachment) error {
	rn, runCtx, err := r.begin(ctx, text, att)
	if err != nil {
		return err
	}
	r.drain(runCtx, rn, text, att)
	return nil
}

// SubmitAsync is Submit without waiting for the reply. ctx bounds the
// stream, not the call.
func (r *Runner) SubmitAsync(ctx context.Context, text string, att *tutor.Attachment) error {
	rn, runCtx, err := r.begin(ctx, text, att)
	if err != nil {
		return err
	}
	go r.drain(runCtx, rn, text, att)
	return nil
}

func (r *Runner) begin(ctx context.Context, text string, att *tutor.Attachment) (*run, context.Context, error) {
	if err := tutor.Validate(text, att); err != nil {
		return nil, nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, nil, ErrBusy
	}

	user, placeholder := r.list.AppendExchange(text, att)
	runCtx, cancel := context.WithCancel(ctx)
	rn := &run{cancel: cancel, placeholder: placeholder.Message.ID}
	r.active = rn
	r.loading = true

	log.Debug().Str("component", "chatrunner").Str("conv_id", r.convID).
		Int("text_len", len(strings.TrimSpace(text))).Bool("attachment", att != nil).
		Msg("submitting message")
	r.publishLocked(ctx, events.NewUpsert(user, true))
	r.publishLocked(ctx, events.NewUpsert(placeholder, true))
	return rn, runCtx, nil
}

func (r *Runner) drain(ctx context.Context, rn *run, text string, att *tutor.Attachment) {
	defer rn.cancel()

	stream, err := r.sessions.Send(ctx, text, att)
	if err != nil {
		r.finish(ctx, rn, err)
		return
	}
	for frag, err := range stream.Fragments() {
		if err != nil {
			r.finish(ctx, rn, err)
			return
		}
		if !r.applyFragment(ctx, rn, stream.Generation(), frag) {
			return
		}
	}
	r.finish(ctx, rn, nil)
}

// applyFragment appends frag to the placeholder of rn. It reports false once
// rn has been superseded by a reset, in which case frag is dropped.
func (r *Runner) applyFragment(ctx context.Context, rn *run, generation uint64, frag string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != rn || r.sessions.Generation() != generation {
		log.Debug().Str("component", "chatrunner").Str("conv_id", r.convID).Msg("dropping fragment of superseded stream")
		return false
	}
	u, err := r.list.ApplyFragment(rn.placeholder, frag)
	if err != nil {
		log.Warn().Err(err).Str("component", "chatrunner").Str("conv_id", r.convID).Msg("could not apply fragment")
		return false
	}
	r.publishLocked(ctx, events.NewUpsert(u, true))
	return true
}

// finish settles the placeholder of rn as complete or failed and clears the
// loading flag. Nothing happens if rn was superseded.
func (r *Runner) finish(ctx context.Context, rn *run, streamErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != rn {
		return
	}
	r.active = nil
	r.loading = false

	var (
		u   timeline.Upsert
		err error
	)
	if streamErr != nil {
		log.Error().Err(streamErr).Str("component", "chatrunner").Str("conv_id", r.convID).Msg("reply failed")
		u, err = r.list.Fail(rn.placeholder, ApologyText)
	} else {
		u, err = r.list.Complete(rn.placeholder)
	}
	if err != nil {
		log.Warn().Err(err).Str("component", "chatrunner").Str("conv_id", r.convID).Msg("could not settle reply")
		r.publishLocked(ctx, events.NewStatus(r.convID, r.list.Version(), false))
		return
	}
	r.publishLocked(ctx, events.NewUpsert(u, false))
}

// Reset abandons any streaming reply, opens a new session and replaces the
// list with the reset greeting. The list is reset even if the new session
// could not be created; that error is returned.
func (r *Runner) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		r.active.cancel()
		r.active = nil
	}
	r.loading = false

	err := r.sessions.Reset(ctx)
	if err != nil {
		log.Warn().Err(err).Str("component", "chatrunner").Str("conv_id", r.convID).Msg("session reset failed")
	}
	r.publishLocked(ctx, events.NewSnapshot(r.list.Reset(ResetGreeting), false))
	return err
}

// Loading reports whether a reply is streaming.
func (r *Runner) Loading() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loading
}

// Snapshot returns the list together with the loading flag, consistently.
func (r *Runner) Snapshot() (timeline.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.list.Snapshot(), r.loading
}

func (r *Runner) Generation() uint64 { return r.sessions.Generation() }

// LastReply returns the text of the latest completed assistant message.
func (r *Runner) LastReply() (string, bool) {
	m, ok := r.list.LastAssistant()
	if !ok || m.State != timeline.StateComplete {
		return "", false
	}
	return m.Text, true
}

func (r *Runner) publishLocked(ctx context.Context, e events.Event) {
	if err := r.sink.Publish(context.WithoutCancel(ctx), e); err != nil {
		log.Warn().Err(err).Str("component", "chatrunner").Str("conv_id", r.convID).Str("type", string(e.Type)).Msg("publish failed")
	}
}
