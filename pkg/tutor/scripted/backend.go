// Package scripted is an offline tutor.Backend that replays canned replies
// fragment by fragment. It is used for local development without an API key.
package scripted

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/socratic/pkg/tutor"
)

// ReplyFunc produces the full reply for the nth turn of a chat.
type ReplyFunc func(turn int, req tutor.Request) string

type Option func(*Backend)

// WithReply overrides the default Socratic canned reply.
func WithReply(f ReplyFunc) Option {
	return func(b *Backend) { b.reply = f }
}

// WithDelay pauses between fragments to mimic network pacing.
func WithDelay(d time.Duration) Option {
	return func(b *Backend) { b.delay = d }
}

// Backend hands out scripted chats.
type Backend struct {
	reply ReplyFunc
	delay time.Duration

	mu    sync.Mutex
	chats int
}

var _ tutor.Backend = &Backend{}

func New(opts ...Option) *Backend {
	b := &Backend{reply: DefaultReply}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Chats returns how many chats were opened so far.
func (b *Backend) Chats() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chats
}

func (b *Backend) NewChat(_ context.Context, _ tutor.Config) (tutor.Chat, error) {
	b.mu.Lock()
	b.chats++
	b.mu.Unlock()
	return &chat{backend: b}, nil
}

type chat struct {
	backend *Backend
	mu      sync.Mutex
	turns   int
}

func (c *chat) SendStream(ctx context.Context, req tutor.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		c.mu.Lock()
		c.turns++
		turn := c.turns
		c.mu.Unlock()

		for _, frag := range Split(c.backend.reply(turn, req)) {
			if c.backend.delay > 0 {
				select {
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				case <-time.After(c.backend.delay):
				}
			} else if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
	}
}

// Split cuts text into word-sized fragments, keeping the separators so the
// concatenation of the fragments is text again.
func Split(text string) []string {
	var out []string
	for len(text) > 0 {
		i := strings.IndexAny(text[1:], " \n")
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}

// DefaultReply answers like a patient tutor without solving anything.
func DefaultReply(turn int, req tutor.Request) string {
	subject := req.Text
	hasImage := false
	for _, p := range req.Parts {
		if p.IsText() {
			subject = p.Text
		} else {
			hasImage = true
		}
	}

	var sb strings.Builder
	switch {
	case hasImage && subject == "":
		sb.WriteString("I can see the problem in your image. ")
	case hasImage:
		fmt.Fprintf(&sb, "I see your image and your note: **%s**. ", subject)
	default:
		fmt.Fprintf(&sb, "Let's look at **%s** together. ", subject)
	}
	if turn == 1 {
		sb.WriteString("Before we compute anything, what do you think the first step should be?")
	} else {
		sb.WriteString("Good thinking. What happens if you apply that idea to the next step?")
	}
	return sb.String()
}
