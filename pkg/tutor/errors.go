package tutor

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyMessage is returned when neither text nor an attachment was supplied.
	ErrEmptyMessage = errors.New("message must contain text or an image")
	// ErrUnsupportedAttachment is returned for attachments outside SupportedMediaTypes.
	ErrUnsupportedAttachment = errors.New("unsupported attachment media type")
	// ErrNoSession is returned by CurrentOrFail when no session is alive.
	ErrNoSession = errors.New("no conversation session")
	// ErrStreamFailure matches every *StreamError.
	ErrStreamFailure = errors.New("stream failure")
	// ErrStreamConsumed is yielded when a Stream is drained a second time.
	ErrStreamConsumed = errors.New("stream already consumed")
)

// SessionInitError wraps a failure of the remote endpoint to create a session.
type SessionInitError struct {
	Err error
}

func (e *SessionInitError) Error() string {
	return fmt.Sprintf("failed to initialize chat session: %v", e.Err)
}

func (e *SessionInitError) Unwrap() error { return e.Err }

// StreamError wraps a transport or protocol error raised while draining fragments.
type StreamError struct {
	Generation uint64
	Err        error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream failure (generation %d): %v", e.Generation, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

func (e *StreamError) Is(target error) bool { return target == ErrStreamFailure }
