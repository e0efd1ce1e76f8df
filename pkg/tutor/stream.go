package tutor

import (
	"iter"
	"strings"
	"sync/atomic"
)

// Stream is the lazy, single-consumer fragment sequence of one turn.
type Stream struct {
	generation uint64
	seq        iter.Seq2[string, error]
	consumed   atomic.Bool
}

// Generation is the generation of the session the stream was opened on.
func (s *Stream) Generation() uint64 { return s.generation }

// Fragments yields text fragments in delivery order. A remote error is
// yielded once as a *StreamError and ends the sequence. The sequence can be
// ranged over only once.
func (s *Stream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield("", ErrStreamConsumed)
			return
		}
		for frag, err := range s.seq {
			if err != nil {
				yield("", &StreamError{Generation: s.generation, Err: err})
				return
			}
			if !yield(frag, nil) {
				return
			}
		}
	}
}

// Collect drains the stream and returns the concatenated text. On error the
// text accumulated so far is returned along with it.
func (s *Stream) Collect() (string, error) {
	var sb strings.Builder
	for frag, err := range s.Fragments() {
		if err != nil {
			return sb.String(), err
		}
		sb.WriteString(frag)
	}
	return sb.String(), nil
}
