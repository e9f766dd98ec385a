package stream

import (
	"context"
)

// Stream is a pull-based sequence of text fragments. Closing it cancels the
// producer's context, so upstream work (LLM generation, snippet scanning)
// stops promptly instead of computing output nobody will read.
type Stream struct {
	ch     chan string
	cancel context.CancelFunc
}

// Producer emits fragments through emit until it runs out or emit reports
// that the consumer has gone away.
type Producer func(ctx context.Context, emit func(string) bool)

// New runs producer in its own goroutine and returns the consuming end.
// The producer's context is cancelled when parent is cancelled or the
// stream is closed.
func New(parent context.Context, producer Producer) *Stream {
	ctx, cancel := context.WithCancel(parent)
	s := &Stream{
		ch:     make(chan string),
		cancel: cancel,
	}

	go func() {
		defer close(s.ch)
		defer cancel()
		producer(ctx, func(fragment string) bool {
			select {
			case s.ch <- fragment:
				return true
			case <-ctx.Done():
				return false
			}
		})
	}()

	return s
}

// FromSlice streams a fixed sequence of fragments.
func FromSlice(parent context.Context, fragments []string) *Stream {
	return New(parent, func(ctx context.Context, emit func(string) bool) {
		for _, f := range fragments {
			if !emit(f) {
				return
			}
		}
	})
}

// Next blocks for the next fragment. ok is false once the stream is
// exhausted or closed.
func (s *Stream) Next() (string, bool) {
	fragment, ok := <-s.ch
	return fragment, ok
}

// Close stops the producer. It is safe to call more than once and safe to
// call concurrently with Next.
func (s *Stream) Close() {
	s.cancel()
}
