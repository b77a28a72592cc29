// Package mock provides a scriptable audio source for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voxtutor/voxtutor/pkg/audio"
)

// Source is a test double for [audio.Source]. Tests push frames through Emit
// and end the stream with Close.
type Source struct {
	// StartErr, when set, is returned by Start.
	StartErr error

	mu      sync.Mutex
	started bool
	closed  bool
	out     chan audio.Frame
}

var _ audio.Source = (*Source)(nil)

// NewSource returns an idle mock source.
func NewSource() *Source {
	return &Source{out: make(chan audio.Frame, 64)}
}

func (s *Source) Start(_ context.Context) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	s.started = true
	return s.out, nil
}

// Emit pushes one frame to the consumer. Panics if called after Close, which
// in a test is the bug you want to hear about.
func (s *Source) Emit(f audio.Frame) {
	s.out <- f
}

// Started reports whether Start has been called.
func (s *Source) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.out)
	return nil
}
