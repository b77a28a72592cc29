package audio

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// ReaderSource adapts an [io.Reader] of raw PCM16 audio into a [Source].
// It exists for headless runs and tests: a WAV-stripped file or a pipe stands
// in for a microphone, paced at real time so downstream timing behaviour
// (silence detection, utterance bounds) matches live capture.
type ReaderSource struct {
	r          io.Reader
	sampleRate int
	channels   int
	frameDur   time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

var _ Source = (*ReaderSource)(nil)

// NewReaderSource wraps r as an audio source emitting 20ms frames of PCM16
// at the given rate and channel count.
func NewReaderSource(r io.Reader, sampleRate, channels int) *ReaderSource {
	return &ReaderSource{
		r:          r,
		sampleRate: sampleRate,
		channels:   channels,
		frameDur:   20 * time.Millisecond,
		done:       make(chan struct{}),
	}
}

// Start begins pumping frames from the underlying reader. The returned channel
// closes when the reader is exhausted, the context is cancelled, or Close is
// called.
func (s *ReaderSource) Start(ctx context.Context) (<-chan Frame, error) {
	if s.sampleRate <= 0 || s.channels <= 0 {
		return nil, fmt.Errorf("audio: reader source: invalid format %dHz/%dch", s.sampleRate, s.channels)
	}

	frameBytes := s.sampleRate * s.channels * 2 * int(s.frameDur.Milliseconds()) / 1000
	out := make(chan Frame, 8)

	go func() {
		defer close(out)
		ticker := time.NewTicker(s.frameDur)
		defer ticker.Stop()

		var elapsed time.Duration
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
			}

			buf := make([]byte, frameBytes)
			n, err := io.ReadFull(s.r, buf)
			if n > 0 {
				frame := Frame{
					Data:       buf[:n],
					SampleRate: s.sampleRate,
					Channels:   s.channels,
					Timestamp:  elapsed,
				}
				select {
				case out <- frame:
				case <-ctx.Done():
					return
				case <-s.done:
					return
				}
				elapsed += s.frameDur
			}
			if err != nil {
				return
			}
		}
	}()

	return out, nil
}

// Close stops the frame pump. Safe to call multiple times.
func (s *ReaderSource) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}
