// Package audio defines the capture-side audio primitives of the voice
// pipeline: the frame type flowing out of a microphone source, the Source
// abstraction over capture devices, and the utterance Recorder that turns
// VAD-bounded spans of frames into audio segments.
package audio

import (
	"context"
	"time"
)

// Frame is a single frame of captured audio flowing through the pipeline.
// Frames are the atomic unit of transport: produced by a [Source], classified
// by the voice activity detector, buffered by the [Recorder], and forwarded to
// the audio transport.
type Frame struct {
	// Data is raw little-endian PCM16 audio.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for speech capture, 48000 for opus).
	SampleRate int

	// Channels is the channel count; 1 for microphone capture.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Source abstracts a live capture device (a microphone). Implementations own
// the device handle and the goroutine that pumps frames.
//
// A Source is single-use: Start may be called at most once; after Close the
// source cannot be restarted. Sessions construct a fresh Source per start.
type Source interface {
	// Start acquires the capture device and returns the channel on which
	// frames arrive. The channel is closed when the source stops, whether by
	// Close, context cancellation, or device failure.
	//
	// Returns an error if the device cannot be acquired; the session treats
	// this as a setup failure.
	Start(ctx context.Context) (<-chan Frame, error)

	// Close releases the capture device and stops the frame pump. Calling
	// Close more than once is safe and returns nil.
	Close() error
}
