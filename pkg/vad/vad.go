// Package vad provides voice activity detection over captured audio frames.
//
// The detector classifies each frame by RMS energy and applies asymmetric
// hysteresis: speech starts on the first frame above the energy threshold, but
// only ends after a sustained run of quiet audio. The asymmetry is deliberate.
// A missed speech onset clips the learner's first syllable, while a late
// speech end merely records a little extra silence.
package vad

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/voxtutor/voxtutor/pkg/audio"
)

// Event is the detector's verdict for one processed frame.
type Event int

const (
	// None means no state transition occurred.
	None Event = iota

	// SpeechStart fires on the first frame of a new utterance.
	SpeechStart

	// SpeechEnd fires once the trailing silence window has elapsed.
	SpeechEnd
)

func (e Event) String() string {
	switch e {
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	default:
		return "none"
	}
}

// Detector classifies audio frames into speech and silence transitions.
// Implementations are not safe for concurrent use; the capture loop owns the
// detector.
type Detector interface {
	// Process classifies one frame and reports any state transition.
	Process(frame audio.Frame) Event

	// Active reports whether the detector currently considers speech ongoing.
	Active() bool

	// Reset returns the detector to the silent state without emitting events.
	Reset()
}

const (
	// DefaultThreshold is the RMS energy level (on a 0..1 scale) above which a
	// frame counts as speech.
	DefaultThreshold = 0.02

	// DefaultHangover is how much continuous sub-threshold audio must
	// accumulate before an utterance is considered finished.
	DefaultHangover = 2 * time.Second
)

// Option configures an [Energy] detector.
type Option func(*Energy)

// WithThreshold overrides the speech energy threshold.
func WithThreshold(t float64) Option {
	return func(d *Energy) {
		d.threshold = t
	}
}

// WithHangover overrides the trailing silence duration that ends an utterance.
func WithHangover(h time.Duration) Option {
	return func(d *Energy) {
		d.hangover = h
	}
}

// Energy is an RMS energy detector with duration-based hangover. Silence is
// accounted in audio time derived from the frame sample counts, so wall-clock
// jitter in frame delivery cannot shift the end-of-speech boundary.
type Energy struct {
	threshold float64
	hangover  time.Duration

	active  bool
	silence time.Duration
}

var _ Detector = (*Energy)(nil)

// NewEnergy returns an energy detector with the default threshold and
// hangover.
func NewEnergy(opts ...Option) *Energy {
	d := &Energy{
		threshold: DefaultThreshold,
		hangover:  DefaultHangover,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Process classifies one frame. A frame at or above the threshold starts
// speech immediately (or, during speech, clears any accumulated silence).
// Sub-threshold frames during speech accumulate toward the hangover; once the
// accumulated silence reaches it, a single SpeechEnd is emitted.
func (d *Energy) Process(frame audio.Frame) Event {
	level := RMS(frame.Data)

	if level >= d.threshold {
		d.silence = 0
		if !d.active {
			d.active = true
			return SpeechStart
		}
		return None
	}

	if !d.active {
		return None
	}

	d.silence += frameDuration(frame)
	if d.silence >= d.hangover {
		d.active = false
		d.silence = 0
		return SpeechEnd
	}
	return None
}

// Active reports whether speech is currently ongoing.
func (d *Energy) Active() bool {
	return d.active
}

// Reset drops back to the silent state. No SpeechEnd is emitted; callers that
// reset mid-utterance are abandoning it, not finishing it.
func (d *Energy) Reset() {
	d.active = false
	d.silence = 0
}

// RMS computes the root-mean-square energy of little-endian PCM16 audio,
// normalised to the 0..1 range. Empty or odd-length input yields 0.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n*2; i += 2 {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

func frameDuration(f audio.Frame) time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}
