package audio

import (
	"bytes"
	"sync"
	"time"

	"github.com/voxtutor/voxtutor/pkg/types"
)

// DefaultMinUtterance is the minimum utterance length kept by the recorder.
// Anything shorter is treated as a spurious trigger (a cough, a door slam)
// and discarded.
const DefaultMinUtterance = 500 * time.Millisecond

// RecorderOption configures a [Recorder].
type RecorderOption func(*Recorder)

// WithMinUtterance overrides the minimum utterance duration below which
// recordings are discarded.
func WithMinUtterance(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		r.minUtterance = d
	}
}

// WithRecorderClock overrides the clock used to stamp segment capture times.
// Tests inject a fixed clock here.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// Recorder buffers raw audio between the start and end of a voiced utterance.
// The voice activity detector drives it: Begin on speech start, Append for
// every captured frame while speech is active, End on speech end.
//
// The utterance duration is derived from the buffered sample count, not wall
// time, so pacing jitter in the capture path cannot flip the keep/discard
// decision. Safe for concurrent use.
type Recorder struct {
	minUtterance time.Duration
	now          func() time.Time

	mu         sync.Mutex
	active     bool
	startedAt  time.Time
	sampleRate int
	channels   int
	buf        bytes.Buffer
}

// NewRecorder returns a recorder with the default 500ms minimum utterance.
func NewRecorder(opts ...RecorderOption) *Recorder {
	r := &Recorder{
		minUtterance: DefaultMinUtterance,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Begin starts a new utterance. Calling Begin while an utterance is already
// being buffered is a no-op: the recording in progress keeps accumulating
// until End.
func (r *Recorder) Begin(sampleRate, channels int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return
	}
	r.active = true
	r.startedAt = r.now()
	r.sampleRate = sampleRate
	r.channels = channels
	r.buf.Reset()
}

// Append adds one frame of PCM16 audio to the current utterance. Frames that
// arrive while no utterance is active are dropped silently; the detector and
// the capture loop are not perfectly synchronised and a trailing frame after
// End is normal.
func (r *Recorder) Append(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	r.buf.Write(data)
}

// Recording reports whether an utterance is currently being buffered.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// End finalises the current utterance and returns it as a segment. The second
// return value is false when the utterance was discarded: no recording was
// active, no frames were buffered, or the buffered audio is shorter than the
// minimum utterance duration.
func (r *Recorder) End() (types.AudioSegment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return types.AudioSegment{}, false
	}
	r.active = false

	if r.buf.Len() == 0 {
		return types.AudioSegment{}, false
	}

	dur := pcmDuration(r.buf.Len(), r.sampleRate, r.channels)
	if dur < r.minUtterance {
		r.buf.Reset()
		return types.AudioSegment{}, false
	}

	data := make([]byte, r.buf.Len())
	copy(data, r.buf.Bytes())
	r.buf.Reset()

	return types.AudioSegment{
		Data:       data,
		SampleRate: r.sampleRate,
		Channels:   r.channels,
		CapturedAt: r.startedAt,
		Duration:   dur,
	}, true
}

// pcmDuration converts a PCM16 byte count into elapsed audio time.
func pcmDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	samples := n / (2 * channels)
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
