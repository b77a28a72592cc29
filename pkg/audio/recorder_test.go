package audio

import (
	"bytes"
	"testing"
	"time"
)

// pcm16 returns n milliseconds of silent PCM16 mono audio at the given rate.
func pcm16(t *testing.T, ms, sampleRate int) []byte {
	t.Helper()
	samples := sampleRate * ms / 1000
	return make([]byte, samples*2)
}

func TestRecorderKeepsLongUtterance(t *testing.T) {
	t.Parallel()

	captured := time.Date(2026, 8, 27, 10, 0, 0, 0, time.UTC)
	r := NewRecorder(WithRecorderClock(func() time.Time { return captured }))

	r.Begin(16000, 1)
	if !r.Recording() {
		t.Fatal("Recording() = false after Begin")
	}
	for range 30 {
		r.Append(pcm16(t, 20, 16000))
	}

	seg, ok := r.End()
	if !ok {
		t.Fatal("End() discarded a 600ms utterance")
	}
	if seg.Duration != 600*time.Millisecond {
		t.Fatalf("Duration = %v, want 600ms", seg.Duration)
	}
	if seg.SampleRate != 16000 || seg.Channels != 1 {
		t.Fatalf("format = %dHz/%dch", seg.SampleRate, seg.Channels)
	}
	if !seg.CapturedAt.Equal(captured) {
		t.Fatalf("CapturedAt = %v, want %v", seg.CapturedAt, captured)
	}
	if len(seg.Data) != 16000*2*600/1000 {
		t.Fatalf("len(Data) = %d", len(seg.Data))
	}
}

func TestRecorderDiscardsShortUtterance(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Begin(16000, 1)
	// 499ms is just under the minimum.
	r.Append(pcm16(t, 499, 16000))

	if _, ok := r.End(); ok {
		t.Fatal("End() kept a sub-minimum utterance")
	}
	if r.Recording() {
		t.Fatal("Recording() = true after End")
	}
}

func TestRecorderBoundaryIsKept(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Begin(16000, 1)
	r.Append(pcm16(t, 500, 16000))

	if _, ok := r.End(); !ok {
		t.Fatal("End() discarded an exactly-minimum utterance")
	}
}

func TestRecorderZeroChunks(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Begin(16000, 1)
	if _, ok := r.End(); ok {
		t.Fatal("End() with no frames must discard")
	}
}

func TestRecorderEndWhileIdle(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	if _, ok := r.End(); ok {
		t.Fatal("End() without Begin must discard")
	}
	// Frames without an active utterance are dropped.
	r.Append(pcm16(t, 100, 16000))
	r.Begin(16000, 1)
	r.Append(pcm16(t, 600, 16000))
	seg, ok := r.End()
	if !ok {
		t.Fatal("End() discarded valid utterance")
	}
	if seg.Duration != 600*time.Millisecond {
		t.Fatalf("Duration = %v, stray pre-Begin frame leaked in", seg.Duration)
	}
}

func TestRecorderBeginWhileRecordingIsNoOp(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Begin(16000, 1)
	r.Append(pcm16(t, 500, 16000))

	// A second Begin mid-utterance must not drop the buffer or change the
	// format; the utterance keeps accumulating until End.
	r.Begin(48000, 2)
	r.Append(pcm16(t, 500, 16000))

	seg, ok := r.End()
	if !ok {
		t.Fatal("End() discarded valid utterance")
	}
	if seg.Duration != time.Second {
		t.Fatalf("Duration = %v, want 1s", seg.Duration)
	}
	if seg.SampleRate != 16000 || seg.Channels != 1 {
		t.Fatalf("format = %dHz/%dch, want 16000Hz/1ch", seg.SampleRate, seg.Channels)
	}
}

func TestRecorderSegmentIsDetached(t *testing.T) {
	t.Parallel()

	r := NewRecorder()
	r.Begin(16000, 1)
	chunk := bytes.Repeat([]byte{0x7f, 0x01}, 16000) // 1s of audio
	r.Append(chunk)
	seg, ok := r.End()
	if !ok {
		t.Fatal("End() discarded valid utterance")
	}

	// Mutating the recorder afterwards must not reach into the segment.
	r.Begin(16000, 1)
	r.Append(pcm16(t, 600, 16000))
	r.End()

	if !bytes.Equal(seg.Data[:4], []byte{0x7f, 0x01, 0x7f, 0x01}) {
		t.Fatal("segment data was mutated by a later recording")
	}
}

func TestRecorderCustomMinimum(t *testing.T) {
	t.Parallel()

	r := NewRecorder(WithMinUtterance(100 * time.Millisecond))
	r.Begin(16000, 1)
	r.Append(pcm16(t, 120, 16000))
	if _, ok := r.End(); !ok {
		t.Fatal("End() discarded utterance above custom minimum")
	}
}
