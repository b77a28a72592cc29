package vad

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/voxtutor/voxtutor/pkg/audio"
)

// frame builds a 20ms 16kHz mono frame filled with a constant-amplitude
// square wave so the RMS equals amp/32768.
func frame(t *testing.T, amp int16) audio.Frame {
	t.Helper()
	const samples = 320 // 20ms at 16kHz
	data := make([]byte, samples*2)
	for i := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amp))
	}
	return audio.Frame{Data: data, SampleRate: 16000, Channels: 1}
}

func loud(t *testing.T) audio.Frame { return frame(t, 3277) } // RMS ≈ 0.1
func quiet(t *testing.T) audio.Frame { return frame(t, 0) }

func TestSpeechStartsImmediately(t *testing.T) {
	t.Parallel()

	d := NewEnergy()
	if got := d.Process(quiet(t)); got != None {
		t.Fatalf("quiet frame while idle: %v", got)
	}
	if got := d.Process(loud(t)); got != SpeechStart {
		t.Fatalf("first loud frame: %v, want SpeechStart", got)
	}
	if !d.Active() {
		t.Fatal("Active() = false after SpeechStart")
	}
	// Further loud frames do not re-fire the start event.
	if got := d.Process(loud(t)); got != None {
		t.Fatalf("second loud frame: %v, want None", got)
	}
}

func TestSpeechEndsAfterHangover(t *testing.T) {
	t.Parallel()

	d := NewEnergy()
	d.Process(loud(t))

	// 2s of silence at 20ms per frame is exactly 100 frames. The first 99
	// accumulate below the hangover.
	for i := range 99 {
		if got := d.Process(quiet(t)); got != None {
			t.Fatalf("frame %d: %v, want None", i, got)
		}
	}
	if got := d.Process(quiet(t)); got != SpeechEnd {
		t.Fatalf("frame 100: %v, want SpeechEnd", got)
	}
	if d.Active() {
		t.Fatal("Active() = true after SpeechEnd")
	}
	// End fires exactly once.
	if got := d.Process(quiet(t)); got != None {
		t.Fatalf("post-end quiet frame: %v, want None", got)
	}
}

func TestLoudFrameResetsSilenceWindow(t *testing.T) {
	t.Parallel()

	d := NewEnergy()
	d.Process(loud(t))

	// 1.9s of silence, then one loud frame, then another 1.9s. Neither run
	// reaches the hangover on its own, so no SpeechEnd may fire.
	for range 95 {
		if got := d.Process(quiet(t)); got != None {
			t.Fatal("premature transition during first pause")
		}
	}
	if got := d.Process(loud(t)); got != None {
		t.Fatal("loud frame mid-speech must not re-start")
	}
	for range 95 {
		if got := d.Process(quiet(t)); got != None {
			t.Fatal("premature transition during second pause")
		}
	}
	if !d.Active() {
		t.Fatal("speech ended although silence never reached the hangover")
	}
}

func TestCustomHangover(t *testing.T) {
	t.Parallel()

	d := NewEnergy(WithHangover(100 * time.Millisecond))
	d.Process(loud(t))
	for range 4 {
		if got := d.Process(quiet(t)); got != None {
			t.Fatal("transition before 100ms of silence")
		}
	}
	if got := d.Process(quiet(t)); got != SpeechEnd {
		t.Fatalf("want SpeechEnd at 100ms, got %v", got)
	}
}

func TestResetAbandonsUtterance(t *testing.T) {
	t.Parallel()

	d := NewEnergy()
	d.Process(loud(t))
	d.Reset()
	if d.Active() {
		t.Fatal("Active() = true after Reset")
	}
	// The next loud frame starts a fresh utterance.
	if got := d.Process(loud(t)); got != SpeechStart {
		t.Fatalf("post-reset loud frame: %v, want SpeechStart", got)
	}
}

func TestThresholdBoundary(t *testing.T) {
	t.Parallel()

	// Amplitude chosen to sit just at the default threshold: 0.02*32768 ≈ 655.
	d := NewEnergy()
	if got := d.Process(frame(t, 656)); got != SpeechStart {
		t.Fatalf("frame at threshold: %v, want SpeechStart", got)
	}

	d = NewEnergy()
	if got := d.Process(frame(t, 654)); got != None {
		t.Fatalf("frame below threshold: %v, want None", got)
	}
}

func TestRMS(t *testing.T) {
	t.Parallel()

	if got := RMS(nil); got != 0 {
		t.Fatalf("RMS(nil) = %v", got)
	}
	if got := RMS([]byte{0x01}); got != 0 {
		t.Fatalf("RMS(odd) = %v", got)
	}

	f := frame(t, 16384)
	want := 0.5
	if got := RMS(f.Data); math.Abs(got-want) > 1e-9 {
		t.Fatalf("RMS = %v, want %v", got, want)
	}
}
