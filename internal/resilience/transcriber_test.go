package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/voxtutor/voxtutor/pkg/stt"
	sttmock "github.com/voxtutor/voxtutor/pkg/stt/mock"
	"github.com/voxtutor/voxtutor/pkg/types"
)

func seg() types.AudioSegment {
	return types.AudioSegment{Data: []byte{1, 2}, SampleRate: 16000, Channels: 1}
}

func TestTranscribersUsesPrimary(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Transcriber{Result: stt.Result{Text: "bonjour"}}
	backup := &sttmock.Transcriber{Result: stt.Result{Text: "wrong"}}
	group := NewTranscribers("primary", primary, BreakerConfig{})
	group.Add("backup", backup)

	res, err := group.Transcribe(context.Background(), seg())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "bonjour" {
		t.Fatalf("Text = %q", res.Text)
	}
	if len(backup.Calls()) != 0 {
		t.Fatal("backup was called although primary succeeded")
	}
}

func TestTranscribersFailsOver(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Transcriber{Err: errors.New("503")}
	backup := &sttmock.Transcriber{Result: stt.Result{Text: "salut"}}
	group := NewTranscribers("primary", primary, BreakerConfig{})
	group.Add("backup", backup)

	res, err := group.Transcribe(context.Background(), seg())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "salut" {
		t.Fatalf("Text = %q", res.Text)
	}
}

func TestTranscribersSkipsOpenBreaker(t *testing.T) {
	t.Parallel()

	primary := &sttmock.Transcriber{Err: errors.New("503")}
	backup := &sttmock.Transcriber{Result: stt.Result{Text: "ok"}}
	group := NewTranscribers("primary", primary, BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	group.Add("backup", backup)

	// First call trips the primary's breaker.
	if _, err := group.Transcribe(context.Background(), seg()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if _, err := group.Transcribe(context.Background(), seg()); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	// The primary was only probed once; the open breaker short-circuits it.
	if got := len(primary.Calls()); got != 1 {
		t.Fatalf("primary calls = %d, want 1", got)
	}
	if got := len(backup.Calls()); got != 2 {
		t.Fatalf("backup calls = %d, want 2", got)
	}
}

func TestTranscribersAllFail(t *testing.T) {
	t.Parallel()

	group := NewTranscribers("only", &sttmock.Transcriber{Err: errors.New("down")}, BreakerConfig{})
	_, err := group.Transcribe(context.Background(), seg())
	if !errors.Is(err, ErrAllBackendsFailed) {
		t.Fatalf("err = %v, want ErrAllBackendsFailed", err)
	}
}

func TestTranscribersHonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := &sttmock.Transcriber{Result: stt.Result{Text: "late"}}
	group := NewTranscribers("only", backend, BreakerConfig{})
	if _, err := group.Transcribe(ctx, seg()); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if len(backend.Calls()) != 0 {
		t.Fatal("backend called despite cancelled context")
	}
}
