// Package mock provides a scriptable transcriber for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voxtutor/voxtutor/pkg/stt"
	"github.com/voxtutor/voxtutor/pkg/types"
)

// Transcriber returns a fixed result, optionally delayed until the test
// releases it. The Release channel lets race tests hold a transcription
// in flight while the session tears down around it.
type Transcriber struct {
	// Result and Err are returned by Transcribe.
	Result stt.Result
	Err    error

	// Release, when non-nil, blocks Transcribe until it is closed or the
	// context is cancelled.
	Release chan struct{}

	mu    sync.Mutex
	calls []types.AudioSegment
}

var _ stt.Transcriber = (*Transcriber)(nil)

func (t *Transcriber) Transcribe(ctx context.Context, seg types.AudioSegment) (stt.Result, error) {
	t.mu.Lock()
	t.calls = append(t.calls, seg)
	t.mu.Unlock()

	if t.Release != nil {
		select {
		case <-t.Release:
		case <-ctx.Done():
			return stt.Result{}, ctx.Err()
		}
	}
	return t.Result, t.Err
}

// Calls returns the segments submitted so far.
func (t *Transcriber) Calls() []types.AudioSegment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]types.AudioSegment(nil), t.calls...)
}
