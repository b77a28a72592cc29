package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voxtutor/voxtutor/pkg/stt"
	"github.com/voxtutor/voxtutor/pkg/types"
)

// ErrAllBackendsFailed is returned when every registered recogniser fails or
// has an open breaker.
var ErrAllBackendsFailed = errors.New("resilience: all transcription backends failed")

// Transcribers implements [stt.Transcriber] with failover across multiple
// recognisers. Backends are tried in registration order; each has its own
// breaker so a degraded primary is skipped without probing it on every
// utterance.
type Transcribers struct {
	entries []transcriberEntry
	cfg     BreakerConfig
}

type transcriberEntry struct {
	name    string
	backend stt.Transcriber
	breaker *Breaker
}

var _ stt.Transcriber = (*Transcribers)(nil)

// NewTranscribers creates a failover group with primary as the preferred
// backend. The breaker config applies per backend; the Name field is
// overridden with each backend's name.
func NewTranscribers(primaryName string, primary stt.Transcriber, cfg BreakerConfig) *Transcribers {
	t := &Transcribers{cfg: cfg}
	t.Add(primaryName, primary)
	return t
}

// Add registers an additional backend. Not safe to call concurrently with
// Transcribe; register all backends during setup.
func (t *Transcribers) Add(name string, backend stt.Transcriber) {
	cfg := t.cfg
	cfg.Name = name
	t.entries = append(t.entries, transcriberEntry{
		name:    name,
		backend: backend,
		breaker: NewBreaker(cfg),
	})
}

// Transcribe tries each backend in order until one succeeds. Backends with an
// open breaker are skipped. A cancelled context stops the cascade; the
// caller's deadline should not be burned retrying backends it no longer cares
// about.
func (t *Transcribers) Transcribe(ctx context.Context, seg types.AudioSegment) (stt.Result, error) {
	var lastErr error
	for i := range t.entries {
		entry := &t.entries[i]

		if ctx.Err() != nil {
			return stt.Result{}, ctx.Err()
		}

		var res stt.Result
		err := entry.breaker.Do(func() error {
			var innerErr error
			res, innerErr = entry.backend.Transcribe(ctx, seg)
			return innerErr
		})
		if err == nil {
			return res, nil
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("skipping transcription backend", "backend", entry.name, "reason", "breaker open")
		} else {
			slog.Warn("transcription backend failed", "backend", entry.name, "error", err)
		}
	}
	return stt.Result{}, fmt.Errorf("%w: %v", ErrAllBackendsFailed, lastErr)
}
