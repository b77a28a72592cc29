// Package stt defines the speech-to-text abstraction used to transcribe
// recorded learner utterances.
//
// Transcription is asynchronous by design: the session hands a finished
// utterance to a Transcriber on a background goroutine and folds the result
// into the transcript when it arrives. A slow or failed transcription never
// stalls the live audio path.
package stt

import (
	"context"

	"github.com/voxtutor/voxtutor/pkg/types"
)

// Result is one completed transcription.
type Result struct {
	// Text is the recognised text.
	Text string

	// Language is the ISO 639-1 code reported by the recogniser, when known.
	Language string
}

// Transcriber converts a recorded utterance into text. Implementations must
// be safe for concurrent use and must honour context cancellation.
type Transcriber interface {
	Transcribe(ctx context.Context, seg types.AudioSegment) (Result, error)
}
