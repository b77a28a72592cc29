// Package openai implements the stt.Transcriber interface on top of the
// OpenAI audio transcription endpoint.
package openai

import (
	"bytes"
	"context"
	"fmt"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/voxtutor/voxtutor/pkg/stt"
	"github.com/voxtutor/voxtutor/pkg/types"
)

var _ stt.Transcriber = (*Transcriber)(nil)

const defaultModel = oai.AudioModelWhisper1

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithModel sets the transcription model.
func WithModel(model string) Option {
	return func(t *Transcriber) { t.model = model }
}

// WithLanguage hints the recogniser toward the learner's target language
// (ISO 639-1 code). A correct hint measurably improves short-utterance
// accuracy.
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// WithBaseURL overrides the API base URL. Primarily used in tests to point at
// a local mock server.
func WithBaseURL(url string) Option {
	return func(t *Transcriber) { t.baseURL = url }
}

// Transcriber transcribes utterances via the OpenAI API.
type Transcriber struct {
	client   oai.Client
	model    string
	language string
	baseURL  string
}

// New creates a Transcriber with the given API key and options.
func New(apiKey string, opts ...Option) *Transcriber {
	t := &Transcriber{model: defaultModel}
	for _, o := range opts {
		o(t)
	}
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if t.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(t.baseURL))
	}
	t.client = oai.NewClient(clientOpts...)
	return t
}

// Transcribe wraps the segment's PCM audio in a WAV container and submits it
// for recognition.
func (t *Transcriber) Transcribe(ctx context.Context, seg types.AudioSegment) (stt.Result, error) {
	if len(seg.Data) == 0 {
		return stt.Result{}, fmt.Errorf("openai: empty audio segment")
	}

	wav := stt.EncodeWAV(seg.Data, seg.SampleRate, seg.Channels)
	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: t.model,
	}
	if t.language != "" {
		params.Language = oai.String(t.language)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return stt.Result{}, fmt.Errorf("openai: transcribe: %w", err)
	}
	return stt.Result{Text: resp.Text, Language: t.language}, nil
}
