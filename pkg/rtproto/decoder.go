// Package rtproto implements the wire protocol of the realtime tutoring
// control channel: JSON event envelopes flowing tutor→client and the typed
// messages flowing client→tutor.
//
// Inbound messages are either a single event object or an array of event
// objects; [Decoder.Decode] handles both and maps every event onto the closed
// [EventKind] union. Decoding is forward-compatible by design: event types
// without a dedicated handler decode to [KindUnknown] and are ignored by the
// caller, so new upstream event types can never break an existing client.
package rtproto

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// envelope is the superset of fields across all inbound event shapes. Only
// the fields relevant to the type tag are populated for any given event.
type envelope struct {
	Type string `json:"type"`

	// Delta carries incremental transcript content. Its shape varies across
	// protocol revisions, so it is decoded with [DecodeDelta].
	Delta json.RawMessage `json:"delta,omitempty"`

	// Transcript is the full transcript on *.done events. Unused: the turn
	// text is the accumulation of deltas, not this field.
	Transcript string `json:"transcript,omitempty"`

	// Error is the nested error object on error events:
	// {"type":"error","error":{"type":"...","code":"...","message":"..."}}.
	Error *errorDetail `json:"error,omitempty"`

	// Message is a top-level error message used by some older revisions.
	Message string `json:"message,omitempty"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Decoder maps raw control-channel payloads onto [Event] values.
// The zero value is ready to use; Decoder is stateless and safe for
// concurrent use.
type Decoder struct{}

// Decode parses one inbound control-channel message, which is either a single
// JSON event object or a JSON array of event objects, and returns the decoded
// events in order.
//
// Decode returns an error only for malformed JSON; the caller logs and drops
// the message without disturbing the channel. An unrecognised event type is
// NOT an error — it decodes to [KindUnknown].
func (d Decoder) Decode(data []byte) ([]Event, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("rtproto: empty message")
	}

	var envs []envelope
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &envs); err != nil {
			return nil, fmt.Errorf("rtproto: decode event batch: %w", err)
		}
	} else {
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, fmt.Errorf("rtproto: decode event: %w", err)
		}
		envs = []envelope{env}
	}

	events := make([]Event, 0, len(envs))
	for _, env := range envs {
		events = append(events, d.mapEvent(env))
	}
	return events, nil
}

// mapEvent classifies one envelope into an [Event].
func (d Decoder) mapEvent(env envelope) Event {
	ev := Event{Type: env.Type}

	switch env.Type {
	case "response.created",
		"output_audio_buffer.started":
		ev.Kind = KindTurnStarted

	case "response.audio_transcript.delta",
		"response.output_audio_transcript.delta",
		"response.text.delta",
		"response.output_text.delta":
		ev.Kind = KindDelta
		ev.Text = DecodeDelta(env.Delta)

	case "response.audio_transcript.done",
		"response.output_audio_transcript.done",
		"response.text.done",
		"response.output_text.done":
		ev.Kind = KindTurnDone

	case "response.done",
		"output_audio_buffer.stopped":
		ev.Kind = KindResponseDone

	case "error":
		ev.Kind = KindError
		ev.Message = errorMessage(env)

	case "session.created",
		"session.updated",
		"conversation.item.created",
		"rate_limits.updated",
		"input_audio_buffer.speech_started",
		"input_audio_buffer.speech_stopped",
		"input_audio_buffer.committed":
		ev.Kind = KindLifecycle

	default:
		ev.Kind = KindUnknown
	}

	return ev
}

// errorMessage extracts the best available error text from an error envelope.
func errorMessage(env envelope) string {
	if env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	if env.Message != "" {
		return env.Message
	}
	return "unknown error"
}
