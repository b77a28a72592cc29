package rtproto

import (
	"encoding/json"
	"testing"
)

func TestDecodeSingleEvent(t *testing.T) {
	t.Parallel()

	var d Decoder

	cases := []struct {
		name     string
		payload  string
		wantKind EventKind
		wantText string
		wantMsg  string
	}{
		{"turn started", `{"type":"response.created"}`, KindTurnStarted, "", ""},
		{"audio buffer started", `{"type":"output_audio_buffer.started"}`, KindTurnStarted, "", ""},
		{"transcript delta", `{"type":"response.audio_transcript.delta","delta":"hel"}`, KindDelta, "hel", ""},
		{"structured delta", `{"type":"response.output_text.delta","delta":{"text":"lo"}}`, KindDelta, "lo", ""},
		{"turn done", `{"type":"response.audio_transcript.done","transcript":"hello"}`, KindTurnDone, "", ""},
		{"response done", `{"type":"response.done"}`, KindResponseDone, "", ""},
		{"audio buffer stopped", `{"type":"output_audio_buffer.stopped"}`, KindResponseDone, "", ""},
		{"nested error", `{"type":"error","error":{"type":"invalid_request_error","message":"bad token"}}`, KindError, "", "bad token"},
		{"top-level error message", `{"type":"error","message":"flat"}`, KindError, "", "flat"},
		{"error with no message", `{"type":"error"}`, KindError, "", "unknown error"},
		{"session created", `{"type":"session.created"}`, KindLifecycle, "", ""},
		{"rate limits", `{"type":"rate_limits.updated"}`, KindLifecycle, "", ""},
		{"future event type", `{"type":"response.hologram.delta.v9"}`, KindUnknown, "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			events, err := d.Decode([]byte(tc.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("want 1 event, got %d", len(events))
			}
			ev := events[0]
			if ev.Kind != tc.wantKind {
				t.Fatalf("kind = %v, want %v", ev.Kind, tc.wantKind)
			}
			if ev.Text != tc.wantText {
				t.Fatalf("text = %q, want %q", ev.Text, tc.wantText)
			}
			if ev.Message != tc.wantMsg {
				t.Fatalf("message = %q, want %q", ev.Message, tc.wantMsg)
			}
		})
	}
}

func TestDecodeBatch(t *testing.T) {
	t.Parallel()

	var d Decoder

	payload := `[
		{"type":"response.created"},
		{"type":"response.audio_transcript.delta","delta":"Bon"},
		{"type":"response.audio_transcript.delta","delta":"jour"},
		{"type":"some.future.thing"},
		{"type":"response.audio_transcript.done"},
		{"type":"response.done"}
	]`

	events, err := d.Decode([]byte(payload))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 6 {
		t.Fatalf("want 6 events, got %d", len(events))
	}

	wantKinds := []EventKind{
		KindTurnStarted, KindDelta, KindDelta, KindUnknown, KindTurnDone, KindResponseDone,
	}
	for i, want := range wantKinds {
		if events[i].Kind != want {
			t.Fatalf("event %d: kind = %v, want %v", i, events[i].Kind, want)
		}
	}
	if got := events[1].Text + events[2].Text; got != "Bonjour" {
		t.Fatalf("delta concatenation = %q, want %q", got, "Bonjour")
	}
}

func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	var d Decoder

	for _, payload := range []string{"", "   ", "{not json", "[{\"type\":1]"} {
		if _, err := d.Decode([]byte(payload)); err == nil {
			t.Fatalf("Decode(%q): want error, got nil", payload)
		}
	}
}

func TestOutgoingMessages(t *testing.T) {
	t.Parallel()

	t.Run("session update", func(t *testing.T) {
		t.Parallel()
		data, err := SessionUpdate("Teach French. Correct gently.", "sage")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if msg["type"] != "session.update" {
			t.Fatalf("type = %v", msg["type"])
		}
		sess := msg["session"].(map[string]any)
		if sess["instructions"] != "Teach French. Correct gently." {
			t.Fatalf("instructions = %v", sess["instructions"])
		}
		if sess["input_audio_format"] != "pcm16" || sess["output_audio_format"] != "pcm16" {
			t.Fatalf("audio formats = %v / %v", sess["input_audio_format"], sess["output_audio_format"])
		}
	})

	t.Run("user message then response create", func(t *testing.T) {
		t.Parallel()
		data, err := UserMessage("je suis allé au marché")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if msg["type"] != "conversation.item.create" {
			t.Fatalf("type = %v", msg["type"])
		}
		item := msg["item"].(map[string]any)
		if item["role"] != "user" {
			t.Fatalf("role = %v", item["role"])
		}

		data, err = ResponseCreate()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if msg["type"] != "response.create" {
			t.Fatalf("type = %v", msg["type"])
		}
	})
}
