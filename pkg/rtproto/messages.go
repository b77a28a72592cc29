package rtproto

import (
	"encoding/json"
	"fmt"
)

// ── Outgoing message types ────────────────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Instructions      string   `json:"instructions,omitempty"`
	Voice             string   `json:"voice,omitempty"`
	Modalities        []string `json:"modalities,omitempty"`
	InputAudioFormat  string   `json:"input_audio_format"`
	OutputAudioFormat string   `json:"output_audio_format"`
}

type createConversationItemMessage struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role,omitempty"`
	Content []conversationPart `json:"content,omitempty"`
}

type conversationPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type appendAudioMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"` // base64-encoded PCM16
}

// ── Marshal helpers ───────────────────────────────────────────────────────────

// SessionUpdate builds the session.update message that configures the remote
// session: instructions, voice, supported modalities, and audio format. It is
// the first message sent after the control channel opens — never before.
func SessionUpdate(instructions, voice string) ([]byte, error) {
	msg := sessionUpdateMessage{
		Type: "session.update",
		Session: sessionParams{
			Instructions:      instructions,
			Voice:             voice,
			Modalities:        []string{"audio", "text"},
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("rtproto: marshal session update: %w", err)
	}
	return data, nil
}

// UserMessage builds the conversation.item.create message that appends one
// user text message to the remote conversation.
func UserMessage(text string) ([]byte, error) {
	msg := createConversationItemMessage{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type: "message",
			Role: "user",
			Content: []conversationPart{
				{Type: "input_text", Text: text},
			},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("rtproto: marshal user message: %w", err)
	}
	return data, nil
}

// ResponseCreate builds the response.create message that asks the tutor to
// respond to the conversation as it now stands. Sent immediately after
// [UserMessage] as the second half of the two-part send-text instruction.
func ResponseCreate() ([]byte, error) {
	data, err := json.Marshal(map[string]string{"type": "response.create"})
	if err != nil {
		return nil, fmt.Errorf("rtproto: marshal response create: %w", err)
	}
	return data, nil
}

// AppendAudio builds the input_audio_buffer.append message carrying one chunk
// of base64-encoded PCM16 audio. Used by the websocket transport, which has no
// native media track.
func AppendAudio(b64 string) ([]byte, error) {
	data, err := json.Marshal(appendAudioMessage{
		Type:  "input_audio_buffer.append",
		Audio: b64,
	})
	if err != nil {
		return nil, fmt.Errorf("rtproto: marshal append audio: %w", err)
	}
	return data, nil
}
