// Package transport abstracts the realtime connection carrying audio and
// control traffic to the tutoring backend.
//
// Two implementations exist: a WebRTC transport (opus media track plus SDP
// negotiation, the browser-equivalent path) and a websocket transport that
// carries base64 audio inline on the control channel. The session manager is
// written against the interfaces here and does not care which one it got.
package transport

import "context"

// Session describes one connection attempt.
type Session struct {
	// Credential is the short-lived bearer token presented during
	// negotiation. Never a long-lived API key; see the token issuer.
	Credential string

	// Model selects the remote realtime model.
	Model string

	// BaseURL is the negotiation endpoint. Scheme depends on the transport:
	// https for WebRTC SDP exchange, wss for the websocket transport.
	BaseURL string

	// SampleRate and Channels describe the PCM16 audio this session sends.
	SampleRate int
	Channels   int

	// ICEServers lists STUN/TURN URLs for the WebRTC transport. Ignored by
	// the websocket transport.
	ICEServers []string
}

// Conn is an established realtime connection. Implementations are safe for
// concurrent use.
type Conn interface {
	// SendAudio transmits one frame of raw PCM16 audio.
	SendAudio(ctx context.Context, pcm []byte) error

	// SendControl transmits one JSON event on the control channel.
	SendControl(ctx context.Context, data []byte) error

	// Receive returns the channel delivering raw control-channel payloads.
	// Each payload is one JSON message exactly as received: a single event
	// object or an array of them. Consumers must watch Closed alongside this
	// channel; termination is signalled there, not by closing this channel.
	Receive() <-chan []byte

	// Closed returns a channel that is closed once the connection has ended,
	// whether by Close or by remote/network failure.
	Closed() <-chan struct{}

	// Close tears the connection down. Safe to call more than once.
	Close() error
}

// Dialer establishes realtime connections. Dial returns only once the
// control channel is open and ready to carry the session configuration; the
// caller may send immediately.
type Dialer interface {
	Dial(ctx context.Context, sess Session) (Conn, error)
}
