// Package webrtc implements the realtime transport over a WebRTC peer
// connection: microphone audio rides an opus media track, control events ride
// the "oai-events" data channel, and negotiation is a plain HTTP SDP exchange
// authenticated with the session's ephemeral credential.
package webrtc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"layeh.com/gopus"

	"github.com/voxtutor/voxtutor/pkg/transport"
)

// Opus wants 48kHz and fixed 20ms frames; the encoder resents anything else.
const (
	opusSampleRate  = 48000
	opusFrameSizeMs = 20
)

// Option configures a [Dialer].
type Option func(*Dialer)

// WithHTTPClient overrides the HTTP client used for the SDP exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dialer) { d.httpClient = c }
}

// WithOpenTimeout bounds how long Dial waits for the data channel to open
// after the SDP answer is applied.
func WithOpenTimeout(t time.Duration) Option {
	return func(d *Dialer) { d.openTimeout = t }
}

// Dialer establishes WebRTC connections to the realtime backend.
type Dialer struct {
	httpClient  *http.Client
	openTimeout time.Duration
}

var _ transport.Dialer = (*Dialer)(nil)

// NewDialer returns a Dialer with a default HTTP client and a 15s data
// channel open timeout.
func NewDialer(opts ...Option) *Dialer {
	d := &Dialer{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		openTimeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dial runs the full connection sequence: peer connection with the session's
// ICE servers, opus send track, "oai-events" data channel, SDP offer/answer
// exchange over HTTP, then a wait for the data channel to open. The returned
// connection is ready to carry the session configuration.
func (d *Dialer) Dial(ctx context.Context, sess transport.Session) (transport.Conn, error) {
	iceServers := make([]webrtc.ICEServer, 0, len(sess.ICEServers))
	for _, u := range sess.ICEServers {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: []string{u}})
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("webrtc: create peer connection: %w", err)
	}

	conn, err := d.negotiate(ctx, pc, sess)
	if err != nil {
		_ = pc.Close()
		return nil, err
	}
	return conn, nil
}

func (d *Dialer) negotiate(ctx context.Context, pc *webrtc.PeerConnection, sess transport.Session) (*Conn, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
		"audio", "voxtutor",
	)
	if err != nil {
		return nil, fmt.Errorf("webrtc: create audio track: %w", err)
	}
	if _, err := pc.AddTrack(track); err != nil {
		return nil, fmt.Errorf("webrtc: add audio track: %w", err)
	}

	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		return nil, fmt.Errorf("webrtc: add audio transceiver: %w", err)
	}

	dc, err := pc.CreateDataChannel("oai-events", nil)
	if err != nil {
		return nil, fmt.Errorf("webrtc: create data channel: %w", err)
	}

	enc, err := gopus.NewEncoder(opusSampleRate, sess.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("webrtc: create opus encoder: %w", err)
	}

	conn := &Conn{
		pc:       pc,
		dc:       dc,
		track:    track,
		enc:      enc,
		channels: sess.Channels,
		recv:     make(chan []byte, 64),
		opened:   make(chan struct{}),
		closed:   make(chan struct{}),
	}

	dc.OnOpen(func() { conn.openOnce.Do(func() { close(conn.opened) }) })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		data := make([]byte, len(msg.Data))
		copy(data, msg.Data)
		select {
		case conn.recv <- data:
		case <-conn.closed:
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			_ = conn.Close()
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("webrtc: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("webrtc: set local description: %w", err)
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	select {
	case <-gatherComplete:
	case <-ctx.Done():
		return nil, fmt.Errorf("webrtc: ice gathering: %w", ctx.Err())
	}

	answer, err := d.exchangeSDP(ctx, sess, pc.LocalDescription().SDP)
	if err != nil {
		return nil, err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		return nil, fmt.Errorf("webrtc: set remote description: %w", err)
	}

	// The session configuration must not be sent before the control channel
	// is open, so Dial blocks here.
	openTimer := time.NewTimer(d.openTimeout)
	defer openTimer.Stop()
	select {
	case <-conn.opened:
	case <-openTimer.C:
		return nil, fmt.Errorf("webrtc: data channel did not open within %s", d.openTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("webrtc: waiting for data channel: %w", ctx.Err())
	}

	return conn, nil
}

// exchangeSDP POSTs the local offer to the negotiation endpoint and returns
// the remote answer SDP.
func (d *Dialer) exchangeSDP(ctx context.Context, sess transport.Session, sdp string) (string, error) {
	url := fmt.Sprintf("%s?model=%s", sess.BaseURL, sess.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(sdp)))
	if err != nil {
		return "", fmt.Errorf("webrtc: build sdp request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+sess.Credential)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("webrtc: sdp exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("webrtc: sdp exchange returned %d: %s", resp.StatusCode, body)
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("webrtc: read sdp answer: %w", err)
	}
	return string(answer), nil
}

// Conn is an established WebRTC connection.
type Conn struct {
	pc       *webrtc.PeerConnection
	dc       *webrtc.DataChannel
	track    *webrtc.TrackLocalStaticSample
	channels int

	encMu sync.Mutex
	enc   *gopus.Encoder

	recv   chan []byte
	opened chan struct{}
	closed chan struct{}

	openOnce  sync.Once
	closeOnce sync.Once
}

var _ transport.Conn = (*Conn)(nil)

// SendAudio opus-encodes one frame of PCM16 audio and writes it to the media
// track. The frame must contain exactly 20ms of audio at 48kHz.
func (c *Conn) SendAudio(_ context.Context, pcm []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("webrtc: connection is closed")
	default:
	}

	samples := bytesToInt16s(pcm)
	frameSize := opusSampleRate * opusFrameSizeMs / 1000

	c.encMu.Lock()
	packet, err := c.enc.Encode(samples, frameSize, len(pcm))
	c.encMu.Unlock()
	if err != nil {
		return fmt.Errorf("webrtc: opus encode: %w", err)
	}

	if err := c.track.WriteSample(media.Sample{
		Data:     packet,
		Duration: opusFrameSizeMs * time.Millisecond,
	}); err != nil {
		return fmt.Errorf("webrtc: write sample: %w", err)
	}
	return nil
}

// SendControl writes one JSON event to the data channel.
func (c *Conn) SendControl(_ context.Context, data []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("webrtc: connection is closed")
	default:
	}
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("webrtc: data channel not open")
	}
	if err := c.dc.Send(data); err != nil {
		return fmt.Errorf("webrtc: send control event: %w", err)
	}
	return nil
}

func (c *Conn) Receive() <-chan []byte {
	return c.recv
}

func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Close tears down the data channel and peer connection. Safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.dc.Close()
		err = c.pc.Close()
	})
	if err != nil {
		return fmt.Errorf("webrtc: close peer connection: %w", err)
	}
	return nil
}

// bytesToInt16s converts little-endian bytes to int16 PCM samples.
func bytesToInt16s(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
