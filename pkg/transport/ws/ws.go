// Package ws implements the realtime transport over a plain WebSocket.
//
// Unlike the WebRTC transport there is no media track: audio is base64-encoded
// and carried inline on the control channel as input_audio_buffer.append
// events. Less efficient, but it works through proxies that eat UDP and it
// makes integration tests trivial with httptest.
package ws

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/voxtutor/voxtutor/pkg/rtproto"
	"github.com/voxtutor/voxtutor/pkg/transport"
)

// Dialer establishes websocket connections to the realtime backend.
type Dialer struct{}

var _ transport.Dialer = (*Dialer)(nil)

// NewDialer returns a websocket dialer.
func NewDialer() *Dialer {
	return &Dialer{}
}

// Dial opens the websocket. The websocket handshake completing is the control
// channel opening; there is no separate negotiation step.
func (d *Dialer) Dial(ctx context.Context, sess transport.Session) (transport.Conn, error) {
	url := fmt.Sprintf("%s?model=%s", sess.BaseURL, sess.Model)

	wsConn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + sess.Credential},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("ws: dial: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		conn:   wsConn,
		recv:   make(chan []byte, 64),
		closed: make(chan struct{}),
		ctx:    readCtx,
		cancel: cancel,
	}
	go c.readLoop()
	return c, nil
}

// Conn is an established websocket connection.
type Conn struct {
	conn *websocket.Conn
	recv chan []byte

	closed    chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

var _ transport.Conn = (*Conn)(nil)

// readLoop pumps incoming control messages into the receive channel until the
// connection ends, then signals closure.
func (c *Conn) readLoop() {
	defer c.markClosed()
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		select {
		case c.recv <- data:
		case <-c.ctx.Done():
			return
		}
	}
}

// SendAudio base64-encodes the PCM frame and sends it as an
// input_audio_buffer.append control event.
func (c *Conn) SendAudio(ctx context.Context, pcm []byte) error {
	data, err := rtproto.AppendAudio(base64.StdEncoding.EncodeToString(pcm))
	if err != nil {
		return fmt.Errorf("ws: encode audio event: %w", err)
	}
	return c.SendControl(ctx, data)
}

// SendControl writes one JSON event as a text message.
func (c *Conn) SendControl(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return fmt.Errorf("ws: connection is closed")
	default:
	}
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("ws: write: %w", err)
	}
	return nil
}

func (c *Conn) Receive() <-chan []byte {
	return c.recv
}

func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Close shuts the websocket down. Safe to call more than once.
func (c *Conn) Close() error {
	c.markClosed()
	c.cancel()
	_ = c.conn.Close(websocket.StatusNormalClosure, "session ended")
	return nil
}

func (c *Conn) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}
