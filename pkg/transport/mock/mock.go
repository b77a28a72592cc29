// Package mock provides scriptable transport doubles for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voxtutor/voxtutor/pkg/transport"
)

// Dialer hands out a prepared connection, or fails with DialErr.
type Dialer struct {
	// Conn is returned by Dial when DialErr is nil.
	Conn *Conn

	// DialErr, when set, makes Dial fail.
	DialErr error

	mu    sync.Mutex
	dials []transport.Session
}

var _ transport.Dialer = (*Dialer)(nil)

func (d *Dialer) Dial(_ context.Context, sess transport.Session) (transport.Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, sess)
	d.mu.Unlock()
	if d.DialErr != nil {
		return nil, d.DialErr
	}
	return d.Conn, nil
}

// Dials returns the sessions passed to Dial, in order.
func (d *Dialer) Dials() []transport.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]transport.Session(nil), d.dials...)
}

// Conn records everything sent through it and lets tests inject incoming
// control payloads.
type Conn struct {
	// SendAudioErr and SendControlErr, when set, fail the respective calls.
	SendAudioErr   error
	SendControlErr error

	mu       sync.Mutex
	audio    [][]byte
	control  [][]byte
	recv     chan []byte
	closed   chan struct{}
	once     sync.Once
	closedAt int // number of Close calls
}

var _ transport.Conn = (*Conn)(nil)

// NewConn returns an open mock connection.
func NewConn() *Conn {
	return &Conn{
		recv:   make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (c *Conn) SendAudio(_ context.Context, pcm []byte) error {
	if c.SendAudioErr != nil {
		return c.SendAudioErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audio = append(c.audio, append([]byte(nil), pcm...))
	return nil
}

func (c *Conn) SendControl(_ context.Context, data []byte) error {
	if c.SendControlErr != nil {
		return c.SendControlErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.control = append(c.control, append([]byte(nil), data...))
	return nil
}

func (c *Conn) Receive() <-chan []byte {
	return c.recv
}

func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

func (c *Conn) Close() error {
	c.mu.Lock()
	c.closedAt++
	c.mu.Unlock()
	c.once.Do(func() { close(c.closed) })
	return nil
}

// Inject delivers one raw control payload to the consumer.
func (c *Conn) Inject(data []byte) {
	c.recv <- data
}

// AudioFrames returns the PCM frames sent so far.
func (c *Conn) AudioFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.audio...)
}

// ControlMessages returns the JSON events sent so far.
func (c *Conn) ControlMessages() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.control...)
}

// CloseCalls reports how many times Close has been called.
func (c *Conn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closedAt
}
