// Package mic captures microphone audio through the miniaudio bindings and
// exposes it as an [audio.Source].
package mic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/voxtutor/voxtutor/pkg/audio"
)

// Source captures PCM16 audio from the default system microphone.
type Source struct {
	sampleRate int
	channels   int

	mu      sync.Mutex
	started bool
	closed  bool
	mctx    *malgo.AllocatedContext
	device  *malgo.Device
	out     chan audio.Frame
}

var _ audio.Source = (*Source)(nil)

// New returns a microphone source capturing at the given rate and channel
// count. The device is not touched until Start.
func New(sampleRate, channels int) *Source {
	return &Source{
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// Start acquires the default capture device and begins pumping 20ms frames.
func (s *Source) Start(ctx context.Context) (<-chan audio.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, fmt.Errorf("mic: source is closed")
	}
	if s.started {
		return nil, fmt.Errorf("mic: already started")
	}

	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime
	mctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("mic: init audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.channels)
	deviceConfig.SampleRate = uint32(s.sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	out := make(chan audio.Frame, 16)
	var elapsed time.Duration
	frameDur := func(n int) time.Duration {
		samples := n / (2 * s.channels)
		return time.Duration(samples) * time.Second / time.Duration(s.sampleRate)
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			data := make([]byte, len(input))
			copy(data, input)
			frame := audio.Frame{
				Data:       data,
				SampleRate: s.sampleRate,
				Channels:   s.channels,
				Timestamp:  elapsed,
			}
			elapsed += frameDur(len(input))
			select {
			case out <- frame:
			case <-ctx.Done():
			default:
				// Consumer is behind; dropping a frame beats blocking the
				// device callback thread.
			}
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		return nil, fmt.Errorf("mic: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		return nil, fmt.Errorf("mic: start capture device: %w", err)
	}

	s.started = true
	s.mctx = mctx
	s.device = device
	s.out = out

	context.AfterFunc(ctx, func() { _ = s.Close() })

	return out, nil
}

// Close stops the device and releases the audio context. Safe to call more
// than once.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	if s.mctx != nil {
		_ = s.mctx.Uninit()
		s.mctx = nil
	}
	if s.out != nil {
		close(s.out)
		s.out = nil
	}
	return nil
}
