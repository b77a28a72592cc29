// Package mock provides a scriptable voice activity detector for tests.
package mock

import (
	"github.com/voxtutor/voxtutor/pkg/audio"
	"github.com/voxtutor/voxtutor/pkg/vad"
)

// Detector replays a scripted sequence of events, one per processed frame.
// When the script is exhausted it reports [vad.None].
type Detector struct {
	Script []vad.Event

	pos    int
	active bool
	resets int
}

var _ vad.Detector = (*Detector)(nil)

func (d *Detector) Process(_ audio.Frame) vad.Event {
	if d.pos >= len(d.Script) {
		return vad.None
	}
	ev := d.Script[d.pos]
	d.pos++
	switch ev {
	case vad.SpeechStart:
		d.active = true
	case vad.SpeechEnd:
		d.active = false
	}
	return ev
}

func (d *Detector) Active() bool {
	return d.active
}

func (d *Detector) Reset() {
	d.active = false
	d.resets++
}

// Resets reports how many times Reset has been called.
func (d *Detector) Resets() int {
	return d.resets
}
