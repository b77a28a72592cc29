// Package resilience protects the transcription path from failing backends.
//
// Transcription runs against a remote HTTP API that can degrade for minutes
// at a time. A [Breaker] stops the session from hammering a backend that is
// clearly down, and [Transcribers] fails over across multiple recognisers
// with a dedicated breaker per backend.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker is open and the
// cooldown has not elapsed.
var ErrOpen = errors.New("resilience: breaker is open")

// BreakerConfig tunes a [Breaker]. Zero fields get defaults.
type BreakerConfig struct {
	// Name labels the breaker in log output.
	Name string

	// Threshold is the number of consecutive failures that opens the
	// breaker. Default: 3.
	Threshold int

	// Cooldown is how long the breaker stays open before admitting a probe
	// call. Default: 30s.
	Cooldown time.Duration
}

// Breaker is a three-state circuit breaker: closed while the backend is
// healthy, open after Threshold consecutive failures, and half-open for a
// single probe call once the cooldown elapses. The probe's outcome decides
// whether the breaker closes again or re-opens.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	open     bool
	probing  bool
}

// NewBreaker creates a breaker from cfg, filling in defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{
		name:      cfg.Name,
		threshold: cfg.Threshold,
		cooldown:  cfg.Cooldown,
	}
}

// Do runs fn unless the breaker is open. During the cooldown every call is
// rejected with [ErrOpen]; after it, exactly one probe call is admitted at a
// time.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.open {
		if time.Since(b.openedAt) < b.cooldown || b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
		slog.Debug("breaker admitting probe call", "breaker", b.name)
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		if b.open || b.failures >= b.threshold {
			if !b.open {
				slog.Warn("breaker opened", "breaker", b.name, "failures", b.failures)
			}
			b.open = true
			b.openedAt = time.Now()
		}
		b.probing = false
		return err
	}

	if b.open {
		slog.Info("breaker closed after successful probe", "breaker", b.name)
	}
	b.open = false
	b.probing = false
	b.failures = 0
	return nil
}

// Open reports whether the breaker is currently rejecting calls.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open && time.Since(b.openedAt) < b.cooldown
}

// Reset forces the breaker back to the closed state.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.open = false
	b.probing = false
	b.failures = 0
}
