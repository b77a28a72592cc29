// Package config provides the configuration schema and loader for the
// VoxTutor session manager.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values can be written as "500ms" or
// "2s" instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or an integer nanosecond
// count.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, perr := time.ParseDuration(s)
		if perr != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, perr)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("config: invalid duration value at line %d", value.Line)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Transport selects how the realtime connection is carried.
type Transport string

const (
	// TransportWebRTC carries audio on an opus media track and events on a
	// data channel.
	TransportWebRTC Transport = "webrtc"

	// TransportWebsocket carries everything, audio included, on a single
	// websocket.
	TransportWebsocket Transport = "websocket"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportWebRTC || t == TransportWebsocket
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Session    SessionConfig    `yaml:"session"`
	Audio      AudioConfig      `yaml:"audio"`
	Issuer     IssuerConfig     `yaml:"issuer"`
	Transcribe TranscribeConfig `yaml:"transcribe"`
	Store      StoreConfig      `yaml:"store"`
}

// ServerConfig holds the local HTTP surface (health and metrics) and logging.
type ServerConfig struct {
	// ListenAddr is the TCP address for /healthz, /readyz, and /metrics
	// (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// SessionConfig describes the realtime session.
type SessionConfig struct {
	// Transport selects webrtc or websocket. Default: webrtc.
	Transport Transport `yaml:"transport"`

	// BaseURL is the negotiation endpoint (https for webrtc, wss for
	// websocket).
	BaseURL string `yaml:"base_url"`

	// Voice selects the tutor voice.
	Voice string `yaml:"voice"`

	// ICEServers lists STUN/TURN URLs for the webrtc transport.
	ICEServers []string `yaml:"ice_servers"`
}

// AudioConfig tunes capture and voice activity detection.
type AudioConfig struct {
	// SampleRate of microphone capture in Hz. Default: 48000 for webrtc,
	// 16000 otherwise.
	SampleRate int `yaml:"sample_rate"`

	// SpeechThreshold is the RMS energy (0..1) above which a frame counts as
	// speech. Default: 0.02.
	SpeechThreshold float64 `yaml:"speech_threshold"`

	// SilenceHangover is the trailing silence that ends an utterance.
	// Default: 2s.
	SilenceHangover Duration `yaml:"silence_hangover"`

	// MinUtterance is the minimum utterance length kept by the recorder.
	// Default: 500ms.
	MinUtterance Duration `yaml:"min_utterance"`
}

// IssuerConfig points at the credential issuer.
type IssuerConfig struct {
	// BaseURL of the token issuer service.
	BaseURL string `yaml:"base_url"`
}

// TranscribeConfig configures the speech-to-text path.
type TranscribeConfig struct {
	// APIKey for the transcription backend. Prefer the VOXTUTOR_STT_API_KEY
	// environment variable over putting keys in files.
	APIKey string `yaml:"api_key"`

	// Model is the recognition model. Default: whisper-1.
	Model string `yaml:"model"`

	// Language hints the recogniser (ISO 639-1).
	Language string `yaml:"language"`

	// BreakerThreshold is the consecutive-failure count that opens the
	// backend's circuit breaker. Default: 3.
	BreakerThreshold int `yaml:"breaker_threshold"`

	// BreakerCooldown is how long an opened breaker rejects calls.
	// Default: 30s.
	BreakerCooldown Duration `yaml:"breaker_cooldown"`
}

// StoreConfig configures transcript persistence.
type StoreConfig struct {
	// PostgresDSN enables persistence of turns and corrections when set.
	PostgresDSN string `yaml:"postgres_dsn"`
}
