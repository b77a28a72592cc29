package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Session.Transport == "" {
		cfg.Session.Transport = TransportWebRTC
	}
	if cfg.Audio.SampleRate == 0 {
		if cfg.Session.Transport == TransportWebRTC {
			cfg.Audio.SampleRate = 48000
		} else {
			cfg.Audio.SampleRate = 16000
		}
	}
	if cfg.Audio.SpeechThreshold == 0 {
		cfg.Audio.SpeechThreshold = 0.02
	}
	if cfg.Audio.SilenceHangover == 0 {
		cfg.Audio.SilenceHangover = Duration(2 * time.Second)
	}
	if cfg.Audio.MinUtterance == 0 {
		cfg.Audio.MinUtterance = Duration(500 * time.Millisecond)
	}
	if cfg.Transcribe.Model == "" {
		cfg.Transcribe.Model = "whisper-1"
	}
	if cfg.Transcribe.BreakerThreshold == 0 {
		cfg.Transcribe.BreakerThreshold = 3
	}
	if cfg.Transcribe.BreakerCooldown == 0 {
		cfg.Transcribe.BreakerCooldown = Duration(30 * time.Second)
	}
	if cfg.Transcribe.APIKey == "" {
		cfg.Transcribe.APIKey = os.Getenv("VOXTUTOR_STT_API_KEY")
	}
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Session.Transport.IsValid() {
		errs = append(errs, fmt.Errorf("session.transport %q is invalid; valid values: webrtc, websocket", cfg.Session.Transport))
	}
	if cfg.Session.BaseURL == "" {
		errs = append(errs, errors.New("session.base_url is required"))
	}
	switch cfg.Session.Transport {
	case TransportWebRTC:
		if cfg.Session.BaseURL != "" && !strings.HasPrefix(cfg.Session.BaseURL, "http") {
			errs = append(errs, fmt.Errorf("session.base_url %q must be http(s) for the webrtc transport", cfg.Session.BaseURL))
		}
	case TransportWebsocket:
		if cfg.Session.BaseURL != "" && !strings.HasPrefix(cfg.Session.BaseURL, "ws") {
			errs = append(errs, fmt.Errorf("session.base_url %q must be ws(s) for the websocket transport", cfg.Session.BaseURL))
		}
	}
	if cfg.Issuer.BaseURL == "" {
		errs = append(errs, errors.New("issuer.base_url is required"))
	}
	if cfg.Audio.SampleRate < 8000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is below 8000 Hz", cfg.Audio.SampleRate))
	}
	if cfg.Session.Transport == TransportWebRTC && cfg.Audio.SampleRate != 48000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be 48000 for the webrtc transport, got %d", cfg.Audio.SampleRate))
	}
	if cfg.Audio.SpeechThreshold < 0 || cfg.Audio.SpeechThreshold > 1 {
		errs = append(errs, fmt.Errorf("audio.speech_threshold %.3f is out of range [0, 1]", cfg.Audio.SpeechThreshold))
	}
	if cfg.Audio.SilenceHangover < 0 {
		errs = append(errs, fmt.Errorf("audio.silence_hangover %s is negative", cfg.Audio.SilenceHangover))
	}
	if cfg.Audio.MinUtterance < 0 {
		errs = append(errs, fmt.Errorf("audio.min_utterance %s is negative", cfg.Audio.MinUtterance))
	}

	return errors.Join(errs...)
}
