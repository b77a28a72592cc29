// Command voxtutor runs the VoxTutor realtime voice session service: it owns
// the microphone, the realtime tutoring connection, and transcript
// persistence, and exposes session control plus health and metrics over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxtutor/voxtutor/internal/api"
	"github.com/voxtutor/voxtutor/internal/config"
	"github.com/voxtutor/voxtutor/internal/health"
	"github.com/voxtutor/voxtutor/internal/observe"
	"github.com/voxtutor/voxtutor/internal/resilience"
	"github.com/voxtutor/voxtutor/internal/session"
	"github.com/voxtutor/voxtutor/internal/store/postgres"
	"github.com/voxtutor/voxtutor/internal/token"
	"github.com/voxtutor/voxtutor/pkg/audio"
	"github.com/voxtutor/voxtutor/pkg/audio/mic"
	sttopenai "github.com/voxtutor/voxtutor/pkg/stt/openai"
	"github.com/voxtutor/voxtutor/pkg/transport"
	transportwebrtc "github.com/voxtutor/voxtutor/pkg/transport/webrtc"
	transportws "github.com/voxtutor/voxtutor/pkg/transport/ws"
	"github.com/voxtutor/voxtutor/pkg/vad"
)

const version = "0.3.0"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxtutor: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxtutor: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voxtutor starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"transport", cfg.Session.Transport,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxtutor",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	// ── Persistence (optional) ────────────────────────────────────────────────
	var (
		sink     session.Sink
		checkers []health.Checker
	)
	if cfg.Store.PostgresDSN != "" {
		store, err := postgres.New(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer store.Close()
		sink = store
		checkers = append(checkers, health.Func("database", store.Ping))
		slog.Info("transcript persistence enabled")
	}

	// ── Session manager ───────────────────────────────────────────────────────
	mgr, err := session.New(buildDeps(cfg, sink))
	if err != nil {
		slog.Error("failed to build session manager", "err", err)
		return 1
	}

	// ── HTTP surface ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	api.New(mgr, logger).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("http server listening", "addr", cfg.Server.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		slog.Info("shutdown signal received, stopping…")
		if err := mgr.Stop(); err != nil {
			slog.Warn("session stop", "err", err)
		}
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildDeps wires the configured transport, capture, detection, and
// transcription stack into session manager dependencies.
func buildDeps(cfg *config.Config, sink session.Sink) session.Deps {
	var dialer transport.Dialer
	switch cfg.Session.Transport {
	case config.TransportWebsocket:
		dialer = transportws.NewDialer()
	default:
		dialer = transportwebrtc.NewDialer()
	}

	var sttOpts []sttopenai.Option
	if cfg.Transcribe.Model != "" {
		sttOpts = append(sttOpts, sttopenai.WithModel(cfg.Transcribe.Model))
	}
	if cfg.Transcribe.Language != "" {
		sttOpts = append(sttOpts, sttopenai.WithLanguage(cfg.Transcribe.Language))
	}
	transcriber := resilience.NewTranscribers(
		"openai",
		sttopenai.New(cfg.Transcribe.APIKey, sttOpts...),
		resilience.BreakerConfig{
			Threshold: cfg.Transcribe.BreakerThreshold,
			Cooldown:  cfg.Transcribe.BreakerCooldown.Std(),
		},
	)

	return session.Deps{
		Issuer:      token.NewClient(cfg.Issuer.BaseURL),
		Dialer:      dialer,
		Transcriber: transcriber,
		NewSource: func() audio.Source {
			return mic.New(cfg.Audio.SampleRate, 1)
		},
		NewDetector: func() vad.Detector {
			return vad.NewEnergy(
				vad.WithThreshold(cfg.Audio.SpeechThreshold),
				vad.WithHangover(cfg.Audio.SilenceHangover.Std()),
			)
		},
		NewRecorder: func() *audio.Recorder {
			return audio.NewRecorder(audio.WithMinUtterance(cfg.Audio.MinUtterance.Std()))
		},
		Sink:       sink,
		BaseURL:    cfg.Session.BaseURL,
		Voice:      cfg.Session.Voice,
		ICEServers: cfg.Session.ICEServers,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   1,
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
