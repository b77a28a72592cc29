// Package session orchestrates one realtime voice tutoring session: it owns
// the connection state machine and wires the capture pipeline (microphone →
// voice activity detection → utterance recording → transcription) to the
// realtime transport and its control-channel protocol.
//
// A Manager moves through idle → connecting → connected and ends in idle
// again after Stop, in disconnected when the connection drops, or in error
// when the start sequence or the live session fails. Stop is valid in every
// state and always lands in idle; Start is valid only in idle and error.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxtutor/voxtutor/internal/correction"
	"github.com/voxtutor/voxtutor/internal/observe"
	"github.com/voxtutor/voxtutor/internal/token"
	"github.com/voxtutor/voxtutor/pkg/audio"
	"github.com/voxtutor/voxtutor/pkg/rtproto"
	"github.com/voxtutor/voxtutor/pkg/stt"
	"github.com/voxtutor/voxtutor/pkg/transport"
	"github.com/voxtutor/voxtutor/pkg/types"
	"github.com/voxtutor/voxtutor/pkg/vad"
)

// ErrInvalidState is wrapped by commands issued in a state that does not
// allow them: Start outside idle/error, SendText outside connected.
var ErrInvalidState = errors.New("session: command not valid in current state")

// Sink receives finalised transcript turns and correction records as they are
// produced. Writes are best-effort: a sink failure is logged and never
// interrupts the live session. *postgres.Store satisfies this.
type Sink interface {
	WriteTurn(ctx context.Context, sessionID string, turn types.TranscriptTurn) error
	WriteCorrection(ctx context.Context, sessionID string, rec types.CorrectionRecord) error
}

// Deps bundles everything a [Manager] needs. Issuer, Dialer, Transcriber,
// NewSource and BaseURL are required; the rest default sensibly.
type Deps struct {
	// Issuer exchanges learner identity for an ephemeral session credential.
	Issuer token.Issuer

	// Dialer establishes the realtime connection.
	Dialer transport.Dialer

	// Transcriber turns recorded learner utterances into text.
	Transcriber stt.Transcriber

	// NewSource opens the capture device. Called once per session; sources
	// are single-use.
	NewSource func() audio.Source

	// NewDetector builds the voice activity detector for one session.
	// Defaults to [vad.NewEnergy].
	NewDetector func() vad.Detector

	// NewRecorder builds the utterance recorder for one session.
	// Defaults to [audio.NewRecorder].
	NewRecorder func() *audio.Recorder

	// Decoder parses inbound control-channel payloads. The zero value works.
	Decoder rtproto.Decoder

	// Extractor detects corrections in completed tutor turns.
	// Defaults to [correction.New].
	Extractor *correction.Extractor

	// Metrics receives instrumentation. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Sink, when non-nil, persists turns and corrections.
	Sink Sink

	// Logger defaults to [slog.Default].
	Logger *slog.Logger

	// BaseURL is the transport negotiation endpoint.
	BaseURL string

	// Voice selects the tutor voice sent in the session configuration.
	Voice string

	// ICEServers is passed through to the WebRTC transport.
	ICEServers []string

	// SampleRate and Channels describe the capture format. Default 48000/1.
	SampleRate int
	Channels   int
}

// StartConfig identifies the learner session being started.
type StartConfig struct {
	UserID    string
	SessionID string

	// PersonalizationContext is forwarded to the credential issuer, which
	// folds it into the generated tutoring instructions.
	PersonalizationContext string
}

// Manager is the session orchestrator. All exported methods are safe for
// concurrent use.
type Manager struct {
	deps Deps
	log  *slog.Logger

	// lifecycle serialises Start, Stop and disconnect handling so a teardown
	// can never interleave with a half-finished start sequence.
	lifecycle sync.Mutex

	mu            sync.Mutex
	state         State
	errMsg        string
	micActive     bool
	tutorSpeaking bool

	// gen increments on every teardown. Goroutines from a previous session
	// carry the generation they were started under and become inert once it
	// goes stale; alive is the fast liveness check for async results.
	gen   uint64
	alive bool

	sessionID string
	cancel    context.CancelFunc
	conn      transport.Conn
	source    audio.Source
	detector  vad.Detector
	recorder  *audio.Recorder
	counted   bool // ActiveSessions incremented for this session

	deltaBuf    strings.Builder
	lastUser    string
	transcript  []types.TranscriptTurn
	corrections []types.CorrectionRecord
	segments    []types.AudioSegment
}

// New validates deps and returns an idle Manager.
func New(deps Deps) (*Manager, error) {
	var errs []error
	if deps.Issuer == nil {
		errs = append(errs, errors.New("session: issuer is required"))
	}
	if deps.Dialer == nil {
		errs = append(errs, errors.New("session: dialer is required"))
	}
	if deps.Transcriber == nil {
		errs = append(errs, errors.New("session: transcriber is required"))
	}
	if deps.NewSource == nil {
		errs = append(errs, errors.New("session: audio source factory is required"))
	}
	if deps.BaseURL == "" {
		errs = append(errs, errors.New("session: base URL is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if deps.NewDetector == nil {
		deps.NewDetector = func() vad.Detector { return vad.NewEnergy() }
	}
	if deps.NewRecorder == nil {
		deps.NewRecorder = func() *audio.Recorder { return audio.NewRecorder() }
	}
	if deps.Extractor == nil {
		deps.Extractor = correction.New()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.SampleRate <= 0 {
		deps.SampleRate = 48000
	}
	if deps.Channels <= 0 {
		deps.Channels = 1
	}

	return &Manager{
		deps:  deps,
		log:   deps.Logger.With("component", "session"),
		state: StateIdle,
	}, nil
}

// ── Observable surface ────────────────────────────────────────────────────────

// Status returns the current connection state.
func (m *Manager) Status() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ErrorMessage returns the user-visible reason for the last failure, or ""
// when there is none.
func (m *Manager) ErrorMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errMsg
}

// MicrophoneActive reports whether the capture device is open.
func (m *Manager) MicrophoneActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.micActive
}

// TutorSpeaking reports whether a tutor response is currently in progress.
func (m *Manager) TutorSpeaking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tutorSpeaking
}

// Transcript returns a snapshot of the finalised turns so far. The transcript
// survives Stop so it can feed post-session assessment; a new Start clears it.
func (m *Manager) Transcript() []types.TranscriptTurn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.TranscriptTurn(nil), m.transcript...)
}

// Corrections returns a snapshot of the correction records extracted so far.
func (m *Manager) Corrections() []types.CorrectionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.CorrectionRecord(nil), m.corrections...)
}

// Segments returns the kept learner utterances, retained for pronunciation
// assessment. Each carries the transcribed text in ApproxText.
func (m *Manager) Segments() []types.AudioSegment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.AudioSegment(nil), m.segments...)
}

// ── Commands ──────────────────────────────────────────────────────────────────

// Start runs the session start sequence: open the microphone, build the
// detection pipeline, obtain a credential, establish the realtime connection,
// transmit the session configuration, and begin the capture and receive
// loops. Valid only in the idle and error states.
//
// ctx bounds the start sequence itself. The running session is not tied to
// it; Stop ends the session.
func (m *Manager) Start(ctx context.Context, cfg StartConfig) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.state != StateIdle && m.state != StateError {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: start requires idle or error, have %q", ErrInvalidState, state)
	}
	m.state = StateConnecting
	m.errMsg = ""
	m.sessionID = cfg.SessionID
	m.transcript = nil
	m.corrections = nil
	m.segments = nil
	m.lastUser = ""
	m.deltaBuf.Reset()
	m.mu.Unlock()

	began := time.Now()
	sessCtx, cancel := context.WithCancel(context.Background())

	// Microphone first: a capture failure should surface before any network
	// traffic happens.
	source := m.deps.NewSource()
	frames, err := source.Start(sessCtx)
	if err != nil {
		cancel()
		return m.failStart(source, nil, fmt.Errorf("session: open capture device: %w", err))
	}

	detector := m.deps.NewDetector()
	recorder := m.deps.NewRecorder()

	grant, err := m.deps.Issuer.Issue(ctx, token.Request{
		UserID:                 cfg.UserID,
		SessionID:              cfg.SessionID,
		PersonalizationContext: cfg.PersonalizationContext,
	})
	if err != nil {
		cancel()
		return m.failStart(source, nil, fmt.Errorf("session: issue credential: %w", err))
	}

	conn, err := m.deps.Dialer.Dial(ctx, transport.Session{
		Credential: grant.Credential,
		Model:      grant.Model,
		BaseURL:    m.deps.BaseURL,
		SampleRate: m.deps.SampleRate,
		Channels:   m.deps.Channels,
		ICEServers: m.deps.ICEServers,
	})
	if err != nil {
		cancel()
		return m.failStart(source, nil, fmt.Errorf("session: connect: %w", err))
	}

	// The dialer guarantees the control channel is open, so the session
	// configuration can go out immediately.
	update, err := rtproto.SessionUpdate(grant.Instructions, m.deps.Voice)
	if err == nil {
		err = conn.SendControl(ctx, update)
	}
	if err != nil {
		cancel()
		return m.failStart(source, conn, fmt.Errorf("session: configure session: %w", err))
	}

	m.mu.Lock()
	m.state = StateConnected
	m.alive = true
	m.micActive = true
	m.counted = true
	m.cancel = cancel
	m.conn = conn
	m.source = source
	m.detector = detector
	m.recorder = recorder
	gen := m.gen
	m.mu.Unlock()

	m.deps.Metrics.ActiveSessions.Add(sessCtx, 1)
	m.deps.Metrics.ConnectDuration.Record(sessCtx, time.Since(began).Seconds())

	go m.captureLoop(sessCtx, gen, frames, conn, detector, recorder)
	go m.receiveLoop(sessCtx, gen, conn)

	m.log.Info("session started",
		"session_id", cfg.SessionID,
		"user_id", cfg.UserID,
		"model", grant.Model)
	return nil
}

// failStart tears down whatever the start sequence had already acquired and
// parks the manager in the error state.
func (m *Manager) failStart(source audio.Source, conn transport.Conn, err error) error {
	if conn != nil {
		if cerr := conn.Close(); cerr != nil {
			m.log.Warn("closing connection after failed start", "err", cerr)
		}
	}
	if source != nil {
		if cerr := source.Close(); cerr != nil {
			m.log.Warn("closing capture device after failed start", "err", cerr)
		}
	}

	m.mu.Lock()
	m.state = StateError
	m.errMsg = err.Error()
	m.micActive = false
	m.mu.Unlock()

	m.log.Error("session start failed", "err", err)
	return err
}

// SendText sends one typed learner message to the tutor. Valid only while
// connected. The learner's turn is appended to the transcript optimistically,
// before the control messages go out, matching what the learner sees on
// screen the moment they hit enter.
func (m *Manager) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("session: empty message")
	}

	m.mu.Lock()
	if m.state != StateConnected {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w: send text requires a connected session, have %q", ErrInvalidState, state)
	}
	conn := m.conn
	sessionID := m.sessionID
	turn := types.TranscriptTurn{Role: types.RoleUser, Text: text, Timestamp: time.Now().UTC()}
	m.transcript = append(m.transcript, turn)
	m.lastUser = text
	m.mu.Unlock()

	m.deps.Metrics.RecordTurn(ctx, string(types.RoleUser))
	m.persistTurn(ctx, sessionID, turn)

	msg, err := rtproto.UserMessage(text)
	if err != nil {
		return err
	}
	if err := conn.SendControl(ctx, msg); err != nil {
		return fmt.Errorf("session: send user message: %w", err)
	}
	resp, err := rtproto.ResponseCreate()
	if err != nil {
		return err
	}
	if err := conn.SendControl(ctx, resp); err != nil {
		return fmt.Errorf("session: request response: %w", err)
	}
	return nil
}

// Stop tears the session down and returns the manager to idle. Valid in every
// state and idempotent: each teardown step is independently guarded, so a
// partially-started or already-stopped session stops cleanly too.
func (m *Manager) Stop() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	wasIdle := m.state == StateIdle
	m.teardownLocked()
	m.state = StateIdle
	m.errMsg = ""
	m.mu.Unlock()

	if !wasIdle {
		m.log.Info("session stopped")
	}
	return nil
}

// teardownLocked releases every per-session resource. Callers hold m.mu.
// Every step checks its own precondition so teardown is safe from any state.
func (m *Manager) teardownLocked() {
	m.alive = false
	m.gen++

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil {
			m.log.Warn("closing connection", "err", err)
		}
		m.conn = nil
	}
	if m.source != nil {
		if err := m.source.Close(); err != nil {
			m.log.Warn("closing capture device", "err", err)
		}
		m.source = nil
	}
	if m.detector != nil {
		m.detector.Reset()
		m.detector = nil
	}
	if m.recorder != nil {
		// Abandon any in-flight utterance; nothing consumes it.
		m.recorder.End()
		m.recorder = nil
	}
	m.deltaBuf.Reset()
	m.micActive = false
	m.tutorSpeaking = false

	if m.counted {
		m.counted = false
		m.deps.Metrics.ActiveSessions.Add(context.Background(), -1)
	}
}

// handleDisconnect reacts to the transport's Closed signal: release local
// resources and land in disconnected. A stale generation means a newer
// Stop or Start already ran; there is nothing left to do.
func (m *Manager) handleDisconnect(gen uint64) {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}
	m.teardownLocked()
	m.state = StateDisconnected
	m.mu.Unlock()

	m.log.Info("session disconnected")
}

// ── Capture pipeline ──────────────────────────────────────────────────────────

// captureLoop forwards every captured frame to the transport and drives the
// detector/recorder pair. It exits when the source closes its channel or the
// session context is cancelled.
func (m *Manager) captureLoop(ctx context.Context, gen uint64, frames <-chan audio.Frame, conn transport.Conn, detector vad.Detector, recorder *audio.Recorder) {
	for {
		var frame audio.Frame
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			frame = f
		}

		if err := conn.SendAudio(ctx, frame.Data); err != nil {
			// Expected during teardown races; the receive loop owns the
			// disconnect transition.
			m.log.Debug("send audio", "err", err)
		}

		switch detector.Process(frame) {
		case vad.SpeechStart:
			recorder.Begin(frame.SampleRate, frame.Channels)
			recorder.Append(frame.Data)
		case vad.SpeechEnd:
			seg, ok := recorder.End()
			if !ok {
				m.deps.Metrics.DiscardedUtterances.Add(ctx, 1)
				continue
			}
			m.deps.Metrics.UtteranceDuration.Record(ctx, seg.Duration.Seconds())
			go m.transcribe(ctx, gen, seg)
		default:
			recorder.Append(frame.Data)
		}
	}
}

// transcribe submits one utterance for transcription and folds the result
// into the transcript. Liveness is checked when the result returns, not when
// the request starts: a session torn down mid-request discards the outcome
// silently, success and failure alike.
func (m *Manager) transcribe(ctx context.Context, gen uint64, seg types.AudioSegment) {
	began := time.Now()
	res, err := m.deps.Transcriber.Transcribe(ctx, seg)
	m.deps.Metrics.TranscriptionDuration.Record(ctx, time.Since(began).Seconds())

	m.mu.Lock()
	live := m.alive && m.gen == gen
	sessionID := m.sessionID
	if !live {
		m.mu.Unlock()
		return
	}
	if err == nil {
		text := strings.TrimSpace(res.Text)
		if text == "" {
			m.mu.Unlock()
			return
		}
		turn := types.TranscriptTurn{Role: types.RoleUser, Text: text, Timestamp: time.Now().UTC()}
		m.transcript = append(m.transcript, turn)
		m.lastUser = text
		seg.ApproxText = text
		m.segments = append(m.segments, seg)
		m.mu.Unlock()

		m.deps.Metrics.RecordTurn(ctx, string(types.RoleUser))
		m.persistTurn(ctx, sessionID, turn)
		return
	}
	m.mu.Unlock()

	// The session is still live, so the failure is worth hearing about, but
	// it never ends the conversation: the learner just keeps talking.
	m.log.Warn("transcription failed", "err", err)
	m.deps.Metrics.TranscriptionErrors.Add(ctx, 1)
}

// ── Control channel ───────────────────────────────────────────────────────────

// receiveLoop consumes control-channel payloads until the connection ends.
// Payloads already buffered when the transport closes are still delivered:
// the server flushes its final events (the last turn's done marker among
// them) right before tearing the connection down, and those must not lose a
// select race against Closed.
func (m *Manager) receiveLoop(ctx context.Context, gen uint64, conn transport.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-conn.Closed():
			for {
				select {
				case data := <-conn.Receive():
					m.handlePayload(ctx, gen, data)
				default:
					m.handleDisconnect(gen)
					return
				}
			}
		case data := <-conn.Receive():
			m.handlePayload(ctx, gen, data)
		}
	}
}

func (m *Manager) handlePayload(ctx context.Context, gen uint64, data []byte) {
	events, err := m.deps.Decoder.Decode(data)
	if err != nil {
		// Malformed payloads are dropped; the channel stays up.
		m.log.Warn("dropping malformed control message", "err", err)
		m.deps.Metrics.DecodeErrors.Add(ctx, 1)
		return
	}
	for _, ev := range events {
		m.handleEvent(ctx, gen, ev)
	}
}

// handleEvent applies one decoded event to the session state.
func (m *Manager) handleEvent(ctx context.Context, gen uint64, ev rtproto.Event) {
	m.deps.Metrics.RecordControlEvent(ctx, ev.Kind.String())

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		return
	}

	var (
		turn     *types.TranscriptTurn
		recs     []types.CorrectionRecord
		sessID   = m.sessionID
		finalise = func() {
			turn, recs = m.flushTurnLocked()
		}
	)

	switch ev.Kind {
	case rtproto.KindTurnStarted:
		// A new turn with deltas still buffered means the completion event
		// for the previous turn was lost; flush it rather than letting the
		// two turns merge.
		if m.deltaBuf.Len() > 0 {
			finalise()
		}
		m.tutorSpeaking = true
	case rtproto.KindDelta:
		m.deltaBuf.WriteString(ev.Text)
	case rtproto.KindTurnDone:
		finalise()
	case rtproto.KindResponseDone:
		m.tutorSpeaking = false
	case rtproto.KindError:
		m.errMsg = ev.Message
	case rtproto.KindLifecycle:
		// Bookkeeping only.
	default:
		m.log.Debug("ignoring unknown control event", "type", ev.Type)
	}
	m.mu.Unlock()

	if ev.Kind == rtproto.KindError {
		m.log.Warn("tutor reported error", "message", ev.Message, "type", ev.Type)
	}
	if turn != nil {
		m.deps.Metrics.RecordTurn(ctx, string(types.RoleTutor))
		m.persistTurn(ctx, sessID, *turn)
	}
	for _, rec := range recs {
		m.deps.Metrics.RecordCorrection(ctx, string(rec.Kind))
		m.persistCorrection(ctx, sessID, rec)
	}
}

// flushTurnLocked finalises the buffered deltas into one tutor turn and runs
// correction extraction against the learner's latest turn. Callers hold m.mu.
// Returns nil when the buffer held only whitespace.
func (m *Manager) flushTurnLocked() (*types.TranscriptTurn, []types.CorrectionRecord) {
	text := strings.TrimSpace(m.deltaBuf.String())
	m.deltaBuf.Reset()
	if text == "" {
		return nil, nil
	}

	turn := types.TranscriptTurn{Role: types.RoleTutor, Text: text, Timestamp: time.Now().UTC()}
	m.transcript = append(m.transcript, turn)

	recs := m.deps.Extractor.Extract(turn, types.TranscriptTurn{Role: types.RoleUser, Text: m.lastUser})
	m.corrections = append(m.corrections, recs...)
	return &turn, recs
}

// ── Persistence ───────────────────────────────────────────────────────────────

func (m *Manager) persistTurn(ctx context.Context, sessionID string, turn types.TranscriptTurn) {
	if m.deps.Sink == nil {
		return
	}
	if err := m.deps.Sink.WriteTurn(ctx, sessionID, turn); err != nil {
		m.log.Warn("persist turn", "err", err)
	}
}

func (m *Manager) persistCorrection(ctx context.Context, sessionID string, rec types.CorrectionRecord) {
	if m.deps.Sink == nil {
		return
	}
	if err := m.deps.Sink.WriteCorrection(ctx, sessionID, rec); err != nil {
		m.log.Warn("persist correction", "err", err)
	}
}
