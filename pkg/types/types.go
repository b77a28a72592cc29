// Package types defines the shared types used across all VoxTutor packages.
//
// These types form the lingua franca between the audio pipeline, the realtime
// protocol decoder, the correction extractor, and the session manager. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package types

import "time"

// Role identifies which conversational party produced a transcript turn.
type Role string

const (
	// RoleUser marks a turn spoken or typed by the local learner.
	RoleUser Role = "user"

	// RoleTutor marks a turn produced by the remote tutoring agent.
	RoleTutor Role = "tutor"
)

// IsValid reports whether r is a recognised role.
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleTutor
}

// TranscriptTurn is one complete message from either conversational party.
// Turns are immutable once created and are appended to an ordered,
// append-only transcript log owned by the surrounding session.
type TranscriptTurn struct {
	// Role identifies the speaker.
	Role Role `json:"role"`

	// Text is the full turn text. For tutor turns this is the flushed delta
	// accumulation; for user turns it is the recognised transcription or the
	// literal text the learner typed.
	Text string `json:"text"`

	// Timestamp records when the turn was finalised.
	Timestamp time.Time `json:"timestamp"`
}

// CorrectionKind classifies a language correction made by the tutor.
type CorrectionKind string

const (
	CorrectionGrammar       CorrectionKind = "grammar"
	CorrectionVocabulary    CorrectionKind = "vocabulary"
	CorrectionPronunciation CorrectionKind = "pronunciation"
)

// IsValid reports whether k is a recognised correction kind.
func (k CorrectionKind) IsValid() bool {
	switch k {
	case CorrectionGrammar, CorrectionVocabulary, CorrectionPronunciation:
		return true
	}
	return false
}

// CorrectionRecord is a structured language correction derived from a
// completed tutor turn. Correction records are best-effort and derived, not
// authoritative: downstream consumers treat them as hints rather than ground
// truth.
type CorrectionRecord struct {
	// Kind classifies the correction.
	Kind CorrectionKind `json:"kind"`

	// Original is the learner's phrasing that was corrected.
	Original string `json:"original"`

	// Corrected is the form the tutor suggested.
	Corrected string `json:"corrected"`
}

// AudioSegment is one recorded utterance worth of raw audio. It is created by
// the utterance recorder when voice activity ends, handed to the transcription
// client, and retained for later batch pronunciation assessment. Segments are
// never mutated after creation.
type AudioSegment struct {
	// Data is raw little-endian PCM16 audio.
	Data []byte

	// SampleRate in Hz of the recorded audio.
	SampleRate int

	// Channels is the channel count of the recorded audio (1 for mic capture).
	Channels int

	// ApproxText is the recognised text once transcription has completed.
	// Empty until then.
	ApproxText string

	// CapturedAt records when the utterance started.
	CapturedAt time.Time

	// Duration is the elapsed recording time of the utterance.
	Duration time.Duration
}
