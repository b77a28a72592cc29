package rtproto

// EventKind is the closed set of event categories the session manager reacts
// to. Every inbound server event maps to exactly one kind; event types the
// protocol may grow in the future map to [KindUnknown] and are inert by
// construction.
type EventKind int

const (
	// KindUnknown covers every event type without a dedicated handler.
	// Unknown events are ignored, never an error.
	KindUnknown EventKind = iota

	// KindTurnStarted marks the beginning of a tutor response turn.
	KindTurnStarted

	// KindDelta carries an incremental fragment of the tutor's in-progress
	// transcript. The flattened text is in [Event.Text].
	KindDelta

	// KindTurnDone marks the completion of one tutor transcript turn: the
	// accumulated deltas form the final turn text.
	KindTurnDone

	// KindResponseDone marks the end of the tutor's whole response,
	// including audio playback — the tutor has stopped speaking.
	KindResponseDone

	// KindError carries a server-reported error. The message is in
	// [Event.Message].
	KindError

	// KindLifecycle covers session bookkeeping events (created, updated,
	// rate limits, input buffer acknowledgements). Ignored.
	KindLifecycle
)

// String returns a short human-readable name for the kind, for logging.
func (k EventKind) String() string {
	switch k {
	case KindTurnStarted:
		return "turn_started"
	case KindDelta:
		return "delta"
	case KindTurnDone:
		return "turn_done"
	case KindResponseDone:
		return "response_done"
	case KindError:
		return "error"
	case KindLifecycle:
		return "lifecycle"
	default:
		return "unknown"
	}
}

// Event is one decoded server event.
type Event struct {
	// Kind is the dispatch category.
	Kind EventKind

	// Type is the raw protocol type tag, retained for logging.
	Type string

	// Text is the flattened delta text for [KindDelta] events.
	Text string

	// Message is the human-readable error text for [KindError] events.
	Message string
}
