package mclog

import "time"

// Kind classifies a parsed log line.
type Kind int

const (
	KindOther Kind = iota
	KindChat
	KindJoin
	KindLeave
	KindLagWarning
	KindOversizedChunk
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindLagWarning:
		return "lag_warning"
	case KindOversizedChunk:
		return "oversized_chunk"
	default:
		return "other"
	}
}

// Event is one typed, timestamped log line. Immutable once produced.
//
// Time is the zero value when the embedded timestamp could not be parsed;
// such events are retained and sort before all known-time events.
type Event struct {
	Kind Kind
	Time time.Time

	// Message is the payload after the log preamble (chat text for KindChat).
	Message string
	// User is set for KindJoin and KindLeave.
	User string
	// BehindMS is set for KindLagWarning.
	BehindMS int

	// Raw is the full original line.
	Raw string
}

func (e Event) HasTime() bool { return !e.Time.IsZero() }

// ErrorMatch is one generic-error hit against a configured pattern.
type ErrorMatch struct {
	Time        time.Time
	Line        string // preamble-stripped log message
	Pattern     string // the substring that matched
	Explanation string
}
