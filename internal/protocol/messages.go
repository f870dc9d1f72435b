package protocol

import "time"

// Caption is a transcript or translation change broadcast on the bus.
type Caption struct {
	SessionID string    `json:"session_id"`
	Sequence  uint64    `json:"sequence"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	Partial   bool      `json:"partial"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState announces a pipeline lifecycle change.
type SessionState struct {
	SessionID  string    `json:"session_id"`
	State      string    `json:"state"`
	Device     string    `json:"device,omitempty"`
	SampleRate int       `json:"sample_rate,omitempty"`
	Engine     string    `json:"engine,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptPartial  = "caption.transcript.partial"
	SubjectTranscriptFinal    = "caption.transcript.final"
	SubjectTranslationPartial = "caption.translation.partial"
	SubjectTranslationFinal   = "caption.translation.final"
	SubjectSessionState       = "caption.session.state"
)

// CaptionSubject picks the subject for a stream ("transcript" or
// "translation") and finality.
func CaptionSubject(stream string, partial bool) string {
	switch {
	case stream == "translation" && partial:
		return SubjectTranslationPartial
	case stream == "translation":
		return SubjectTranslationFinal
	case partial:
		return SubjectTranscriptPartial
	default:
		return SubjectTranscriptFinal
	}
}
