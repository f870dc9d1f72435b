package pipeline

import (
	"context"
	"time"
)

// Stream names the caption track an update belongs to.
type Stream string

const (
	StreamTranscript  Stream = "transcript"
	StreamTranslation Stream = "translation"
)

// Update is a caption change. A partial replaces the previous partial on its
// stream; a final is a completed line.
type Update struct {
	SessionID string
	Stream    Stream
	Final     bool
	Text      string
	// Source is the transcript text a translation was produced from.
	Source string
	Seq    uint64
	At     time.Time
}

// SessionInfo describes a lifecycle change of the controller.
type SessionInfo struct {
	ID         string
	State      State
	Device     string
	SampleRate int
	Engine     string
	Reason     string
	At         time.Time
}

// Sink receives caption updates from the workers. Implementations must not
// block for long; they are called on the worker goroutines.
type Sink interface {
	Publish(ctx context.Context, u Update)
	SessionChanged(ctx context.Context, info SessionInfo)
}

type multiSink []Sink

// MultiSink fans out to every non-nil sink in order.
func MultiSink(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (m multiSink) Publish(ctx context.Context, u Update) {
	for _, s := range m {
		s.Publish(ctx, u)
	}
}

func (m multiSink) SessionChanged(ctx context.Context, info SessionInfo) {
	for _, s := range m {
		s.SessionChanged(ctx, info)
	}
}
