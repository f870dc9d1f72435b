package stt

import (
	"context"
	"errors"
)

// Kind distinguishes a superseded hypothesis from a confirmed utterance.
type Kind int

const (
	Partial Kind = iota
	Final
)

func (k Kind) String() string {
	if k == Final {
		return "final"
	}
	return "partial"
}

// Event is the recognizer's verdict for one fed frame. Text may be empty.
type Event struct {
	Kind Kind
	Text string
}

// Recognizer is a stateful incremental decoder. Feed calls are sequential.
type Recognizer interface {
	Feed(ctx context.Context, pcm []byte) (Event, error)
	Close() error
}

// Model binds a recognizer to model data and the capture sample rate.
type Model struct {
	Dir        string
	SampleRate int
}

// Factory builds a recognizer for one capture session.
type Factory interface {
	NewRecognizer(ctx context.Context, model Model) (Recognizer, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, model Model) (Recognizer, error)

func (f FactoryFunc) NewRecognizer(ctx context.Context, model Model) (Recognizer, error) {
	return f(ctx, model)
}

var (
	ErrModelMissing = errors.New("recognizer model not found")
	ErrClosed       = errors.New("recognizer closed")
)
