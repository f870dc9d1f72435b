package stt

import (
	"context"
	"fmt"
	"os"
	"sync"
)

type mockRecognizer struct {
	finalEvery int
	mu         sync.Mutex
	frames     int
	buffered   int
	closed     bool
}

// NewMockFactory returns recognizers that emit a growing partial on every
// frame and a final every finalEvery frames. The model directory must exist
// like it does for real engines, but its contents are never read.
func NewMockFactory(finalEvery int) Factory {
	if finalEvery <= 0 {
		finalEvery = 20
	}
	return FactoryFunc(func(_ context.Context, model Model) (Recognizer, error) {
		if model.SampleRate <= 0 {
			return nil, fmt.Errorf("invalid sample rate %d", model.SampleRate)
		}
		info, err := os.Stat(model.Dir)
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%w: %s", ErrModelMissing, model.Dir)
		}
		return &mockRecognizer{finalEvery: finalEvery}, nil
	})
}

func (m *mockRecognizer) Feed(_ context.Context, pcm []byte) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Event{}, ErrClosed
	}
	m.frames++
	m.buffered += len(pcm)
	if m.frames%m.finalEvery == 0 {
		text := fmt.Sprintf("[final transcript length=%d]", m.buffered)
		m.buffered = 0
		return Event{Kind: Final, Text: text}, nil
	}
	return Event{Kind: Partial, Text: fmt.Sprintf("[partial transcript length=%d]", m.buffered)}, nil
}

func (m *mockRecognizer) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
