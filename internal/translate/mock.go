package translate

import (
	"context"
	"strings"
	"time"
)

type mockEngine struct {
	delay time.Duration
}

// NewMock returns an offline engine that tags text with the target language
// after delay.
func NewMock(delay time.Duration) Engine { return &mockEngine{delay: delay} }

func (m *mockEngine) Name() string { return EngineMock }

func (m *mockEngine) Validate(opts Options) error {
	return requireOption(EngineMock, "target language", opts.TargetLang)
}

func (m *mockEngine) Translate(ctx context.Context, text string, opts Options) (string, error) {
	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}
	return "[" + opts.TargetLang + "] " + strings.TrimSpace(text), nil
}
