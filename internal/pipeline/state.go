package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-caption/internal/translate"
)

type State int32

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = Idle
	case "running":
		*s = Running
	case "stopping":
		*s = Stopping
	default:
		return fmt.Errorf("unknown pipeline state %q", text)
	}
	return nil
}

var (
	ErrAlreadyRunning = errors.New("pipeline already running")
	ErrStopping       = errors.New("pipeline is stopping")
	ErrInvalidDevice  = errors.New("invalid capture device")
)

// optionsCell holds the live engine options. Writers swap the whole value;
// the translator loads it when a task runs.
type optionsCell struct {
	p atomic.Pointer[translate.Options]
}

func (c *optionsCell) Load() translate.Options {
	if o := c.p.Load(); o != nil {
		return *o
	}
	return translate.Options{}
}

func (c *optionsCell) Store(o translate.Options) {
	c.p.Store(&o)
}

// Segment is one completed line of a history.
type Segment struct {
	Seq  uint64    `json:"seq"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// history is an append-only list of completed lines, trimmed to limit from the
// front when limit is positive.
type history struct {
	mu    sync.Mutex
	limit int
	lines []Segment
}

func newHistory(limit int) *history {
	return &history{limit: limit}
}

func (h *history) append(seg Segment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, seg)
	if h.limit > 0 && len(h.lines) > h.limit {
		h.lines = append(h.lines[:0:0], h.lines[len(h.lines)-h.limit:]...)
	}
}

func (h *history) snapshot() []Segment {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Segment(nil), h.lines...)
}

func (h *history) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = nil
}
