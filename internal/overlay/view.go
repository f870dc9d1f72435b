// Package overlay keeps the caption view shown by overlay windows and streams
// its changes to websocket clients.
package overlay

import (
	"time"

	"github.com/loqalabs/loqa-caption/internal/pipeline"
)

// Track is one caption stream as displayed: completed lines plus the live
// partial that the next update replaces.
type Track struct {
	Lines   []string `json:"lines"`
	Partial string   `json:"partial"`
}

// View is the full overlay state.
type View struct {
	SessionID   string    `json:"session_id,omitempty"`
	State       string    `json:"state"`
	Transcript  Track     `json:"transcript"`
	Translation Track     `json:"translation"`
	Position    [2]int    `json:"position"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (v View) clone() View {
	v.Transcript.Lines = append([]string(nil), v.Transcript.Lines...)
	v.Translation.Lines = append([]string(nil), v.Translation.Lines...)
	return v
}

func (t *Track) apply(u pipeline.Update, maxLines int) {
	if !u.Final {
		t.Partial = u.Text + " "
		return
	}
	t.Partial = ""
	t.Lines = append(t.Lines, u.Text)
	if maxLines > 0 && len(t.Lines) > maxLines {
		t.Lines = append([]string(nil), t.Lines[len(t.Lines)-maxLines:]...)
	}
}

// apply reports false for an update from a session other than the one shown.
func (v *View) apply(u pipeline.Update, maxLines int) bool {
	if v.SessionID != "" && u.SessionID != v.SessionID {
		return false
	}
	v.SessionID = u.SessionID
	v.UpdatedAt = u.At
	switch u.Stream {
	case pipeline.StreamTranscript:
		v.Transcript.apply(u, maxLines)
	case pipeline.StreamTranslation:
		v.Translation.apply(u, maxLines)
	}
	return true
}

func (v *View) session(info pipeline.SessionInfo) {
	v.SessionID = info.ID
	v.State = info.State.String()
	v.UpdatedAt = info.At
	if info.State == pipeline.Running {
		v.Transcript = Track{}
		v.Translation = Track{}
		return
	}
	if info.State == pipeline.Idle {
		v.Transcript.Partial = ""
		v.Translation.Partial = ""
	}
}
