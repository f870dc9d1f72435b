package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-caption/internal/config"
	"github.com/loqalabs/loqa-caption/internal/pipeline"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "captions.db")
	}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "ephemeral"})
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := es.AppendCaption(context.Background(), Caption{SessionID: "s", Text: "x"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	captions, err := es.ListCaptions(context.Background(), "s", "transcript", 10)
	if err != nil || captions != nil {
		t.Fatalf("expected nothing stored, got %v %v", captions, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})
	ctx := context.Background()

	if err := es.OpenSession(ctx, Session{ID: "session-123", Device: "[Microphone] usb", Engine: "Google"}); err != nil {
		t.Fatalf("open session: %v", err)
	}
	for i, text := range []string{"first line", "second line"} {
		if err := es.AppendCaption(ctx, Caption{SessionID: "session-123", Stream: "transcript", Seq: uint64(i + 1), Text: text}); err != nil {
			t.Fatalf("append caption: %v", err)
		}
	}
	if err := es.AppendCaption(ctx, Caption{SessionID: "session-123", Stream: "translation", Seq: 1, Text: "erste Zeile", Source: "first line"}); err != nil {
		t.Fatalf("append translation: %v", err)
	}
	if err := es.CloseSession(ctx, "session-123", "stopped", time.Time{}); err != nil {
		t.Fatalf("close session: %v", err)
	}

	lines, err := es.ListCaptions(ctx, "session-123", "transcript", 10)
	if err != nil {
		t.Fatalf("list captions: %v", err)
	}
	if len(lines) != 2 || lines[0].Text != "first line" || lines[1].Seq != 2 {
		t.Fatalf("unexpected transcript %+v", lines)
	}
	translated, err := es.ListCaptions(ctx, "session-123", "translation", 10)
	if err != nil {
		t.Fatalf("list translations: %v", err)
	}
	if len(translated) != 1 || translated[0].Source != "first line" {
		t.Fatalf("unexpected translations %+v", translated)
	}

	sessions, err := es.ListSessions(ctx, 5)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Reason != "stopped" || sessions[0].EndedAt.IsZero() {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})
	ctx := context.Background()

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.OpenSession(ctx, Session{ID: "old-session"}); err != nil {
		t.Fatalf("open session: %v", err)
	}
	if err := es.AppendCaption(ctx, Caption{SessionID: "old-session", Stream: "transcript", Seq: 1, Text: "note"}); err != nil {
		t.Fatalf("append caption: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.OpenSession(ctx, Session{ID: "new-session"}); err != nil {
		t.Fatalf("open session: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	captions, err := es.ListCaptions(ctx, "old-session", "transcript", 10)
	if err != nil {
		t.Fatalf("list captions: %v", err)
	}
	if len(captions) != 0 {
		t.Fatalf("expected old session pruned")
	}
	sessions, err := es.ListSessions(ctx, 10)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "new-session" {
		t.Fatalf("unexpected sessions after prune %+v", sessions)
	}
}

func TestRecorderStoresFinalsOnly(t *testing.T) {
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})
	rec := NewRecorder(es)
	ctx := context.Background()
	now := time.Now()

	rec.SessionChanged(ctx, pipeline.SessionInfo{ID: "s1", State: pipeline.Running, Device: "dev", At: now})
	rec.Publish(ctx, pipeline.Update{SessionID: "s1", Stream: pipeline.StreamTranscript, Text: "partial", At: now})
	rec.Publish(ctx, pipeline.Update{SessionID: "s1", Stream: pipeline.StreamTranscript, Final: true, Text: "final", Seq: 1, At: now})
	rec.SessionChanged(ctx, pipeline.SessionInfo{ID: "s1", State: pipeline.Idle, Reason: "end of input", At: now})

	lines, err := es.ListCaptions(ctx, "s1", "transcript", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lines) != 1 || lines[0].Text != "final" {
		t.Fatalf("unexpected lines %+v", lines)
	}
	sessions, err := es.ListSessions(ctx, 1)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Reason != "end of input" {
		t.Fatalf("unexpected sessions %+v", sessions)
	}
}
