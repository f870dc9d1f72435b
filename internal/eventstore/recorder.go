package eventstore

import (
	"context"
	"log/slog"

	"github.com/loqalabs/loqa-caption/internal/pipeline"
)

// Recorder persists session boundaries and final lines as a pipeline sink.
// Partials are not stored.
type Recorder struct {
	store *Store
	log   *slog.Logger
}

func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store, log: store.log}
}

func (r *Recorder) Publish(ctx context.Context, u pipeline.Update) {
	if !u.Final {
		return
	}
	err := r.store.AppendCaption(context.WithoutCancel(ctx), Caption{
		SessionID: u.SessionID,
		Stream:    string(u.Stream),
		Seq:       u.Seq,
		Text:      u.Text,
		Source:    u.Source,
		CreatedAt: u.At,
	})
	if err != nil {
		r.log.Warn("failed to record caption", slog.String("session_id", u.SessionID), slog.String("error", err.Error()))
	}
}

func (r *Recorder) SessionChanged(ctx context.Context, info pipeline.SessionInfo) {
	ctx = context.WithoutCancel(ctx)
	var err error
	switch info.State {
	case pipeline.Running:
		err = r.store.OpenSession(ctx, Session{ID: info.ID, Device: info.Device, Engine: info.Engine, StartedAt: info.At})
	case pipeline.Idle:
		err = r.store.CloseSession(ctx, info.ID, info.Reason, info.At)
	}
	if err != nil {
		r.log.Warn("failed to record session", slog.String("session_id", info.ID), slog.String("error", err.Error()))
	}
}
