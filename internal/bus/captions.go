package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-caption/internal/pipeline"
	"github.com/loqalabs/loqa-caption/internal/protocol"
)

// CaptionStream keeps final captions and session changes for replay.
const CaptionStream = "CAPTIONS"

// CaptionPublisher mirrors pipeline updates onto NATS subjects.
type CaptionPublisher struct {
	client *Client
	log    *slog.Logger
}

// NewCaptionPublisher also ensures the replay stream for finals exists.
func NewCaptionPublisher(client *Client, retention time.Duration) (*CaptionPublisher, error) {
	subjects := []string{protocol.SubjectTranscriptFinal, protocol.SubjectTranslationFinal, protocol.SubjectSessionState}
	if err := client.EnsureStream(CaptionStream, subjects, retention); err != nil {
		return nil, err
	}
	return &CaptionPublisher{client: client, log: client.log.With(slog.String("component", "bus.captions"))}, nil
}

func (p *CaptionPublisher) Publish(_ context.Context, u pipeline.Update) {
	subject := protocol.CaptionSubject(string(u.Stream), !u.Final)
	msg := protocol.Caption{
		SessionID: u.SessionID,
		Sequence:  u.Seq,
		Text:      u.Text,
		Source:    u.Source,
		Partial:   !u.Final,
		Timestamp: u.At.UTC(),
	}
	if err := p.client.PublishJSON(subject, msg); err != nil {
		p.log.Warn("failed to publish caption", slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

func (p *CaptionPublisher) SessionChanged(_ context.Context, info pipeline.SessionInfo) {
	msg := protocol.SessionState{
		SessionID:  info.ID,
		State:      info.State.String(),
		Device:     info.Device,
		SampleRate: info.SampleRate,
		Engine:     info.Engine,
		Reason:     info.Reason,
		Timestamp:  info.At.UTC(),
	}
	if err := p.client.PublishJSON(protocol.SubjectSessionState, msg); err != nil {
		p.log.Warn("failed to publish session state", slog.String("error", err.Error()))
	}
}
