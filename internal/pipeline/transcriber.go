package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/loqalabs/loqa-caption/internal/audio"
	"github.com/loqalabs/loqa-caption/internal/stt"
)

// runTranscriber is the only reader of the source and the only caller of the
// recognizer. It returns on stop or on the first read or decode failure.
func (c *Controller) runTranscriber(ctx context.Context, s *session) {
	defer close(s.transcribe)
	log := c.log.With(slog.String("session_id", s.id), slog.String("worker", "transcriber"))

	for !s.stopped() {
		frame, err := s.src.ReadFrame(ctx)
		if err != nil && !errors.Is(err, audio.ErrOverflow) {
			c.endTranscriber(s, log, "audio read", err)
			return
		}
		if errors.Is(err, audio.ErrOverflow) {
			log.Debug("capture overflow")
			if len(frame) == 0 {
				continue
			}
		}
		if s.channels > 1 {
			frame, err = audio.Downmix(frame, s.channels)
			if err != nil {
				c.endTranscriber(s, log, "downmix", err)
				return
			}
		}

		ev, err := s.rec.Feed(ctx, frame)
		if err != nil {
			c.endTranscriber(s, log, "recognizer", err)
			return
		}
		if s.stopped() {
			return
		}
		c.handleRecognition(ctx, s, ev)
	}
}

func (c *Controller) endTranscriber(s *session, log *slog.Logger, stage string, err error) {
	if s.stopped() {
		return
	}
	if errors.Is(err, io.EOF) {
		s.endReason = "end of input"
		log.Info("capture reached end of input")
		return
	}
	s.endReason = stage + ": " + err.Error()
	log.Error("transcription ended", slog.String("stage", stage), slogError(err))
}

func (c *Controller) handleRecognition(ctx context.Context, s *session, ev stt.Event) {
	if ev.Text == "" {
		return
	}
	now := c.clock()
	if ev.Kind == stt.Final {
		seq := s.seq.Add(1)
		c.transcript.append(Segment{Seq: seq, Text: ev.Text, At: now})
		c.deps.Sink.Publish(ctx, Update{SessionID: s.id, Stream: StreamTranscript, Final: true, Text: ev.Text, Seq: seq, At: now})
		s.queue.TryEnqueue(Task{Text: ev.Text, Final: true, Seq: seq})
		c.metrics.enqueued(ctx, true)
		return
	}

	seq := s.seq.Load()
	c.deps.Sink.Publish(ctx, Update{SessionID: s.id, Stream: StreamTranscript, Text: ev.Text, Seq: seq, At: now})
	if s.queue.TryEnqueue(Task{Text: ev.Text, Seq: seq}) {
		c.metrics.enqueued(ctx, false)
		return
	}
	c.metrics.dropped(ctx)
}
