package pipeline

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runTranslator is the queue's single consumer, so at most one translation
// call is in flight.
func (c *Controller) runTranslator(ctx context.Context, s *session) {
	defer close(s.translate)
	log := c.log.With(slog.String("session_id", s.id), slog.String("worker", "translator"))
	poll := time.Duration(c.cfg.PollIntervalMS) * time.Millisecond
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	for !s.stopped() {
		task, ok := s.queue.Wait(ctx, poll)
		if !ok {
			continue
		}
		c.translateTask(ctx, s, log, task)
	}
}

func (c *Controller) translateTask(ctx context.Context, s *session, log *slog.Logger, task Task) {
	// options are read now, not when the task was queued
	opts := c.options.Load()

	ctx, span := c.tracer.Start(ctx, "caption.translate", trace.WithAttributes(
		attribute.String("caption.session_id", s.id),
		attribute.String("caption.engine", opts.Engine),
		attribute.Bool("caption.final", task.Final),
		attribute.Int("caption.text_length", len(task.Text)),
	))
	defer span.End()

	start := time.Now()
	out, err := c.deps.Translator.Translate(ctx, task.Text, opts)
	c.metrics.translated(ctx, opts.Engine, task.Final, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !s.stopped() {
			log.Warn("translation failed", slog.String("engine", opts.Engine), slog.Bool("final", task.Final), slogError(err))
		}
		return
	}
	if s.stopped() {
		return
	}

	now := c.clock()
	u := Update{SessionID: s.id, Stream: StreamTranslation, Final: task.Final, Text: out, Source: task.Text, Seq: task.Seq, At: now}
	if task.Final {
		c.translations.append(Segment{Seq: task.Seq, Text: out, At: now})
	}
	c.deps.Sink.Publish(ctx, u)
}
