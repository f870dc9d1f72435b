package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/loqalabs/loqa-caption/pipeline"

type metrics struct {
	partialsDropped    metric.Int64Counter
	tasksEnqueued      metric.Int64Counter
	translationsFailed metric.Int64Counter
	translationLatency metric.Float64Histogram
}

func (c *Controller) initMetrics() error {
	meter := otel.Meter(instrumentationName)
	m := &metrics{}
	var err error
	if m.partialsDropped, err = meter.Int64Counter("caption.partials.dropped",
		metric.WithDescription("Partial transcripts not queued because translation was busy")); err != nil {
		return err
	}
	if m.tasksEnqueued, err = meter.Int64Counter("caption.tasks.enqueued",
		metric.WithDescription("Translation tasks accepted by the queue")); err != nil {
		return err
	}
	if m.translationsFailed, err = meter.Int64Counter("caption.translations.failed",
		metric.WithDescription("Translation calls that returned an error")); err != nil {
		return err
	}
	if m.translationLatency, err = meter.Float64Histogram("caption.translation.latency",
		metric.WithDescription("Translation call latency"), metric.WithUnit("s")); err != nil {
		return err
	}
	depth, err := meter.Int64ObservableGauge("caption.queue.depth", metric.WithDescription("Pending translation tasks"))
	if err != nil {
		return err
	}
	running, err := meter.Int64ObservableGauge("caption.session.running", metric.WithDescription("1 while a session is running"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(depth, int64(c.queueLen()))
		var v int64
		if c.State() == Running {
			v = 1
		}
		obs.ObserveInt64(running, v)
		return nil
	}, depth, running)
	if err != nil {
		return err
	}
	c.metrics = m
	return nil
}

func kindAttr(final bool) metric.MeasurementOption {
	kind := "partial"
	if final {
		kind = "final"
	}
	return metric.WithAttributes(attribute.String("kind", kind))
}

func (m *metrics) enqueued(ctx context.Context, final bool) {
	if m == nil {
		return
	}
	m.tasksEnqueued.Add(ctx, 1, kindAttr(final))
}

func (m *metrics) dropped(ctx context.Context) {
	if m == nil {
		return
	}
	m.partialsDropped.Add(ctx, 1)
}

func (m *metrics) translated(ctx context.Context, engine string, final bool, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.translationLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("engine", engine)))
	if err != nil {
		m.translationsFailed.Add(ctx, 1, kindAttr(final), metric.WithAttributes(attribute.String("engine", engine)))
	}
}
