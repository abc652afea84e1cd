// Package otel provides OpenTelemetry instrumentation for reactor state
// containers: metrics around the mutation pipeline and tracing around
// asynchronous action bodies.
package otel

import (
	"context"
	"time"

	"github.com/davidroman0O/reactor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/davidroman0O/reactor"

// Observability holds the tracer, meter and instruments shared by the
// middleware and action wrappers.
type Observability struct {
	tracer trace.Tracer
	meter  metric.Meter

	// Metrics
	updateCounter   metric.Int64Counter
	updateErrors    metric.Int64Counter
	actionCounter   metric.Int64Counter
	actionDuration  metric.Float64Histogram
	actionErrors    metric.Int64Counter
	actionCancelled metric.Int64Counter
}

// Option configures the Observability
type Option func(*Observability)

// WithTracerProvider sets a custom tracer provider
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *Observability) {
		o.tracer = provider.Tracer(instrumentationName)
	}
}

// WithMeterProvider sets a custom meter provider
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *Observability) {
		o.meter = provider.Meter(instrumentationName)
	}
}

// New creates a new OpenTelemetry observability implementation
func New(opts ...Option) (*Observability, error) {
	obs := &Observability{
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
	}
	for _, opt := range opts {
		opt(obs)
	}

	var err error

	obs.updateCounter, err = obs.meter.Int64Counter(
		"reactor.update.count",
		metric.WithDescription("Number of committed state updates"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, err
	}

	obs.updateErrors, err = obs.meter.Int64Counter(
		"reactor.update.errors",
		metric.WithDescription("Number of failed mutations"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	obs.actionCounter, err = obs.meter.Int64Counter(
		"reactor.action.count",
		metric.WithDescription("Number of asynchronous action executions"),
		metric.WithUnit("{execution}"),
	)
	if err != nil {
		return nil, err
	}

	obs.actionDuration, err = obs.meter.Float64Histogram(
		"reactor.action.duration",
		metric.WithDescription("Asynchronous action execution duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	obs.actionErrors, err = obs.meter.Int64Counter(
		"reactor.action.errors",
		metric.WithDescription("Number of failed asynchronous actions"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	obs.actionCancelled, err = obs.meter.Int64Counter(
		"reactor.action.cancelled",
		metric.WithDescription("Number of cancelled asynchronous actions"),
		metric.WithUnit("{cancellation}"),
	)
	if err != nil {
		return nil, err
	}

	return obs, nil
}

// Middleware returns a reactor middleware recording commit and error counts
// per action label.
func Middleware[S any](o *Observability) reactor.Middleware[S] {
	return reactor.Middleware[S]{
		Name: "otel",
		OnAfterUpdate: func(prev, next *S, action string) error {
			o.updateCounter.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("reactor.action", action)))
			return nil
		},
		OnError: func(err error, action string) {
			o.updateErrors.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("reactor.action", action)))
		},
	}
}

// WrapAction instruments an asynchronous action body with a span and
// execution metrics. The span status reflects the outcome; cancellations are
// counted separately from failures.
func WrapAction[R any](o *Observability, name string, fn reactor.AsyncFunc[R]) reactor.AsyncFunc[R] {
	return func(ctx context.Context, args ...any) (R, error) {
		ctx, span := o.tracer.Start(ctx, "reactor.action: "+name,
			trace.WithAttributes(attribute.String("reactor.action", name)),
		)
		defer span.End()

		attrs := metric.WithAttributes(attribute.String("reactor.action", name))
		o.actionCounter.Add(ctx, 1, attrs)

		start := time.Now()
		res, err := fn(ctx, args...)
		o.actionDuration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)

		switch {
		case err == nil:
			span.SetStatus(codes.Ok, "")
		case reactor.IsCancellation(err) || ctx.Err() != nil:
			span.SetStatus(codes.Error, "cancelled")
			o.actionCancelled.Add(ctx, 1, attrs)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			o.actionErrors.Add(ctx, 1, attrs)
		}
		return res, err
	}
}
