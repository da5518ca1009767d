// Package otel provides OpenTelemetry integration for tool discovery,
// dispatch, and Ralph Loop attempts.
package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/wspotter/kit/tool"
)

// ToolObserver records registry and loop signals into OpenTelemetry.
type ToolObserver struct {
	tracer trace.Tracer

	discoveries metric.Int64Counter
	dispatches  metric.Int64Counter
	attempts    metric.Int64Counter
	latency     metric.Float64Histogram
}

// NewToolObserver creates a tool observer bound to the provided meter/tracer.
func NewToolObserver(meter metric.Meter, tracer trace.Tracer) (*ToolObserver, error) {
	discoveries, err := meter.Int64Counter(
		"kit.tool.discoveries",
		metric.WithDescription("Number of discovery passes"),
	)
	if err != nil {
		return nil, err
	}
	dispatches, err := meter.Int64Counter(
		"kit.tool.dispatches",
		metric.WithDescription("Number of tool dispatches"),
	)
	if err != nil {
		return nil, err
	}
	attempts, err := meter.Int64Counter(
		"kit.tool.loop.attempts",
		metric.WithDescription("Number of Ralph Loop attempts"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"kit.tool.latency",
		metric.WithDescription("Dispatch and discovery latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolObserver{
		tracer:      tracer,
		discoveries: discoveries,
		dispatches:  dispatches,
		attempts:    attempts,
		latency:     latency,
	}, nil
}

// ObserveDiscovery records one registry rebuild.
func (o *ToolObserver) ObserveDiscovery(observation tool.DiscoveryObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.Int("candidates", observation.Candidates),
		attribute.Int("registered", observation.Registered),
		attribute.Int("excluded", observation.Excluded),
	}
	ctx := context.Background()
	o.discoveries.Add(ctx, 1, metric.WithAttributes(attrs...))
	o.latency.Record(ctx, seconds(observation.DurationMS), metric.WithAttributes(attribute.String("operation", "discover")))
}

// ObserveDispatch records one dispatch outcome.
func (o *ToolObserver) ObserveDispatch(observation tool.DispatchObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool_id", observation.ToolID),
		attribute.Bool("success", observation.Success),
	}
	if observation.Status != "" {
		attrs = append(attrs, attribute.String("status", observation.Status))
	}
	if observation.ErrorCode != "" {
		attrs = append(attrs, attribute.String("error_code", observation.ErrorCode))
	}

	ctx := context.Background()
	o.dispatches.Add(ctx, 1, metric.WithAttributes(attrs...))
	o.latency.Record(ctx, seconds(observation.DurationMS), metric.WithAttributes(
		attribute.String("operation", "dispatch"),
		attribute.String("tool_id", observation.ToolID),
	))

	if o.tracer == nil {
		return
	}
	end := time.Now()
	start := end.Add(-time.Duration(observation.DurationMS) * time.Millisecond)
	_, span := o.tracer.Start(ctx, "tool.dispatch", trace.WithAttributes(attrs...), trace.WithTimestamp(start))
	if !observation.Success {
		span.SetStatus(codes.Error, observation.ErrorCode)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End(trace.WithTimestamp(end))
}

// ObserveAttempt records one Ralph Loop attempt.
func (o *ToolObserver) ObserveAttempt(observation tool.AttemptObservation) {
	if o == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("loop", observation.Loop),
		attribute.Int("attempt", observation.Attempt),
		attribute.Bool("passed", observation.Passed),
	}
	o.attempts.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func seconds(ms int64) float64 {
	return float64(time.Duration(ms)*time.Millisecond) / float64(time.Second)
}

var _ tool.Observer = (*ToolObserver)(nil)
