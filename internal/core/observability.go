package core

import (
	"context"
	"time"
)

// MetricsRecorder aggregates operation outcomes. Implementations must be
// safe for use from a single batch at a time; the engine never calls
// Observe concurrently for one Linker instance.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// TraceSpan represents one in-flight traced operation.
type TraceSpan interface {
	End(err error)
}

// Tracer creates spans around engine operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

type noopMetrics struct{}

func (noopMetrics) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

type noopSpan struct{}

func (noopSpan) End(error) {}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}
