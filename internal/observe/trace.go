package observe

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the earshot tracer.
const tracerName = "github.com/MrWong99/earshot"

// Span names. One utterance span covers a whole capture and parents the
// dispatch span of its transcription.
const (
	SpanUtterance = "listener.utterance"
	SpanDispatch  = "dispatch.submit"
)

// Span attribute keys.
const (
	AttrUtteranceID  = attribute.Key("utterance.id")
	AttrProfile      = attribute.Key("capture.profile")
	AttrCaptureState = attribute.Key("capture.state")
	AttrSTTProvider  = attribute.Key("stt.provider")
	AttrSTTTask      = attribute.Key("stt.task")
	AttrAudioSeconds = attribute.Key("audio.seconds")
)

// Tracer returns the package-level [trace.Tracer] for earshot. It uses the
// globally registered [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a new span and returns the updated context and span. The
// caller must call span.End() when done.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartUtteranceSpan starts the span for one capture, tagged with its
// utterance id and sensitivity profile.
func StartUtteranceSpan(ctx context.Context, utteranceID, profile string) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanUtterance, trace.WithAttributes(
		AttrUtteranceID.String(utteranceID),
		AttrProfile.String(profile),
	))
}

// StartDispatchSpan starts the span for one provider call.
func StartDispatchSpan(ctx context.Context, provider, task string, audio time.Duration) (context.Context, trace.Span) {
	return StartSpan(ctx, SpanDispatch, trace.WithAttributes(
		AttrSTTProvider.String(provider),
		AttrSTTTask.String(task),
		AttrAudioSeconds.Float64(audio.Seconds()),
	))
}

// CorrelationID extracts the trace ID from the OTel span context in ctx.
// Returns the empty string when no active span with a valid trace ID exists.
// The journal stores it so an utterance can be matched to its dispatch span.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns an [slog.Logger] enriched with trace_id and span_id from
// the OTel span context in ctx. When no active span is present, the returned
// logger is the default slog logger without extra attributes.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
