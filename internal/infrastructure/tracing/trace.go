package tracing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vitrinehq/vitrine/internal/shared/id"
)

// TraceID ties every span of one request flow together
type TraceID string

// SpanID names a single operation within a trace
type SpanID string

type contextKey int

const (
	traceIDKey contextKey = iota
	spanIDKey
)

// Span records one timed operation. Spans are not safe for concurrent
// mutation; each belongs to the goroutine that started it.
type Span struct {
	TraceID   TraceID
	SpanID    SpanID
	ParentID  SpanID
	Name      string
	Service   string
	StartTime time.Time
	Duration  time.Duration
	Tags      map[string]string
	Status    int
	Err       error
}

// SetTag annotates the span
func (s *Span) SetTag(key, value string) {
	s.Tags[key] = value
}

// SetStatus records the HTTP status the operation finished with
func (s *Span) SetStatus(code int) {
	s.Status = code
}

// SetError marks the span failed
func (s *Span) SetError(err error) {
	s.Err = err
	if s.Status == 0 {
		s.Status = 500
	}
}

// Finish stamps the span's duration
func (s *Span) Finish() {
	s.Duration = time.Since(s.StartTime)
}

// Tracer creates spans and drains them to structured logs on a buffered
// channel so request paths never block on trace output.
type Tracer struct {
	service string
	logger  *zap.Logger
	spans   chan *Span
}

// New creates a tracer for the named service.
func New(service string, logger *zap.Logger) *Tracer {
	t := &Tracer{
		service: service,
		logger:  logger,
		spans:   make(chan *Span, 1024),
	}
	go t.drain()
	return t
}

// StartSpan opens a span under whatever trace the context carries, minting
// a fresh trace id when it carries none. The returned context threads the
// new span to children.
func (t *Tracer) StartSpan(ctx context.Context, name string) (*Span, context.Context) {
	traceID, _ := ctx.Value(traceIDKey).(TraceID)
	if traceID == "" {
		traceID = TraceID(id.NewRequestID())
	}
	parentID, _ := ctx.Value(spanIDKey).(SpanID)

	span := &Span{
		TraceID:   traceID,
		SpanID:    SpanID(id.NewRequestID()),
		ParentID:  parentID,
		Name:      name,
		Service:   t.service,
		StartTime: time.Now(),
		Tags:      make(map[string]string),
	}

	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return span, ctx
}

// Submit hands a finished span to the collector. Full buffer drops the
// span rather than stalling the caller.
func (t *Tracer) Submit(span *Span) {
	select {
	case t.spans <- span:
	default:
	}
}

func (t *Tracer) drain() {
	for span := range t.spans {
		t.emit(span)
	}
}

func (t *Tracer) emit(span *Span) {
	fields := []zap.Field{
		zap.String("trace_id", string(span.TraceID)),
		zap.String("span_id", string(span.SpanID)),
		zap.String("operation", span.Name),
		zap.String("service", span.Service),
		zap.Duration("duration", span.Duration),
	}
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", string(span.ParentID)))
	}
	if span.Status != 0 {
		fields = append(fields, zap.Int("status", span.Status))
	}
	for k, v := range span.Tags {
		fields = append(fields, zap.String(k, v))
	}

	if span.Err != nil {
		t.logger.Warn("span failed", append(fields, zap.Error(span.Err))...)
		return
	}
	t.logger.Debug("span", fields...)
}

// FromContext returns the trace id the context carries, if any.
func FromContext(ctx context.Context) (TraceID, bool) {
	traceID, ok := ctx.Value(traceIDKey).(TraceID)
	return traceID, ok
}

// WithTrace stamps an existing trace id onto a context, used when the
// renderer hands us one over the wire.
func WithTrace(ctx context.Context, traceID TraceID, parent SpanID) context.Context {
	if traceID != "" {
		ctx = context.WithValue(ctx, traceIDKey, traceID)
	}
	if parent != "" {
		ctx = context.WithValue(ctx, spanIDKey, parent)
	}
	return ctx
}
