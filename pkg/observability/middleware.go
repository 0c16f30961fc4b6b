package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sdkerrors "github.com/ajitpratap0/session-sdk-go/pkg/errors"
	"github.com/ajitpratap0/session-sdk-go/pkg/middleware"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

const outcomeOK = "ok"

// RequestMiddleware counts and times every request passing the pipeline.
func (m *Metrics) RequestMiddleware() middleware.RequestMiddleware {
	return func(ctx context.Context, req *protocol.Request, next middleware.RequestNext) (*protocol.Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		m.requests.WithLabelValues(req.Type, requestOutcome(resp, err)).Inc()
		m.requestDuration.WithLabelValues(req.Type).Observe(time.Since(start).Seconds())
		return resp, err
	}
}

// EventMiddleware counts every event passing the pipeline.
func (m *Metrics) EventMiddleware() middleware.EventMiddleware {
	return func(ctx context.Context, ev *protocol.Event, next middleware.EventNext) error {
		err := next(ctx, ev)
		outcome := outcomeOK
		if err != nil {
			outcome = sdkerrors.Wrap(err).Code()
		}
		m.events.WithLabelValues(ev.Type, outcome).Inc()
		return err
	}
}

// Instrument adds the request and event middleware to p as global
// middleware.
func (m *Metrics) Instrument(p *middleware.Pipeline) {
	p.Use(m.RequestMiddleware())
	p.UseEvent(m.EventMiddleware())
}

func requestOutcome(resp *protocol.Response, err error) string {
	switch {
	case err != nil:
		return sdkerrors.Wrap(err).Code()
	case resp != nil && !resp.Success && resp.Error != nil:
		return resp.Error.Code
	}
	return outcomeOK
}

// OutgoingRequests starts a client span per request and writes its trace
// and span ids, plus the caller's span id as parent, into the envelope
// context so the receiving side can continue the trace.
func (t *Tracing) OutgoingRequests() middleware.RequestMiddleware {
	return func(ctx context.Context, req *protocol.Request, next middleware.RequestNext) (*protocol.Response, error) {
		parent := trace.SpanContextFromContext(ctx)
		ctx, span := t.tracer.Start(ctx, req.Type,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(envelopeAttributes(req.Type, req.Context)...),
		)
		defer span.End()

		sc := span.SpanContext()
		req.Context.TraceID = sc.TraceID().String()
		req.Context.SpanID = sc.SpanID().String()
		if parent.IsValid() {
			req.Context.ParentSpanID = parent.SpanID().String()
		}

		resp, err := next(ctx, req)
		endSpan(span, requestOutcome(resp, err), err)
		return resp, err
	}
}

// IncomingRequests starts a server span per request, continuing the trace
// described by the envelope context when it carries valid ids.
func (t *Tracing) IncomingRequests() middleware.RequestMiddleware {
	return func(ctx context.Context, req *protocol.Request, next middleware.RequestNext) (*protocol.Response, error) {
		ctx, span := t.tracer.Start(withRemoteParent(ctx, req.Context), req.Type,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(envelopeAttributes(req.Type, req.Context)...),
		)
		defer span.End()

		resp, err := next(ctx, req)
		endSpan(span, requestOutcome(resp, err), err)
		return resp, err
	}
}

// IncomingEvents starts a consumer span per event.
func (t *Tracing) IncomingEvents() middleware.EventMiddleware {
	return func(ctx context.Context, ev *protocol.Event, next middleware.EventNext) error {
		ctx, span := t.tracer.Start(withRemoteParent(ctx, ev.Context), ev.Type,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(envelopeAttributes(ev.Type, ev.Context)...),
		)
		defer span.End()

		err := next(ctx, ev)
		outcome := outcomeOK
		if err != nil {
			outcome = sdkerrors.Wrap(err).Code()
		}
		endSpan(span, outcome, err)
		return err
	}
}

// InstrumentClient traces outgoing requests and incoming events on p.
func (t *Tracing) InstrumentClient(p *middleware.Pipeline) {
	p.Use(t.OutgoingRequests())
	p.UseEvent(t.IncomingEvents())
}

// InstrumentServer traces incoming requests and events on p.
func (t *Tracing) InstrumentServer(p *middleware.Pipeline) {
	p.Use(t.IncomingRequests())
	p.UseEvent(t.IncomingEvents())
}

func withRemoteParent(ctx context.Context, pctx *protocol.Context) context.Context {
	if pctx == nil || pctx.TraceID == "" || pctx.SpanID == "" {
		return ctx
	}
	traceID, err := trace.TraceIDFromHex(pctx.TraceID)
	if err != nil {
		return ctx
	}
	spanID, err := trace.SpanIDFromHex(pctx.SpanID)
	if err != nil {
		return ctx
	}
	return trace.ContextWithRemoteSpanContext(ctx, trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	}))
}

func envelopeAttributes(msgType string, pctx *protocol.Context) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("session.type", msgType)}
	if pctx == nil {
		return attrs
	}
	attrs = append(attrs, attribute.String("session.envelope_id", pctx.ID))
	if pctx.Source != "" {
		attrs = append(attrs, attribute.String("session.source", pctx.Source))
	}
	if pctx.Target != "" {
		attrs = append(attrs, attribute.String("session.target", pctx.Target))
	}
	return attrs
}

func endSpan(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("session.outcome", outcome))
	if outcome == outcomeOK {
		span.SetStatus(codes.Ok, "")
		return
	}
	if err != nil {
		span.RecordError(err)
	}
	span.SetStatus(codes.Error, outcome)
}
