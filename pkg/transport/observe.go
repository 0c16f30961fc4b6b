package transport

import (
	"context"
	"time"

	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
	"github.com/ajitpratap0/session-sdk-go/pkg/protocol"
)

// Recorder receives one observation per outbound transport operation.
// outcome is "ok" or the error code.
type Recorder interface {
	ObserveTransport(operation, messageType, outcome string, duration time.Duration)
}

// NewObservabilityDecorator logs outbound operations and reports them to
// recorder, which may be nil.
func NewObservabilityDecorator(logger logging.Logger, recorder Recorder) Decorator {
	log := logging.Component(logger, "transport")
	return DecoratorFunc(func(t Transport) Transport {
		return &observedTransport{Forwarder: Forwarder{Next: t}, logger: log, recorder: recorder}
	})
}

type observedTransport struct {
	Forwarder
	logger   logging.Logger
	recorder Recorder
}

func (o *observedTransport) Connect(ctx context.Context, connString string) error {
	start := time.Now()
	err := o.Next.Connect(ctx, connString)
	o.observe("connect", connString, start, err)
	return err
}

func (o *observedTransport) Disconnect(ctx context.Context) error {
	start := time.Now()
	err := o.Next.Disconnect(ctx)
	o.observe("disconnect", "", start, err)
	return err
}

func (o *observedTransport) Emit(ctx context.Context, eventType string, payload any, ectx *protocol.Context) error {
	start := time.Now()
	err := o.Next.Emit(ctx, eventType, payload, ectx)
	o.observe("emit", eventType, start, err)
	return err
}

func (o *observedTransport) Request(ctx context.Context, requestType string, payload any, rctx *protocol.Context) (*protocol.Response, error) {
	start := time.Now()
	resp, err := o.Next.Request(ctx, requestType, payload, rctx)
	o.observe("request", requestType, start, err)
	return resp, err
}

func (o *observedTransport) observe(operation, subject string, start time.Time, err error) {
	duration := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = codeOf(err)
		o.logger.WithError(err).Warn(operation+" failed",
			logging.String("subject", subject),
			logging.Duration("duration", duration),
		)
	} else {
		o.logger.Debug(operation,
			logging.String("subject", subject),
			logging.Duration("duration", duration),
		)
	}
	if o.recorder != nil {
		o.recorder.ObserveTransport(operation, subject, outcome, duration)
	}
}
