package pubsub

import (
	"sort"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/ajitpratap0/session-sdk-go/pkg/logging"
)

type loggerAdapter struct {
	base logging.Logger
}

// NewLoggerAdapter exposes l as a watermill.LoggerAdapter so publishers and
// subscribers log through the same sink as the rest of the runtime. Trace
// messages are logged at debug level.
func NewLoggerAdapter(l logging.Logger) watermill.LoggerAdapter {
	if l == nil {
		l = logging.NewNop()
	}
	return &loggerAdapter{base: l}
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.base.WithError(err).Error(msg, toFields(fields)...)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	a.base.Info(msg, toFields(fields)...)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	a.base.Debug(msg, toFields(fields)...)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	a.base.Debug(msg, toFields(fields)...)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{base: a.base.WithFields(toFields(fields)...)}
}

func toFields(fields watermill.LogFields) []logging.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]logging.Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, logging.Any(k, fields[k]))
	}
	return out
}

// NewGoChannel returns an in-process watermill Pub/Sub suitable for both
// sides of a Transport pair.
func NewGoChannel(l logging.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, NewLoggerAdapter(l))
}
