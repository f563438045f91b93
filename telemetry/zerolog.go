package telemetry

import (
	"context"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger on top of github.com/rs/zerolog, for
// deployments that run outside the Goa toolchain and so cannot pull in
// goa.design/clue's log facade. Keyvals are appended as zerolog fields in
// pairs; a trailing unpaired key is logged under "extra".
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger constructs a Logger backed by the given zerolog.Logger.
func NewZerologLogger(log zerolog.Logger) Logger {
	return ZerologLogger{log: log}
}

func withKeyvals(e *zerolog.Event, keyvals ...any) *zerolog.Event {
	for i := 0; i+1 < len(keyvals); i += 2 {
		key, ok := keyvals[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, keyvals[i+1])
	}
	if len(keyvals)%2 == 1 {
		e = e.Interface("extra", keyvals[len(keyvals)-1])
	}
	return e
}

// Debug logs msg at debug level with the given keyvals.
func (l ZerologLogger) Debug(ctx context.Context, msg string, keyvals ...any) {
	withKeyvals(l.log.Debug().Ctx(ctx), keyvals...).Msg(msg)
}

// Info logs msg at info level with the given keyvals.
func (l ZerologLogger) Info(ctx context.Context, msg string, keyvals ...any) {
	withKeyvals(l.log.Info().Ctx(ctx), keyvals...).Msg(msg)
}

// Warn logs msg at warn level with the given keyvals.
func (l ZerologLogger) Warn(ctx context.Context, msg string, keyvals ...any) {
	withKeyvals(l.log.Warn().Ctx(ctx), keyvals...).Msg(msg)
}

// Error logs msg at error level with the given keyvals.
func (l ZerologLogger) Error(ctx context.Context, msg string, keyvals ...any) {
	withKeyvals(l.log.Error().Ctx(ctx), keyvals...).Msg(msg)
}
