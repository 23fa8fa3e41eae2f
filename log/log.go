// Package log threads a small structured-logging interface through the
// state machine and peer driver, mirroring the teacher's split between a
// real zap-backed logger and a no-op used by default in tests.
package log

import "go.uber.org/zap"

// Logger is deliberately narrow: four leveled methods taking a message
// plus alternating key/value pairs, and With for attaching fields that
// stick across a run of calls (e.g. "peer", "block").
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, kv ...any)
	With(kv ...any) Logger
}

// zapLogger adapts a *zap.SugaredLogger to Logger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// NewZap builds a Logger backed by a production zap configuration.
func NewZap() (Logger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return &zapLogger{s: base.Sugar()}, nil
}

// WrapZap adapts an already-configured zap logger.
func WrapZap(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

func (z *zapLogger) Debug(msg string, kv ...any) { z.s.Debugw(msg, kv...) }
func (z *zapLogger) Info(msg string, kv ...any)  { z.s.Infow(msg, kv...) }
func (z *zapLogger) Warn(msg string, kv ...any)  { z.s.Warnw(msg, kv...) }
func (z *zapLogger) Error(msg string, kv ...any) { z.s.Errorw(msg, kv...) }
func (z *zapLogger) With(kv ...any) Logger {
	return &zapLogger{s: z.s.With(kv...)}
}

// noOp discards everything, matching the teacher's NewNoOpLogger default
// for unit tests that don't care about log output.
type noOp struct{}

// NoOp returns a Logger that discards all output.
func NoOp() Logger { return noOp{} }

func (noOp) Debug(string, ...any) {}
func (noOp) Info(string, ...any)  {}
func (noOp) Warn(string, ...any)  {}
func (noOp) Error(string, ...any) {}
func (noOp) With(...any) Logger   { return noOp{} }
