package log

import (
	"context"
	"io"
	"log/slog"
)

// SetupLogger configures log/slog as the process-wide backend: a JSON
// handler wrapped by ErrFmtHandler, installed both as slog's default and
// as the goope provider.
func SetupLogger(w io.Writer, loglevel string) {
	ops := slog.HandlerOptions{
		AddSource: true,
		Level:     ToLogLevel(loglevel),
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				attr = slog.Attr{Key: "severity", Value: attr.Value}
			case slog.MessageKey:
				attr = slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	}
	handler := WrapByErrFmtHandler(slog.NewJSONHandler(w, &ops))
	slog.SetDefault(slog.New(handler))
	p := &SlogProvider{handler: handler}
	p.level.Set(ops.Level.Level())
	SetProvider(p)
}

// ToLogLevel maps a level name to slog.Level. Unknown names fall back to info.
func ToLogLevel(level string) slog.Level {
	l, _ := ParseLevel(level)
	return slog.Level(l)
}

const (
	ErrAttrKey        = "error"
	StacktraceAttrKey = "stacktrace"
)

// ErrAttr is a wrapper to pass err to slog.
func ErrAttr(err error) slog.Attr {
	return slog.Any(ErrAttrKey, err)
}

// SlogLogger adapts *slog.Logger to Logger.
type SlogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps l.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{logger: l}
}

func (s *SlogLogger) Debug(msg string, fields ...any) { s.logger.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...any)  { s.logger.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...any)  { s.logger.Warn(msg, fields...) }

// Error moves a leading error into the ErrAttrKey attribute so that
// ErrFmtHandler can attach its stack trace.
func (s *SlogLogger) Error(msg string, fields ...any) {
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			fields = append([]any{ErrAttr(err)}, fields[1:]...)
		}
	}
	s.logger.Error(msg, fields...)
}

func (s *SlogLogger) With(fields ...any) Logger {
	return &SlogLogger{logger: s.logger.With(fields...)}
}

func (s *SlogLogger) Enabled(ctx context.Context, level Level) bool {
	return s.logger.Enabled(ctx, slog.Level(level))
}

// SlogProvider serves SlogLoggers sharing one handler.
type SlogProvider struct {
	handler slog.Handler
	level   slog.LevelVar
}

func (p *SlogProvider) GetLogger() Logger {
	return &SlogLogger{logger: slog.New(p.effectiveHandler())}
}

func (p *SlogProvider) GetLoggerWithName(name string) Logger {
	return &SlogLogger{logger: slog.New(p.effectiveHandler()).With(ComponentKey, name)}
}

// SetLevel raises the minimum level on top of the handler's own setting.
func (p *SlogProvider) SetLevel(level Level) {
	p.level.Set(slog.Level(level))
}

func (p *SlogProvider) effectiveHandler() slog.Handler {
	return &levelHandler{min: &p.level, Handler: p.handler}
}

type levelHandler struct {
	min *slog.LevelVar
	slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.min.Level() && h.Handler.Enabled(ctx, l)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{min: h.min, Handler: h.Handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(g string) slog.Handler {
	return &levelHandler{min: h.min, Handler: h.Handler.WithGroup(g)}
}
