package log

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cockroachdb/errors"
)

// stackDepth は出力するフレーム数の上限
const stackDepth = 4

// ErrFmtHandler adds a StacktraceAttrKey attribute to every record whose
// ErrAttrKey attribute holds an error with a recorded stack.
type ErrFmtHandler struct {
	slog.Handler
}

// WrapByErrFmtHandler returns next wrapped in an ErrFmtHandler.
func WrapByErrFmtHandler(next slog.Handler) slog.Handler {
	return ErrFmtHandler{Handler: next}
}

func (h ErrFmtHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := recordError(r); err != nil {
		if frames := formatFrames(err); frames != "" {
			r = r.Clone()
			r.AddAttrs(slog.String(StacktraceAttrKey, frames))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h ErrFmtHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return ErrFmtHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h ErrFmtHandler) WithGroup(name string) slog.Handler {
	return ErrFmtHandler{Handler: h.Handler.WithGroup(name)}
}

func recordError(r slog.Record) error {
	var found error
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == ErrAttrKey {
			found, _ = a.Value.Any().(error)
			return false
		}
		return true
	})
	return found
}

// formatFrames renders the newest stackDepth frames as "file:line func"
// joined by " <- ". Errors without a stack fall back to their first safe
// detail.
func formatFrames(err error) string {
	st := errors.GetReportableStackTrace(err)
	if st == nil || len(st.Frames) == 0 {
		if d := errors.GetSafeDetails(err).SafeDetails; len(d) > 0 {
			return d[0]
		}
		return ""
	}
	parts := make([]string, 0, stackDepth)
	// oldest-first なので末尾から
	for i := len(st.Frames) - 1; i >= 0 && len(parts) < stackDepth; i-- {
		f := st.Frames[i]
		parts = append(parts, fmt.Sprintf("%s:%d %s", f.AbsPath, f.Lineno, f.Function))
	}
	return strings.Join(parts, " <- ")
}
