// Package health builds errors that carry slog attributes, and logs them with those attributes intact.
package health

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
)

// HealthErr is an error with a log-friendly message, optional slog attributes, and an optional wrapped cause.
type HealthErr struct {
	Message string
	wrapped error
	attrs   []any // slog args: key/value pairs or slog.Attrs
}

// NewErr returns a new (unlogged) error. args use slog's key/value convention. To wrap an error, use Wrap.
func NewErr(msg string, args ...any) error {
	return &HealthErr{Message: msg, attrs: args}
}

// Wrap returns an error that wraps cause. A nil cause is replaced by a placeholder error so the mistake shows up in logs.
func Wrap(msg string, cause error, args ...any) error {
	if cause == nil {
		cause = errors.New("health.Wrap called with nil error")
	}
	return &HealthErr{Message: msg, wrapped: cause, attrs: args}
}

// Error renders msg[k=v ...] followed by " via <cause>" for each wrapped error.
func (e *HealthErr) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if s := formatAttrs(e.attrs); s != "" {
		b.WriteByte('[')
		b.WriteString(s)
		b.WriteByte(']')
	}
	if e.wrapped != nil {
		b.WriteString(" via ")
		b.WriteString(e.wrapped.Error())
	}
	return b.String()
}

func (e *HealthErr) Unwrap() error {
	return e.wrapped
}

// Attrs returns the slog args attached to e (not including any wrapped error's).
func (e *HealthErr) Attrs() []any {
	return e.attrs
}

// LogNewErr creates an error with NewErr, logs it, and returns it.
func LogNewErr(logger *slog.Logger, msg string, args ...any) error {
	return LogErr(logger, NewErr(msg, args...))
}

// LogWrappedErr creates an error with Wrap, logs it, and returns it.
func LogWrappedErr(logger *slog.Logger, msg string, cause error, args ...any) error {
	return LogErr(logger, Wrap(msg, cause, args...))
}

// LogErr logs err at error level and returns it, so call sites can log and return in one line:
//
//	return health.LogErr(logger, health.NewErr("unknown message", "message_id", id))
//
// For a HealthErr (or HumanErr), the log message is the outermost Message, followed by its attrs, a "via" attr holding the wrapped error, and then args.
// Any other error is logged as err.Error() followed by args. A nil logger or nil err is a no-op.
func LogErr(logger *slog.Logger, err error, args ...any) error {
	if logger == nil || err == nil {
		return err
	}

	var h *HealthErr
	switch e := err.(type) {
	case *HealthErr:
		h = e
	case *HumanErr:
		h = &e.HealthErr
	default:
		logger.Error(err.Error(), args...)
		return err
	}

	all := make([]any, 0, len(h.attrs)+len(args)+1)
	all = append(all, h.attrs...)
	if h.wrapped != nil {
		all = append(all, slog.String("via", h.wrapped.Error()))
	}
	all = append(all, args...)
	logger.Error(h.Message, all...)
	return err
}

// formatAttrs renders slog args the way slog's text handler does (`num=3 str="hi"`).
func formatAttrs(attrs []any) string {
	if len(attrs) == 0 {
		return ""
	}
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.MessageKey) {
				return slog.Attr{}
			}
			return a
		},
	})
	slog.New(h).Log(context.Background(), slog.LevelDebug, "", attrs...)
	return strings.TrimSuffix(buf.String(), "\n")
}
