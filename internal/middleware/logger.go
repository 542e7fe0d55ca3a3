package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/exp/slog"
)

// NewStructuredLogger returns a chi request logger writing one slog record
// per request.
func NewStructuredLogger(logger *slog.Logger) func(next http.Handler) http.Handler {
	return middleware.RequestLogger(&StructuredLogger{Logger: logger})
}

type StructuredLogger struct {
	Logger *slog.Logger
}

func (l *StructuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	logFields := []any{
		slog.String("method", r.Method),
		slog.String("uri", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	}
	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		logFields = append(logFields, slog.String("req_id", reqID))
	}

	return &StructuredLoggerEntry{Logger: l.Logger.With(logFields...)}
}

type StructuredLoggerEntry struct {
	Logger *slog.Logger
}

func (l *StructuredLoggerEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	l.Logger.Info("request complete",
		slog.Int("resp_status", status),
		slog.Int("resp_bytes_length", bytes),
		slog.Duration("resp_elapsed", elapsed),
	)
}

func (l *StructuredLoggerEntry) Panic(v interface{}, stack []byte) {
	l.Logger.Error("request panic",
		slog.String("panic", fmt.Sprintf("%+v", v)),
		slog.String("stack", string(stack)),
	)
}
