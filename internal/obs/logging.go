package obs

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/organoz/village-market/internal/common"
)

// NewLogger builds the process-wide zerolog logger. Format is "json" by
// default; "console" and "text" switch to the human-readable writer.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stdout
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// RequestLogger emits one structured log line per request, correlated with
// the request id and the active trace when tracing is on.
type RequestLogger struct {
	Logger zerolog.Logger
}

// Middleware implements the chi middleware contract.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := tap(w)
		start := time.Now()
		next.ServeHTTP(rec, r)

		evt := l.Logger.Info().
			Str("method", r.Method).
			Str("route", matchedRoute(r, r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Int64("bytes", rec.size).
			Str("request_id", middleware.GetReqID(r.Context()))

		if span := trace.SpanContextFromContext(r.Context()); span.IsValid() {
			evt = evt.
				Str("trace_id", span.TraceID().String()).
				Str("span_id", span.SpanID().String())
		} else {
			evt = evt.Str("trace_id", "").Str("span_id", "")
		}

		if userID, _ := common.UserID(r.Context()); strings.TrimSpace(userID) != "" {
			evt = evt.Str("user_id", strings.TrimSpace(userID))
		}
		if slug, _ := common.TenantSlug(r.Context()); strings.TrimSpace(slug) != "" {
			evt = evt.Str("tenant", strings.TrimSpace(slug))
		}
		if host := strings.TrimSpace(r.Host); host != "" {
			evt = evt.Str("host", host)
		}
		if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
			evt = evt.Str("remote_addr", addr)
		}
		if ua := strings.TrimSpace(r.UserAgent()); ua != "" {
			evt = evt.Str("user_agent", ua)
		}
		evt.Msg("http_request")
	})
}
