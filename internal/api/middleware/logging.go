package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/observability"
)

// LoggingMiddleware writes one access log line per request. The dispatch
// stream logs when the client goes away, so its duration is the session length.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		logger := observability.LoggerFromContext(r.Context())
		var event *zerolog.Event
		switch {
		case rec.status >= 500:
			event = logger.Error()
		case rec.status >= 400:
			event = logger.Warn()
		case r.URL.Path == "/health":
			event = logger.Debug()
		default:
			event = logger.Info()
		}
		event.
			Str("method", r.Method).
			Str("route", routeLabel(r.URL.Path)).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
