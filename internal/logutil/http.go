package logutil

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

const (
	RequestIDHeader = "X-Request-Id"
)

// Middleware tags every request with an id, makes a request scoped
// logger available through GetOrDefault and writes one access line
// per request.
func Middleware(base zerolog.Logger, next http.Handler) http.Handler {
	access := hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		log := hlog.FromRequest(r)
		log.Info().
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Request served")
	})(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		log := base.With().
			Str("request.id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		ctx := WithLogger(log.WithContext(r.Context()), log)
		access.ServeHTTP(w, r.WithContext(ctx))
	})
}
