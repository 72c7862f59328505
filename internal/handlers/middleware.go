package handlers

import (
	"net/http"
	"runtime/debug"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"uchat/internal/endpoint"
	"uchat/internal/logging"
)

// WithRecover recovers from panics in next and answers 500 instead of
// dropping the connection.
func WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logging.Ctx(r.Context()).Error().
				Interface("panic", rec).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Bytes("stack", debug.Stack()).
				Msg("recovered from panic")
			writeJSON(r.Context(), w, http.StatusInternalServerError, endpoint.RequestFailed{Msg: "server error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// RequestLogger carries chi's request ID into the logging context and logs
// each request once it completes. It must run after chi's RequestID.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := chimiddleware.GetReqID(ctx); id != "" {
			ctx = logging.ContextWithRequestID(ctx, id)
		}
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r.WithContext(ctx))

		logging.Ctx(ctx).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
