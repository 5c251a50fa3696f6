package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/access"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/apperrors"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/gate"
	"github.com/stallev/gradekeeper/cmd/gradekeeper/internal/identity"
)

type gateContextKey struct{}

// gateFrom returns the request-scoped gate, falling back to def.
func gateFrom(ctx context.Context, def *gate.Gate) *gate.Gate {
	if g, ok := ctx.Value(gateContextKey{}).(*gate.Gate); ok {
		return g
	}
	return def
}

// requestLogger logs one line per request with its status and duration.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info().
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

// identityMiddleware resolves the caller from the Authorization header.
// Requests without the header pass through anonymous; a malformed token is
// rejected.
func identityMiddleware(resolver *identity.Resolver, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}

			id, err := resolver.FromBearer(header)
			if err != nil {
				logger.Debug().Err(err).Str("path", r.URL.Path).Msg("rejecting bearer token")
				writeError(w, logger, &apperrors.UnauthorizedError{Reason: err.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithIdentity(r.Context(), id)))
		})
	}
}

// requireIdentity rejects anonymous requests before any lookup runs.
func requireIdentity(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := identity.CurrentUser(r.Context()); !ok {
				writeError(w, logger, &apperrors.UnauthorizedError{})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cookieAccessMiddleware serves the access cache from a signed cookie: the
// request gets a gate over a store loaded from the cookie, and any change the
// cache makes is written back as Set-Cookie before the response header.
func cookieAccessMiddleware(codec *access.CookieCodec, base *gate.Gate, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			store := codec.Load(r)
			if err := store.Err(); err != nil {
				logger.Debug().Err(err).Msg("discarding access cookie")
			}

			scoped := base.WithCache(base.Cache().WithStore(store))
			ctx := context.WithValue(r.Context(), gateContextKey{}, scoped)

			fw := &cookieFlushWriter{ResponseWriter: w, store: store, logger: logger}
			next.ServeHTTP(fw, r.WithContext(ctx))
			fw.flush()
		})
	}
}

// cookieFlushWriter emits the access cookie just before the header is sent.
type cookieFlushWriter struct {
	http.ResponseWriter
	store   *access.CookieStore
	logger  zerolog.Logger
	flushed bool
}

func (w *cookieFlushWriter) flush() {
	if w.flushed {
		return
	}
	w.flushed = true
	if err := w.store.Flush(w.ResponseWriter); err != nil {
		w.logger.Error().Err(err).Msg("failed to write access cookie")
	}
}

func (w *cookieFlushWriter) WriteHeader(code int) {
	w.flush()
	w.ResponseWriter.WriteHeader(code)
}

func (w *cookieFlushWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *cookieFlushWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
