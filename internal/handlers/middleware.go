package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jjudge-oj/accounts/internal/services"
	"github.com/jjudge-oj/accounts/types"
	"github.com/rs/zerolog"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller: the account and the plaintext
// bearer token it presented.
type Principal struct {
	User  types.User
	Token string
}

// TokenAuthenticator resolves a bearer token to its owner.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, plaintext string) (types.User, types.AccessToken, error)
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext returns the caller stored by RequireAuth.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// RequireAuth rejects requests without a live bearer token and stores the
// caller in the request context.
func RequireAuth(tokens TokenAuthenticator, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			plaintext, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}

			user, _, err := tokens.Authenticate(r.Context(), plaintext)
			if err != nil {
				if errors.Is(err, services.ErrInvalidToken) {
					writeError(w, http.StatusUnauthorized, "unauthenticated")
					return
				}
				logger.Error().Err(err).Msg("bearer authentication failed")
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}

			ctx := withPrincipal(r.Context(), Principal{User: user, Token: plaintext})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger writes one zerolog line per request.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				event := logger.Info()
				if status >= http.StatusInternalServerError {
					event = logger.Error()
				}
				event.
					Str("request_id", middleware.GetReqID(r.Context())).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("remote", clientIP(r)).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("request")
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
