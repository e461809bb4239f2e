package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "scholarship/pkg/domain"
	dErrors "scholarship/pkg/domain-errors"
	"scholarship/pkg/platform/httputil"
	"scholarship/pkg/requestcontext"
)

// Authenticator resolves a bearer token into an actor.
type Authenticator interface {
	Authenticate(token string) (id.Actor, error)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// resolved actor in the request context. Role checks happen in services.
func RequireAuth(authenticator Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			actor, err := authenticator.Authenticate(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, actor)))
		})
	}
}
