package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hydrocred/hydrocred/internal/api"
	"github.com/hydrocred/hydrocred/internal/logger"
)

type contextKey struct{}

// ContextWithSession returns a copy of ctx carrying session.
func ContextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, contextKey{}, session)
}

// SessionFromContext returns the session stored by RequireSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// TokenVerifier is implemented by Verifier.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Session, error)
}

// RequireSession rejects requests without a valid bearer session token with 401 and stores the session in the
// request context otherwise.
func RequireSession(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") {
				w.Header().Set("WWW-Authenticate", `Bearer realm="hydrocred"`)
				api.RespondWithErrorResponse(w, r, api.NewUnauthorizedError("a bearer session token is required"))
				return
			}

			session, err := verifier.Verify(r.Context(), token)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="hydrocred", error="invalid_token"`)
				api.RespondWithErrorResponse(w, r, api.WrapUnauthorizedError(err, "session token rejected"))
				return
			}

			logger.ContextWithLogAttrs(r.Context(), slog.String("wallet", session.Wallet.Hex()))
			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}
