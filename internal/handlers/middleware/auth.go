package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/handlers/render"
	"github.com/nkiryanov/vidtube/internal/handlers/userctx"
	"github.com/nkiryanov/vidtube/internal/models"
)

type authenticator interface {
	// Has to return error wrapping apperrors.ErrUnauthorized if request is not authenticated
	Authenticate(ctx context.Context, r *http.Request) (models.Identity, error)
}

type errorLogger interface {
	Error(msg string, args ...any)
}

// Resolve caller and attach identity to request context
// Downstream handlers read it with userctx.FromContext
func AuthMiddleware(as authenticator, l errorLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := as.Authenticate(r.Context(), r)

			switch {
			case errors.Is(err, apperrors.ErrUnauthorized):
				render.Error(w, render.UnauthorizedType, "Unauthorized", http.StatusUnauthorized)
				return
			case err != nil:
				l.Error("authentication failed", "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := userctx.New(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
