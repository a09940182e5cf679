package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/handlers/render"
	"github.com/nkiryanov/vidtube/internal/logger"
)

// Map service error to response. Unknown errors are logged and hidden behind 500
func renderError(w http.ResponseWriter, l logger.Logger, err error) {
	var retryErr *apperrors.RetryAfterError

	switch {
	case errors.As(err, &retryErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryErr.RetryAfter.Seconds()))))
		render.Error(w, render.TooManyAttemptsType, "Too many failed login attempts, try later", http.StatusTooManyRequests)
	case errors.Is(err, apperrors.ErrTooManyAttempts):
		render.Error(w, render.TooManyAttemptsType, "Too many failed login attempts, try later", http.StatusTooManyRequests)
	case errors.Is(err, apperrors.ErrInvalidCredentials):
		render.Error(w, render.InvalidCredentialsType, "Invalid user credentials", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrUserNotFound):
		render.Error(w, render.UnauthorizedType, "Unauthorized", http.StatusUnauthorized)
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		render.Error(w, render.DuplicateIdentifierType, "User with username or email already exists", http.StatusBadRequest)
	case errors.Is(err, apperrors.ErrUnsupportedMedia):
		render.Error(w, render.UnsupportedMediaType, "Only images up to 5 MiB are accepted", http.StatusUnsupportedMediaType)
	case errors.Is(err, apperrors.ErrMediaUnavailable):
		render.Error(w, render.MediaUnavailableType, "Image uploads are not available", http.StatusServiceUnavailable)
	default:
		l.Error("request failed", "error", err)
		render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
	}
}
