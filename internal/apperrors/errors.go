package apperrors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserAlreadyExists = errors.New("user with username or email already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Returned on bad identifier and on bad password alike
	ErrInvalidCredentials = errors.New("invalid user credentials")
	ErrTooManyAttempts    = errors.New("too many failed login attempts")

	// Anything that makes a token unusable: missing, malformed, expired, revoked
	ErrUnauthorized = errors.New("unauthorized request")

	ErrTokenInvalid        = errors.New("token is invalid")
	ErrTokenExpired        = errors.New("token is expired")
	ErrRefreshTokenRevoked = errors.New("refresh token is revoked or already rotated")

	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrMediaUnavailable = errors.New("media storage is not configured")
)

// Returned by login throttle. Unwraps to ErrTooManyAttempts
type RetryAfterError struct {
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrTooManyAttempts, e.RetryAfter)
}

func (e *RetryAfterError) Unwrap() error {
	return ErrTooManyAttempts
}
