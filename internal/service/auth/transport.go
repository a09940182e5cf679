package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
)

// Refresh token in body is small: limit what we are ready to read
const maxRefreshBodySize = 4 << 10

// Set access and refresh tokens as cookies
func (s *AuthService) SetTokens(w http.ResponseWriter, pair models.TokenPair) {
	http.SetCookie(w, s.cookie(s.accessCookieName, pair.Access.Value, pair.Access.ExpiresAt, s.tokens.AccessTTL()))
	http.SetCookie(w, s.cookie(s.refreshCookieName, pair.Refresh.Value, pair.Refresh.ExpiresAt, s.tokens.RefreshTTL()))
}

// Expire both cookies. Attributes have to match the ones used to set them
func (s *AuthService) ClearTokens(w http.ResponseWriter) {
	for _, name := range []string{s.accessCookieName, s.refreshCookieName} {
		c := s.cookie(name, "", time.Unix(0, 0), 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (s *AuthService) cookie(name string, value string, expires time.Time, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Get refresh token from cookie, or from JSON body {"refreshToken": "..."} for non browser clients
func (s *AuthService) ReadRefresh(r *http.Request) (string, error) {
	if c, err := r.Cookie(s.refreshCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	if r.Body == nil {
		return "", fmt.Errorf("%w: refresh token not found", apperrors.ErrUnauthorized)
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxRefreshBodySize)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("%w: malformed body: %w", apperrors.ErrUnauthorized, err)
	}
	if body.RefreshToken == "" {
		return "", fmt.Errorf("%w: refresh token not found", apperrors.ErrUnauthorized)
	}

	return body.RefreshToken, nil
}

// Access token from cookie, or from 'Authorization: Bearer' header. Cookie wins
func (s *AuthService) readAccess(r *http.Request) string {
	if c, err := r.Cookie(s.accessCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) {
		return ""
	}

	return strings.TrimSpace(token)
}

// Resolve the caller of the request
// Token problems and deleted users wrap apperrors.ErrUnauthorized; other errors are store failures
func (s *AuthService) Authenticate(ctx context.Context, r *http.Request) (models.Identity, error) {
	access := s.readAccess(r)
	if access == "" {
		s.events.AuthEvent(EventAuthenticate, OutcomeFailure)
		return models.Identity{}, fmt.Errorf("%w: access token not found", apperrors.ErrUnauthorized)
	}

	claims, err := s.tokens.ParseAccess(access)
	if err != nil {
		s.events.AuthEvent(EventAuthenticate, OutcomeFailure)
		return models.Identity{}, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		s.events.AuthEvent(EventAuthenticate, OutcomeFailure)
		return models.Identity{}, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	case err != nil:
		return models.Identity{}, fmt.Errorf("error while getting user. Err: %w", err)
	}

	s.events.AuthEvent(EventAuthenticate, OutcomeSuccess)
	return user.Identity(), nil
}
