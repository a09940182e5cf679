package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/repository"
	"github.com/nkiryanov/vidtube/internal/service/auth/tokenmanager"
)

const (
	defaultAccessCookieName  = "accessToken"
	defaultRefreshCookieName = "refreshToken"
	defaultAccessAuthScheme  = "Bearer"
)

// Auth events reported to metrics
const (
	EventLogin          = "login"
	EventRefresh        = "refresh"
	EventLogout         = "logout"
	EventChangePassword = "change_password"
	EventAuthenticate   = "authenticate"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Config struct {
	// Cookie names to transport tokens
	// If not set than default is used
	AccessCookieName  string
	RefreshCookieName string

	// Drop 'Secure' cookie attribute. Local development over plain http only
	CookieInsecure bool

	// Hasher to compare user passwords
	// DefaultHasher if not set
	Hasher PasswordHasher
}

// Login attempts counter
type LoginLimiter interface {
	// Count the attempt atomically. Return positive duration if key is locked
	Reserve(ctx context.Context, key string) (time.Duration, error)
	Reset(ctx context.Context, key string) error
}

type eventRecorder interface {
	AuthEvent(event string, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) AuthEvent(string, string) {}

type Option func(*AuthService)

func WithLimiter(l LoginLimiter) Option {
	return func(s *AuthService) { s.limiter = l }
}

func WithEventRecorder(r eventRecorder) Option {
	return func(s *AuthService) { s.events = r }
}

func WithLogger(l logger.Logger) Option {
	return func(s *AuthService) { s.logger = l }
}

// Auth service
// Manage user session: login, rotate refresh token, logout
type AuthService struct {
	accessCookieName  string
	refreshCookieName string
	accessAuthScheme  string
	cookieSecure      bool

	// Manager to issue and parse token pairs (access, refresh)
	tokens *tokenmanager.TokenManager

	// hasher to compare user passwords
	hasher PasswordHasher

	users repository.UserRepo

	limiter LoginLimiter
	events  eventRecorder
	logger  logger.Logger
}

func NewService(cfg Config, tokens *tokenmanager.TokenManager, users repository.UserRepo, opts ...Option) (*AuthService, error) {
	if tokens == nil || users == nil {
		return nil, errors.New("token manager and user repo must not be nil")
	}

	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessCookieName, defaultAccessCookieName)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)

	if cfg.Hasher == nil {
		cfg.Hasher = DefaultHasher
	}

	s := &AuthService{
		accessCookieName:  cfg.AccessCookieName,
		refreshCookieName: cfg.RefreshCookieName,
		accessAuthScheme:  defaultAccessAuthScheme,
		cookieSecure:      !cfg.CookieInsecure,
		tokens:            tokens,
		hasher:            cfg.Hasher,
		users:             users,
		events:            noopRecorder{},
		logger:            logger.NewNoOpLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Login user by username or email
// Unknown user and wrong password both return apperrors.ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, identifier string, password string) (models.User, models.TokenPair, error) {
	identifier = NormalizeIdentifier(identifier)
	throttleKey := identifier + "|" + clientIP(ctx)

	if err := s.reserveAttempt(ctx, throttleKey); err != nil {
		s.events.AuthEvent(EventLogin, OutcomeFailure)
		return models.User{}, models.TokenPair{}, err
	}

	user, pair, err := s.login(ctx, identifier, password)
	if err != nil {
		s.events.AuthEvent(EventLogin, OutcomeFailure)
		return models.User{}, models.TokenPair{}, err
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(ctx, throttleKey); err != nil {
			s.logger.Warn("login throttle reset failed", "error", err)
		}
	}

	s.events.AuthEvent(EventLogin, OutcomeSuccess)
	return user, pair, nil
}

func (s *AuthService) login(ctx context.Context, identifier string, password string) (models.User, models.TokenPair, error) {
	user, err := s.users.GetUserByIdentifier(ctx, identifier)
	switch {
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Compare(dummyHash(), password)
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	case err != nil:
		return models.User{}, models.TokenPair{}, fmt.Errorf("error while getting user. Err: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, models.TokenPair{}, apperrors.ErrInvalidCredentials
	}

	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return models.User{}, models.TokenPair{}, err
	}

	// Tokens are returned only if they were stored
	if err := s.users.SetRefreshToken(ctx, user.ID, pair.Refresh.Value); err != nil {
		return models.User{}, models.TokenPair{}, fmt.Errorf("error while storing refresh token. Err: %w", err)
	}
	user.RefreshToken = pair.Refresh.Value

	return user, pair, nil
}

// Attempt is counted before password is checked, so parallel guesses share one budget
func (s *AuthService) reserveAttempt(ctx context.Context, key string) error {
	if s.limiter == nil {
		return nil
	}

	retryAfter, err := s.limiter.Reserve(ctx, key)
	switch {
	case err != nil:
		s.logger.Warn("login throttle unavailable, allow attempt", "error", err)
		return nil
	case retryAfter > 0:
		return &apperrors.RetryAfterError{RetryAfter: retryAfter}
	default:
		return nil
	}
}

// Exchange refresh token for a new pair
// Presented token has to be the one stored for the user; it is replaced atomically
// Token problems wrap apperrors.ErrUnauthorized
func (s *AuthService) RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	pair, err := s.refreshPair(ctx, refresh)

	switch {
	case err == nil:
		s.events.AuthEvent(EventRefresh, OutcomeSuccess)
	default:
		s.events.AuthEvent(EventRefresh, OutcomeFailure)
	}

	return pair, err
}

func (s *AuthService) refreshPair(ctx context.Context, refresh string) (models.TokenPair, error) {
	claims, err := s.tokens.ParseRefresh(refresh)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	}

	pair, err := s.tokens.IssuePair(claims.UserID)
	if err != nil {
		return models.TokenPair{}, err
	}

	err = s.users.RotateRefreshToken(ctx, claims.UserID, refresh, pair.Refresh.Value)
	switch {
	case errors.Is(err, apperrors.ErrRefreshTokenRevoked):
		return models.TokenPair{}, fmt.Errorf("%w: %w", apperrors.ErrUnauthorized, err)
	case err != nil:
		return models.TokenPair{}, fmt.Errorf("error while rotating refresh token. Err: %w", err)
	}

	return pair, nil
}

// Drop user session. Safe to call many times
// Access tokens issued before remain valid until they expire
func (s *AuthService) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.SetRefreshToken(ctx, userID, ""); err != nil {
		s.events.AuthEvent(EventLogout, OutcomeFailure)
		return fmt.Errorf("error while clearing refresh token. Err: %w", err)
	}

	s.events.AuthEvent(EventLogout, OutcomeSuccess)
	return nil
}

// Change password if old one matches. Current session stays alive
func (s *AuthService) ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("error while getting user. Err: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, oldPassword); err != nil {
		s.events.AuthEvent(EventChangePassword, OutcomeFailure)
		return apperrors.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("can't use this as password, error=%w", err)
	}

	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("error while updating password. Err: %w", err)
	}

	s.events.AuthEvent(EventChangePassword, OutcomeSuccess)
	return nil
}

// Trim and lower-case username or email
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

type clientIPKey struct{}

// Attach client address to context. Login attempts are throttled per identifier and address
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
