package tokenmanager

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
)

const (
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 240 * time.Hour
	defaultSigningMethod   = "HS256"
)

// Value of 'typ' claim. Access token can't be used as refresh one and vice versa
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type AccessClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims

	UserID uuid.UUID `json:"-"`
}

type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims

	UserID uuid.UUID `json:"-"`
}

// Token manager with sensible default
type Config struct {
	// Secret keys to sign access and refresh tokens
	// Both required and must differ
	AccessSecret  string
	RefreshSecret string

	// JWT MAC (Message Authentication Code) algorithm
	// If not set than default is used
	Alg string

	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Clock. time.Now if not set
	Now func() time.Time
}

type TokenManager struct {
	accessKey  []byte
	refreshKey []byte

	alg jwt.SigningMethod

	accessTTL  time.Duration
	refreshTTL time.Duration

	now func() time.Time
}

func New(cfg Config) (*TokenManager, error) {
	switch {
	case cfg.AccessSecret == "" || cfg.RefreshSecret == "":
		return nil, errors.New("access and refresh secrets must not be empty")
	case cfg.AccessSecret == cfg.RefreshSecret:
		return nil, errors.New("access and refresh secrets must differ")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing method %q, only HMAC allowed", cfg.Alg)
	}

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTokenTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTokenTTL)

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &TokenManager{
		accessKey:  []byte(cfg.AccessSecret),
		refreshKey: []byte(cfg.RefreshSecret),
		alg:        alg,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        cfg.Now,
	}, nil
}

func (m *TokenManager) AccessTTL() time.Duration  { return m.accessTTL }
func (m *TokenManager) RefreshTTL() time.Duration { return m.refreshTTL }

func (m *TokenManager) IssueAccess(userID uuid.UUID) (models.IssuedToken, error) {
	now := m.now().Truncate(time.Second)
	expiresAt := now.Add(m.accessTTL)

	claims := AccessClaims{
		Type: TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	access, err := jwt.NewWithClaims(m.alg, claims).SignedString(m.accessKey)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: access, ExpiresAt: expiresAt}, nil
}

func (m *TokenManager) IssueRefresh(userID uuid.UUID) (models.IssuedToken, error) {
	expiresAt := m.now().Truncate(time.Second).Add(m.refreshTTL)

	claims := RefreshClaims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	refresh, err := jwt.NewWithClaims(m.alg, claims).SignedString(m.refreshKey)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing refresh token. Err: %w", err)
	}

	return models.IssuedToken{Value: refresh, ExpiresAt: expiresAt}, nil
}

func (m *TokenManager) IssuePair(userID uuid.UUID) (models.TokenPair, error) {
	access, err := m.IssueAccess(userID)
	if err != nil {
		return models.TokenPair{}, err
	}

	refresh, err := m.IssueRefresh(userID)
	if err != nil {
		return models.TokenPair{}, err
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Parse and validate access token
// Returned error wraps apperrors.ErrTokenExpired or apperrors.ErrTokenInvalid
func (m *TokenManager) ParseAccess(access string) (AccessClaims, error) {
	claims := AccessClaims{}

	if err := m.parse(access, m.accessKey, &claims); err != nil {
		return claims, err
	}
	if err := strictPayload(access, &accessPayload{}); err != nil {
		return claims, err
	}
	if claims.Type != TypeAccess {
		return claims, fmt.Errorf("%w: unexpected token type %q", apperrors.ErrTokenInvalid, claims.Type)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return claims, fmt.Errorf("%w: malformed subject", apperrors.ErrTokenInvalid)
	}
	claims.UserID = userID

	return claims, nil
}

// Parse and validate refresh token
// Valid refresh token still has to be compared with the one stored for the user
func (m *TokenManager) ParseRefresh(refresh string) (RefreshClaims, error) {
	claims := RefreshClaims{}

	if err := m.parse(refresh, m.refreshKey, &claims); err != nil {
		return claims, err
	}
	if err := strictPayload(refresh, &refreshPayload{}); err != nil {
		return claims, err
	}
	if claims.Type != TypeRefresh {
		return claims, fmt.Errorf("%w: unexpected token type %q", apperrors.ErrTokenInvalid, claims.Type)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return claims, fmt.Errorf("%w: malformed subject", apperrors.ErrTokenInvalid)
	}
	claims.UserID = userID

	return claims, nil
}

func (m *TokenManager) parse(token string, key []byte, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{m.alg.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %w", apperrors.ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", apperrors.ErrTokenInvalid, err)
	}
}

// Exact set of claims every token has. Pointers used to detect missing ones
type accessPayload struct {
	Type      *string      `json:"typ"`
	Subject   *string      `json:"sub"`
	IssuedAt  *json.Number `json:"iat"`
	ExpiresAt *json.Number `json:"exp"`
	ID        *string      `json:"jti"`
}

func (p *accessPayload) complete() bool {
	return p.Type != nil && p.Subject != nil && p.IssuedAt != nil && p.ExpiresAt != nil && p.ID != nil
}

type refreshPayload struct {
	Type      *string      `json:"typ"`
	Subject   *string      `json:"sub"`
	ExpiresAt *json.Number `json:"exp"`
	ID        *string      `json:"jti"`
}

func (p *refreshPayload) complete() bool {
	return p.Type != nil && p.Subject != nil && p.ExpiresAt != nil && p.ID != nil
}

type payload interface {
	complete() bool
}

// Decode token payload once more rejecting unknown and missing claims
// Signature already verified here, so token is well formed
func strictPayload(token string, dst payload) error {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return fmt.Errorf("%w: malformed token", apperrors.ErrTokenInvalid)
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return fmt.Errorf("%w: malformed payload", apperrors.ErrTokenInvalid)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	dec.UseNumber()

	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: unexpected claims: %w", apperrors.ErrTokenInvalid, err)
	}
	if !dst.complete() {
		return fmt.Errorf("%w: missing claims", apperrors.ErrTokenInvalid)
	}

	return nil
}
