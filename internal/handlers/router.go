package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/handlers/middleware"
	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/service/user"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	authService authService,
	userService userService,
	pinger pinger,
	metrics metricsService,
	logger logger.Logger,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService, logger)

	mux := http.NewServeMux()

	mux.Handle("GET /api/v1/healthcheck", handleHealthcheck(pinger, logger))

	mux.Handle("POST /api/v1/users/register", handleRegister(userService, logger))
	mux.Handle("POST /api/v1/users/login", handleLogin(authService, logger))
	mux.Handle("POST /api/v1/users/refresh-token", handleRefreshToken(authService, logger))

	mux.Handle("POST /api/v1/users/logout", withAuth(handleLogout(authService, logger)))
	mux.Handle("POST /api/v1/users/change-password", withAuth(handleChangePassword(authService, logger)))
	mux.Handle("GET /api/v1/users/current-user", withAuth(handleCurrentUser()))
	mux.Handle("PATCH /api/v1/users/update-account", withAuth(handleUpdateAccount(userService, logger)))
	mux.Handle("PATCH /api/v1/users/avatar", withAuth(handleUpdateAvatar(userService, logger)))
	mux.Handle("PATCH /api/v1/users/cover-image", withAuth(handleUpdateCoverImage(userService, logger)))

	mds := []func(http.Handler) http.Handler{
		middleware.LoggerMiddleware(logger),
	}
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
		mds = append(mds, middleware.MetricsMiddleware(metrics))
	}

	return chain(mux, mds...)
}

type authService interface {
	// Login user with username or email
	// Has to return apperrors.ErrInvalidCredentials if user not found or password is wrong
	Login(ctx context.Context, identifier string, password string) (models.User, models.TokenPair, error)

	// Rotate refresh token and issue new pair
	// Has to return error wrapping apperrors.ErrUnauthorized if token is not the current one
	RefreshPair(ctx context.Context, refresh string) (models.TokenPair, error)

	Logout(ctx context.Context, userID uuid.UUID) error
	ChangePassword(ctx context.Context, userID uuid.UUID, oldPassword string, newPassword string) error

	// Get request and return caller if it authenticated or error
	Authenticate(ctx context.Context, r *http.Request) (models.Identity, error)

	// Set or clear auth tokens (access, refresh) on response
	SetTokens(w http.ResponseWriter, pair models.TokenPair)
	ClearTokens(w http.ResponseWriter)

	// Get refresh token from request
	ReadRefresh(r *http.Request) (string, error)
}

type userService interface {
	CreateUser(ctx context.Context, params user.CreateUserParams) (models.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateAccount(ctx context.Context, userID uuid.UUID, fullname string, email string) (models.User, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, image io.Reader) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, image io.Reader) (models.User, error)
}

// Database (or anything else) the service can't work without
type pinger interface {
	Ping(ctx context.Context) error
}

type metricsService interface {
	ObserveHTTP(method string, route string, status int, duration time.Duration)
	Handler() http.Handler
}
