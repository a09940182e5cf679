package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/models"
)

type CreateUserParams struct {
	Username       string
	Email          string
	Fullname       string
	HashedPassword string
	AvatarURL      string
	CoverImageURL  string
}

type UpdateAccountParams struct {
	Fullname string
	Email    string
}

// User repository interface
// Username and email expected to be normalized by caller (trimmed and lower-cased)
type UserRepo interface {
	// Create user
	// If user with username or email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id, or by username or email (whatever matches)
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByIdentifier(ctx context.Context, identifier string) (models.User, error)

	// Overwrite current refresh token. Empty token means no active session
	// Must not fail if user not exists: logout of deleted user is not an error
	SetRefreshToken(ctx context.Context, userID uuid.UUID, token string) error

	// Replace refresh token only if current value is equal to 'current' (compare-and-swap)
	// Has to return apperrors.ErrRefreshTokenRevoked if current value differs or user not found
	RotateRefreshToken(ctx context.Context, userID uuid.UUID, current string, next string) error

	// Single row updates. Must return apperrors.ErrUserNotFound if user not exists
	UpdatePassword(ctx context.Context, userID uuid.UUID, hashedPassword string) error
	UpdateAccount(ctx context.Context, userID uuid.UUID, params UpdateAccountParams) (models.User, error)
	UpdateAvatar(ctx context.Context, userID uuid.UUID, avatarURL string) (models.User, error)
	UpdateCoverImage(ctx context.Context, userID uuid.UUID, coverImageURL string) (models.User, error)
}

// Storage groups repositories and allows to run them in a transaction
type Storage interface {
	User() UserRepo

	// Run fn in transaction: commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
