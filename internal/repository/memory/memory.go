// Package memory implements repository.Storage in process memory.
// Used by service and handler tests and for local runs without postgres.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/repository"
)

type Storage struct {
	mu    sync.Mutex
	users map[uuid.UUID]models.User

	// Used to stub time in tests
	Now func() time.Time
}

func NewStorage() *Storage {
	return &Storage{
		users: make(map[uuid.UUID]models.User),
		Now:   time.Now,
	}
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{s: s}
}

// Memory storage has no transactions: fn runs against the same storage and changes are not rolled back
func (s *Storage) InTx(_ context.Context, fn func(repository.Storage) error) error {
	return fn(s)
}

type UserRepo struct {
	s *Storage
}

func (r *UserRepo) CreateUser(_ context.Context, p repository.CreateUserParams) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.taken(uuid.Nil, p.Username, p.Email) {
		return models.User{}, apperrors.ErrUserAlreadyExists
	}

	now := r.s.Now()
	u := models.User{
		ID:             uuid.New(),
		CreatedAt:      now,
		UpdatedAt:      now,
		Username:       p.Username,
		Email:          p.Email,
		Fullname:       p.Fullname,
		AvatarURL:      p.AvatarURL,
		CoverImageURL:  p.CoverImageURL,
		HashedPassword: p.HashedPassword,
	}
	r.s.users[u.ID] = u

	return u, nil
}

func (r *UserRepo) GetUserByID(_ context.Context, userID uuid.UUID) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	return u, nil
}

func (r *UserRepo) GetUserByIdentifier(_ context.Context, identifier string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.Email, identifier) {
			return u, nil
		}
	}
	return models.User{}, apperrors.ErrUserNotFound
}

func (r *UserRepo) SetRefreshToken(_ context.Context, userID uuid.UUID, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil
	}
	u.RefreshToken = token
	r.s.users[userID] = u
	return nil
}

func (r *UserRepo) RotateRefreshToken(_ context.Context, userID uuid.UUID, current string, next string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok || current == "" || u.RefreshToken != current {
		return apperrors.ErrRefreshTokenRevoked
	}
	u.RefreshToken = next
	r.s.users[userID] = u
	return nil
}

func (r *UserRepo) UpdatePassword(_ context.Context, userID uuid.UUID, hashedPassword string) error {
	_, err := r.update(userID, func(u *models.User) error {
		u.HashedPassword = hashedPassword
		return nil
	})
	return err
}

func (r *UserRepo) UpdateAccount(_ context.Context, userID uuid.UUID, p repository.UpdateAccountParams) (models.User, error) {
	return r.update(userID, func(u *models.User) error {
		if r.taken(userID, "", p.Email) {
			return apperrors.ErrUserAlreadyExists
		}
		u.Fullname = p.Fullname
		u.Email = p.Email
		return nil
	})
}

func (r *UserRepo) UpdateAvatar(_ context.Context, userID uuid.UUID, avatarURL string) (models.User, error) {
	return r.update(userID, func(u *models.User) error {
		u.AvatarURL = avatarURL
		return nil
	})
}

func (r *UserRepo) UpdateCoverImage(_ context.Context, userID uuid.UUID, coverImageURL string) (models.User, error) {
	return r.update(userID, func(u *models.User) error {
		u.CoverImageURL = coverImageURL
		return nil
	})
}

func (r *UserRepo) update(userID uuid.UUID, fn func(u *models.User) error) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return models.User{}, apperrors.ErrUserNotFound
	}
	if err := fn(&u); err != nil {
		return models.User{}, err
	}
	u.UpdatedAt = r.s.Now()
	r.s.users[userID] = u

	return u, nil
}

// Whether username or email is used by a user other than 'except'. Must be called with lock held
func (r *UserRepo) taken(except uuid.UUID, username string, email string) bool {
	for id, u := range r.s.users {
		if id == except {
			continue
		}
		if username != "" && strings.EqualFold(u.Username, username) {
			return true
		}
		if email != "" && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}
