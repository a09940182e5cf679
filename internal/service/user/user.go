package user

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/repository"
	"github.com/nkiryanov/vidtube/internal/service/auth"
	"github.com/nkiryanov/vidtube/internal/service/media"
)

const (
	avatarPrefix     = "avatars"
	coverImagePrefix = "covers"
)

type CreateUserParams struct {
	Username string
	Email    string
	Fullname string
	Password string

	// Optional images. Nil if not uploaded
	Avatar     io.Reader
	CoverImage io.Reader
}

type imageDropper interface {
	Drop(url string)
}

type Option func(*UserService)

// Delete replaced images in background instead of during request
func WithCleaner(c imageDropper) Option {
	return func(s *UserService) { s.cleaner = c }
}

type UserService struct {
	hasher  auth.PasswordHasher
	storage repository.Storage

	// Nil if media storage is not configured
	media   media.Store
	cleaner imageDropper

	logger logger.Logger
}

func NewService(hasher auth.PasswordHasher, storage repository.Storage, store media.Store, l logger.Logger, opts ...Option) *UserService {
	if hasher == nil {
		hasher = auth.DefaultHasher
	}
	if l == nil {
		l = logger.NewNoOpLogger()
	}

	s := &UserService{
		hasher:  hasher,
		storage: storage,
		media:   store,
		logger:  l,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Register new user
// Returns apperrors.ErrUserAlreadyExists if username or email is taken
func (s *UserService) CreateUser(ctx context.Context, p CreateUserParams) (models.User, error) {
	var user models.User
	if p.Password == "" {
		return user, errors.New("password must not be empty")
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	params := repository.CreateUserParams{
		Username:       auth.NormalizeIdentifier(p.Username),
		Email:          auth.NormalizeIdentifier(p.Email),
		Fullname:       p.Fullname,
		HashedPassword: hash,
	}

	if p.Avatar != nil {
		params.AvatarURL, err = media.UploadImage(ctx, s.media, avatarPrefix, p.Avatar)
		if err != nil {
			return user, err
		}
	}
	if p.CoverImage != nil {
		params.CoverImageURL, err = media.UploadImage(ctx, s.media, coverImagePrefix, p.CoverImage)
		if err != nil {
			s.dropImage(ctx, params.AvatarURL)
			return user, err
		}
	}

	user, err = s.storage.User().CreateUser(ctx, params)
	if err != nil {
		s.dropImage(ctx, params.AvatarURL)
		s.dropImage(ctx, params.CoverImageURL)
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.storage.User().GetUserByID(ctx, userID)
}

// Email is normalized same way as on registration
func (s *UserService) UpdateAccount(ctx context.Context, userID uuid.UUID, fullname string, email string) (models.User, error) {
	user, err := s.storage.User().UpdateAccount(ctx, userID, repository.UpdateAccountParams{
		Fullname: fullname,
		Email:    auth.NormalizeIdentifier(email),
	})
	if err != nil {
		return user, fmt.Errorf("can't update account. Err: %w", err)
	}

	return user, nil
}

func (s *UserService) UpdateAvatar(ctx context.Context, userID uuid.UUID, image io.Reader) (models.User, error) {
	return s.updateImage(ctx, userID, avatarPrefix, image, func(u models.User) string { return u.AvatarURL }, repository.UserRepo.UpdateAvatar)
}

func (s *UserService) UpdateCoverImage(ctx context.Context, userID uuid.UUID, image io.Reader) (models.User, error) {
	return s.updateImage(ctx, userID, coverImagePrefix, image, func(u models.User) string { return u.CoverImageURL }, repository.UserRepo.UpdateCoverImage)
}

type updateURLFunc func(r repository.UserRepo, ctx context.Context, userID uuid.UUID, url string) (models.User, error)

// Upload new image, swap URL on the record and drop the previous image
// The uploaded image is dropped if the record could not be updated
func (s *UserService) updateImage(
	ctx context.Context,
	userID uuid.UUID,
	prefix string,
	image io.Reader,
	current func(models.User) string,
	update updateURLFunc,
) (models.User, error) {
	var user models.User
	var previous string

	url, err := media.UploadImage(ctx, s.media, prefix, image)
	if err != nil {
		return user, err
	}

	err = s.storage.InTx(ctx, func(storage repository.Storage) error {
		old, err := storage.User().GetUserByID(ctx, userID)
		if err != nil {
			return err
		}
		previous = current(old)

		user, err = update(storage.User(), ctx, userID, url)
		return err
	})
	if err != nil {
		s.dropImage(ctx, url)
		return user, fmt.Errorf("can't update image. Err: %w", err)
	}

	s.dropImage(ctx, previous)
	return user, nil
}

// Best effort: image left in bucket is not worth failing the request
func (s *UserService) dropImage(ctx context.Context, url string) {
	if url == "" || s.media == nil {
		return
	}

	if s.cleaner != nil {
		s.cleaner.Drop(url)
		return
	}

	if err := s.media.Delete(ctx, url); err != nil {
		s.logger.Warn("can't delete image", "url", url, "error", err)
	}
}
