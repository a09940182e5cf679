package memory

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/vidtube/internal/apperrors"
	"github.com/nkiryanov/vidtube/internal/repository"
)

func Test_UserRepo(t *testing.T) {
	alice := repository.CreateUserParams{
		Username:       "alice",
		Email:          "alice@x.com",
		HashedPassword: "hash",
	}

	t.Run("create and get", func(t *testing.T) {
		r := NewStorage().User()

		created, err := r.CreateUser(t.Context(), alice)
		require.NoError(t, err)

		byID, err := r.GetUserByID(t.Context(), created.ID)
		require.NoError(t, err)
		assert.Equal(t, created, byID)

		byEmail, err := r.GetUserByIdentifier(t.Context(), "ALICE@x.com")
		require.NoError(t, err)
		assert.Equal(t, created.ID, byEmail.ID)

		_, err = r.GetUserByID(t.Context(), uuid.New())
		require.ErrorIs(t, err, apperrors.ErrUserNotFound)
	})

	t.Run("duplicate fails", func(t *testing.T) {
		r := NewStorage().User()
		_, err := r.CreateUser(t.Context(), alice)
		require.NoError(t, err)

		_, err = r.CreateUser(t.Context(), repository.CreateUserParams{Username: "bob", Email: "alice@x.com"})
		require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)

		_, err = r.CreateUser(t.Context(), repository.CreateUserParams{Username: "Alice", Email: "bob@x.com"})
		require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
	})

	t.Run("rotate is compare-and-swap", func(t *testing.T) {
		r := NewStorage().User()
		u, err := r.CreateUser(t.Context(), alice)
		require.NoError(t, err)

		require.ErrorIs(t, r.RotateRefreshToken(t.Context(), u.ID, "", "a"), apperrors.ErrRefreshTokenRevoked)

		require.NoError(t, r.SetRefreshToken(t.Context(), u.ID, "a"))
		require.NoError(t, r.RotateRefreshToken(t.Context(), u.ID, "a", "b"))
		require.ErrorIs(t, r.RotateRefreshToken(t.Context(), u.ID, "a", "c"), apperrors.ErrRefreshTokenRevoked)

		require.NoError(t, r.SetRefreshToken(t.Context(), uuid.New(), ""), "unknown user is not an error")
	})

	t.Run("concurrent rotate has one winner", func(t *testing.T) {
		r := NewStorage().User()
		u, err := r.CreateUser(t.Context(), alice)
		require.NoError(t, err)
		require.NoError(t, r.SetRefreshToken(t.Context(), u.ID, "current"))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if r.RotateRefreshToken(t.Context(), u.ID, "current", uuid.NewString()) == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), wins.Load())
	})

	t.Run("update account", func(t *testing.T) {
		r := NewStorage().User()
		u, err := r.CreateUser(t.Context(), alice)
		require.NoError(t, err)
		_, err = r.CreateUser(t.Context(), repository.CreateUserParams{Username: "bob", Email: "bob@x.com"})
		require.NoError(t, err)

		got, err := r.UpdateAccount(t.Context(), u.ID, repository.UpdateAccountParams{Fullname: "A", Email: "alice@x.com"})
		require.NoError(t, err, "own email is not a duplicate")
		assert.Equal(t, "A", got.Fullname)

		_, err = r.UpdateAccount(t.Context(), u.ID, repository.UpdateAccountParams{Email: "bob@x.com"})
		require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)

		err = r.UpdatePassword(t.Context(), uuid.New(), "h")
		require.ErrorIs(t, err, apperrors.ErrUserNotFound)

		got, err = r.UpdateAvatar(t.Context(), u.ID, "https://cdn/a.png")
		require.NoError(t, err)
		assert.Equal(t, "https://cdn/a.png", got.AvatarURL)
	})
}
