package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/vidtube/internal/handlers/render"
	"github.com/nkiryanov/vidtube/internal/handlers/userctx"
	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/service/media"
	"github.com/nkiryanov/vidtube/internal/service/user"
)

const (
	avatarField     = "avatar"
	coverImageField = "coverImage"

	// Two images and the form fields
	maxMultipartBodySize = 2*media.MaxImageSize + 1<<20

	// Everything above is spooled to temp files by mime/multipart
	multipartMemory = 8 << 20
)

func handleRegister(us userService, l logger.Logger) http.Handler {
	type request struct {
		Username string `json:"username" validate:"required,min=3,max=30,username"`
		Email    string `json:"email" validate:"required,email,max=254"`
		Fullname string `json:"fullname" validate:"max=100"`
		Password string `json:"password" validate:"required,min=6,max=72"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			req    request
			params user.CreateUserParams
			err    error
		)

		if isMultipart(r) {
			r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBodySize)
			if err = r.ParseMultipartForm(multipartMemory); err != nil {
				render.DecodeError(w, err)
				return
			}
			defer r.MultipartForm.RemoveAll() // nolint:errcheck

			req = request{
				Username: r.FormValue("username"),
				Email:    r.FormValue("email"),
				Fullname: r.FormValue("fullname"),
				Password: r.FormValue("password"),
			}
			if err = render.Validate(w, req); err != nil {
				return
			}

			avatar, err := formFile(r, avatarField)
			if err != nil {
				render.DecodeError(w, err)
				return
			}
			if avatar != nil {
				defer avatar.Close() // nolint:errcheck
				params.Avatar = avatar
			}

			cover, err := formFile(r, coverImageField)
			if err != nil {
				render.DecodeError(w, err)
				return
			}
			if cover != nil {
				defer cover.Close() // nolint:errcheck
				params.CoverImage = cover
			}
		} else {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
			if req, err = render.BindAndValidate[request](w, r); err != nil {
				return
			}
		}

		params.Username = req.Username
		params.Email = req.Email
		params.Fullname = req.Fullname
		params.Password = req.Password

		created, err := us.CreateUser(r.Context(), params)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, created.Identity())
	})
}

func handleCurrentUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := userctx.FromContext(r.Context())
		render.JSON(w, identity)
	})
}

func handleUpdateAccount(us userService, l logger.Logger) http.Handler {
	type request struct {
		Fullname string `json:"fullname" validate:"required,max=100"`
		Email    string `json:"email" validate:"required,email,max=254"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		identity, _ := userctx.FromContext(r.Context())

		updated, err := us.UpdateAccount(r.Context(), identity.ID, req.Fullname, req.Email)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, updated.Identity())
	})
}

func handleUpdateAvatar(us userService, l logger.Logger) http.Handler {
	return handleImage(avatarField, us.UpdateAvatar, l)
}

func handleUpdateCoverImage(us userService, l logger.Logger) http.Handler {
	return handleImage(coverImageField, us.UpdateCoverImage, l)
}

// Read single image from multipart form field and pass it to update
func handleImage(field string, update func(ctx context.Context, userID uuid.UUID, image io.Reader) (models.User, error), l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMultipart(r) {
			render.Error(w, render.DecodingErrorType, "Expected multipart/form-data body", http.StatusBadRequest)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBodySize)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			render.DecodeError(w, err)
			return
		}
		defer r.MultipartForm.RemoveAll() // nolint:errcheck

		image, err := formFile(r, field)
		switch {
		case err != nil:
			render.DecodeError(w, err)
			return
		case image == nil:
			render.ErrorWithFields(w, render.ValidationErrorType, "Request validation failed", map[string]string{field: "This field is required"}, http.StatusBadRequest)
			return
		}
		defer image.Close() // nolint:errcheck

		identity, _ := userctx.FromContext(r.Context())

		updated, err := update(r.Context(), identity.ID, image)
		if err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, updated.Identity())
	})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// Open uploaded file. Returns nil file if field is absent
func formFile(r *http.Request, field string) (multipart.File, error) {
	f, _, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	return f, err
}
