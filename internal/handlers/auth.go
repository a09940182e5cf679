package handlers

import (
	"cmp"
	"net"
	"net/http"

	"github.com/nkiryanov/vidtube/internal/handlers/render"
	"github.com/nkiryanov/vidtube/internal/handlers/userctx"
	"github.com/nkiryanov/vidtube/internal/logger"
	"github.com/nkiryanov/vidtube/internal/models"
	"github.com/nkiryanov/vidtube/internal/service/auth"
)

const maxJSONBodySize = 64 << 10

type tokensResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func newTokensResponse(pair models.TokenPair) tokensResponse {
	return tokensResponse{
		AccessToken:  pair.Access.Value,
		RefreshToken: pair.Refresh.Value,
	}
}

func handleLogin(as authService, l logger.Logger) http.Handler {
	type request struct {
		Identifier string `json:"identifier" validate:"required_without_all=Username Email"`
		Username   string `json:"username"`
		Email      string `json:"email"`
		Password   string `json:"password" validate:"required"`
	}
	type response struct {
		User models.Identity `json:"user"`
		tokensResponse
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		ctx := auth.WithClientIP(r.Context(), remoteHost(r))
		identifier := cmp.Or(req.Identifier, req.Username, req.Email)

		user, pair, err := as.Login(ctx, identifier, req.Password)
		if err != nil {
			renderError(w, l, err)
			return
		}

		as.SetTokens(w, pair)
		render.JSON(w, response{User: user.Identity(), tokensResponse: newTokensResponse(pair)})
	})
}

func handleRefreshToken(as authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := as.ReadRefresh(r)
		if err != nil {
			renderError(w, l, err)
			return
		}

		pair, err := as.RefreshPair(r.Context(), refresh)
		if err != nil {
			renderError(w, l, err)
			return
		}

		as.SetTokens(w, pair)
		render.JSON(w, newTokensResponse(pair))
	})
}

func handleLogout(as authService, l logger.Logger) http.Handler {
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _ := userctx.FromContext(r.Context())

		if err := as.Logout(r.Context(), user.ID); err != nil {
			renderError(w, l, err)
			return
		}

		as.ClearTokens(w)
		render.JSON(w, response{Message: "User logged out"})
	})
}

func handleChangePassword(as authService, l logger.Logger) http.Handler {
	type request struct {
		OldPassword string `json:"oldPassword" validate:"required"`
		NewPassword string `json:"newPassword" validate:"required,min=6,max=72"`
	}
	type response struct {
		Message string `json:"message"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)

		req, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		user, _ := userctx.FromContext(r.Context())

		if err := as.ChangePassword(r.Context(), user.ID, req.OldPassword, req.NewPassword); err != nil {
			renderError(w, l, err)
			return
		}

		render.JSON(w, response{Message: "Password changed"})
	})
}

// Host part of the remote address; whole address if it has no port
func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
