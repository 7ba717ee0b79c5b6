package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/handlers/render"
	"github.com/nkiryanov/skillexa/internal/logger"
)

type tokenResponse struct {
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

func handleRegister(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required,min=2,max=50"`
		Password string `json:"password" validate:"required,min=8"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		token, err := authService.Register(r.Context(), data.Login, data.Password)
		if err != nil {
			renderError(w, r, err, l)
			return
		}

		authService.SetToken(w, token)
		render.JSON(w, tokenResponse{Message: "User registered successfully", ExpiresAt: token.ExpiresAt})
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type request struct {
		Login    string `json:"login" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[request](w, r)
		if err != nil {
			return
		}

		token, err := authService.Login(r.Context(), data.Login, data.Password)
		switch {
		case err == nil:
			authService.SetToken(w, token)
			render.JSON(w, tokenResponse{Message: "User logged in successfully", ExpiresAt: token.ExpiresAt})
		case errors.Is(err, apperrors.ErrUserNotFound):
			render.ServiceError(w, "User not found", http.StatusUnauthorized)
		default:
			renderError(w, r, err, l)
		}
	})
}
