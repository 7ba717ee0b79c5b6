package auth_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/skillexa/internal/apperrors"
	"github.com/nkiryanov/skillexa/internal/repository/postgres"
	"github.com/nkiryanov/skillexa/internal/service/auth"
	"github.com/nkiryanov/skillexa/internal/service/auth/tokenmanager"
	"github.com/nkiryanov/skillexa/internal/service/user"
	"github.com/nkiryanov/skillexa/internal/testutil"
)

func Test_Auth(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	// Begin new db transaction and create new AuthService
	// Rollback transaction when test stops
	inTx := func(t *testing.T, fn func(s *auth.AuthService)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			tokenManager, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret-key"})
			require.NoError(t, err, "token manager should be created without errors")

			users := user.NewService(auth.DefaultHasher, postgres.NewStorage(tx))

			s, err := auth.NewService(auth.Config{}, tokenManager, users)
			require.NoError(t, err, "auth service could't be started")

			fn(s)
		})
	}

	t.Run("Register", func(t *testing.T) {
		t.Run("new user ok", func(t *testing.T) {
			inTx(t, func(s *auth.AuthService) {
				token, err := s.Register(t.Context(), "nkiryanov", "pwd")

				require.NoError(t, err, "registering new user should be ok")
				require.NotEmpty(t, token.Value, "access token should not be empty")
			})
		})

		t.Run("fail if user exists", func(t *testing.T) {
			inTx(t, func(s *auth.AuthService) {
				_, err := s.Register(t.Context(), "nkiryanov", "pwd")
				require.NoError(t, err, "no error has should happen if user not exists")

				_, err = s.Register(t.Context(), "nkiryanov", "other-pwd")

				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("Login", func(t *testing.T) {
		t.Run("existing user ok", func(t *testing.T) {
			inTx(t, func(s *auth.AuthService) {
				_, err := s.Register(t.Context(), "nkiryanov", "pwd")
				require.NoError(t, err)

				token, err := s.Login(t.Context(), "nkiryanov", "pwd")

				require.NoError(t, err)
				require.NotEmpty(t, token.Value, "access token should not be empty")
			})
		})

		tests := []struct {
			name        string
			login       string
			password    string
			expectedErr error
		}{
			{
				name:        "login fail if wrong password",
				login:       "nkiryanov",
				password:    "wrong",
				expectedErr: apperrors.ErrUserNotFound,
			},
			{
				name:        "login fail if user not exists",
				login:       "not-existed-user",
				password:    "password",
				expectedErr: apperrors.ErrUserNotFound,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				inTx(t, func(s *auth.AuthService) {
					_, err := s.Register(t.Context(), "nkiryanov", "pwd")
					require.NoError(t, err)

					_, err = s.Login(t.Context(), tt.login, tt.password)

					require.ErrorIs(t, err, tt.expectedErr)
				})
			})
		}
	})

	t.Run("SetToken and Auth", func(t *testing.T) {
		t.Run("auth ok", func(t *testing.T) {
			inTx(t, func(s *auth.AuthService) {
				token, err := s.Register(t.Context(), "nkiryanov", "pwd")
				require.NoError(t, err)

				w := httptest.NewRecorder()
				s.SetToken(w, token)
				header := w.Header().Get("Authorization")
				require.True(t, strings.HasPrefix(header, "Bearer "), "token has to be set with Bearer scheme")

				r := httptest.NewRequest(http.MethodGet, "/", nil)
				r.Header.Set("Authorization", header)
				u, err := s.Auth(t.Context(), r)

				require.NoError(t, err)
				require.Equal(t, "nkiryanov", u.Username)
			})
		})

		tests := []struct {
			name   string
			header string
		}{
			{name: "no header", header: ""},
			{name: "wrong scheme", header: "Basic abc"},
			{name: "not a token", header: "Bearer not-a-token"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				inTx(t, func(s *auth.AuthService) {
					r := httptest.NewRequest(http.MethodGet, "/", nil)
					if tt.header != "" {
						r.Header.Set("Authorization", tt.header)
					}

					_, err := s.Auth(t.Context(), r)

					require.Error(t, err)
				})
			})
		}
	})
}
