package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/skillexa/internal/models"
)

const (
	defaultAccessHeaderName = "Authorization"
	defaultAccessAuthScheme = "Bearer"
)

var errNoAccessToken = errors.New("access token not provided")

type tokenManager interface {
	Generate(user models.User) (models.IssuedToken, error)
	Parse(access string) (uuid.UUID, error)
}

type userService interface {
	// Has to return apperrors.ErrUserAlreadyExists if username is taken
	CreateUser(ctx context.Context, username string, password string) (models.User, error)

	// Has to return apperrors.ErrUserNotFound if user not exists or password not match
	Login(ctx context.Context, username string, password string) (models.User, error)

	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

// Where access token is transferred. Defaults are used if not set
type Config struct {
	AccessHeaderName string
	AccessAuthScheme string
}

type AuthService struct {
	accessHeaderName string
	accessAuthScheme string

	tokens tokenManager
	users  userService
}

func NewService(cfg Config, tokens tokenManager, users userService) (*AuthService, error) {
	if cfg.AccessHeaderName == "" {
		cfg.AccessHeaderName = defaultAccessHeaderName
	}
	if cfg.AccessAuthScheme == "" {
		cfg.AccessAuthScheme = defaultAccessAuthScheme
	}

	return &AuthService{
		accessHeaderName: cfg.AccessHeaderName,
		accessAuthScheme: cfg.AccessAuthScheme,
		tokens:           tokens,
		users:            users,
	}, nil
}

// Register user and issue access token for it
func (s *AuthService) Register(ctx context.Context, username string, password string) (models.IssuedToken, error) {
	user, err := s.users.CreateUser(ctx, username, password)
	if err != nil {
		return models.IssuedToken{}, err
	}

	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, username string, password string) (models.IssuedToken, error) {
	user, err := s.users.Login(ctx, username, password)
	if err != nil {
		return models.IssuedToken{}, err
	}

	return s.issue(user)
}

func (s *AuthService) issue(user models.User) (models.IssuedToken, error) {
	token, err := s.tokens.Generate(user)
	if err != nil {
		return token, fmt.Errorf("token could not generated, sorry. %w", err)
	}
	return token, nil
}

// Set access token to response header
func (s *AuthService) SetToken(w http.ResponseWriter, token models.IssuedToken) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+token.Value)
}

// Authenticate request by its access token
func (s *AuthService) Auth(ctx context.Context, r *http.Request) (models.User, error) {
	header := r.Header.Get(s.accessHeaderName)
	access, ok := strings.CutPrefix(header, s.accessAuthScheme+" ")
	if !ok || access == "" {
		return models.User{}, errNoAccessToken
	}

	userID, err := s.tokens.Parse(access)
	if err != nil {
		return models.User{}, err
	}

	return s.users.GetUserByID(ctx, userID)
}
