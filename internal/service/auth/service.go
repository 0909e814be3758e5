package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/blastline/blastline/internal/storage"
	"github.com/blastline/blastline/internal/storage/model"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

type Service struct {
	users     storage.UserRepository
	jwtSecret string
	jwtExp    time.Duration
}

func NewService(users storage.UserRepository, jwtSecret string, jwtExp time.Duration) *Service {
	return &Service{users: users, jwtSecret: jwtSecret, jwtExp: jwtExp}
}

func (s *Service) Register(ctx context.Context, email, password, role string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return model.User{}, ErrInvalidCredentials
	}
	if len(password) < 8 {
		return model.User{}, ErrWeakPassword
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return model.User{}, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, err
	}
	if role == "" {
		role = "operator"
	}
	return s.users.Create(ctx, model.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	})
}

// Login verifies the credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", model.User{}, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", model.User{}, ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID,
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(s.jwtExp).Unix(),
	})
	signed, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", model.User{}, err
	}
	return signed, user, nil
}
