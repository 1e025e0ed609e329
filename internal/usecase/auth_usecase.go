package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

// accesstokenの有効期限
const accessTokenTTL = 15 * time.Minute

type AuthUsecase struct {
	users     repo.UserRepository
	jwtSecret []byte
}

func NewAuthUsecase(users repo.UserRepository, jwtSecret string) *AuthUsecase {
	return &AuthUsecase{users: users, jwtSecret: []byte(jwtSecret)}
}

type UserDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type LoginOutput struct {
	User        UserDTO `json:"user"`
	AccessToken string  `json:"access_token"`
	ExpiresIn   int     `json:"expires_in"`
}

func (u *AuthUsecase) Register(ctx context.Context, email string, password string) (UserDTO, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return UserDTO{}, fmt.Errorf("%w: invalid email", ErrValidation)
	}
	if len(password) < 8 {
		return UserDTO{}, fmt.Errorf("%w: password too short", ErrValidation)
	}

	if _, err := u.users.FindByEmail(ctx, email); err == nil {
		return UserDTO{}, fmt.Errorf("%w: email taken", ErrConflict)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return UserDTO{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		return UserDTO{}, err
	}

	id, err := u.users.Create(ctx, model.User{
		Email:        email,
		PasswordHash: string(hash),
		Role:         model.RoleCustomer,
		IsActive:     true,
	})
	if err != nil {
		return UserDTO{}, err
	}

	return UserDTO{ID: id, Email: email, Role: string(model.RoleCustomer)}, nil
}

func (u *AuthUsecase) Login(ctx context.Context, email string, password string) (LoginOutput, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return LoginOutput{}, fmt.Errorf("%w: missing credentials", ErrValidation)
	}

	user, err := u.users.FindByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return LoginOutput{}, ErrUnauthorized
	}
	if err != nil {
		return LoginOutput{}, err
	}
	if !user.IsActive {
		return LoginOutput{}, ErrUnauthorized
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginOutput{}, ErrUnauthorized
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  fmt.Sprintf("%d", user.ID),
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(accessTokenTTL).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(u.jwtSecret)
	if err != nil {
		return LoginOutput{}, err
	}

	return LoginOutput{
		User:        UserDTO{ID: user.ID, Email: user.Email, Role: string(user.Role)},
		AccessToken: signed,
		ExpiresIn:   int(accessTokenTTL.Seconds()),
	}, nil
}
