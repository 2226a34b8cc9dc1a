// Package authpw provides email/password authentication for the ticket desk.
package authpw

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nexticket/api/internal/store"
	"nexticket/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountInactive is deliberately distinct from bad credentials so the
	// operator can tell a deactivated account from a typo.
	ErrAccountInactive = errors.New("account is inactive")
)

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
}

// Service provides email/password authentication
type Service struct {
	store UserStore
}

func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignIn authenticates a user. Inactive accounts are rejected before the
// password is compared, mirroring the login gate the product always had.
func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	if user.Status == "INACTIVE" {
		return store.User{}, ErrAccountInactive
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// CreateUserRequest contains the fields a DEV supplies when provisioning an
// account from the user-management screen.
type CreateUserRequest struct {
	Name     string
	Email    string
	Password string
	Role     string
	Avatar   string
}

func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (store.User, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return store.User{}, errors.New("name, email and password are required")
	}
	if len(req.Password) < 8 {
		return store.User{}, errors.New("password must be at least 8 characters")
	}

	if _, err := s.store.GetUserByEmail(ctx, req.Email); err == nil {
		return store.User{}, errors.New("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	role := req.Role
	if role != "DEV" {
		role = "USER"
	}
	avatar := strings.TrimSpace(req.Avatar)
	if avatar == "" && req.Name != "" {
		avatar = strings.ToUpper(req.Name[:1])
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		Role:         role,
		Status:       "ACTIVE",
		Avatar:       avatar,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

// ResetPassword replaces a user's password; only reachable through the
// DEV-gated user-management routes.
func (s *Service) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if len(newPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}
