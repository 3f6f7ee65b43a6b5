// Package auth checks user credentials and issues signed session tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/u4rad/campcost/internal/store"
)

// Role decides which wizard branch a user follows.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleCustomer    Role = "customer"
)

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMissingFields      = errors.New("missing required fields")
	ErrUserExists         = errors.New("username already exists")
)

// Credentials is a login attempt.
type Credentials struct {
	Username string
	Password string
}

// Session is an authenticated user. WizardID links it to a wizard session
// once the server has started one.
type Session struct {
	Username    string
	Role        Role
	CompanyName string
	WizardID    string
}

// Authenticator verifies credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, c Credentials) (Session, error)
}

// UserRepository is the persistence Service needs.
type UserRepository interface {
	CreateUser(ctx context.Context, u store.User) (store.User, error)
	FindUser(ctx context.Context, username string) (store.User, error)
}

// Service authenticates and registers users against a UserRepository.
type Service struct {
	users UserRepository
}

func NewService(users UserRepository) *Service {
	return &Service{users: users}
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Authenticate implements Authenticator. Unknown users and wrong passwords
// both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, c Credentials) (Session, error) {
	username := strings.TrimSpace(c.Username)
	if username == "" || c.Password == "" {
		return Session{}, ErrInvalidCredentials
	}

	u, err := s.users.FindUser(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(c.Password)); err != nil {
		return Session{}, ErrInvalidCredentials
	}

	return Session{Username: u.Username, Role: parseRole(u.Role), CompanyName: u.CompanyName}, nil
}

// Register signs up a customer account.
func (s *Service) Register(ctx context.Context, username, password, companyName string) (store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return store.User{}, ErrMissingFields
	}
	return s.create(ctx, username, password, strings.TrimSpace(companyName), RoleCustomer)
}

// EnsureUser creates the account if no user with that name exists. Blank
// credentials are a no-op.
func (s *Service) EnsureUser(ctx context.Context, username, password, companyName string, role Role) error {
	if username == "" || password == "" {
		return nil
	}
	_, err := s.users.FindUser(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("check user existence: %w", err)
	}
	if _, err := s.create(ctx, username, password, companyName, role); err != nil {
		return err
	}
	return nil
}

func (s *Service) create(ctx context.Context, username, password, companyName string, role Role) (store.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return store.User{}, err
	}
	u, err := s.users.CreateUser(ctx, store.User{
		Username:     username,
		PasswordHash: hash,
		CompanyName:  companyName,
		Role:         string(role),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return store.User{}, ErrUserExists
	}
	if err != nil {
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

func parseRole(raw string) Role {
	if Role(raw) == RoleCoordinator {
		return RoleCoordinator
	}
	return RoleCustomer
}
