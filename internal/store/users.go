package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// User is a login account. PasswordHash is a bcrypt hash.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CompanyName  string
	Role         string
}

// CreateUser inserts u, failing with ErrDuplicate when the username is taken.
func (s *Store) CreateUser(ctx context.Context, u User) (User, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, u.Username).Scan(&exists); err != nil {
		return User{}, fmt.Errorf("check user existence: %w", err)
	}
	if exists {
		return User{}, fmt.Errorf("user %q: %w", u.Username, ErrDuplicate)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, company_name, role) VALUES (?, ?, ?, ?)
	`, u.Username, u.PasswordHash, u.CompanyName, u.Role)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return User{}, fmt.Errorf("user id: %w", err)
	}
	return u, nil
}

// FindUser loads a user by username.
func (s *Store) FindUser(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, company_name, role FROM users WHERE username = ?
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CompanyName, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}
