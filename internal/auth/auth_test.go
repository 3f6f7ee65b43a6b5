package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/u4rad/campcost/internal/store"
)

type memoryUsers struct {
	users map[string]store.User
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]store.User)}
}

func (m *memoryUsers) CreateUser(_ context.Context, u store.User) (store.User, error) {
	if _, ok := m.users[u.Username]; ok {
		return store.User{}, fmt.Errorf("user %q: %w", u.Username, store.ErrDuplicate)
	}
	u.ID = int64(len(m.users) + 1)
	m.users[u.Username] = u
	return u, nil
}

func (m *memoryUsers) FindUser(_ context.Context, username string) (store.User, error) {
	u, ok := m.users[username]
	if !ok {
		return store.User{}, store.ErrNotFound
	}
	return u, nil
}

func TestRegisterHashesPassword(t *testing.T) {
	repo := newMemoryUsers()
	svc := NewService(repo)

	u, err := svc.Register(context.Background(), "ana", "Password@123", "Acme")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.PasswordHash == "Password@123" || u.PasswordHash == "" {
		t.Fatalf("password was not hashed")
	}
	if u.Role != string(RoleCustomer) {
		t.Fatalf("expected customer role, got %q", u.Role)
	}

	if _, err := svc.Register(context.Background(), "ana", "other", ""); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
	if _, err := svc.Register(context.Background(), " ", "pw", ""); !errors.Is(err, ErrMissingFields) {
		t.Fatalf("expected ErrMissingFields, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	repo := newMemoryUsers()
	svc := NewService(repo)
	ctx := context.Background()

	if err := svc.EnsureUser(ctx, "coord", "secret", "U4RAD", RoleCoordinator); err != nil {
		t.Fatalf("ensure coordinator: %v", err)
	}
	if err := svc.EnsureUser(ctx, "coord", "changed", "U4RAD", RoleCoordinator); err != nil {
		t.Fatalf("ensure coordinator twice: %v", err)
	}

	tests := []struct {
		name    string
		creds   Credentials
		wantErr error
	}{
		{name: "valid", creds: Credentials{Username: "coord", Password: "secret"}},
		{name: "wrong password", creds: Credentials{Username: "coord", Password: "changed"}, wantErr: ErrInvalidCredentials},
		{name: "unknown user", creds: Credentials{Username: "ghost", Password: "secret"}, wantErr: ErrInvalidCredentials},
		{name: "blank", creds: Credentials{}, wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := svc.Authenticate(ctx, tt.creds)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("authenticate: %v", err)
			}
			if s.Role != RoleCoordinator || s.CompanyName != "U4RAD" {
				t.Fatalf("unexpected session: %+v", s)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	in := Session{Username: "ana", Role: RoleCustomer, CompanyName: "Acme", WizardID: "w-1"}

	token, err := issuer.Issue(in)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	out, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}

	if _, err := NewTokenIssuer("other-secret", time.Hour).Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for foreign secret, got %v", err)
	}
	if _, err := issuer.Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestTokenExpires(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Minute)
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return start }

	token, err := issuer.Issue(Session{Username: "ana", Role: RoleCustomer})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	issuer.now = func() time.Time { return start.Add(2 * time.Minute) }
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}
