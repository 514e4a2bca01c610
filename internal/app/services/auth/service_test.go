package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	domainauth "campusmarket/internal/domain/auth"
	domainuser "campusmarket/internal/domain/user"
	"campusmarket/internal/infra/security"
	"campusmarket/internal/infra/storage/memory"
)

func newService() *Service {
	return &Service{
		Users:       memory.NewUserRepository(),
		Sessions:    memory.NewSessionStore(),
		Passwords:   security.BcryptHasher{Cost: 4},
		Tokens:      security.RandomTokenGenerator{},
		SessionTTL:  time.Hour,
		EmailDomain: "ku.edu",
	}
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	service := newService()
	ctx := context.Background()

	registered, err := service.Register(ctx, RegisterParams{
		Email:    "Jay.Hawk@KU.EDU",
		Name:     "Jay Hawk",
		Password: "sunflower42",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Emails are normalized to lowercase.
	if registered.User.Email != "jay.hawk@ku.edu" {
		t.Errorf("expected normalized email, got %q", registered.User.Email)
	}
	if registered.Token == "" {
		t.Error("expected a session token on registration")
	}

	resolved, err := service.ResolveToken(ctx, registered.Token)
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if resolved.User.ID != registered.User.ID {
		t.Errorf("token resolves to %s, expected %s", resolved.User.ID, registered.User.ID)
	}

	logged, err := service.Login(ctx, LoginParams{Email: "jay.hawk@ku.edu", Password: "sunflower42"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if logged.User.ID != registered.User.ID {
		t.Errorf("login resolves to %s, expected %s", logged.User.ID, registered.User.ID)
	}

	if _, err := service.Login(ctx, LoginParams{Email: "jay.hawk@ku.edu", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := service.Login(ctx, LoginParams{Email: "nobody@ku.edu", Password: "sunflower42"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestRegisterRejectsForeignDomain(t *testing.T) {
	t.Parallel()
	service := newService()

	_, err := service.Register(context.Background(), RegisterParams{
		Email:    "outsider@gmail.com",
		Name:     "Out Sider",
		Password: "password123",
	})
	if !errors.Is(err, ErrEmailDomain) {
		t.Errorf("expected ErrEmailDomain, got %v", err)
	}
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	t.Parallel()
	service := newService()

	_, err := service.Register(context.Background(), RegisterParams{
		Email:    "jay@ku.edu",
		Name:     "Jay",
		Password: "short",
	})
	if !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	t.Parallel()
	service := newService()
	ctx := context.Background()

	if _, err := service.Register(ctx, RegisterParams{Email: "jay@ku.edu", Name: "Jay", Password: "sunflower42"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	_, err := service.Register(ctx, RegisterParams{Email: "JAY@ku.edu", Name: "Jay Two", Password: "sunflower42"})
	if !errors.Is(err, domainuser.ErrEmailAlreadyUsed) {
		t.Errorf("expected ErrEmailAlreadyUsed, got %v", err)
	}
}

func TestLogoutInvalidatesSession(t *testing.T) {
	t.Parallel()
	service := newService()
	ctx := context.Background()

	registered, err := service.Register(ctx, RegisterParams{Email: "jay@ku.edu", Name: "Jay", Password: "sunflower42"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := service.Logout(ctx, registered.Token); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := service.ResolveToken(ctx, registered.Token); !errors.Is(err, domainauth.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound after logout, got %v", err)
	}
}

func TestExpiredSessionIsRejected(t *testing.T) {
	t.Parallel()
	service := newService()
	service.SessionTTL = time.Millisecond
	ctx := context.Background()

	registered, err := service.Register(ctx, RegisterParams{Email: "jay@ku.edu", Name: "Jay", Password: "sunflower42"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := service.ResolveToken(ctx, registered.Token); !errors.Is(err, domainauth.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound for expired session, got %v", err)
	}
}
