package viewer

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	v, err := svc.Register(ctx, Registration{
		ExternalID: "ana@example.com",
		Password:   "correct horse",
		Filters:    map[string]string{"Region": "West"},
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if v.Email != "ana@example.com" {
		t.Fatalf("expected email to default to external id, got %s", v.Email)
	}
	if string(v.PasswordHash) == "correct horse" {
		t.Fatalf("password stored in clear")
	}

	authed, err := svc.Authenticate(ctx, "ana@example.com", "correct horse")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if authed.ID != v.ID || authed.Filters["Region"] != "West" {
		t.Fatalf("unexpected viewer %+v", authed)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	if _, err := svc.Register(ctx, Registration{ExternalID: "bo", Password: "password1"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, "bo", "password2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "nobody", "password1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown viewer, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	tests := map[string]Registration{
		"missing external id": {Password: "password1"},
		"short password":      {ExternalID: "a", Password: "short"},
		"team without type":   {ExternalID: "a", Password: "password1", Team: "Ops"},
		"reserved filter":     {ExternalID: "a", Password: "password1", Filters: map[string]string{":mode": "explore"}},
	}
	for name, reg := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Register(ctx, reg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := svc.Register(ctx, Registration{ExternalID: "dup", Password: "password1"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, Registration{ExternalID: "dup", Password: "password1"}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists got %v", err)
	}
}
