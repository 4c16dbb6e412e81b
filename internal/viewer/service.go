package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// Service manages the viewer directory.
type Service struct {
	repo Repository
}

// NewService creates a new viewer service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register stores a viewer with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, reg Registration) (Viewer, error) {
	externalID := strings.TrimSpace(reg.ExternalID)
	if externalID == "" {
		return Viewer{}, errors.New("external id is required")
	}
	if len(reg.Password) < minPasswordLength {
		return Viewer{}, fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	if (reg.Team == "") != (reg.AccountType == "") {
		return Viewer{}, errors.New("team and account type must be set together")
	}
	for k := range reg.Filters {
		if k == "" || strings.HasPrefix(k, ":") {
			return Viewer{}, fmt.Errorf("invalid filter name %q", k)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcrypt.DefaultCost)
	if err != nil {
		return Viewer{}, err
	}

	email := reg.Email
	if email == "" {
		email = externalID
	}

	v := Viewer{
		ID:           uuid.New().String(),
		ExternalID:   externalID,
		Email:        email,
		Team:         reg.Team,
		AccountType:  reg.AccountType,
		Filters:      reg.Filters,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, v); err != nil {
		return Viewer{}, err
	}

	return v, nil
}

// Authenticate checks a viewer's password. Unknown viewers and wrong
// passwords both yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, externalID, password string) (Viewer, error) {
	v, err := s.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Viewer{}, ErrInvalidCredentials
		}
		return Viewer{}, err
	}
	if len(v.PasswordHash) == 0 {
		return Viewer{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(v.PasswordHash, []byte(password)); err != nil {
		return Viewer{}, ErrInvalidCredentials
	}
	return v, nil
}

// Lookup returns the viewer with the given external id.
func (s *Service) Lookup(ctx context.Context, externalID string) (Viewer, error) {
	return s.repo.FindByExternalID(ctx, externalID)
}
