package viewer

import (
	"errors"
	"time"
)

var (
	ErrNotFound           = errors.New("viewer not found")
	ErrExists             = errors.New("viewer exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Viewer is a person allowed to open the embedded dashboard. ExternalID is
// what the embed URL carries as :external_user_id.
type Viewer struct {
	ID           string
	ExternalID   string
	Email        string
	Team         string
	AccountType  string
	Filters      map[string]string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Registration request structure.
type Registration struct {
	ExternalID  string
	Email       string
	Password    string
	Team        string
	AccountType string
	Filters     map[string]string
}
