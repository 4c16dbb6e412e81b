package embedurl

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"
)

// Mode is the interaction capability granted to the embedded viewer.
type Mode string

const (
	ModeView       Mode = "view"
	ModeExplore    Mode = "explore"
	ModeUserBacked Mode = "userbacked"
)

const (
	// DefaultSessionLength is used when Config.SessionLength is zero.
	DefaultSessionLength = 3600
	// MaxSessionLength is the longest session the embedding platform accepts (30 days).
	MaxSessionLength = 30 * 24 * 3600
)

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
	return m, nil
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeView, ModeExplore, ModeUserBacked:
		return true
	default:
		return false
	}
}

// Config describes a single embed URL to sign. It is built fresh per request
// and never modified by the signer.
type Config struct {
	BasePath       string
	ClientID       string
	Secret         Secret
	Mode           Mode
	ExternalUserID string

	// Userbacked mode only. Email defaults to ExternalUserID.
	Email       string
	Team        string
	AccountType string

	// SessionLength is in seconds; zero means DefaultSessionLength.
	SessionLength int

	// View and explore modes only.
	AllowExport bool
	Filters     map[string]string
}

func (c Config) sessionLength() int {
	if c.SessionLength == 0 {
		return DefaultSessionLength
	}
	return c.SessionLength
}

func (c Config) email() string {
	if c.Email != "" {
		return c.Email
	}
	return c.ExternalUserID
}

// ValidateBasePath reports whether path can prefix a signed URL: an absolute
// URL with scheme and host, without query string or fragment.
func ValidateBasePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: base path is required", ErrInvalidConfig)
	}
	u, err := url.Parse(path)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base path must be an absolute url", ErrInvalidConfig)
	}
	if strings.ContainsAny(path, "?#") {
		return fmt.Errorf("%w: base path must not carry a query string or fragment", ErrInvalidConfig)
	}
	return nil
}

// Validate checks required and mode-conditional fields. Errors wrap
// ErrInvalidConfig or ErrEncoding and never include the secret.
func (c Config) Validate() error {
	if err := ValidateBasePath(c.BasePath); err != nil {
		return err
	}
	if c.ClientID == "" {
		return fmt.Errorf("%w: client id is required", ErrInvalidConfig)
	}
	if c.Secret.IsZero() {
		return fmt.Errorf("%w: secret is required", ErrInvalidConfig)
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, c.Mode)
	}
	if c.ExternalUserID == "" {
		return fmt.Errorf("%w: external user id is required", ErrInvalidConfig)
	}
	if c.SessionLength < 0 || c.sessionLength() > MaxSessionLength {
		return fmt.Errorf("%w: session length must be between 1 and %d seconds", ErrInvalidConfig, MaxSessionLength)
	}

	if c.Mode == ModeUserBacked {
		if c.Team == "" || c.AccountType == "" {
			return fmt.Errorf("%w: userbacked mode requires team and account type", ErrInvalidConfig)
		}
		if c.AllowExport || len(c.Filters) > 0 {
			return fmt.Errorf("%w: allow export and filters are not available in userbacked mode", ErrInvalidConfig)
		}
	} else {
		if c.Team != "" || c.AccountType != "" || c.Email != "" {
			return fmt.Errorf("%w: team, account type and email are only allowed in userbacked mode", ErrInvalidConfig)
		}
		for k := range c.Filters {
			if k == "" {
				return fmt.Errorf("%w: filter name must not be empty", ErrInvalidConfig)
			}
			if strings.HasPrefix(k, ":") {
				return fmt.Errorf("%w: filter %q uses the reserved ':' prefix", ErrInvalidConfig, k)
			}
		}
	}

	return c.checkEncoding()
}

func (c Config) checkEncoding() error {
	fields := map[string]string{
		"base path":        c.BasePath,
		"client id":        c.ClientID,
		"external user id": c.ExternalUserID,
		"email":            c.Email,
		"team":             c.Team,
		"account type":     c.AccountType,
	}
	for name, v := range fields {
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: %s is not valid utf-8", ErrEncoding, name)
		}
	}
	for k, v := range c.Filters {
		if !utf8.ValidString(k) {
			return fmt.Errorf("%w: filter name is not valid utf-8", ErrEncoding)
		}
		if !utf8.ValidString(v) {
			return fmt.Errorf("%w: value of filter %q is not valid utf-8", ErrEncoding, k)
		}
	}
	return nil
}
