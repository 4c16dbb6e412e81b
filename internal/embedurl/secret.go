package embedurl

import "log/slog"

const redacted = "[REDACTED]"

// Secret holds the embed signing key. Every formatting path (fmt verbs, JSON,
// text marshalling, slog) prints a placeholder; only the signer and verifier
// in this package read the raw bytes.
type Secret struct {
	key []byte
}

// NewSecret copies s into a Secret.
func NewSecret(s string) Secret {
	return Secret{key: []byte(s)}
}

// IsZero reports whether no key was supplied.
func (s Secret) IsZero() bool {
	return len(s.key) == 0
}

func (s Secret) String() string {
	return redacted
}

func (s Secret) GoString() string {
	return "embedurl.Secret{" + redacted + "}"
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(redacted), nil
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redacted + `"`), nil
}

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(redacted)
}
