// Package embedurl builds and verifies HMAC-SHA256 signed URLs for embedding
// a hosted dashboard in an iframe.
//
// A signed URL is the embed path followed by a fixed-order query string:
//
//	:client_id, :mode, :external_user_id, :session_length, :time, :nonce,
//	then :email, :external_user_team, :account_type   (userbacked)
//	or   :allow_export, <filters sorted by name>       (view, explore)
//
// and a final :signature parameter holding the lowercase hex HMAC of every
// preceding byte, including the '?'.
package embedurl

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	ParamClientID       = ":client_id"
	ParamMode           = ":mode"
	ParamExternalUserID = ":external_user_id"
	ParamSessionLength  = ":session_length"
	ParamTime           = ":time"
	ParamNonce          = ":nonce"
	ParamEmail          = ":email"
	ParamTeam           = ":external_user_team"
	ParamAccountType    = ":account_type"
	ParamAllowExport    = ":allow_export"
	ParamSignature      = ":signature"

	signatureSeparator = "&" + ParamSignature + "="
	nonceBytes         = 16
)

// SignedURL is the result of a signing operation. URL is the only part meant
// for the viewer; the other fields describe how it was produced.
type SignedURL struct {
	URL       string
	Unsigned  string
	Signature string
	Nonce     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (s SignedURL) String() string {
	return s.URL
}

// Option customises a Signer.
type Option func(*Signer)

// WithClock replaces the wall clock used for :time.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// WithNonceSource replaces the random nonce generator.
func WithNonceSource(fn func() (string, error)) Option {
	return func(s *Signer) {
		s.nonce = fn
	}
}

// Signer produces signed embed URLs. The zero value is not usable; call
// NewSigner. A Signer holds no mutable state and is safe for concurrent use.
type Signer struct {
	now   func() time.Time
	nonce func() (string, error)
}

// NewSigner returns a Signer backed by the system clock and crypto/rand.
func NewSigner(opts ...Option) *Signer {
	s := &Signer{now: time.Now, nonce: RandomNonce}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RandomNonce returns 128 bits from crypto/rand as lowercase hex.
func RandomNonce() (string, error) {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Sign validates cfg, then builds the canonical query string, signs it and
// appends the signature as the last parameter.
func (s *Signer) Sign(cfg Config) (SignedURL, error) {
	if err := cfg.Validate(); err != nil {
		return SignedURL{}, err
	}

	nonce, err := s.nonce()
	if err != nil {
		return SignedURL{}, fmt.Errorf("%w: nonce: %v", ErrSigningFailure, err)
	}
	if nonce == "" {
		return SignedURL{}, fmt.Errorf("%w: empty nonce", ErrSigningFailure)
	}
	issued := time.Unix(s.now().Unix(), 0)

	unsigned := cfg.BasePath + "?" + encodeParams(canonicalParams(cfg, issued.Unix(), nonce))
	sig := computeSignature(cfg.Secret, unsigned)

	return SignedURL{
		URL:       unsigned + signatureSeparator + sig,
		Unsigned:  unsigned,
		Signature: sig,
		Nonce:     nonce,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(time.Duration(cfg.sessionLength()) * time.Second),
	}, nil
}

type param struct {
	key   string
	value string
	// reserved keys are emitted verbatim; filter names are escaped.
	reserved bool
}

func canonicalParams(cfg Config, unix int64, nonce string) []param {
	params := []param{
		{ParamClientID, cfg.ClientID, true},
		{ParamMode, string(cfg.Mode), true},
		{ParamExternalUserID, cfg.ExternalUserID, true},
		{ParamSessionLength, strconv.Itoa(cfg.sessionLength()), true},
		{ParamTime, strconv.FormatInt(unix, 10), true},
		{ParamNonce, nonce, true},
	}

	if cfg.Mode == ModeUserBacked {
		return append(params,
			param{ParamEmail, cfg.email(), true},
			param{ParamTeam, cfg.Team, true},
			param{ParamAccountType, cfg.AccountType, true},
		)
	}

	if cfg.AllowExport {
		params = append(params, param{ParamAllowExport, "true", true})
	}
	names := make([]string, 0, len(cfg.Filters))
	for k := range cfg.Filters {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		params = append(params, param{k, cfg.Filters[k], false})
	}
	return params
}

func encodeParams(params []param) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		if p.reserved {
			b.WriteString(p.key)
		} else {
			b.WriteString(escape(p.key))
		}
		b.WriteByte('=')
		b.WriteString(escape(p.value))
	}
	return b.String()
}

// escape percent-encodes like encodeURIComponent: spaces become %20 rather
// than '+', so the query reads the same to every URL parser.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func computeSignature(secret Secret, unsigned string) string {
	mac := hmac.New(sha256.New, secret.key)
	mac.Write([]byte(unsigned))
	return hex.EncodeToString(mac.Sum(nil))
}
