package embedurl

import (
	"context"
	"crypto/hmac"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultNonceWindow is how long a nonce stays reserved after first use.
	DefaultNonceWindow = time.Hour
	defaultClockSkew   = time.Minute
)

// NonceGuard records nonces so a signed URL is accepted at most once inside
// the window. Reserve reports false when the nonce is already held.
type NonceGuard interface {
	Reserve(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// Claims are the parameters a verified URL carried.
type Claims struct {
	ClientID       string            `json:"client_id"`
	Mode           Mode              `json:"mode"`
	ExternalUserID string            `json:"external_user_id"`
	Email          string            `json:"email,omitempty"`
	Team           string            `json:"team,omitempty"`
	AccountType    string            `json:"account_type,omitempty"`
	AllowExport    bool              `json:"allow_export"`
	Filters        map[string]string `json:"filters,omitempty"`
	Nonce          string            `json:"nonce"`
	IssuedAt       time.Time         `json:"issued_at"`
	ExpiresAt      time.Time         `json:"expires_at"`
}

// VerifierOption customises a Verifier.
type VerifierOption func(*Verifier)

// WithVerifierClock replaces the wall clock used for expiry checks.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithNonceGuard enables replay rejection. URLs older than window are
// refused outright since their nonce may already have been released.
func WithNonceGuard(guard NonceGuard, window time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.guard = guard
		if window > 0 {
			v.window = window
		}
	}
}

// WithClockSkew sets how far in the future :time may be.
func WithClockSkew(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.skew = d
	}
}

// Verifier checks signed URLs the way the embedding platform does.
type Verifier struct {
	clientID string
	secret   Secret
	now      func() time.Time
	guard    NonceGuard
	window   time.Duration
	skew     time.Duration
}

// NewVerifier returns a Verifier for URLs issued under clientID and secret.
func NewVerifier(clientID string, secret Secret, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		clientID: clientID,
		secret:   secret,
		now:      time.Now,
		window:   DefaultNonceWindow,
		skew:     defaultClockSkew,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify checks the signature of rawURL, then its freshness, then (when a
// guard is configured) that its nonce has not been seen before.
func (v *Verifier) Verify(ctx context.Context, rawURL string) (Claims, error) {
	unsigned, sig, err := SplitSignature(rawURL)
	if err != nil {
		return Claims{}, err
	}
	if !hmac.Equal([]byte(sig), []byte(computeSignature(v.secret, unsigned))) {
		return Claims{}, ErrInvalidSignature
	}

	claims, err := parseClaims(unsigned)
	if err != nil {
		return Claims{}, err
	}
	if claims.ClientID != v.clientID {
		return Claims{}, ErrClientMismatch
	}

	now := v.now()
	if claims.IssuedAt.After(now.Add(v.skew)) {
		return Claims{}, ErrNotYetValid
	}
	if now.After(claims.ExpiresAt) {
		return Claims{}, ErrExpired
	}

	if v.guard != nil {
		if now.After(claims.IssuedAt.Add(v.window)) {
			return Claims{}, fmt.Errorf("%w: older than the nonce window", ErrExpired)
		}
		ok, err := v.guard.Reserve(ctx, claims.Nonce, v.reservation(claims, now))
		if err != nil {
			return Claims{}, fmt.Errorf("reserve nonce: %w", err)
		}
		if !ok {
			return Claims{}, ErrReplayed
		}
	}

	return claims, nil
}

// reservation is how long a nonce must stay held: until the URL stops being
// acceptable, which is the earlier of its expiry and the end of the window
// counted from :time. The extra second keeps the TTL positive.
func (v *Verifier) reservation(claims Claims, now time.Time) time.Duration {
	until := claims.IssuedAt.Add(v.window)
	if claims.ExpiresAt.Before(until) {
		until = claims.ExpiresAt
	}
	return until.Sub(now) + time.Second
}

// SplitSignature separates a signed URL into the signed prefix and the hex
// signature. The signature must be the final parameter.
func SplitSignature(rawURL string) (unsigned, signature string, err error) {
	idx := strings.LastIndex(rawURL, signatureSeparator)
	if idx < 0 {
		return "", "", ErrSignatureNotFound
	}
	unsigned = rawURL[:idx]
	signature = rawURL[idx+len(signatureSeparator):]
	if !isLowerHex(signature, 64) {
		return "", "", fmt.Errorf("%w: signature must be the last parameter and 64 hex characters", ErrMalformedURL)
	}
	if !strings.Contains(unsigned, "?") {
		return "", "", fmt.Errorf("%w: missing query string", ErrMalformedURL)
	}
	return unsigned, signature, nil
}

func isLowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func parseClaims(unsigned string) (Claims, error) {
	u, err := url.Parse(unsigned)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	q, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	required := func(key string) (string, error) {
		v := q.Get(key)
		if v == "" {
			return "", fmt.Errorf("%w: missing %s", ErrMalformedURL, key)
		}
		return v, nil
	}

	var c Claims
	if c.ClientID, err = required(ParamClientID); err != nil {
		return Claims{}, err
	}
	mode, err := required(ParamMode)
	if err != nil {
		return Claims{}, err
	}
	if c.Mode, err = ParseMode(mode); err != nil {
		return Claims{}, fmt.Errorf("%w: bad %s", ErrMalformedURL, ParamMode)
	}
	if c.ExternalUserID, err = required(ParamExternalUserID); err != nil {
		return Claims{}, err
	}
	if c.Nonce, err = required(ParamNonce); err != nil {
		return Claims{}, err
	}

	ts, err := required(ParamTime)
	if err != nil {
		return Claims{}, err
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: bad %s", ErrMalformedURL, ParamTime)
	}
	sl, err := required(ParamSessionLength)
	if err != nil {
		return Claims{}, err
	}
	seconds, err := strconv.Atoi(sl)
	if err != nil || seconds <= 0 {
		return Claims{}, fmt.Errorf("%w: bad %s", ErrMalformedURL, ParamSessionLength)
	}
	c.IssuedAt = time.Unix(unix, 0)
	c.ExpiresAt = c.IssuedAt.Add(time.Duration(seconds) * time.Second)

	c.Email = q.Get(ParamEmail)
	c.Team = q.Get(ParamTeam)
	c.AccountType = q.Get(ParamAccountType)
	c.AllowExport = q.Get(ParamAllowExport) == "true"

	for k, vals := range q {
		if strings.HasPrefix(k, ":") || len(vals) == 0 {
			continue
		}
		if c.Filters == nil {
			c.Filters = make(map[string]string)
		}
		c.Filters[k] = vals[0]
	}
	return c, nil
}
