package embedurl

import "errors"

var (
	// ErrInvalidConfig reports missing, malformed or mutually exclusive
	// embed parameters.
	ErrInvalidConfig = errors.New("invalid embed config")

	// ErrEncoding reports a parameter key or value that is not valid UTF-8.
	ErrEncoding = errors.New("embed parameter encoding")

	// ErrSigningFailure reports that the random source or HMAC primitive
	// could not be used. It is not retryable.
	ErrSigningFailure = errors.New("embed signing failure")
)

var (
	ErrMalformedURL      = errors.New("malformed embed url")
	ErrSignatureNotFound = errors.New("signature not found")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrClientMismatch    = errors.New("client id mismatch")
	ErrExpired           = errors.New("embed url expired")
	ErrNotYetValid       = errors.New("embed url issued in the future")
	ErrReplayed          = errors.New("nonce already used")
)
