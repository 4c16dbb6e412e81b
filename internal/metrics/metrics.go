package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/embedgate/embedgate/internal/embedurl"
)

// Metrics holds the embed counters. Each instance owns its registry so tests
// can build as many as they like.
type Metrics struct {
	Registry      *prometheus.Registry
	issued        *prometheus.CounterVec
	issueFailures *prometheus.CounterVec
	verifications *prometheus.CounterVec
}

// New registers the embed counters plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		issued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedgate_signed_urls_issued_total",
			Help: "Signed embed URLs issued, by mode.",
		}, []string{"mode"}),
		issueFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedgate_signed_url_failures_total",
			Help: "Signed embed URL requests that failed, by error kind.",
		}, []string{"kind"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "embedgate_verifications_total",
			Help: "Signed embed URL verifications, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.issued,
		m.issueFailures,
		m.verifications,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Issued counts a successful signing.
func (m *Metrics) Issued(mode embedurl.Mode) {
	if m == nil {
		return
	}
	m.issued.WithLabelValues(string(mode)).Inc()
}

// IssueFailed counts a failed signing, labelled by error kind.
func (m *Metrics) IssueFailed(err error) {
	if m == nil {
		return
	}
	m.issueFailures.WithLabelValues(IssueErrorKind(err)).Inc()
}

// Verified counts a verification attempt, labelled by outcome.
func (m *Metrics) Verified(err error) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(VerifyOutcome(err)).Inc()
}

// IssueErrorKind maps a signing error onto a bounded label value.
func IssueErrorKind(err error) string {
	switch {
	case errors.Is(err, embedurl.ErrInvalidConfig):
		return "invalid_config"
	case errors.Is(err, embedurl.ErrEncoding):
		return "encoding"
	case errors.Is(err, embedurl.ErrSigningFailure):
		return "signing_failure"
	default:
		return "other"
	}
}

// VerifyOutcome maps a verification result onto a bounded label value.
func VerifyOutcome(err error) string {
	switch {
	case err == nil:
		return "valid"
	case errors.Is(err, embedurl.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, embedurl.ErrExpired), errors.Is(err, embedurl.ErrNotYetValid):
		return "expired"
	case errors.Is(err, embedurl.ErrReplayed):
		return "replayed"
	case errors.Is(err, embedurl.ErrClientMismatch):
		return "client_mismatch"
	case errors.Is(err, embedurl.ErrMalformedURL), errors.Is(err, embedurl.ErrSignatureNotFound):
		return "malformed"
	default:
		return "error"
	}
}
