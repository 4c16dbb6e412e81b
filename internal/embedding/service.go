// Package embedding turns the process embed settings and a viewer profile
// into signed embed URLs, and serves them as an iframe page or JSON.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/embedgate/embedgate/internal/embedurl"
	"github.com/embedgate/embedgate/internal/metrics"
	"github.com/embedgate/embedgate/internal/viewer"
)

var ErrUnknownViewer = errors.New("unknown viewer")

// Settings are the process-wide embed parameters, loaded once at startup.
type Settings struct {
	BasePath      string
	ClientID      string
	Secret        embedurl.Secret
	Mode          embedurl.Mode
	SessionLength int
	AllowExport   bool

	// DefaultViewer answers requests that carry no viewer token.
	DefaultViewer viewer.Viewer
}

// Service issues and verifies signed embed URLs.
type Service struct {
	settings Settings
	signer   *embedurl.Signer
	verifier *embedurl.Verifier
	viewers  *viewer.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService wires the signer and verifier around settings. viewers and m
// may be nil.
func NewService(settings Settings, signer *embedurl.Signer, verifier *embedurl.Verifier, viewers *viewer.Service, m *metrics.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		settings: settings,
		signer:   signer,
		verifier: verifier,
		viewers:  viewers,
		metrics:  m,
		logger:   logger,
	}
}

// DefaultViewerID is the external id used when no viewer is authenticated.
func (s *Service) DefaultViewerID() string {
	return s.settings.DefaultViewer.ExternalID
}

// Mode is the configured interaction mode.
func (s *Service) Mode() embedurl.Mode {
	return s.settings.Mode
}

// Issue signs a fresh embed URL for the viewer with the given external id.
func (s *Service) Issue(ctx context.Context, externalID string) (embedurl.SignedURL, error) {
	v, err := s.resolve(ctx, externalID)
	if err != nil {
		return embedurl.SignedURL{}, err
	}

	signed, err := s.signer.Sign(s.ConfigFor(v))
	if err != nil {
		s.metrics.IssueFailed(err)
		s.logger.Warn("embed url signing failed",
			slog.String("viewer", v.ExternalID),
			slog.String("kind", metrics.IssueErrorKind(err)),
			slog.Any("error", err),
		)
		return embedurl.SignedURL{}, err
	}

	s.metrics.Issued(s.settings.Mode)
	s.logger.Info("embed url issued",
		slog.String("viewer", v.ExternalID),
		slog.String("mode", string(s.settings.Mode)),
		slog.Time("expires_at", signed.ExpiresAt),
	)
	return signed, nil
}

// Verify checks a signed URL the way the embedding platform would.
func (s *Service) Verify(ctx context.Context, rawURL string) (embedurl.Claims, error) {
	claims, err := s.verifier.Verify(ctx, rawURL)
	s.metrics.Verified(err)
	if err != nil {
		s.logger.Info("embed url rejected", slog.String("outcome", metrics.VerifyOutcome(err)))
		return embedurl.Claims{}, err
	}
	return claims, nil
}

// ConfigFor builds the per-request embed config for v. Team and account
// type fall back to the default viewer's in userbacked mode.
func (s *Service) ConfigFor(v viewer.Viewer) embedurl.Config {
	cfg := embedurl.Config{
		BasePath:       s.settings.BasePath,
		ClientID:       s.settings.ClientID,
		Secret:         s.settings.Secret,
		Mode:           s.settings.Mode,
		ExternalUserID: v.ExternalID,
		SessionLength:  s.settings.SessionLength,
	}

	if s.settings.Mode == embedurl.ModeUserBacked {
		cfg.Email = v.Email
		cfg.Team = v.Team
		cfg.AccountType = v.AccountType
		if cfg.Team == "" && cfg.AccountType == "" {
			cfg.Team = s.settings.DefaultViewer.Team
			cfg.AccountType = s.settings.DefaultViewer.AccountType
		}
		return cfg
	}

	cfg.AllowExport = s.settings.AllowExport
	if len(v.Filters) > 0 {
		cfg.Filters = make(map[string]string, len(v.Filters))
		for k, val := range v.Filters {
			cfg.Filters[k] = val
		}
	}
	return cfg
}

func (s *Service) resolve(ctx context.Context, externalID string) (viewer.Viewer, error) {
	if externalID == "" {
		externalID = s.settings.DefaultViewer.ExternalID
	}
	if s.viewers != nil {
		v, err := s.viewers.Lookup(ctx, externalID)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, viewer.ErrNotFound) {
			return viewer.Viewer{}, fmt.Errorf("lookup viewer: %w", err)
		}
	}
	if externalID == s.settings.DefaultViewer.ExternalID && externalID != "" {
		return s.settings.DefaultViewer, nil
	}
	return viewer.Viewer{}, ErrUnknownViewer
}
