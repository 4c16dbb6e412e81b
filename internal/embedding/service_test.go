package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/embedgate/embedgate/internal/embedurl"
	"github.com/embedgate/embedgate/internal/logging"
	"github.com/embedgate/embedgate/internal/metrics"
	"github.com/embedgate/embedgate/internal/nonce"
	"github.com/embedgate/embedgate/internal/viewer"
)

const testSecret = "embed-test-secret"

func testSettings(mode embedurl.Mode) Settings {
	return Settings{
		BasePath:      "https://app.example.com/embed/dash",
		ClientID:      "client1",
		Secret:        embedurl.NewSecret(testSecret),
		Mode:          mode,
		SessionLength: 600,
		AllowExport:   true,
		DefaultViewer: viewer.Viewer{
			ExternalID:  "testuser@example.com",
			Email:       "testuser@example.com",
			Team:        "Default Team",
			AccountType: "viewer",
		},
	}
}

func newTestService(t *testing.T, mode embedurl.Mode) (*Service, *viewer.Service, *metrics.Metrics) {
	t.Helper()
	viewers := viewer.NewService(viewer.NewMemoryRepository())
	m := metrics.New()
	settings := testSettings(mode)
	verifier := embedurl.NewVerifier(settings.ClientID, settings.Secret,
		embedurl.WithNonceGuard(nonce.NewMemoryGuard(), time.Hour))
	return NewService(settings, embedurl.NewSigner(), verifier, viewers, m, logging.Discard()), viewers, m
}

// counterValue reads the counter in family name whose single label equals value.
func counterValue(t *testing.T, m *metrics.Metrics, name, value string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestIssueDefaultViewer(t *testing.T) {
	svc, _, m := newTestService(t, embedurl.ModeExplore)

	signed, err := svc.Issue(context.Background(), "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.Contains(signed.URL, ":external_user_id=testuser%40example.com") {
		t.Fatalf("expected default viewer in url: %s", signed.URL)
	}
	if !strings.Contains(signed.URL, ":allow_export=true") {
		t.Fatalf("expected allow export in explore mode: %s", signed.URL)
	}
	if strings.Contains(signed.URL, ":external_user_team") {
		t.Fatalf("team must not appear outside userbacked mode: %s", signed.URL)
	}
	if got := counterValue(t, m, "embedgate_signed_urls_issued_total", "explore"); got != 1 {
		t.Fatalf("expected 1 issued, got %v", got)
	}
}

func TestIssueRegisteredViewerFilters(t *testing.T) {
	svc, viewers, _ := newTestService(t, embedurl.ModeView)
	if _, err := viewers.Register(context.Background(), viewer.Registration{
		ExternalID: "ana@example.com",
		Password:   "correct-horse",
		Filters:    map[string]string{"Region": "West"},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	signed, err := svc.Issue(context.Background(), "ana@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.HasSuffix(strings.Split(signed.Unsigned, ":allow_export=true")[1], "&Region=West") {
		t.Fatalf("expected viewer filter after allow_export: %s", signed.Unsigned)
	}
}

func TestIssueUserBackedFallsBackToDefaultTeam(t *testing.T) {
	svc, viewers, _ := newTestService(t, embedurl.ModeUserBacked)
	if _, err := viewers.Register(context.Background(), viewer.Registration{
		ExternalID: "bob@example.com",
		Password:   "correct-horse",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	signed, err := svc.Issue(context.Background(), "bob@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.Contains(signed.URL, ":email=bob%40example.com&:external_user_team=Default%20Team&:account_type=viewer") {
		t.Fatalf("unexpected userbacked url: %s", signed.URL)
	}
	if strings.Contains(signed.URL, ":allow_export") {
		t.Fatalf("allow_export must not appear in userbacked mode: %s", signed.URL)
	}
}

func TestIssueUnknownViewer(t *testing.T) {
	svc, _, _ := newTestService(t, embedurl.ModeView)
	if _, err := svc.Issue(context.Background(), "nobody@example.com"); !errors.Is(err, ErrUnknownViewer) {
		t.Fatalf("expected ErrUnknownViewer got %v", err)
	}
}

func TestIssueInvalidSettings(t *testing.T) {
	settings := testSettings(embedurl.ModeView)
	settings.BasePath = "not a url"
	m := metrics.New()
	svc := NewService(settings, embedurl.NewSigner(), embedurl.NewVerifier("client1", settings.Secret), nil, m, logging.Discard())

	if _, err := svc.Issue(context.Background(), ""); !errors.Is(err, embedurl.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig got %v", err)
	}
	if got := counterValue(t, m, "embedgate_signed_url_failures_total", "invalid_config"); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
}

func TestVerifyOnceOnly(t *testing.T) {
	svc, _, m := newTestService(t, embedurl.ModeView)
	signed, err := svc.Issue(context.Background(), "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := svc.Verify(context.Background(), signed.URL)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Nonce != signed.Nonce {
		t.Fatalf("expected nonce %s got %s", signed.Nonce, claims.Nonce)
	}
	if _, err := svc.Verify(context.Background(), signed.URL); !errors.Is(err, embedurl.ErrReplayed) {
		t.Fatalf("expected ErrReplayed got %v", err)
	}
	if got := counterValue(t, m, "embedgate_verifications_total", "replayed"); got != 1 {
		t.Fatalf("expected 1 replay counted, got %v", got)
	}
}
