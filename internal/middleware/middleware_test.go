package middleware

import (
	"bytes"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/embedgate/embedgate/internal/auth"
	"github.com/embedgate/embedgate/internal/logging"
	"github.com/embedgate/embedgate/internal/viewer"
)

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return cache, mr
}

func echoViewer(c *fiber.Ctx) error {
	id, _ := c.Locals(ViewerLocal).(string)
	return c.SendString(id)
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		id, _ := c.Locals(requestIDHeader).(string)
		return c.SendString(id)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 || resp.Header.Get(requestIDHeader) != string(body) {
		t.Fatalf("expected generated request id echoed, header %q body %q", resp.Header.Get(requestIDHeader), body)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "abc123")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.Header.Get(requestIDHeader) != "abc123" {
		t.Fatalf("expected inbound id kept, got %q", resp.Header.Get(requestIDHeader))
	}

	req = httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if len(resp.Header.Get(requestIDHeader)) > maxRequestIDLen {
		t.Fatalf("oversized request id was kept")
	}
}

func TestViewerAuth(t *testing.T) {
	tokens := auth.NewService("jwt-secret", time.Hour, "embedgate")
	token, err := tokens.Issue(viewer.Viewer{ExternalID: "ana@example.com"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name     string
		required bool
		header   string
		status   int
		body     string
	}{
		{name: "anonymous allowed", status: fiber.StatusOK},
		{name: "anonymous rejected", required: true, status: fiber.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + token.AccessToken, status: fiber.StatusOK, body: "ana@example.com"},
		{name: "garbage token", header: "Bearer nope", status: fiber.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Use(ViewerAuth(tokens, tt.required))
			app.Get("/", echoViewer)

			req := httptest.NewRequest(fiber.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("expected %d got %d", tt.status, resp.StatusCode)
			}
			if tt.body != "" {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != tt.body {
					t.Fatalf("expected viewer %q got %q", tt.body, body)
				}
			}
		})
	}
}

func TestRateLimitBlocksAfterMax(t *testing.T) {
	cache, mr := newRedis(t)
	app := fiber.New()
	app.Use(RateLimit(cache, "embed", 2, nil, logging.Discard()))
	app.Get("/", echoViewer)

	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d: expected 200 got %d", i, resp.StatusCode)
		}
	}

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.StatusCode)
	}

	mr.FastForward(time.Minute + time.Second)
	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected bucket reset after a minute, got %d", resp.StatusCode)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer cache.Close()
	mr.Close()

	app := fiber.New()
	app.Use(RateLimit(cache, "embed", 1, nil, logging.Discard()))
	app.Get("/", echoViewer)

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected fail-open 200 got %d", resp.StatusCode)
		}
	}
}

func TestLoginKeyPerViewer(t *testing.T) {
	cache, _ := newRedis(t)
	app := fiber.New()
	app.Post("/login", RateLimit(cache, "login", 1, LoginKey, nil), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	post := func(id string) int {
		req := httptest.NewRequest(fiber.MethodPost, "/login", bytes.NewBufferString(`{"external_id":"`+id+`"}`))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	if got := post("ana"); got != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", got)
	}
	if got := post("ana"); got != fiber.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", got)
	}
	if got := post("bob"); got != fiber.StatusOK {
		t.Fatalf("expected separate bucket for bob, got %d", got)
	}
}

func TestAuditLogsWithoutQuery(t *testing.T) {
	var buf bytes.Buffer
	app := fiber.New()
	app.Use(RequestID())
	app.Use(Audit(logging.NewWithWriter(&buf, "info")))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	if _, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/?:signature=abc", nil)); err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"request_id"`) || !strings.Contains(out, `"status":200`) {
		t.Fatalf("missing audit fields: %s", out)
	}
	if strings.Contains(out, ":signature") {
		t.Fatalf("query string leaked into audit log: %s", out)
	}
}
