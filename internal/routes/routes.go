package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/embedgate/embedgate/internal/auth"
	"github.com/embedgate/embedgate/internal/config"
	"github.com/embedgate/embedgate/internal/embedding"
	"github.com/embedgate/embedgate/internal/embedurl"
	"github.com/embedgate/embedgate/internal/metrics"
	"github.com/embedgate/embedgate/internal/middleware"
	"github.com/embedgate/embedgate/internal/nonce"
	"github.com/embedgate/embedgate/internal/viewer"
)

const loginAttemptsPerMinute = 5

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}

	tokens := auth.NewService(d.Cfg.JWTSecret, d.Cfg.TokenTTL, d.Cfg.AppName)

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))

	m := metrics.New()
	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, m)

	var viewerRepo viewer.Repository
	if d.DB != nil {
		viewerRepo = viewer.NewPostgresRepository(d.DB)
	} else {
		viewerRepo = viewer.NewMemoryRepository()
	}
	viewers := viewer.NewService(viewerRepo)

	var guard embedurl.NonceGuard
	if d.Cache != nil {
		guard = nonce.NewRedisGuard(d.Cache)
	} else {
		guard = nonce.NewMemoryGuard()
	}

	embedSvc := embedding.NewService(
		settingsFrom(d.Cfg),
		embedurl.NewSigner(),
		embedurl.NewVerifier(d.Cfg.Embed.ClientID, d.Cfg.Embed.Secret,
			embedurl.WithNonceGuard(guard, d.Cfg.Embed.NonceWindow)),
		viewers,
		m,
		d.Logger,
	)
	embedHandler := embedding.NewHandler(embedSvc)

	RegisterEmbedRoutes(app, embedHandler,
		middleware.ViewerAuth(tokens, d.Cfg.Embed.RequireAuth),
		middleware.RateLimit(d.Cache, "embed", d.Cfg.Embed.IssueRateLimit, middleware.ByViewerOrIP, d.Logger),
	)

	api := app.Group("/api")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	loginLimiter := middleware.RateLimit(d.Cache, "login", loginAttemptsPerMinute, middleware.LoginKey, d.Logger)
	RegisterAuthRoutes(api, auth.NewHandler(viewers, tokens), loginLimiter)

	// Self-service registration only outside production.
	if d.Cfg.IsDev() {
		RegisterViewerRoutes(api, viewer.NewHandler(viewers))
	}

	return nil
}

func settingsFrom(cfg config.Config) embedding.Settings {
	return embedding.Settings{
		BasePath:      cfg.Embed.Path,
		ClientID:      cfg.Embed.ClientID,
		Secret:        cfg.Embed.Secret,
		Mode:          cfg.Embed.Mode,
		SessionLength: cfg.Embed.SessionLength,
		AllowExport:   cfg.Embed.AllowExport,
		DefaultViewer: viewer.Viewer{
			ExternalID:  cfg.Embed.UserEmail,
			Email:       cfg.Embed.UserEmail,
			Team:        cfg.Embed.UserTeam,
			AccountType: cfg.Embed.UserAccountType,
		},
	}
}
