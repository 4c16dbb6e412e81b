package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/embedgate/embedgate/internal/embedurl"
)

const (
	defaultAppName          = "embedgate"
	defaultAppEnv           = "development"
	defaultPort             = "3000"
	defaultLogLevel         = "info"
	defaultShutdownDelay    = 10 * time.Second
	defaultTokenTTL         = 12 * time.Hour
	defaultEmbedMode        = "explore"
	defaultEmbedUser        = "testuser@example.com"
	defaultIssueRateLimit   = 30
	shutdownSecondsEnvVar   = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar  = "SHUTDOWN_TIMEOUT"
	embedPathEnvVar         = "EMBED_PATH"
	sessionLengthEnvVar     = "EMBED_SESSION_LENGTH"
	nonceWindowEnvVar       = "EMBED_NONCE_WINDOW"
	tokenTTLEnvVar          = "TOKEN_TTL"
	issueRateLimitEnvVar    = "EMBED_RATE_LIMIT"
	allowExportEnvVar       = "EMBED_ALLOW_EXPORT"
	requireAuthEnvVar       = "EMBED_REQUIRE_AUTH"
	devJWTSecretPlaceholder = "dev-only-jwt-secret-change-me"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	JWTSecret      string
	TokenTTL       time.Duration
	Embed          Embed
}

// Embed holds the process-wide embed settings. The secret is loaded once here
// and handed to the signer by value.
type Embed struct {
	Secret         embedurl.Secret
	ClientID       string
	Path           string
	Mode           embedurl.Mode
	SessionLength  int
	AllowExport    bool
	RequireAuth    bool
	NonceWindow    time.Duration
	IssueRateLimit int

	// Default viewer used when a request carries no viewer token.
	UserEmail       string
	UserTeam        string
	UserAccountType string
}

// Load reads configuration values from the environment (and a .env file when
// present) and populates a Config instance.
func Load() (Config, error) {
	_ = godotenv.Load()

	embed, err := loadEmbed()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		ShutdownPeriod: defaultShutdownDelay,
		JWTSecret:      os.Getenv("JWT_SECRET"),
		TokenTTL:       defaultTokenTTL,
		Embed:          embed,
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(tokenTTLEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", tokenTTLEnvVar, err)
		}
		cfg.TokenTTL = d
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEmbed reads only the EMBED_* settings. Offline tools use it so they do
// not need the server's JWT or backend settings.
func LoadEmbed() (Embed, error) {
	_ = godotenv.Load()
	return loadEmbed()
}

func loadEmbed() (Embed, error) {
	e := Embed{
		Secret:          embedurl.NewSecret(os.Getenv("EMBED_SECRET")),
		ClientID:        os.Getenv("EMBED_CLIENT_ID"),
		Path:            os.Getenv(embedPathEnvVar),
		SessionLength:   embedurl.DefaultSessionLength,
		NonceWindow:     embedurl.DefaultNonceWindow,
		IssueRateLimit:  defaultIssueRateLimit,
		UserEmail:       getEnv("EMBED_USER_EMAIL", defaultEmbedUser),
		UserTeam:        os.Getenv("EMBED_USER_TEAM"),
		UserAccountType: os.Getenv("EMBED_USER_ACCOUNT_TYPE"),
	}

	mode, err := embedurl.ParseMode(getEnv("EMBED_MODE", defaultEmbedMode))
	if err != nil {
		return Embed{}, fmt.Errorf("invalid EMBED_MODE: %w", err)
	}
	e.Mode = mode

	if v := os.Getenv(sessionLengthEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Embed{}, fmt.Errorf("invalid %s: %w", sessionLengthEnvVar, err)
		}
		if seconds <= 0 || seconds > embedurl.MaxSessionLength {
			return Embed{}, fmt.Errorf("invalid %s: must be between 1 and %d", sessionLengthEnvVar, embedurl.MaxSessionLength)
		}
		e.SessionLength = seconds
	}

	if v := os.Getenv(nonceWindowEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Embed{}, fmt.Errorf("invalid %s: %w", nonceWindowEnvVar, err)
		}
		e.NonceWindow = d
	}

	if v := os.Getenv(issueRateLimitEnvVar); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Embed{}, fmt.Errorf("invalid %s: %w", issueRateLimitEnvVar, err)
		}
		e.IssueRateLimit = n
	}

	if e.AllowExport, err = getBool(allowExportEnvVar, false); err != nil {
		return Embed{}, err
	}
	if e.RequireAuth, err = getBool(requireAuthEnvVar, false); err != nil {
		return Embed{}, err
	}

	if err := e.validate(); err != nil {
		return Embed{}, err
	}
	return e, nil
}

func (e Embed) validate() error {
	if e.Secret.IsZero() {
		return fmt.Errorf("EMBED_SECRET must be set")
	}
	if e.ClientID == "" {
		return fmt.Errorf("EMBED_CLIENT_ID must be set")
	}
	if err := embedurl.ValidateBasePath(e.Path); err != nil {
		return fmt.Errorf("invalid %s: %w", embedPathEnvVar, err)
	}
	if e.Mode == embedurl.ModeUserBacked && (e.UserTeam == "" || e.UserAccountType == "") {
		return fmt.Errorf("EMBED_USER_TEAM and EMBED_USER_ACCOUNT_TYPE must be set in userbacked mode")
	}
	return nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if !c.IsDev() {
			return fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", c.AppEnv)
		}
		c.JWTSecret = devJWTSecretPlaceholder
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
