// internal/app/bootstrap/config.go
package bootstrap

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/bandhub/internal/app/directory"
	"github.com/dalemusser/bandhub/internal/app/policy/modulepolicy"
	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

const devSecret = "dev-only-change-me-please-0123456789ABCDEF"

// appConfigKeys defines the configuration keys for BandHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, jwt_secret, etc.
//   - Environment variables: BANDHUB_MONGO_URI, BANDHUB_JWT_SECRET, etc.
//   - Command-line flags: --mongo_uri, --jwt_secret, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "bandhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 5, Desc: "MongoDB min connection pool size"},

	{Name: "session_key", Default: devSecret, Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "bandhub-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},

	{Name: "jwt_secret", Default: devSecret, Desc: "HS256 secret for access and refresh tokens (32+ bytes)"},
	{Name: "token_ttl", Default: "15m", Desc: "Access token lifetime"},
	{Name: "refresh_token_ttl", Default: "720h", Desc: "Refresh token lifetime"},

	{Name: "redis_addr", Default: "", Desc: "Redis address for the permission cache (blank disables it)"},
	{Name: "redis_password", Default: "", Desc: "Redis password"},
	{Name: "redis_db", Default: 0, Desc: "Redis database number"},
	{Name: "permission_cache_ttl", Default: "5m", Desc: "How long a cached permission matrix lives"},

	{Name: "login_ip_limit", Default: 10, Desc: "Sign-in attempts per client address per minute (0 disables)"},
	{Name: "login_email_limit", Default: 5, Desc: "Sign-in attempts per account per 5 minutes (0 disables)"},

	{Name: "code_attempts", Default: directory.DefaultCodeAttempts, Desc: "Join code draws before group creation fails"},
	{Name: "conflict_attempts", Default: docstore.DefaultConflictAttempts, Desc: "Attempts per write under concurrent modification"},
	{Name: "upstream_attempts", Default: docstore.DefaultAttempts, Desc: "Attempts for transient store failures"},
	{Name: "upstream_backoff", Default: "100ms", Desc: "Base delay of the store retry backoff"},

	{Name: "audit_log_auth", Default: "all", Desc: "Auth event logging: 'all' (db+log), 'db', 'log', or 'off'"},
	{Name: "audit_log_admin", Default: "all", Desc: "Admin event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	{Name: "timeout_ping", Default: "2s", Desc: "Health check deadline"},
	{Name: "timeout_short", Default: "5s", Desc: "Single document read deadline"},
	{Name: "timeout_medium", Default: "10s", Desc: "Query and write deadline"},
	{Name: "timeout_long", Default: "30s", Desc: "Multi-document operation deadline"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles .env files, config files,
// environment variables (WAFFLE_* for core, BANDHUB_* for the app) and
// flags, merged with precedence flags > env > files > defaults.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "BANDHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		SessionKey:    appValues.String("session_key"),
		SessionName:   appValues.String("session_name"),
		SessionDomain: appValues.String("session_domain"),

		JWTSecret:       appValues.String("jwt_secret"),
		AccessTokenTTL:  appValues.Duration("token_ttl", 15*time.Minute),
		RefreshTokenTTL: appValues.Duration("refresh_token_ttl", 30*24*time.Hour),

		RedisAddr:          appValues.String("redis_addr"),
		RedisPassword:      appValues.String("redis_password"),
		RedisDB:            appValues.Int("redis_db"),
		PermissionCacheTTL: appValues.Duration("permission_cache_ttl", modulepolicy.DefaultCacheTTL),

		LoginIPLimit:    appValues.Int("login_ip_limit"),
		LoginEmailLimit: appValues.Int("login_email_limit"),

		CodeAttempts:     appValues.Int("code_attempts"),
		ConflictAttempts: appValues.Int("conflict_attempts"),
		UpstreamAttempts: appValues.Int("upstream_attempts"),
		UpstreamBackoff:  appValues.Duration("upstream_backoff", docstore.DefaultBackoff),

		AuditLogAuth:  appValues.String("audit_log_auth"),
		AuditLogAdmin: appValues.String("audit_log_admin"),

		Timeouts: TimeoutsConfig{
			Ping:   appValues.Duration("timeout_ping", 2*time.Second),
			Short:  appValues.Duration("timeout_short", 5*time.Second),
			Medium: appValues.Duration("timeout_medium", 10*time.Second),
			Long:   appValues.Duration("timeout_long", 30*time.Second),
		},
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// The MongoDB URI format is checked before connecting. In production the
// development secrets are refused.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(coreCfg.Env, appCfg)
}

// validateApp holds the checks that do not need WAFFLE.
func validateApp(env string, appCfg AppConfig) error {
	var problems []error
	if len(appCfg.JWTSecret) < 32 {
		problems = append(problems, errors.New("jwt_secret must be at least 32 bytes"))
	}
	if len(appCfg.SessionKey) < 32 {
		problems = append(problems, errors.New("session_key must be at least 32 bytes"))
	}
	if env == "prod" {
		if appCfg.JWTSecret == devSecret {
			problems = append(problems, errors.New("jwt_secret must be set in production"))
		}
		if appCfg.SessionKey == devSecret {
			problems = append(problems, errors.New("session_key must be set in production"))
		}
	}
	if appCfg.CodeAttempts <= 0 {
		problems = append(problems, errors.New("code_attempts must be positive"))
	}
	if appCfg.ConflictAttempts <= 0 || appCfg.UpstreamAttempts <= 0 {
		problems = append(problems, errors.New("conflict_attempts and upstream_attempts must be positive"))
	}
	if appCfg.AccessTokenTTL <= 0 || appCfg.RefreshTokenTTL < appCfg.AccessTokenTTL {
		problems = append(problems, errors.New("token_ttl must be positive and not longer than refresh_token_ttl"))
	}
	return errors.Join(problems...)
}
