// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables (BANDHUB_*), configuration
// files, or command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig
// covers ports, TLS, logging and CORS; everything specific to BandHub
// lives here.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Session management configuration
	SessionKey    string // Secret key for signing session cookies (must be strong in production)
	SessionName   string // Cookie name for sessions (default: bandhub-session)
	SessionDomain string // Cookie domain (blank means current host)

	// Token configuration
	JWTSecret       string        // HS256 signing secret, at least 32 bytes
	AccessTokenTTL  time.Duration // lifetime of access tokens
	RefreshTokenTTL time.Duration // lifetime of refresh tokens

	// Permission matrix cache (optional)
	RedisAddr          string // blank disables the cache
	RedisPassword      string
	RedisDB            int
	PermissionCacheTTL time.Duration

	// Sign-in throttling; a limit of 0 disables it
	LoginIPLimit    int
	LoginEmailLimit int

	// Group directory
	CodeAttempts int // join code draws before giving up

	// Store retry policy
	ConflictAttempts int           // optimistic-concurrency attempts per write
	UpstreamAttempts int           // attempts for transient store failures
	UpstreamBackoff  time.Duration // base of the exponential backoff

	// Audit logging
	AuditLogAuth  string // 'all', 'db', 'log' or 'off'
	AuditLogAdmin string

	// Deadlines applied to store calls
	Timeouts TimeoutsConfig
}

// TimeoutsConfig mirrors timeouts.Config for loading.
type TimeoutsConfig struct {
	Ping   time.Duration
	Short  time.Duration
	Medium time.Duration
	Long   time.Duration
}
