package config

import "time"

// Default timing and limit values used throughout the bridge
const (
	// DefaultAuthTimeout is how long to wait for a QR scan before the
	// pending authentication attempt is failed
	DefaultAuthTimeout = 60 * time.Second

	// DefaultMaxQRRetries is how many QR codes are issued before a session
	// gives up authenticating
	DefaultMaxQRRetries = 5

	// DefaultCacheTTL is the default time-to-live for cached tool results
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheCleanupInterval is how often expired cache entries are swept
	DefaultCacheCleanupInterval = 1 * time.Minute

	// DefaultHealthCheckInterval is how often the health monitor re-checks
	// every component
	DefaultHealthCheckInterval = 30 * time.Second

	// DefaultStaleSessionAge is how old a connected session's last activity
	// may be before the health check flags it
	DefaultStaleSessionAge = 24 * time.Hour

	// DefaultEditorTimeout is the per-request timeout for editor extension
	// calls
	DefaultEditorTimeout = 10 * time.Second

	// DefaultRequestTimeout is the HTTP API per-request timeout
	DefaultRequestTimeout = 30 * time.Second

	// DefaultShutdownTimeout bounds graceful shutdown of the HTTP server
	DefaultShutdownTimeout = 10 * time.Second
)
