package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. The request timeout has to outlive CODE_WAIT_TIMEOUT_SECONDS
// and a multi-item send.
const (
	ServerRequestTimeout  = 5 * time.Minute
	ServerReadTimeout     = 60 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for startup checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = time.Minute

// Staged uploads older than this are removed by the cleanup job
const StaleUploadAge = time.Hour

// Engine sidecar request timeout
const EngineRequestTimeout = 60 * time.Second
