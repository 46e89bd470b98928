package session

import "strings"

// Opts holds configuration options for persistent session stores.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for persistent session stores.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType determines the database type from a connection string.
// Returns "postgres" for PostgreSQL URLs or key=value DSNs, "redis" for
// Redis URLs, and "sqlite" otherwise (file paths).
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres"
	case strings.Contains(dsn, "host=") && strings.Contains(dsn, "dbname="):
		return "postgres"
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return "redis"
	default:
		return "sqlite"
	}
}
