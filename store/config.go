package store

import (
	"fmt"
	"log/slog"
)

// Config holds configuration for the shared connection.
// It is read once by Connect and never consulted again.
type Config struct {
	// Endpoint is the document store endpoint URI
	// (e.g., "http://localhost:8000" for DynamoDB Local).
	// Required.
	Endpoint string

	// Database is the logical database name. Collections live in
	// tables named "<Database>.<collection>".
	// Required.
	Database string

	// Collections is the desired set of collection names, reconciled
	// once per connection. Order is preserved when creating missing
	// collections; duplicates are not meaningful. May be empty.
	Collections []string

	// Username and Password form an optional credential pair
	// (access key ID / secret access key). Authentication is used
	// only when both are set.
	Username string
	Password string

	// Region is the AWS region for signing requests.
	// Default: "us-east-1" (DynamoDB Local accepts any region).
	Region string

	// Logger receives lifecycle and reconciliation logs.
	// Default: slog.Default()
	Logger *slog.Logger
}

// validate ensures config values are usable, filling defaults.
func (c *Config) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("pergola: config: Endpoint is required")
	}
	if c.Database == "" {
		return fmt.Errorf("pergola: config: Database is required")
	}
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// authenticated reports whether a full credential pair is present.
func (c *Config) authenticated() bool {
	return c.Username != "" && c.Password != ""
}
