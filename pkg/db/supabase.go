package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	supabase "github.com/supabase-community/supabase-go"
)

// SupabaseConfig holds the connection for a Supabase-hosted brief archive.
type SupabaseConfig struct {
	// ConnectionString overrides the one derived from URL and Password.
	ConnectionString string
	// URL is the project URL, e.g. https://[project-ref].supabase.co
	URL string
	// Key is the API key for the SDK client.
	Key string
	// Password is the database password, not the API key.
	Password string
	Pool     PoolConfig
}

// SupabaseClient provides the Postgres handle and the SDK client of a Supabase project.
type SupabaseClient struct {
	db    *sql.DB
	dbErr error
	sdk   *supabase.Client
	cfg   SupabaseConfig
}

// NewSupabaseClient constructs a Supabase client. Call Connect before use.
func NewSupabaseClient(cfg SupabaseConfig) *SupabaseClient {
	return &SupabaseClient{cfg: cfg}
}

// Connect initializes the SDK when URL and key are set and the direct database
// connection when a connection string or password is available. With only URL and
// key it runs in REST-only mode and DB returns nil.
func (c *SupabaseClient) Connect(ctx context.Context) error {
	if c.cfg.URL != "" && c.cfg.Key != "" {
		sdk, err := supabase.NewClient(c.cfg.URL, c.cfg.Key, nil)
		if err != nil {
			return fmt.Errorf("initialize supabase SDK: %w", err)
		}
		c.sdk = sdk
	}

	connStr := c.cfg.ConnectionString
	if connStr == "" && c.cfg.Password != "" {
		var err error
		if connStr, err = SupabaseConnectionString(c.cfg.URL, c.cfg.Password); err != nil {
			if c.sdk == nil {
				return err
			}
			c.dbErr = err
		}
	}

	if connStr != "" {
		// Prepared statement caching conflicts with the Supabase pooler under parallel batches.
		connStr = addConnectionParam(connStr, "statement_cache_capacity", "0")
		connStr = addConnectionParam(connStr, "default_query_exec_mode", "simple_protocol")

		db, err := openPgx(ctx, connStr, c.cfg.Pool)
		if err != nil {
			if c.sdk == nil {
				return fmt.Errorf("supabase postgres: %w", err)
			}
			c.dbErr = fmt.Errorf("supabase postgres: %w", err)
		}
		c.db = db
	}

	if c.db == nil && c.sdk == nil {
		return fmt.Errorf("either connection string/password or Supabase URL+key must be provided")
	}
	return nil
}

// Close closes the database connection.
func (c *SupabaseClient) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB exposes the sql.DB handle, or nil in REST-only mode.
func (c *SupabaseClient) DB() *sql.DB {
	return c.db
}

// DBErr reports why the direct connection is missing when Connect fell back to
// REST-only mode.
func (c *SupabaseClient) DBErr() error {
	return c.dbErr
}

// SDK returns the Supabase SDK client, or nil if it was not initialized.
func (c *SupabaseClient) SDK() *supabase.Client {
	return c.sdk
}

// SupabaseConnectionString derives the direct Postgres connection string of a project.
func SupabaseConnectionString(projectURL, password string) (string, error) {
	if projectURL == "" {
		return "", fmt.Errorf("supabase URL is required when connection string is not provided")
	}
	if password == "" {
		return "", fmt.Errorf("supabase password is required when connection string is not provided")
	}

	u, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("parse supabase URL: %w", err)
	}
	parts := strings.Split(u.Host, ".")
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid supabase URL format: expected [project-ref].supabase.co")
	}

	return fmt.Sprintf("postgresql://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(password), parts[0]), nil
}

func addConnectionParam(connStr, key, value string) string {
	if strings.Contains(connStr, key+"=") {
		return connStr
	}
	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}
	return connStr + separator + key + "=" + value
}
