// Package database opens pooled connections for the supported providers.
package database

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	_ "github.com/sijms/go-ora/v2"  // Oracle driver
)

// Provider describes a supported database.
type Provider struct {
	// Name is the canonical provider name.
	Name string
	// Driver is the database/sql driver name.
	Driver string
	// Dialect is the pagination strategy used when none is configured.
	Dialect string
}

var providers = map[string]Provider{
	"sqlite":     {Name: "sqlite", Driver: "sqlite3", Dialect: "sqlite"},
	"sqlite3":    {Name: "sqlite", Driver: "sqlite3", Dialect: "sqlite"},
	"postgres":   {Name: "postgres", Driver: "postgres", Dialect: "postgres"},
	"postgresql": {Name: "postgres", Driver: "postgres", Dialect: "postgres"},
	"mysql":      {Name: "mysql", Driver: "mysql", Dialect: "mysql"},
	"mariadb":    {Name: "mysql", Driver: "mysql", Dialect: "mysql"},
	"oracle":     {Name: "oracle", Driver: "oracle", Dialect: "oracle11g"},
}

// LookupProvider resolves a provider name.
func LookupProvider(name string) (Provider, error) {
	p, ok := providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Provider{}, fmt.Errorf("unsupported provider: %s", name)
	}
	return p, nil
}

// DetectProvider infers the provider from a connection URL scheme.
func DetectProvider(rawURL string) (Provider, error) {
	scheme, _, ok := strings.Cut(rawURL, "://")
	if !ok {
		if strings.HasPrefix(rawURL, "file:") || strings.HasSuffix(rawURL, ".db") || rawURL == ":memory:" {
			return providers["sqlite"], nil
		}
		return Provider{}, fmt.Errorf("cannot infer provider from %q", redact(rawURL))
	}
	return LookupProvider(scheme)
}

// DataSourceName converts a connection URL into the form the provider's
// driver expects.
func DataSourceName(p Provider, rawURL string) (string, error) {
	switch p.Name {
	case "sqlite":
		for _, prefix := range []string{"sqlite3://", "sqlite://"} {
			if strings.HasPrefix(rawURL, prefix) {
				return strings.TrimPrefix(rawURL, prefix), nil
			}
		}
		return rawURL, nil
	case "mysql":
		return mysqlDSN(rawURL)
	}
	return rawURL, nil
}

// mysqlDSN accepts either a driver DSN or a mysql:// URL.
func mysqlDSN(rawURL string) (string, error) {
	if strings.Contains(rawURL, "://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return "", fmt.Errorf("invalid mysql url: %w", err)
		}
		addr := u.Host
		if u.Port() == "" {
			addr = u.Hostname() + ":3306"
		}
		cfg := mysql.NewConfig()
		cfg.Net = "tcp"
		cfg.Addr = addr
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
		cfg.DBName = strings.TrimPrefix(u.Path, "/")
		rawURL = cfg.FormatDSN()
		if u.RawQuery != "" {
			rawURL += "?" + u.RawQuery
		}
	}

	cfg, err := mysql.ParseDSN(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	return u.Redacted()
}
