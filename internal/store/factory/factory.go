// Package factory selects and opens the node's storage backend from
// configuration, switching on the database_url scheme.
package factory

import (
	"context"
	"fmt"

	"github.com/aquadoggo-go/aquadoggo/internal/config"
	"github.com/aquadoggo-go/aquadoggo/internal/store"
	"github.com/aquadoggo-go/aquadoggo/internal/store/postgres"
	"github.com/aquadoggo-go/aquadoggo/internal/store/sqlite"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Open opens the storage backend named by cfg.DatabaseURL's scheme:
// "sqlite://<path>" or a "postgres://" DSN.
func Open(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	backend, dsn, err := parseDatabaseURL(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	switch backend {
	case BackendSQLite:
		return sqlite.Open(dsn, cfg.BlobsBasePath)
	case BackendPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConnections, cfg.BlobsBasePath)
	default:
		return nil, fmt.Errorf("factory: unknown storage backend %q (supported: %s, %s)", backend, BackendSQLite, BackendPostgres)
	}
}

func parseDatabaseURL(url string) (backend, rest string, err error) {
	const sqlitePrefix = "sqlite://"
	switch {
	case len(url) >= len(sqlitePrefix) && url[:len(sqlitePrefix)] == sqlitePrefix:
		return BackendSQLite, url[len(sqlitePrefix):], nil
	case len(url) >= 11 && url[:11] == "postgres://":
		return BackendPostgres, url, nil
	case len(url) >= 13 && url[:13] == "postgresql://":
		return BackendPostgres, url, nil
	default:
		return "", "", fmt.Errorf("factory: database_url %q must start with sqlite:// or postgres(ql)://", url)
	}
}
