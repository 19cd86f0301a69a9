package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/tomtom215/fedsync/internal/eventbus"
	"github.com/tomtom215/fedsync/internal/logging"
)

// Catalog owns the DuckDB connection pool and publishes every committed
// write onto the event bus. Grounded on the connection-string and pool
// tuning of internal/database/database.go and database_connection.go.
type Catalog struct {
	db   *sql.DB
	bus  *eventbus.Bus
	path string

	stmtMu    sync.Mutex
	stmtCache map[string]*sql.Stmt
}

// Open creates (if needed) and migrates the catalog database at path.
// path may be ":memory:" for tests.
func Open(ctx context.Context, path string, bus *eventbus.Bus) (*Catalog, error) {
	connStr := buildConnString(path)

	db, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("catalog: open: %w", err)
	}

	configureConnectionPool(db)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}

	logging.Info().Str("component", "catalog").Str("path", path).Msg("catalog opened")

	return &Catalog{
		db:        db,
		bus:       bus,
		path:      path,
		stmtCache: make(map[string]*sql.Stmt),
	}, nil
}

func buildConnString(path string) string {
	if path == ":memory:" {
		return ""
	}
	return fmt.Sprintf(
		"%s?access_mode=read_write&threads=%d&preserve_insertion_order=true&autoinstall_known_extensions=false&autoload_known_extensions=false",
		path, runtime.NumCPU(),
	)
}

// configureConnectionPool mirrors database_connection.go: a small, mostly
// idle pool since DuckDB serializes writers internally.
func configureConnectionPool(db *sql.DB) {
	db.SetMaxOpenConns(runtime.NumCPU())
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(5 * time.Minute)
}

// prepare returns a cached *sql.Stmt for query, preparing it on first use.
func (c *Catalog) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	c.stmtMu.Lock()
	defer c.stmtMu.Unlock()

	if stmt, ok := c.stmtCache[query]; ok {
		return stmt, nil
	}
	stmt, err := c.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	c.stmtCache[query] = stmt
	return stmt, nil
}

// BeginTx starts a transaction. Repositories wrap every write in one so a
// partial failure never leaves the catalog or the event bus publish
// inconsistent with each other.
func (c *Catalog) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return c.db.BeginTx(ctx, nil)
}

// Publish emits evt on the bus after a transaction commits. Repositories
// call this as the last step of a successful write, never inside the tx.
func (c *Catalog) Publish(ctx context.Context, evt eventbus.Event) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(ctx, evt); err != nil {
		logging.Warn().Err(err).Str("component", "catalog").Msg("failed to publish catalog event")
	}
}

// DB exposes the underlying pool for repositories in this package.
func (c *Catalog) DB() *sql.DB { return c.db }

// Close releases cached statements and the connection pool.
func (c *Catalog) Close() error {
	c.stmtMu.Lock()
	for _, stmt := range c.stmtCache {
		stmt.Close()
	}
	c.stmtCache = nil
	c.stmtMu.Unlock()

	return c.db.Close()
}

// isConnectionError matches database.go's heuristic for distinguishing a
// dropped connection from a query-level failure.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "broken pipe", "closed", "i/o timeout"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
