// Package sql wraps a pool of sqlite connections holding the state of the
// agent and of the index server.
package sql

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/go-llsqlite/crawshaw"
	"github.com/go-llsqlite/crawshaw/sqlitex"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var (
	// ErrNoConnection is returned when the pool is closed or ctx expired while waiting for a connection.
	ErrNoConnection = errors.New("database: no free connection")
	// ErrNotFound is returned if requested record is not found.
	ErrNotFound = errors.New("database: not found")
	// ErrObjectExists is returned when a unique constraint rejects an insert.
	ErrObjectExists = errors.New("database: object exists")
)

// Executor runs a single statement, encoding its parameters and decoding every row.
type Executor interface {
	Exec(string, Encoder, Decoder) (int, error)
}

// Statement is an sqlite statement.
type Statement = sqlite.Stmt

// Encoder binds statement parameters, positional (?1) or named (@id).
// See https://www.sqlite.org/c3ref/bind_blob.html.
type Encoder func(*Statement)

// Decoder is called for every row; returning false stops the iteration.
type Decoder func(*Statement) bool

type options struct {
	connections int
	fresh       bool
	latency     bool
	logger      *zap.Logger
	migrations  Migrations
}

// Opt configures the database.
type Opt func(*options)

// WithConnections sets the size of the connection pool.
func WithConnections(n int) Opt {
	return func(o *options) {
		if n > 0 {
			o.connections = n
		}
	}
}

func WithLogger(logger *zap.Logger) Opt {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMigrations replaces the embedded schema. Nil opens the database as is.
func WithMigrations(migrations Migrations) Opt {
	return func(o *options) {
		o.migrations = migrations
	}
}

// WithLatencyMetering records the duration of every query.
func WithLatencyMetering(enable bool) Opt {
	return func(o *options) {
		o.latency = enable
	}
}

// InMemory creates an in-memory database and panics on failure.
func InMemory(opts ...Opt) *Database {
	opts = append(opts, WithConnections(1), func(o *options) { o.fresh = true })
	db, err := Open("file::memory:?mode=memory", opts...)
	if err != nil {
		panic(err)
	}
	return db
}

// InMemoryTest returns an in-memory database closed when the test ends.
func InMemoryTest(tb testing.TB, opts ...Opt) *Database {
	db := InMemory(opts...)
	tb.Cleanup(func() { db.Close() })
	return db
}

// Open opens the database at uri, creating it if needed, in WAL mode, and
// brings its schema up to date.
func Open(uri string, opts ...Opt) (*Database, error) {
	o := options{
		connections: 16,
		logger:      zap.NewNop(),
		migrations:  embeddedMigrations,
	}
	for _, opt := range opts {
		opt(&o)
	}
	pool, err := openPool(uri, o)
	if err != nil {
		return nil, err
	}
	db := &Database{pool: pool}
	if o.latency {
		db.latency = queryDuration
	}
	if o.migrations == nil {
		return db, nil
	}
	if err := db.WithTx(context.Background(), func(tx *Tx) error {
		return o.migrations(tx)
	}); err != nil {
		return nil, errors.Join(fmt.Errorf("migrate %s: %w", uri, err), db.Close())
	}
	version, err := SchemaVersion(db)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	o.logger.Debug("database ready", zap.String("uri", uri), zap.Int("schema", version))
	return db, nil
}

// openPool retries with SQLITE_OPEN_CREATE only when the file does not exist
// yet. Zero flags let sqlitex pick its defaults for in-memory databases.
func openPool(uri string, o options) (*sqlitex.Pool, error) {
	if o.fresh {
		pool, err := sqlitex.Open(uri, 0, o.connections)
		if err != nil {
			return nil, fmt.Errorf("open db %s: %w", uri, err)
		}
		return pool, nil
	}
	flags := sqlite.SQLITE_OPEN_READWRITE | sqlite.SQLITE_OPEN_WAL | sqlite.SQLITE_OPEN_URI | sqlite.SQLITE_OPEN_NOMUTEX
	pool, err := sqlitex.Open(uri, flags, o.connections)
	if err == nil {
		return pool, nil
	}
	if sqlite.ErrCode(err) != sqlite.SQLITE_CANTOPEN {
		return nil, fmt.Errorf("open db %s: %w", uri, err)
	}
	pool, err = sqlitex.Open(uri, flags|sqlite.SQLITE_OPEN_CREATE, o.connections)
	if err != nil {
		return nil, fmt.Errorf("create db %s: %w", uri, err)
	}
	return pool, nil
}

// Database is a pool of connections to one sqlite database.
type Database struct {
	pool    *sqlitex.Pool
	closed  atomic.Bool
	latency *prometheus.HistogramVec
}

func (db *Database) conn(ctx context.Context) (*sqlite.Conn, error) {
	start := time.Now()
	conn := db.pool.Get(ctx)
	if conn == nil {
		return nil, ErrNoConnection
	}
	connWaitLatency.Observe(time.Since(start).Seconds())
	return conn, nil
}

func (db *Database) observe(query string, start time.Time) {
	if db.latency != nil {
		db.latency.WithLabelValues(query).Observe(float64(time.Since(start)))
	}
}

func (db *Database) begin(ctx context.Context, mode string) (*Tx, error) {
	conn, err := db.conn(ctx)
	if err != nil {
		return nil, err
	}
	tx := &Tx{db: db, conn: conn}
	if err := tx.step(mode); err != nil {
		db.pool.Put(conn)
		return nil, fmt.Errorf("begin: %w", err)
	}
	return tx, nil
}

// Tx starts a deferred transaction. It reads until its first write
// statement upgrades it; see https://www.sqlite.org/lang_transaction.html.
// The caller must Release it.
func (db *Database) Tx(ctx context.Context) (*Tx, error) {
	return db.begin(ctx, "BEGIN;")
}

// WithTx runs exec in an immediate transaction and commits when it returns nil.
func (db *Database) WithTx(ctx context.Context, exec func(*Tx) error) error {
	tx, err := db.begin(ctx, "BEGIN IMMEDIATE;")
	if err != nil {
		return err
	}
	defer tx.Release()
	if err := exec(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Exec runs query on a pooled connection. It blocks until a connection is
// free or the database is closed; use a transaction to bound it with a context.
func (db *Database) Exec(query string, encoder Encoder, decoder Decoder) (int, error) {
	conn, err := db.conn(context.Background())
	if err != nil {
		return 0, err
	}
	defer db.pool.Put(conn)
	defer db.observe(query, time.Now())
	return exec(conn, query, encoder, decoder)
}

// Close closes the pool. Closing twice is a no-op.
func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := db.pool.Close(); err != nil {
		return fmt.Errorf("close pool: %w", err)
	}
	return nil
}

func exec(conn *sqlite.Conn, query string, encoder Encoder, decoder Decoder) (int, error) {
	stmt, err := conn.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("prepare %s: %w", query, err)
	}
	defer stmt.ClearBindings()
	if encoder != nil {
		encoder(stmt)
	}
	for rows := 0; ; {
		row, err := stmt.Step()
		if err != nil {
			return 0, stepError(rows, err)
		}
		if !row {
			return rows, nil
		}
		rows++
		if decoder != nil && !decoder(stmt) {
			if err := stmt.Reset(); err != nil {
				return rows, fmt.Errorf("statement reset: %w", err)
			}
			return rows, nil
		}
	}
}

func stepError(rows int, err error) error {
	switch sqlite.ErrCode(err) {
	case sqlite.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite.SQLITE_CONSTRAINT_UNIQUE:
		return ErrObjectExists
	}
	return fmt.Errorf("step %d: %w", rows, err)
}

// Tx holds a connection for the duration of a transaction.
type Tx struct {
	db        *Database
	conn      *sqlite.Conn
	committed bool
}

func (tx *Tx) step(query string) error {
	_, err := tx.conn.Prep(query).Step()
	return err
}

func (tx *Tx) Commit() error {
	if err := tx.step("COMMIT;"); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	tx.committed = true
	return nil
}

// Release rolls back an uncommitted transaction and returns the connection
// to the pool. Every transaction must be released.
func (tx *Tx) Release() error {
	defer tx.db.pool.Put(tx.conn)
	if tx.committed {
		return nil
	}
	return tx.step("ROLLBACK;")
}

func (tx *Tx) Exec(query string, encoder Encoder, decoder Decoder) (int, error) {
	defer tx.db.observe(query, time.Now())
	return exec(tx.conn, query, encoder, decoder)
}
