// Package sqlite implements the catalog store on SQLite. SQLite is the query
// engine; JSONL snapshots in DataDir are the durable copy that Open reloads.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mesh-intelligence/catalog/internal/logger"
	"github.com/mesh-intelligence/catalog/internal/metrics"
	"github.com/mesh-intelligence/catalog/pkg/types"
)

// dbFileName is the SQLite database inside DataDir. It is rebuilt from the
// JSONL snapshots on every Open.
const dbFileName = "catalog.db"

// timeFormat is fixed-width so that created_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

var _ types.Store = (*Backend)(nil)

// Backend implements types.Store. Structural mutations run in one
// BEGIN IMMEDIATE transaction each; WAL mode gives readers a consistent
// snapshot while a writer is active.
type Backend struct {
	mu     sync.RWMutex
	open   bool
	config types.Config
	db     *sql.DB

	log     zerolog.Logger
	metrics *metrics.Metrics
	locks   *treeLocks

	// persistMu serializes snapshot writes; dirty records tables changed
	// since the last snapshot under SyncOnClose.
	persistMu sync.Mutex
	dirty     map[string]bool
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Backend) {
		b.log = logger.Component(l, "sqlite")
	}
}

// WithMetrics records operation counters and timings in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Backend) {
		b.metrics = m
	}
}

// NewBackend creates a backend. It is not open; call Open with a Config.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		log:   zerolog.Nop(),
		locks: newTreeLocks(),
		dirty: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open creates DataDir if needed, rebuilds the SQLite database from the JSONL
// snapshots, and makes the backend usable. Returns ErrAlreadyOpen if the
// backend is already open.
func (b *Backend) Open(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.open {
		return types.ErrAlreadyOpen
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, dbFileName)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(dbPath + suffix)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return fmt.Errorf("creating schema: %w", err)
	}
	if err := initJSONLFiles(dataDir); err != nil {
		db.Close()
		return err
	}
	if err := loadAllJSONL(db, dataDir); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}

	config.DataDir = dataDir
	b.db = db
	b.config = config
	b.open = true
	b.dirty = make(map[string]bool)

	b.refreshNodeGauge(context.Background())
	b.log.Debug().Str("data_dir", dataDir).Str("sync_strategy", config.EffectiveSyncStrategy()).Msg("catalog opened")
	return nil
}

// Close flushes pending snapshots and closes the database. Close is
// idempotent; afterwards every operation returns ErrCatalogClosed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}

	if err := b.flushDirty(); err != nil {
		return fmt.Errorf("flush pending snapshots: %w", err)
	}
	if err := b.db.Close(); err != nil {
		return err
	}
	b.db = nil
	b.open = false
	b.log.Debug().Msg("catalog closed")
	return nil
}

// dsn builds the modernc connection string: foreign keys on, WAL journal,
// writers take the RESERVED lock when their transaction begins.
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=foreign_keys(1)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}

// enter takes the read side of the lifecycle lock. The returned func must be
// called when the operation ends.
func (b *Backend) enter() (func(), error) {
	b.mu.RLock()
	if !b.open {
		b.mu.RUnlock()
		return nil, types.ErrCatalogClosed
	}
	return b.mu.RUnlock, nil
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction and commits if fn returns nil.
func (b *Backend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// afterWrite persists the touched tables according to the sync strategy.
func (b *Backend) afterWrite(tables ...string) error {
	if b.config.EffectiveSyncStrategy() == types.SyncOnClose {
		b.persistMu.Lock()
		for _, t := range tables {
			b.dirty[t] = true
		}
		b.persistMu.Unlock()
		return nil
	}
	return b.persistTables(tables...)
}

// flushDirty writes every table marked dirty. The caller holds b.mu.
func (b *Backend) flushDirty() error {
	b.persistMu.Lock()
	var tables []string
	for t := range b.dirty {
		tables = append(tables, t)
	}
	b.persistMu.Unlock()

	if len(tables) == 0 {
		return nil
	}
	if err := b.persistTables(tables...); err != nil {
		return err
	}

	b.persistMu.Lock()
	b.dirty = make(map[string]bool)
	b.persistMu.Unlock()
	return nil
}

// observe records metrics for an operation that began at started.
func (b *Backend) observe(operation string, started time.Time, err error) {
	b.metrics.Observe(operation, started, err)
}

// refreshNodeGauge publishes the current number of tree positions.
func (b *Backend) refreshNodeGauge(ctx context.Context) {
	if b.metrics == nil {
		return
	}
	var n int64
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tree_nodes").Scan(&n); err != nil {
		return
	}
	b.metrics.SetTreeNodes(n)
}

// generateUUID generates a new UUID v7 for entity IDs.
func generateUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
