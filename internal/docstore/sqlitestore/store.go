// Package sqlitestore implements docstore.Store on top of SQLite.
//
// Several processes can open the same database file and observe each
// other's writes: every Store polls PRAGMA data_version and re-runs its
// subscriptions when another connection has committed. Within one process,
// writes and snapshot delivery are serialised by a mutex, so each
// subscription sees changes in commit order.
package sqlitestore

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/tandem/internal/clock"
	"github.com/roach88/tandem/internal/docstore"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (documents, server_clock)
// 1 - Added index on documents(collection, update_time)
const currentSchemaVersion = 1

// DefaultPollInterval is how often other processes' commits are checked for.
const DefaultPollInterval = 250 * time.Millisecond

// Store is a docstore.Store backed by a SQLite database file.
type Store struct {
	db           *sql.DB
	clock        clock.Clock
	newID        func() string
	logger       *slog.Logger
	pollInterval time.Duration

	mu          sync.Mutex // serialises writes and snapshot delivery
	subs        map[int]*subscription
	nextSub     int
	dataVersion int64

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

var _ docstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock sets the clock used for server timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithPollInterval sets how often the database is checked for commits made
// by other processes. Zero disables background polling; Poll can still be
// called explicitly.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		s.pollInterval = d
	}
}

// WithIDGenerator sets the ID generator used by Add.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// The database is configured with:
//   - WAL mode so readers in other processes don't block the writer
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//
// This function is idempotent - safe to call multiple times.
func Open(path string, opts ...Option) (*Store, error) {
	// Immediate transactions take the write lock up front, so a
	// read-modify-write never has to upgrade a read snapshot another
	// process has since invalidated.
	db, err := sql.Open("sqlite3", "file:"+path+"?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: PRAGMA data_version is per connection and only changes
	// for commits made through other connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:           db,
		clock:        clock.Real{},
		newID:        func() string { return uuid.NewString() },
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		subs:         make(map[int]*subscription),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := db.QueryRow("PRAGMA data_version").Scan(&s.dataVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read data_version: %w", err)
	}

	if s.pollInterval > 0 {
		go s.pollLoop()
	} else {
		close(s.done)
	}

	return s, nil
}

// Close stops polling and closes the database connection.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 indexes documents by update time for change scans.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_documents_updated
		ON documents(collection, update_time)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
