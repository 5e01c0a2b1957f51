package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	_ "github.com/mutecomm/go-sqlcipher/v4" // registers the sqlcipher driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/eliteGoblin/focusd/focustrack/internal/domain"
)

const (
	// DatabaseName is the tracker database file inside the data directory.
	DatabaseName = "focustrack.db"

	plainDriver     = "sqlite"  // modernc.org/sqlite
	encryptedDriver = "sqlite3" // go-sqlcipher

	busyTimeoutMs = 5000

	// timeLayout is fixed width so lexical order equals time order.
	timeLayout = "2006-01-02T15:04:05.000Z"
)

// StoreOptions configures OpenStore.
type StoreOptions struct {
	Path   string // ":memory:" for an in-memory database
	Key    []byte // non-nil opens the file with SQLCipher
	Clock  clockwork.Clock
	Logger *zap.Logger
}

// Store is the persistence gateway: the only component that touches the
// database. Every logical operation runs in one transaction over a single
// pooled connection, so writes are serialized.
type Store struct {
	db     *sqlx.DB
	path   string
	key    []byte
	clock  clockwork.Clock
	logger *zap.Logger
}

// OpenStore opens (or creates) the database and applies pending migrations.
func OpenStore(ctx context.Context, opts StoreOptions) (*Store, error) {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	memory := opts.Path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	driver, dsn := plainDriver, plainDSN(opts.Path, memory)
	if opts.Key != nil {
		if memory {
			return nil, errors.New("encrypted in-memory database is not supported")
		}
		driver, dsn = encryptedDriver, encryptedDSN(opts.Path, opts.Key)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMs),
	}
	if !memory {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &Store{db: db, path: opts.Path, key: opts.Key, clock: opts.Clock, logger: opts.Logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// OpenMemoryStore opens an unencrypted in-memory database, used by tests.
func OpenMemoryStore(ctx context.Context, clock clockwork.Clock) (*Store, error) {
	return OpenStore(ctx, StoreOptions{Path: ":memory:", Clock: clock})
}

// OpenDataStore opens the tracker database inside dataDir. With encrypt set
// the key is read from (or generated into) the data directory's key file.
func OpenDataStore(ctx context.Context, dataDir string, encrypt bool, clock clockwork.Clock, logger *zap.Logger) (*Store, error) {
	opts := StoreOptions{
		Path:   filepath.Join(dataDir, DatabaseName),
		Clock:  clock,
		Logger: logger,
	}
	if encrypt {
		key, err := EnsureKey(NewFileKeyProvider(dataDir), opts.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load encryption key: %w", err)
		}
		opts.Key = key
	}
	return OpenStore(ctx, opts)
}

func plainDSN(path string, memory bool) string {
	params := fmt.Sprintf("_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_txlock=immediate", busyTimeoutMs)
	if memory {
		return "file::memory:?" + params
	}
	return "file:" + path + "?" + params
}

func encryptedDSN(path string, key []byte) string {
	return fmt.Sprintf("%s?_pragma_key=%s&_pragma_cipher_page_size=4096&_foreign_keys=1&_busy_timeout=%d&_txlock=immediate",
		path, keyLiteral(key), busyTimeoutMs)
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) now() string {
	return formatTime(s.clock.Now())
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid stored timestamp %q: %w", s, err)
	}
	return t, nil
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func ptrInt64(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// persistErr wraps a storage failure so callers can match domain.ErrPersistence.
func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrPersistence, err)
}

var (
	_ domain.ActivityStore  = (*Store)(nil)
	_ domain.CategoryStore  = (*Store)(nil)
	_ domain.SessionStore   = (*Store)(nil)
	_ domain.CatalogStore   = (*Store)(nil)
	_ domain.SummaryStore   = (*Store)(nil)
	_ domain.ActivityReader = (*Store)(nil)
	_ domain.DaemonRegistry = (*Store)(nil)
)
