package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/turnstile/internal/model"
)

// Supported store dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
	DialectMySQL    = "mysql"
)

// StoreOptions selects and tunes the database behind a Store.
type StoreOptions struct {
	Dialect string // sqlite (default), postgres, mysql
	DSN     string // for sqlite: file path or empty for in-memory
	Pool    model.PoolConfig
}

// Store persists users and API keys. It is the lookup backend for API-key
// verification and the account backend for login/signup.
type Store struct {
	db      *sqlx.DB
	dialect string
}

// NewStore creates a SQLite-backed store in dataDir. Pass empty string for
// in-memory.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		return Open(StoreOptions{Dialect: DialectSQLite})
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return Open(StoreOptions{
		Dialect: DialectSQLite,
		DSN:     filepath.Join(dataDir, "turnstile.db"),
	})
}

// Open connects to the configured database and applies migrations.
func Open(opts StoreOptions) (*Store, error) {
	dialect := opts.Dialect
	if dialect == "" {
		dialect = DialectSQLite
	}

	var (
		driverName string
		dsn        = opts.DSN
	)
	switch dialect {
	case DialectSQLite:
		driverName = "sqlite"
		if dsn == "" {
			dsn = ":memory:?_journal_mode=WAL"
		} else if !strings.Contains(dsn, "?") {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	case DialectPostgres:
		driverName = "pgx"
	case DialectMySQL:
		driverName = "mysql"
		dsn = withParseTime(dsn)
	default:
		return nil, fmt.Errorf("unsupported store dialect %q", dialect)
	}
	if dsn == "" {
		return nil, fmt.Errorf("store dsn is required for dialect %q", dialect)
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open store database: %w", err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		// Enable foreign keys (off by default in SQLite).
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else {
		pool := opts.Pool
		if pool.MaxOpenConns == 0 {
			pool = model.DefaultPoolConfig()
		}
		db.SetMaxOpenConns(pool.MaxOpenConns)
		db.SetMaxIdleConns(pool.MaxIdleConns)
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	s := &Store{db: db, dialect: dialect}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store database: %w", err)
	}
	return s, nil
}

// NewStoreFromDB wraps an already-open database without running migrations.
func NewStoreFromDB(db *sqlx.DB, dialect string) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Dialect returns the SQL dialect the store was opened with.
func (s *Store) Dialect() string {
	return s.dialect
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

// CreateUser inserts a new user. ID (when empty), CreatedAt and UpdatedAt are
// populated before insert. Returns ErrConflict if the email is taken.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	if user.ID == "" {
		user.ID = newID()
	}
	if user.Status == "" {
		user.Status = model.UserStatusActive
	}
	user.CreatedAt = now
	user.UpdatedAt = now

	const q = `INSERT INTO users
		(id, email, name, password_hash, status, last_login_at, created_at, updated_at)
		VALUES
		(:id, :email, :name, :password_hash, :status, :last_login_at, :created_at, :updated_at)`

	if _, err := s.db.NamedExecContext(ctx, q, user); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns a user by ID.
func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.db.GetContext(ctx, &user, s.db.Rebind("SELECT * FROM users WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetUserByEmail returns a user by email address.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.GetContext(ctx, &user, s.db.Rebind("SELECT * FROM users WHERE email = ?"), email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return &user, nil
}

// ListUsers returns all users ordered by email.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY email"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateUserStatus sets the status of a user.
func (s *Store) UpdateUserStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE users SET status = ?, updated_at = ? WHERE id = ?"),
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	return requireRow(result, "update user status")
}

// UpdateUserLastLogin sets the last_login_at timestamp for a user.
func (s *Store) UpdateUserLastLogin(ctx context.Context, id string) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE users SET last_login_at = ?, updated_at = ? WHERE id = ?"), now, now, id)
	if err != nil {
		return fmt.Errorf("update user last login: %w", err)
	}
	return requireRow(result, "update user last login")
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new API key record. KeyHash must already be set; the
// raw key never reaches the store. ID (when empty) and CreatedAt are
// populated before insert.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	if key.ID == "" {
		key.ID = newID()
	}
	key.CreatedAt = time.Now().UTC()
	key.ExpiresAt = key.ExpiresAt.UTC()

	const q = `INSERT INTO api_keys
		(id, key_hash, key_prefix, label, user_id, expires_at, created_at, used_at)
		VALUES
		(:id, :key_hash, :key_prefix, :label, :user_id, :expires_at, :created_at, :used_at)`

	if _, err := s.db.NamedExecContext(ctx, q, key); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// GetAPIKeyByHash looks up an API key by its SHA-256 hash.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, s.db.Rebind("SELECT * FROM api_keys WHERE key_hash = ?"), hash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return &key, nil
}

// GetAPIKey returns an API key by ID.
func (s *Store) GetAPIKey(ctx context.Context, id string) (*model.APIKey, error) {
	var key model.APIKey
	if err := s.db.GetContext(ctx, &key, s.db.Rebind("SELECT * FROM api_keys WHERE id = ?"), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return &key, nil
}

// ListAPIKeys returns all API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys, "SELECT * FROM api_keys ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// ListAPIKeysByUser returns the API keys owned by a user, newest first.
func (s *Store) ListAPIKeysByUser(ctx context.Context, userID string) ([]model.APIKey, error) {
	var keys []model.APIKey
	if err := s.db.SelectContext(ctx, &keys,
		s.db.Rebind("SELECT * FROM api_keys WHERE user_id = ? ORDER BY created_at DESC"), userID); err != nil {
		return nil, fmt.Errorf("list api keys by user: %w", err)
	}
	return keys, nil
}

// DeleteAPIKey removes an API key by ID.
func (s *Store) DeleteAPIKey(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM api_keys WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	return requireRow(result, "delete api key")
}

// DeleteAPIKeyByPrefix removes the API key whose prefix matches exactly.
// Prefixes are not unique; when more than one key shares prefix nothing is
// deleted and ErrAmbiguous is returned.
func (s *Store) DeleteAPIKeyByPrefix(ctx context.Context, prefix string) error {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids,
		s.db.Rebind("SELECT id FROM api_keys WHERE key_prefix = ?"), prefix); err != nil {
		return fmt.Errorf("find api key by prefix: %w", err)
	}
	switch len(ids) {
	case 0:
		return ErrNotFound
	case 1:
		return s.DeleteAPIKey(ctx, ids[0])
	default:
		return fmt.Errorf("api key prefix %q: %w", prefix, ErrAmbiguous)
	}
}

// TouchAPIKey sets the used_at timestamp for an API key. Concurrent touches
// of the same key are last-write-wins.
func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE api_keys SET used_at = ? WHERE id = ?"), at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update api key used_at: %w", err)
	}
	return requireRow(result, "update api key used_at")
}

// ---------------------------------------------------------------------------
// Utility
// ---------------------------------------------------------------------------

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func requireRow(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation recognizes unique-constraint errors from every supported
// driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

// withParseTime makes the MySQL driver scan DATETIME/TIMESTAMP into time.Time
// and report matched rather than changed rows, so an UPDATE that rewrites
// the same value still counts as a hit.
func withParseTime(dsn string) string {
	if dsn == "" {
		return dsn
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return dsn
	}
	if !strings.Contains(dsn, "parseTime=") {
		cfg.ParseTime = true
		cfg.Loc = time.UTC
	}
	cfg.ClientFoundRows = true
	return cfg.FormatDSN()
}
