// Package persistence implements auth/domain's UserRepository and
// TokenRepository as hand-written SQL over the shared sqlite/postgres
// database.Connection abstraction — the auth tables are simple enough
// that a generated query layer would add a build step without buying
// anything SPEC_FULL.md needs.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/felixgeelhaar/meridian/internal/auth/domain"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// Store implements both domain.UserRepository and domain.TokenRepository
// on top of a single database.Connection, using either driver.
type Store struct {
	conn   database.Connection
	driver database.Driver
}

// NewStore wires conn. Callers should have already imported the sqlite
// and/or postgres packages for their driver-registration side effect
// before calling database.NewConnection.
func NewStore(conn database.Connection) *Store {
	return &Store{conn: conn, driver: conn.Driver()}
}

// Migrate creates the users/tokens tables if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	var stmts []string
	switch s.driver {
	case database.DriverPostgres:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				username TEXT PRIMARY KEY,
				salt BYTEA NOT NULL,
				password_hash BYTEA NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS tokens (
				id UUID PRIMARY KEY,
				username TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
				token_hash BYTEA NOT NULL,
				created_at TIMESTAMPTZ NOT NULL,
				device_name TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS tokens_username_idx ON tokens(username)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS tokens_hash_idx ON tokens(token_hash)`,
		}
	default:
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				username TEXT PRIMARY KEY,
				salt BLOB NOT NULL,
				password_hash BLOB NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS tokens (
				id TEXT PRIMARY KEY,
				username TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
				token_hash BLOB NOT NULL,
				created_at DATETIME NOT NULL,
				device_name TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS tokens_username_idx ON tokens(username)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS tokens_hash_idx ON tokens(token_hash)`,
		}
	}
	for _, stmt := range stmts {
		if _, err := s.conn.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// exec returns ctx's transaction if one is open, else the bare connection.
func (s *Store) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, s.conn)
}

// ph returns the ith (1-based) positional placeholder in the dialect
// this store's driver expects.
func (s *Store) ph(i int) string {
	if s.driver == database.DriverPostgres {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// --- UserRepository ---

var _ domain.UserRepository = (*Store)(nil)

func (s *Store) Get(ctx context.Context, username string) (domain.User, bool, error) {
	query := fmt.Sprintf(`SELECT username, salt, password_hash FROM users WHERE lower(username) = lower(%s)`, s.ph(1))
	row := s.exec(ctx).QueryRow(ctx, query, username)
	var u domain.User
	if err := row.Scan(&u.Username, &u.Salt, &u.PasswordHash); err != nil {
		if database.IsNoRows(err) || err == sql.ErrNoRows {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return u, true, nil
}

func (s *Store) HasAny(ctx context.Context) (bool, error) {
	row := s.exec(ctx).QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users)`)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) Save(ctx context.Context, u domain.User) error {
	var query string
	if s.driver == database.DriverPostgres {
		query = fmt.Sprintf(`INSERT INTO users (username, salt, password_hash) VALUES (%s, %s, %s)
			ON CONFLICT (username) DO UPDATE SET salt = EXCLUDED.salt, password_hash = EXCLUDED.password_hash`,
			s.ph(1), s.ph(2), s.ph(3))
	} else {
		query = `INSERT INTO users (username, salt, password_hash) VALUES (?, ?, ?)
			ON CONFLICT (username) DO UPDATE SET salt = excluded.salt, password_hash = excluded.password_hash`
	}
	_, err := s.exec(ctx).Exec(ctx, query, u.Username, u.Salt, u.PasswordHash)
	return err
}

// --- TokenRepository ---

var _ domain.TokenRepository = (*Store)(nil)

func (s *Store) Save(ctx context.Context, t domain.Token) error {
	query := fmt.Sprintf(`INSERT INTO tokens (id, username, token_hash, created_at, device_name) VALUES (%s, %s, %s, %s, %s)`,
		s.ph(1), s.ph(2), s.ph(3), s.ph(4), s.ph(5))
	_, err := s.exec(ctx).Exec(ctx, query, t.ID.String(), t.Username, t.TokenHash, t.CreatedAt.UTC(), t.DeviceName)
	return err
}

func (s *Store) FindByHash(ctx context.Context, hash []byte) (domain.Token, bool, error) {
	query := fmt.Sprintf(`SELECT id, username, token_hash, created_at, device_name FROM tokens WHERE token_hash = %s`, s.ph(1))
	row := s.exec(ctx).QueryRow(ctx, query, hash)
	t, err := scanToken(row)
	if err != nil {
		if database.IsNoRows(err) || err == sql.ErrNoRows {
			return domain.Token{}, false, nil
		}
		return domain.Token{}, false, err
	}
	return t, true, nil
}

func (s *Store) ListForUser(ctx context.Context, username string) ([]domain.Token, error) {
	query := fmt.Sprintf(`SELECT id, username, token_hash, created_at, device_name FROM tokens WHERE lower(username) = lower(%s) ORDER BY created_at`, s.ph(1))
	rows, err := s.exec(ctx).Query(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id valuetype.TokenID) error {
	query := fmt.Sprintf(`DELETE FROM tokens WHERE id = %s`, s.ph(1))
	_, err := s.exec(ctx).Exec(ctx, query, id.String())
	return err
}

// scanner is satisfied by both database.Row and database.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanToken(row scanner) (domain.Token, error) {
	var t domain.Token
	var id string
	var createdAt time.Time
	if err := row.Scan(&id, &t.Username, &t.TokenHash, &createdAt, &t.DeviceName); err != nil {
		return domain.Token{}, err
	}
	parsed, err := valuetype.ParseTokenID(id)
	if err != nil {
		return domain.Token{}, fmt.Errorf("parse token id: %w", err)
	}
	t.ID = parsed
	t.CreatedAt = createdAt
	return t, nil
}
