package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/layer-3/tokenstore/adapters/store/migrations"
	"github.com/layer-3/tokenstore/core"
	"github.com/layer-3/tokenstore/ports"
)

const tokenColumns = `t.id, t.value, t.owner_id, t.issued_at`

// SQLStore persists tokens in a tokens table with a unique value index and keeps
// identity sequences in identity_references ordered by an increasing seq column.
type SQLStore struct {
	sqlDB   *sql.DB
	dialect Dialect
}

// OpenSQLite opens a SQLite token store and applies embedded migrations
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open(DialectSQLite.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a single writer connection keeps SQLITE_BUSY out of concurrent claims
	sqlDB.SetMaxOpenConns(1)
	return openSQL(ctx, sqlDB, DialectSQLite)
}

// OpenPostgres opens a Postgres token store and applies embedded migrations
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	sqlDB, err := sql.Open(DialectPostgres.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return openSQL(ctx, sqlDB, DialectPostgres)
}

func openSQL(ctx context.Context, sqlDB *sql.DB, dialect Dialect) (*SQLStore, error) {
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect, err)
	}
	if err := ApplyMigrations(ctx, sqlDB, dialect, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLStore{sqlDB: sqlDB, dialect: dialect}, nil
}

// Close closes the database handle
func (s *SQLStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// FindByValue looks a token up through the unique value index
func (s *SQLStore) FindByValue(ctx context.Context, value string) (core.Token, bool, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+tokenColumns+` FROM tokens t WHERE t.value = ?`),
		value,
	)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Token{}, false, nil
		}
		return core.Token{}, false, fmt.Errorf("%w: find token: %v", core.ErrStoreUnavailable, err)
	}
	return token, true, nil
}

// Insert writes a token row; the unique index rejects duplicate values
func (s *SQLStore) Insert(ctx context.Context, token core.Token) error {
	_, err := s.sqlDB.ExecContext(ctx,
		s.dialect.Rebind(`INSERT INTO tokens (id, value, owner_id, issued_at) VALUES (?, ?, ?, ?)`),
		token.ID,
		token.Value,
		token.OwnerID,
		toMillis(token.IssuedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return core.ErrAlreadyExists
		}
		return fmt.Errorf("%w: insert token: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteByID removes a token row
func (s *SQLStore) DeleteByID(ctx context.Context, id string) error {
	_, err := s.sqlDB.ExecContext(ctx, s.dialect.Rebind(`DELETE FROM tokens WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("%w: delete token: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

// AppendReference adds a reference row unless the pair already exists
func (s *SQLStore) AppendReference(ctx context.Context, identityID, tokenID string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		s.dialect.Rebind(`INSERT INTO identity_references (identity_id, token_id) VALUES (?, ?)
		 ON CONFLICT (identity_id, token_id) DO NOTHING`),
		identityID,
		tokenID,
	)
	if err != nil {
		return fmt.Errorf("%w: append reference: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

// FindReference resolves the identity's references and matches value
func (s *SQLStore) FindReference(ctx context.Context, identityID, value string) (core.Token, bool, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT `+tokenColumns+`
		   FROM identity_references r
		   JOIN tokens t ON t.id = r.token_id
		  WHERE r.identity_id = ? AND t.value = ?
		  ORDER BY r.seq
		  LIMIT 1`),
		identityID,
		value,
	)
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Token{}, false, nil
		}
		return core.Token{}, false, fmt.Errorf("%w: find reference: %v", core.ErrStoreUnavailable, err)
	}
	return token, true, nil
}

// ListReferences returns resolved references ordered by issuance
func (s *SQLStore) ListReferences(ctx context.Context, identityID string, offset, limit int) ([]core.Token, error) {
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + tokenColumns + `
	   FROM identity_references r
	   JOIN tokens t ON t.id = r.token_id
	  WHERE r.identity_id = ?
	  ORDER BY r.seq`
	args := []any{identityID}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	} else {
		query += ` ` + s.dialect.unbounded() + ` OFFSET ?`
		args = append(args, offset)
	}

	rows, err := s.sqlDB.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list references: %v", core.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	tokens := make([]core.Token, 0)
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan reference: %v", core.ErrStoreUnavailable, err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list references: %v", core.ErrStoreUnavailable, err)
	}
	return tokens, nil
}

// PullReference deletes every reference row pointing at tokenID
func (s *SQLStore) PullReference(ctx context.Context, tokenID string) (int64, error) {
	result, err := s.sqlDB.ExecContext(ctx,
		s.dialect.Rebind(`DELETE FROM identity_references WHERE token_id = ?`),
		tokenID,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: pull reference: %v", core.ErrStoreUnavailable, err)
	}
	return result.RowsAffected()
}

// PullOwnedReference deletes the identity's reference row for tokenID
func (s *SQLStore) PullOwnedReference(ctx context.Context, identityID, tokenID string) (int64, error) {
	result, err := s.sqlDB.ExecContext(ctx,
		s.dialect.Rebind(`DELETE FROM identity_references WHERE identity_id = ? AND token_id = ?`),
		identityID,
		tokenID,
	)
	if err != nil {
		return 0, fmt.Errorf("%w: pull reference: %v", core.ErrStoreUnavailable, err)
	}
	return result.RowsAffected()
}

// Identity returns the identity's raw references in order
func (s *SQLStore) Identity(ctx context.Context, identityID string) (core.Identity, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		s.dialect.Rebind(`SELECT token_id FROM identity_references WHERE identity_id = ? ORDER BY seq`),
		identityID,
	)
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: load identity: %v", core.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	identity := core.Identity{ID: identityID, References: []string{}}
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return core.Identity{}, fmt.Errorf("%w: scan identity: %v", core.ErrStoreUnavailable, err)
		}
		identity.References = append(identity.References, ref)
	}
	if err := rows.Err(); err != nil {
		return core.Identity{}, fmt.Errorf("%w: load identity: %v", core.ErrStoreUnavailable, err)
	}
	return identity, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (core.Token, error) {
	var token core.Token
	var issuedAt int64
	if err := row.Scan(&token.ID, &token.Value, &token.OwnerID, &issuedAt); err != nil {
		return core.Token{}, err
	}
	token.IssuedAt = fromMillis(issuedAt)
	return token, nil
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

var _ ports.Repositories = (*SQLStore)(nil)
