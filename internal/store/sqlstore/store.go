// Package sqlstore implements store.Repository on database/sql. The sqlite and
// postgres packages open the connection and supply a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/logging"
	"github.com/SamiSolomon/mobile/internal/store"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
	log     logrus.FieldLogger
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(db *sql.DB, dialect Dialect, logger logrus.FieldLogger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		db:      db,
		dialect: dialect,
		log:     logger.WithField("store", dialect.Name),
	}
}

// DB exposes the handle for tests and maintenance commands.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate applies the dialect schema. Every statement is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return store.Storage("migrate", err)
		}
	}
	s.log.WithField("statements", len(s.dialect.Schema)).Debug("schema applied")
	return nil
}

func (s *Store) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	return q.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, q queryer, query string, args ...any) (*sql.Rows, error) {
	return q.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, q queryer, query string, args ...any) *sql.Row {
	return q.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// inTx runs fn in one transaction; any error rolls every write back.
func (s *Store) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, s.dialect.TxOptions)
	if err != nil {
		return store.Storage(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return store.Storage(op, err)
	}
	if err := tx.Commit(); err != nil {
		return store.Storage(op, err)
	}
	return nil
}

func affectedOrNotFound(res sql.Result, entity string, id int64) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.NotFound(entity, id)
	}
	return nil
}

func noRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func likePattern(q string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(domain.FoldKey(q)) + "%"
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
