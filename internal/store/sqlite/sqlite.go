// Package sqlite is the default embedded store: a single local file driven by the
// pure-Go modernc driver, with one connection so every write is serialised.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/SamiSolomon/mobile/internal/store/sqlstore"
)

type Store struct {
	*sqlstore.Store
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		name_key TEXT NOT NULL,
		price_per_dozen_cents INTEGER NOT NULL CHECK (price_per_dozen_cents > 0),
		cost_per_dozen_cents INTEGER CHECK (cost_per_dozen_cents IS NULL OR cost_per_dozen_cents >= 0),
		stock_pieces INTEGER NOT NULL DEFAULT 0 CHECK (stock_pieces >= 0),
		low_stock_threshold INTEGER NOT NULL DEFAULT 12 CHECK (low_stock_threshold >= 0),
		pack_size INTEGER NOT NULL DEFAULT 12 CHECK (pack_size > 0),
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS products_name_key_idx ON products (name_key)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		customer_name TEXT,
		customer_key TEXT NOT NULL,
		total_cents INTEGER NOT NULL CHECK (total_cents >= 0),
		paid_cents INTEGER NOT NULL CHECK (paid_cents >= 0),
		is_credit INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sales_created_at_idx ON sales (created_at)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sale_id INTEGER NOT NULL REFERENCES sales (id) ON DELETE CASCADE,
		product_id INTEGER NOT NULL REFERENCES products (id) ON DELETE RESTRICT,
		dozens TEXT NOT NULL,
		pieces INTEGER NOT NULL CHECK (pieces > 0),
		line_total_cents INTEGER NOT NULL CHECK (line_total_cents >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS sale_items_sale_idx ON sale_items (sale_id)`,
	`CREATE INDEX IF NOT EXISTS sale_items_product_idx ON sale_items (product_id)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id INTEGER NOT NULL REFERENCES products (id) ON DELETE CASCADE,
		quantity_pieces INTEGER NOT NULL CHECK (quantity_pieces > 0),
		cost_per_dozen_cents INTEGER NOT NULL CHECK (cost_per_dozen_cents >= 0),
		supplier TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL CHECK (kind IN ('lent', 'borrowed')),
		name TEXT NOT NULL,
		phone TEXT,
		amount_cents INTEGER NOT NULL CHECK (amount_cents > 0),
		status TEXT NOT NULL DEFAULT 'unpaid',
		created_at TEXT NOT NULL,
		paid_at TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		actor_username TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		detail TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:                  "sqlite",
		Schema:                schema,
		EncodeTime:            sqlstore.EncodeTextTime,
		IsUniqueViolation:     isUniqueViolation,
		IsForeignKeyViolation: isForeignKeyViolation,
	}
}

// Open creates or opens the database file at path and applies the schema.
func Open(ctx context.Context, path string, logger logrus.FieldLogger) (*Store, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	s := &Store{Store: sqlstore.New(db, Dialect(), logger)}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	return "file:" + path + "?" + params.Encode()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return false
}
