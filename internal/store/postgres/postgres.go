package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	"github.com/SamiSolomon/mobile/internal/store/sqlstore"
)

type Store struct {
	*sqlstore.Store
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		name TEXT NOT NULL,
		name_key TEXT NOT NULL,
		price_per_dozen_cents BIGINT NOT NULL CHECK (price_per_dozen_cents > 0),
		cost_per_dozen_cents BIGINT CHECK (cost_per_dozen_cents IS NULL OR cost_per_dozen_cents >= 0),
		stock_pieces BIGINT NOT NULL DEFAULT 0 CHECK (stock_pieces >= 0),
		low_stock_threshold BIGINT NOT NULL DEFAULT 12 CHECK (low_stock_threshold >= 0),
		pack_size BIGINT NOT NULL DEFAULT 12 CHECK (pack_size > 0),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS products_name_key_idx ON products (name_key)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		customer_name TEXT,
		customer_key TEXT NOT NULL,
		total_cents BIGINT NOT NULL CHECK (total_cents >= 0),
		paid_cents BIGINT NOT NULL CHECK (paid_cents >= 0),
		is_credit BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sales_created_at_idx ON sales (created_at)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		sale_id BIGINT NOT NULL REFERENCES sales (id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products (id) ON DELETE RESTRICT,
		dozens NUMERIC(14,4) NOT NULL,
		pieces BIGINT NOT NULL CHECK (pieces > 0),
		line_total_cents BIGINT NOT NULL CHECK (line_total_cents >= 0)
	)`,
	`CREATE INDEX IF NOT EXISTS sale_items_sale_idx ON sale_items (sale_id)`,
	`CREATE INDEX IF NOT EXISTS sale_items_product_idx ON sale_items (product_id)`,
	`CREATE TABLE IF NOT EXISTS purchases (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		product_id BIGINT NOT NULL REFERENCES products (id) ON DELETE CASCADE,
		quantity_pieces BIGINT NOT NULL CHECK (quantity_pieces > 0),
		cost_per_dozen_cents BIGINT NOT NULL CHECK (cost_per_dozen_cents >= 0),
		supplier TEXT,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS loans (
		id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('lent', 'borrowed')),
		name TEXT NOT NULL,
		phone TEXT,
		amount_cents BIGINT NOT NULL CHECK (amount_cents > 0),
		status TEXT NOT NULL DEFAULT 'unpaid',
		created_at TIMESTAMPTZ NOT NULL,
		paid_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		actor_username TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		detail TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS app_users (
		username TEXT PRIMARY KEY,
		password TEXT NOT NULL,
		role TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:                  "postgres",
		Numbered:              true,
		LockSuffix:            " FOR UPDATE",
		TxOptions:             &sql.TxOptions{Isolation: sql.LevelSerializable},
		Schema:                schema,
		EncodeTime:            sqlstore.EncodeNativeTime,
		IsUniqueViolation:     isUniqueViolation,
		IsForeignKeyViolation: isForeignKeyViolation,
	}
}

func New(ctx context.Context, databaseURL string, logger logrus.FieldLogger) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{Store: sqlstore.New(db, Dialect(), logger)}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
