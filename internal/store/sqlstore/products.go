package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/pricing"
	"github.com/SamiSolomon/mobile/internal/store"
)

const productColumns = `id, name, price_per_dozen_cents, cost_per_dozen_cents, stock_pieces,
	low_stock_threshold, pack_size, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	var cost sql.NullInt64
	err := row.Scan(&p.ID, &p.Name, &p.PricePerDozenCents, &cost, &p.StockPieces,
		&p.LowStockThreshold, &p.PackSize, timeValue{dst: &p.CreatedAt}, timeValue{dst: &p.UpdatedAt})
	if err != nil {
		return domain.Product{}, err
	}
	if cost.Valid {
		c := cost.Int64
		p.CostPerDozenCents = &c
	}
	if err := pricing.ValidateProduct(p); err != nil {
		return domain.Product{}, fmt.Errorf("product row %d: %w", p.ID, err)
	}
	return p, nil
}

func nullCost(cost *int64) any {
	if cost == nil {
		return nil
	}
	return *cost
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if err := pricing.ValidateProduct(product); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt

	err := s.queryRow(ctx, s.db, `
		INSERT INTO products (name, name_key, price_per_dozen_cents, cost_per_dozen_cents, stock_pieces,
			low_stock_threshold, pack_size, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		RETURNING id
	`, product.Name, domain.FoldKey(product.Name), product.PricePerDozenCents, nullCost(product.CostPerDozenCents), product.StockPieces,
		product.LowStockThreshold, product.PackSize, s.dialect.time(product.CreatedAt), s.dialect.time(product.UpdatedAt)).Scan(&product.ID)
	if err != nil {
		if s.dialect.uniqueViolation(err) {
			return nil, store.Conflict("product %q already exists", product.Name)
		}
		return nil, store.Storage("create product", err)
	}

	s.log.WithFields(logrus.Fields{"product_id": product.ID, "name": product.Name}).Debug("product created")
	return &product, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	product, err := s.getProduct(ctx, s.db, id, false)
	if err != nil {
		return nil, store.Storage("get product", err)
	}
	return product, nil
}

func (s *Store) getProduct(ctx context.Context, q queryer, id int64, lock bool) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ?`
	if lock {
		query += s.dialect.LockSuffix
	}
	product, err := scanProduct(s.queryRow(ctx, q, query, id))
	if err != nil {
		if noRows(err) {
			return nil, store.NotFound("product", id)
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if err := pricing.ValidateProduct(product); err != nil {
		return nil, err
	}

	res, err := s.exec(ctx, s.db, `
		UPDATE products
		SET name = ?, name_key = ?, price_per_dozen_cents = ?, cost_per_dozen_cents = ?,
			low_stock_threshold = ?, pack_size = ?, updated_at = ?
		WHERE id = ?
	`, product.Name, domain.FoldKey(product.Name), product.PricePerDozenCents, nullCost(product.CostPerDozenCents),
		product.LowStockThreshold, product.PackSize, s.dialect.time(time.Now().UTC()), product.ID)
	if err != nil {
		if s.dialect.uniqueViolation(err) {
			return nil, store.Conflict("product %q already exists", product.Name)
		}
		return nil, store.Storage("update product", err)
	}
	if err := affectedOrNotFound(res, "product", product.ID); err != nil {
		return nil, store.Storage("update product", err)
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	stockFilter, err := pricing.ValidateStockFilter(filter.Stock)
	if err != nil {
		return nil, err
	}

	conditions := make([]string, 0, 2)
	args := make([]any, 0, 1)
	if q := strings.TrimSpace(filter.Query); q != "" {
		conditions = append(conditions, `name_key LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q))
	}
	switch stockFilter {
	case domain.StockFilterLow:
		conditions = append(conditions, `stock_pieces > 0 AND stock_pieces <= low_stock_threshold`)
	case domain.StockFilterOut:
		conditions = append(conditions, `stock_pieces = 0`)
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY id DESC`

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, store.Storage("list products", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, store.Storage("list products", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("list products", err)
	}
	return products, nil
}

// DeleteProduct refuses to remove a product that historical sale lines still point at.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	return s.inTx(ctx, "delete product", func(tx *sql.Tx) error {
		if _, err := s.getProduct(ctx, tx, id, true); err != nil {
			return err
		}

		var refs int64
		if err := s.queryRow(ctx, tx, `SELECT COUNT(*) FROM sale_items WHERE product_id = ?`, id).Scan(&refs); err != nil {
			return err
		}
		if refs > 0 {
			return store.Conflict("product %d is referenced by %d sale lines", id, refs)
		}

		if _, err := s.exec(ctx, tx, `DELETE FROM purchases WHERE product_id = ?`, id); err != nil {
			return err
		}
		res, err := s.exec(ctx, tx, `DELETE FROM products WHERE id = ?`, id)
		if err != nil {
			if s.dialect.foreignKeyViolation(err) {
				return store.Conflict("product %d is still referenced", id)
			}
			return err
		}
		return affectedOrNotFound(res, "product", id)
	})
}

// RestockProduct adds pieces to stock and records the purchase in the same transaction.
// The purchase cost becomes the product's current cost.
func (s *Store) RestockProduct(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.QuantityPieces <= 0 {
		return nil, store.Invalid("quantity_pieces", "restock quantity must be greater than zero")
	}
	if purchase.CostPerDozenCents < 0 {
		return nil, store.Invalid("cost_per_dozen_cents", "cost cannot be negative")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, "restock product", func(tx *sql.Tx) error {
		if _, err := s.getProduct(ctx, tx, purchase.ProductID, true); err != nil {
			return err
		}
		if _, err := s.exec(ctx, tx, `
			UPDATE products
			SET stock_pieces = stock_pieces + ?, cost_per_dozen_cents = ?, updated_at = ?
			WHERE id = ?
		`, purchase.QuantityPieces, purchase.CostPerDozenCents, s.dialect.time(purchase.CreatedAt), purchase.ProductID); err != nil {
			return err
		}
		return s.queryRow(ctx, tx, `
			INSERT INTO purchases (product_id, quantity_pieces, cost_per_dozen_cents, supplier, created_at)
			VALUES (?,?,?,?,?)
			RETURNING id
		`, purchase.ProductID, purchase.QuantityPieces, purchase.CostPerDozenCents,
			nullIfEmpty(purchase.Supplier), s.dialect.time(purchase.CreatedAt)).Scan(&purchase.ID)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"product_id": purchase.ProductID,
		"pieces":     purchase.QuantityPieces,
	}).Info("product restocked")
	return &purchase, nil
}

func (s *Store) ListPurchases(ctx context.Context, productID *int64) ([]domain.Purchase, error) {
	query := `SELECT id, product_id, quantity_pieces, cost_per_dozen_cents, supplier, created_at FROM purchases`
	args := make([]any, 0, 1)
	if productID != nil {
		query += ` WHERE product_id = ?`
		args = append(args, *productID)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, store.Storage("list purchases", err)
	}
	defer rows.Close()

	purchases := make([]domain.Purchase, 0, 32)
	for rows.Next() {
		var p domain.Purchase
		var supplier sql.NullString
		if err := rows.Scan(&p.ID, &p.ProductID, &p.QuantityPieces, &p.CostPerDozenCents, &supplier, timeValue{dst: &p.CreatedAt}); err != nil {
			return nil, store.Storage("list purchases", err)
		}
		p.Supplier = supplier.String
		purchases = append(purchases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Storage("list purchases", err)
	}
	return purchases, nil
}

func (s *Store) SetStock(ctx context.Context, id int64, pieces int64) (*domain.Product, error) {
	if pieces < 0 {
		return nil, store.Invalid("stock_pieces", "stock cannot be negative")
	}
	res, err := s.exec(ctx, s.db, `
		UPDATE products SET stock_pieces = ?, updated_at = ? WHERE id = ?
	`, pieces, s.dialect.time(time.Now().UTC()), id)
	if err != nil {
		return nil, store.Storage("set stock", err)
	}
	if err := affectedOrNotFound(res, "product", id); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, id)
}
