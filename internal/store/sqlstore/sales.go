package sqlstore

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/pricing"
	"github.com/SamiSolomon/mobile/internal/store"
)

const saleColumns = `id, customer_name, total_cents, paid_cents, is_credit, created_at`

func scanSale(row rowScanner) (domain.Sale, error) {
	var sale domain.Sale
	var customer sql.NullString
	if err := row.Scan(&sale.ID, &customer, &sale.TotalCents, &sale.PaidCents, &sale.IsCredit, timeValue{dst: &sale.CreatedAt}); err != nil {
		return domain.Sale{}, err
	}
	if customer.Valid {
		name := customer.String
		sale.CustomerName = &name
	}
	if sale.TotalCents < 0 || sale.PaidCents < 0 {
		return domain.Sale{}, store.Invalid("sale", "row %d carries negative amounts", sale.ID)
	}
	return sale, nil
}

// CreateSale prices the cart, writes the header and lines and removes the pieces
// from stock as one unit. A cart that would oversell any product is rejected whole.
func (s *Store) CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.SaleView, error) {
	lines, err := pricing.NormalizeLines(draft.Lines)
	if err != nil {
		return nil, err
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now().UTC()
	}
	customer := pricing.NormalizeCustomer(draft.CustomerName)

	var saleID int64
	var plan pricing.Plan
	err = s.inTx(ctx, "create sale", func(tx *sql.Tx) error {
		products := make(map[int64]domain.Product, len(lines))
		for _, id := range pricing.ProductIDs(lines) {
			product, err := s.getProduct(ctx, tx, id, true)
			if err != nil {
				return err
			}
			products[id] = *product
		}

		plan, err = pricing.Build(draft, lines, products)
		if err != nil {
			return err
		}

		var customerArg any
		if customer != nil {
			customerArg = *customer
		}
		if err := s.queryRow(ctx, tx, `
			INSERT INTO sales (customer_name, customer_key, total_cents, paid_cents, is_credit, created_at)
			VALUES (?,?,?,?,?,?)
			RETURNING id
		`, customerArg, domain.FoldKey(domain.Sale{CustomerName: customer}.CustomerLabel()), plan.TotalCents, plan.PaidCents, plan.IsCredit, s.dialect.time(draft.CreatedAt)).Scan(&saleID); err != nil {
			return err
		}

		for i := range plan.Items {
			item := &plan.Items[i]
			item.SaleID = saleID
			if err := s.queryRow(ctx, tx, `
				INSERT INTO sale_items (sale_id, product_id, dozens, pieces, line_total_cents)
				VALUES (?,?,?,?,?)
				RETURNING id
			`, saleID, item.ProductID, item.Dozens.String(), item.Pieces, item.LineTotalCents).Scan(&item.ID); err != nil {
				return err
			}
		}

		for _, item := range plan.Items {
			pieces := plan.Pieces[item.ProductID]
			res, err := s.exec(ctx, tx, `
				UPDATE products
				SET stock_pieces = stock_pieces - ?, updated_at = ?
				WHERE id = ? AND stock_pieces >= ?
			`, pieces, s.dialect.time(draft.CreatedAt), item.ProductID, pieces)
			if err != nil {
				return err
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if affected == 0 {
				product := products[item.ProductID]
				return &store.InsufficientStockError{ProductID: product.ID, Name: product.Name, Requested: pieces, Available: product.StockPieces}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"sale_id":     saleID,
		"total_cents": plan.TotalCents,
		"items":       len(plan.Items),
		"credit":      plan.IsCredit,
	}).Info("sale committed")
	return s.GetSale(ctx, saleID)
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.SaleView, error) {
	sale, err := scanSale(s.queryRow(ctx, s.db, `SELECT `+saleColumns+` FROM sales WHERE id = ?`, id))
	if err != nil {
		if noRows(err) {
			return nil, store.NotFound("sale", id)
		}
		return nil, store.Storage("get sale", err)
	}
	view, err := s.saleView(ctx, sale, make(map[int64]*domain.Product))
	if err != nil {
		return nil, store.Storage("get sale", err)
	}
	return &view, nil
}

// DeleteSaleAndRevertStock returns every recorded piece to stock, then removes the lines and the header.
func (s *Store) DeleteSaleAndRevertStock(ctx context.Context, id int64) error {
	restored := int64(0)
	err := s.inTx(ctx, "delete sale", func(tx *sql.Tx) error {
		var found int64
		if err := s.queryRow(ctx, tx, `SELECT id FROM sales WHERE id = ?`+s.dialect.LockSuffix, id).Scan(&found); err != nil {
			if noRows(err) {
				return store.NotFound("sale", id)
			}
			return err
		}

		rows, err := s.query(ctx, tx, `SELECT product_id, pieces FROM sale_items WHERE sale_id = ? ORDER BY id`, id)
		if err != nil {
			return err
		}
		type reversal struct {
			productID int64
			pieces    int64
		}
		reversals := make([]reversal, 0, 8)
		for rows.Next() {
			var r reversal
			if err := rows.Scan(&r.productID, &r.pieces); err != nil {
				_ = rows.Close()
				return err
			}
			reversals = append(reversals, r)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		_ = rows.Close()

		now := s.dialect.time(time.Now().UTC())
		for _, r := range reversals {
			if _, err := s.exec(ctx, tx, `
				UPDATE products SET stock_pieces = stock_pieces + ?, updated_at = ? WHERE id = ?
			`, r.pieces, now, r.productID); err != nil {
				return err
			}
			restored += r.pieces
		}

		if _, err := s.exec(ctx, tx, `DELETE FROM sale_items WHERE sale_id = ?`, id); err != nil {
			return err
		}
		res, err := s.exec(ctx, tx, `DELETE FROM sales WHERE id = ?`, id)
		if err != nil {
			return err
		}
		return affectedOrNotFound(res, "sale", id)
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"sale_id": id, "pieces_restored": restored}).Info("sale reverted")
	return nil
}

// ListSalesWithDetails loads the headers, then each sale's lines, then each line's product.
func (s *Store) ListSalesWithDetails(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleView, error) {
	if err := pricing.ValidateSaleFilter(filter); err != nil {
		return nil, err
	}

	conditions := make([]string, 0, 4)
	args := make([]any, 0, 3)
	if filter.CreditOnly {
		conditions = append(conditions, `is_credit = ?`)
		args = append(args, true)
	}
	if filter.From != nil {
		conditions = append(conditions, `created_at >= ?`)
		args = append(args, s.dialect.time(*filter.From))
	}
	if filter.To != nil {
		conditions = append(conditions, `created_at <= ?`)
		args = append(args, s.dialect.time(*filter.To))
	}
	if q := strings.TrimSpace(filter.Customer); q != "" {
		conditions = append(conditions, `customer_key LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(q))
	}

	query := `SELECT ` + saleColumns + ` FROM sales`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	query += ` ORDER BY id DESC`

	rows, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, store.Storage("list sales", err)
	}
	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			_ = rows.Close()
			return nil, store.Storage("list sales", err)
		}
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, store.Storage("list sales", err)
	}
	_ = rows.Close()

	products := make(map[int64]*domain.Product)
	views := make([]domain.SaleView, 0, len(sales))
	for _, sale := range sales {
		view, err := s.saleView(ctx, sale, products)
		if err != nil {
			return nil, store.Storage("list sales", err)
		}
		views = append(views, view)
	}
	return views, nil
}

// saleView attaches lines and their current product rows. products memoizes lookups within one read.
func (s *Store) saleView(ctx context.Context, sale domain.Sale, products map[int64]*domain.Product) (domain.SaleView, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT id, sale_id, product_id, dozens, pieces, line_total_cents
		FROM sale_items
		WHERE sale_id = ?
		ORDER BY id
	`, sale.ID)
	if err != nil {
		return domain.SaleView{}, err
	}
	items := make([]domain.SaleItemView, 0, 4)
	for rows.Next() {
		var item domain.SaleItemView
		var dozens decimal.Decimal
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &dozens, &item.Pieces, &item.LineTotalCents); err != nil {
			_ = rows.Close()
			return domain.SaleView{}, err
		}
		item.Dozens = dozens
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return domain.SaleView{}, err
	}
	_ = rows.Close()

	for i := range items {
		pid := items[i].ProductID
		product, cached := products[pid]
		if !cached {
			product, err = s.getProduct(ctx, s.db, pid, false)
			if err != nil && !isNotFound(err) {
				return domain.SaleView{}, err
			}
			products[pid] = product
		}
		if product != nil {
			copied := *product
			items[i].Product = &copied
		}
	}
	return domain.SaleView{Sale: sale, Items: items}, nil
}

func (s *Store) MarkSalePaid(ctx context.Context, id int64) (*domain.SaleView, error) {
	res, err := s.exec(ctx, s.db, `UPDATE sales SET paid_cents = total_cents WHERE id = ?`, id)
	if err != nil {
		return nil, store.Storage("mark sale paid", err)
	}
	if err := affectedOrNotFound(res, "sale", id); err != nil {
		return nil, store.Storage("mark sale paid", err)
	}
	s.log.WithField("sale_id", id).Info("credit sale settled")
	return s.GetSale(ctx, id)
}
