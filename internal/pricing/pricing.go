package pricing

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/store"
)

var (
	hundred  = decimal.NewFromInt(100)
	maxInt64 = decimal.NewFromInt(math.MaxInt64)
)

// fitsInt64 reports whether an integral decimal can be taken with IntPart without wrapping.
func fitsInt64(d decimal.Decimal) bool {
	return d.Cmp(maxInt64) <= 0 && d.Cmp(maxInt64.Neg()) >= 0
}

type Plan struct {
	Items      []domain.SaleItem
	TotalCents int64
	PaidCents  int64
	IsCredit   bool
	// Pieces is the quantity to remove from each product, keyed by product id.
	Pieces map[int64]int64
}

func PackSizeOf(product domain.Product) int64 {
	if product.PackSize <= 0 {
		return domain.DefaultPackSize
	}
	return product.PackSize
}

// Pieces converts a dozen quantity into whole pieces. Quantities that would split a piece are rejected.
func Pieces(dozens decimal.Decimal, packSize int64) (int64, error) {
	if !dozens.IsPositive() {
		return 0, store.Invalid("dozens", "quantity must be greater than zero")
	}
	if packSize <= 0 {
		packSize = domain.DefaultPackSize
	}
	pieces := dozens.Mul(decimal.NewFromInt(packSize))
	if !pieces.IsInteger() {
		return 0, store.Invalid("dozens", "%s dozens is not a whole number of pieces (pack size %d)", dozens.String(), packSize)
	}
	if !fitsInt64(pieces) {
		return 0, store.Invalid("dozens", "%s dozens is too large", dozens.String())
	}
	return pieces.IntPart(), nil
}

// LineTotal rounds half away from zero.
func LineTotal(dozens decimal.Decimal, pricePerDozenCents int64) (int64, error) {
	total := dozens.Mul(decimal.NewFromInt(pricePerDozenCents)).Round(0)
	if !fitsInt64(total) {
		return 0, store.Invalid("dozens", "line total for %s dozens is too large", dozens.String())
	}
	return total.IntPart(), nil
}

func LineCost(dozens decimal.Decimal, costPerDozenCents int64) int64 {
	return dozens.Mul(decimal.NewFromInt(costPerDozenCents)).Round(0).IntPart()
}

// NormalizeLines rejects empty carts and bad quantities and merges repeated products,
// keeping the order in which each product first appears.
func NormalizeLines(lines []domain.SaleLine) ([]domain.SaleLine, error) {
	if len(lines) == 0 {
		return nil, store.ErrEmptyCart
	}

	index := make(map[int64]int, len(lines))
	merged := make([]domain.SaleLine, 0, len(lines))
	for _, line := range lines {
		if line.ProductID <= 0 {
			return nil, store.Invalid("product_id", "product id must be positive")
		}
		if !line.Dozens.IsPositive() {
			return nil, store.Invalid("dozens", "quantity for product %d must be greater than zero", line.ProductID)
		}
		if pos, ok := index[line.ProductID]; ok {
			merged[pos].Dozens = merged[pos].Dozens.Add(line.Dozens)
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}
	return merged, nil
}

func ProductIDs(lines []domain.SaleLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}

// Build prices a normalized cart against the current product rows and checks stock.
// Any total supplied by the caller is not consulted.
func Build(draft domain.SaleDraft, lines []domain.SaleLine, products map[int64]domain.Product) (Plan, error) {
	plan := Plan{
		Items:  make([]domain.SaleItem, 0, len(lines)),
		Pieces: make(map[int64]int64, len(lines)),
	}

	for _, line := range lines {
		product, ok := products[line.ProductID]
		if !ok {
			return Plan{}, store.NotFound("product", line.ProductID)
		}
		pieces, err := Pieces(line.Dozens, PackSizeOf(product))
		if err != nil {
			return Plan{}, err
		}
		if product.StockPieces < pieces {
			return Plan{}, &store.InsufficientStockError{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: pieces,
				Available: product.StockPieces,
			}
		}

		lineTotal, err := LineTotal(line.Dozens, product.PricePerDozenCents)
		if err != nil {
			return Plan{}, err
		}
		if plan.TotalCents > math.MaxInt64-lineTotal {
			return Plan{}, store.Invalid("dozens", "sale total is too large")
		}
		plan.Items = append(plan.Items, domain.SaleItem{
			ProductID:      product.ID,
			Dozens:         line.Dozens,
			Pieces:         pieces,
			LineTotalCents: lineTotal,
		})
		plan.Pieces[product.ID] += pieces
		plan.TotalCents += lineTotal
	}

	paid, err := settle(draft, plan.TotalCents)
	if err != nil {
		return Plan{}, err
	}
	plan.PaidCents = paid
	plan.IsCredit = draft.IsCredit || paid < plan.TotalCents
	return plan, nil
}

func settle(draft domain.SaleDraft, totalCents int64) (int64, error) {
	if draft.PaidCents == nil {
		if draft.IsCredit {
			return 0, nil
		}
		return totalCents, nil
	}
	paid := *draft.PaidCents
	if paid < 0 {
		return 0, store.Invalid("paid_cents", "amount paid cannot be negative")
	}
	if paid > totalCents {
		return totalCents, nil
	}
	return paid, nil
}

// NormalizeCustomer trims the name and drops it when blank.
func NormalizeCustomer(name *string) *string {
	if name == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// ItemProfit uses the product's current cost; a missing product or cost counts as zero cost.
func ItemProfit(item domain.SaleItem, product *domain.Product) int64 {
	if product == nil {
		return item.LineTotalCents
	}
	return item.LineTotalCents - LineCost(item.Dozens, product.CostOrZero())
}

func MarginPercent(profitCents int64, totalCents int64) decimal.Decimal {
	if totalCents == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(profitCents).Mul(hundred).DivRound(decimal.NewFromInt(totalCents), 2)
}

// ValidateProduct checks a product row before it is written or after it is read back.
func ValidateProduct(p domain.Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return store.Invalid("name", "name is required")
	}
	if p.PricePerDozenCents <= 0 {
		return store.Invalid("price_per_dozen_cents", "price must be greater than zero")
	}
	if p.CostPerDozenCents != nil && *p.CostPerDozenCents < 0 {
		return store.Invalid("cost_per_dozen_cents", "cost cannot be negative")
	}
	if p.StockPieces < 0 {
		return store.Invalid("stock_pieces", "stock cannot be negative")
	}
	if p.LowStockThreshold < 0 {
		return store.Invalid("low_stock_threshold", "threshold cannot be negative")
	}
	if p.PackSize <= 0 {
		return store.Invalid("pack_size", "pack size must be greater than zero")
	}
	return nil
}

func ValidateStockFilter(filter string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "", domain.StockFilterAll:
		return domain.StockFilterAll, nil
	case domain.StockFilterLow:
		return domain.StockFilterLow, nil
	case domain.StockFilterOut:
		return domain.StockFilterOut, nil
	default:
		return "", store.Invalid("stock", "unknown stock filter %q", filter)
	}
}

// MatchesProduct applies the list filter in memory.
func MatchesProduct(p domain.Product, query string, stockFilter string) bool {
	if query != "" && !strings.Contains(domain.FoldKey(p.Name), domain.FoldKey(query)) {
		return false
	}
	switch stockFilter {
	case domain.StockFilterLow:
		return p.StockStatus() == domain.StockLow
	case domain.StockFilterOut:
		return p.StockStatus() == domain.StockOut
	}
	return true
}

// MatchesSale applies the sale filter in memory. Anonymous sales match the "Cash" customer label.
func MatchesSale(s domain.Sale, filter domain.SaleFilter) bool {
	if filter.CreditOnly && !s.IsCredit {
		return false
	}
	if filter.From != nil && s.CreatedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && s.CreatedAt.After(*filter.To) {
		return false
	}
	if q := strings.TrimSpace(filter.Customer); q != "" {
		if !strings.Contains(domain.FoldKey(s.CustomerLabel()), domain.FoldKey(q)) {
			return false
		}
	}
	return true
}

func ValidateSaleFilter(filter domain.SaleFilter) error {
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return store.Invalid("range", "start of range is after its end")
	}
	return nil
}
