package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultPackSize          int64 = 12
	DefaultLowStockThreshold int64 = 12
	CashCustomer                   = "Cash"
	Currency                       = "ETB"
)

type StockStatus string

const (
	StockOK  StockStatus = "ok"
	StockLow StockStatus = "low"
	StockOut StockStatus = "out"
)

const (
	StockFilterAll = "all"
	StockFilterLow = "low"
	StockFilterOut = "out"
)

type LoanKind string

const (
	LoanLent     LoanKind = "lent"
	LoanBorrowed LoanKind = "borrowed"
)

const (
	LoanStatusUnpaid = "unpaid"
	LoanStatusPaid   = "paid"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

type Product struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	PricePerDozenCents int64     `json:"price_per_dozen_cents"`
	CostPerDozenCents  *int64    `json:"cost_per_dozen_cents,omitempty"`
	StockPieces        int64     `json:"stock_pieces"`
	LowStockThreshold  int64     `json:"low_stock_threshold"`
	PackSize           int64     `json:"pack_size"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// DozensAvailable converts the piece count into sale units.
func (p Product) DozensAvailable() decimal.Decimal {
	packSize := p.PackSize
	if packSize <= 0 {
		packSize = DefaultPackSize
	}
	return decimal.NewFromInt(p.StockPieces).DivRound(decimal.NewFromInt(packSize), 4)
}

func (p Product) StockStatus() StockStatus {
	switch {
	case p.StockPieces <= 0:
		return StockOut
	case p.StockPieces <= p.LowStockThreshold:
		return StockLow
	default:
		return StockOK
	}
}

// CostOrZero returns the current cost per dozen, treating a missing cost as free.
func (p Product) CostOrZero() int64 {
	if p.CostPerDozenCents == nil {
		return 0
	}
	return *p.CostPerDozenCents
}

type ProductFilter struct {
	Query string
	Stock string
}

type Sale struct {
	ID           int64     `json:"id"`
	CustomerName *string   `json:"customer_name,omitempty"`
	TotalCents   int64     `json:"total_cents"`
	PaidCents    int64     `json:"paid_cents"`
	IsCredit     bool      `json:"is_credit"`
	CreatedAt    time.Time `json:"created_at"`
}

// FoldKey is the form names are compared in: trimmed and lower-cased with Unicode rules.
// Stores persist it next to the display value so SQL never has to fold non-ASCII text.
func FoldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// CustomerLabel is the name reports group by; anonymous sales count as cash customers.
func (s Sale) CustomerLabel() string {
	if s.CustomerName == nil || strings.TrimSpace(*s.CustomerName) == "" {
		return CashCustomer
	}
	return *s.CustomerName
}

func (s Sale) OutstandingCents() int64 {
	if s.PaidCents >= s.TotalCents {
		return 0
	}
	return s.TotalCents - s.PaidCents
}

func (s Sale) IsOverdue() bool {
	return s.IsCredit && s.PaidCents < s.TotalCents
}

type SaleItem struct {
	ID             int64           `json:"id"`
	SaleID         int64           `json:"sale_id"`
	ProductID      int64           `json:"product_id"`
	Dozens         decimal.Decimal `json:"dozens"`
	Pieces         int64           `json:"pieces"`
	LineTotalCents int64           `json:"line_total_cents"`
}

type SaleItemView struct {
	SaleItem
	Product *Product `json:"product,omitempty"`
}

type SaleView struct {
	Sale
	Items []SaleItemView `json:"items"`
}

type SaleLine struct {
	ProductID int64           `json:"product_id" validate:"gt=0"`
	Dozens    decimal.Decimal `json:"dozens"`
}

// SaleDraft is a cart that has not been committed yet.
type SaleDraft struct {
	CustomerName *string
	IsCredit     bool
	PaidCents    *int64
	Lines        []SaleLine
	CreatedAt    time.Time
}

type SaleFilter struct {
	From       *time.Time
	To         *time.Time
	Customer   string
	CreditOnly bool
}

type Purchase struct {
	ID                int64     `json:"id"`
	ProductID         int64     `json:"product_id"`
	QuantityPieces    int64     `json:"quantity_pieces"`
	CostPerDozenCents int64     `json:"cost_per_dozen_cents"`
	Supplier          string    `json:"supplier,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type Loan struct {
	ID          int64      `json:"id"`
	Kind        LoanKind   `json:"kind"`
	Name        string     `json:"name"`
	Phone       string     `json:"phone,omitempty"`
	AmountCents int64      `json:"amount_cents"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
