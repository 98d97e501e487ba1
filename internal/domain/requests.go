package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CashierCreateRequest struct {
	Username string `json:"username" validate:"required,min=4,max=64"`
	Password string `json:"password" validate:"required,min=6"`
}

type ProductCreateRequest struct {
	Name               string `json:"name" validate:"required,max=120"`
	PricePerDozenCents int64  `json:"price_per_dozen_cents" validate:"gt=0"`
	CostPerDozenCents  *int64 `json:"cost_per_dozen_cents,omitempty" validate:"omitempty,gte=0"`
	StockPieces        int64  `json:"stock_pieces" validate:"gte=0"`
	LowStockThreshold  *int64 `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	PackSize           *int64 `json:"pack_size,omitempty" validate:"omitempty,gt=0"`
}

// ProductUpdateRequest never carries stock; stock moves through sales, restocks and counts.
type ProductUpdateRequest struct {
	Name               *string `json:"name,omitempty" validate:"omitempty,max=120"`
	PricePerDozenCents *int64  `json:"price_per_dozen_cents,omitempty" validate:"omitempty,gt=0"`
	CostPerDozenCents  *int64  `json:"cost_per_dozen_cents,omitempty" validate:"omitempty,gte=0"`
	ClearCost          bool    `json:"clear_cost,omitempty"`
	LowStockThreshold  *int64  `json:"low_stock_threshold,omitempty" validate:"omitempty,gte=0"`
	PackSize           *int64  `json:"pack_size,omitempty" validate:"omitempty,gt=0"`
}

type RestockRequest struct {
	QuantityPieces    int64  `json:"quantity_pieces" validate:"gt=0"`
	CostPerDozenCents int64  `json:"cost_per_dozen_cents" validate:"gte=0"`
	Supplier          string `json:"supplier,omitempty" validate:"max=120"`
}

type StockCountRequest struct {
	CountedPieces int64  `json:"counted_pieces" validate:"gte=0"`
	Notes         string `json:"notes,omitempty" validate:"max=255"`
}

type StockCountResponse struct {
	Product        Product `json:"product"`
	PreviousPieces int64   `json:"previous_pieces"`
	VariancePieces int64   `json:"variance_pieces"`
}

type SaleRequest struct {
	CustomerName *string    `json:"customer_name,omitempty" validate:"omitempty,max=120"`
	IsCredit     bool       `json:"is_credit"`
	PaidCents    *int64     `json:"paid_cents,omitempty"`
	TotalCents   *int64     `json:"total_cents,omitempty"`
	Items        []SaleLine `json:"items" validate:"dive"`
}

type LoanCreateRequest struct {
	Kind        LoanKind `json:"kind" validate:"required,oneof=lent borrowed"`
	Name        string   `json:"name" validate:"required,max=120"`
	Phone       string   `json:"phone,omitempty" validate:"max=40"`
	AmountCents int64    `json:"amount_cents" validate:"gt=0"`
}

type Metrics struct {
	TotalSalesCents  int64           `json:"total_sales_cents"`
	ProfitCents      int64           `json:"profit_cents"`
	MarginPercent    decimal.Decimal `json:"margin_percent"`
	ReceivablesCents int64           `json:"receivables_cents"`
	AverageSaleCents int64           `json:"average_sale_cents"`
	SaleCount        int             `json:"sale_count"`
	CustomerCount    int             `json:"customer_count"`
}

type Alert struct {
	Kind      string `json:"kind"`
	ProductID int64  `json:"product_id,omitempty"`
	Message   string `json:"message"`
}

type ReportSummary struct {
	Period   string     `json:"period"`
	From     time.Time  `json:"from"`
	To       time.Time  `json:"to"`
	Customer string     `json:"customer,omitempty"`
	Metrics  Metrics    `json:"metrics"`
	Sales    []SaleView `json:"sales"`
}

type Dashboard struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Today       Metrics    `json:"today"`
	Overall     Metrics    `json:"overall"`
	RecentSales []SaleView `json:"recent_sales"`
	Alerts      []Alert    `json:"alerts"`
}

type FinanceSummary struct {
	CreditOutstandingCents   int64 `json:"credit_outstanding_cents"`
	CreditPendingCount       int   `json:"credit_pending_count"`
	LentOutstandingCents     int64 `json:"lent_outstanding_cents"`
	LentUnpaidCount          int   `json:"lent_unpaid_count"`
	BorrowedOutstandingCents int64 `json:"borrowed_outstanding_cents"`
	BorrowedUnpaidCount      int   `json:"borrowed_unpaid_count"`
}

type ReorderSuggestion struct {
	ProductID              int64  `json:"product_id"`
	Name                   string `json:"name"`
	CurrentPieces          int64  `json:"current_pieces"`
	ThresholdPieces        int64  `json:"threshold_pieces"`
	RecommendedPieces      int64  `json:"recommended_pieces"`
	CostPerDozenCents      int64  `json:"cost_per_dozen_cents"`
	EstimatedPurchaseCents int64  `json:"estimated_purchase_cents"`
}

type ReorderSuggestionResponse struct {
	GeneratedAt string              `json:"generated_at"`
	Suggestions []ReorderSuggestion `json:"suggestions"`
}
