package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SamiSolomon/mobile/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrEmptyCart         = errors.New("sale has no line items")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrConflict          = errors.New("conflict")
	ErrStorage           = errors.New("storage failure")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field string, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: need %d pieces, have %d", e.Name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

func NotFound(entity string, id int64) error {
	return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
}

func Conflict(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// Storage wraps a driver error with the operation that produced it.
// Errors that already belong to the taxonomy pass through untouched.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrValidation, ErrEmptyCart, ErrInsufficientStock, ErrConflict, ErrStorage} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

type Repository interface {
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error
	RestockProduct(ctx context.Context, purchase domain.Purchase) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, productID *int64) ([]domain.Purchase, error)
	SetStock(ctx context.Context, id int64, pieces int64) (*domain.Product, error)

	CreateSale(ctx context.Context, draft domain.SaleDraft) (*domain.SaleView, error)
	GetSale(ctx context.Context, id int64) (*domain.SaleView, error)
	DeleteSaleAndRevertStock(ctx context.Context, id int64) error
	ListSalesWithDetails(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleView, error)
	MarkSalePaid(ctx context.Context, id int64) (*domain.SaleView, error)

	CreateLoan(ctx context.Context, loan domain.Loan) (*domain.Loan, error)
	ListLoans(ctx context.Context, kind domain.LoanKind) ([]domain.Loan, error)
	MarkLoanPaid(ctx context.Context, id int64, at time.Time) (*domain.Loan, error)
	DeleteLoan(ctx context.Context, id int64) error

	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error)

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	Close() error
}
