package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/SamiSolomon/mobile/internal/cache"
	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/logging"
	"github.com/SamiSolomon/mobile/internal/pricing"
	"github.com/SamiSolomon/mobile/internal/report"
	"github.com/SamiSolomon/mobile/internal/store"
	"github.com/SamiSolomon/mobile/internal/xid"
)

var ErrForbidden = errors.New("admin role required")

const recentSalesLimit = 3

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	reports  cache.ReportCache
	cacheTTL time.Duration
	log      logrus.FieldLogger
	validate *validator.Validate
	now      func() time.Time
	loc      *time.Location
}

type Option func(*Service)

// WithReportCache stores computed summaries and dashboards for ttl.
func WithReportCache(reports cache.ReportCache, ttl time.Duration) Option {
	return func(s *Service) {
		if reports != nil {
			s.reports = reports
			s.cacheTTL = ttl
		}
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the time zone that day, week, month and year boundaries are drawn in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func New(repo store.Repository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		reports:  cache.NoopReportCache{},
		log:      logging.Discard(),
		validate: newValidator(),
		now:      time.Now,
		loc:      time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func (s *Service) ListProducts(ctx context.Context, query string, stock string) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx, domain.ProductFilter{Query: strings.TrimSpace(query), Stock: stock})
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		Name:               req.Name,
		PricePerDozenCents: req.PricePerDozenCents,
		CostPerDozenCents:  req.CostPerDozenCents,
		StockPieces:        req.StockPieces,
		LowStockThreshold:  domain.DefaultLowStockThreshold,
		PackSize:           domain.DefaultPackSize,
	}
	if req.LowStockThreshold != nil {
		product.LowStockThreshold = *req.LowStockThreshold
	}
	if req.PackSize != nil {
		product.PackSize = *req.PackSize
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "product_create", "product", created.ID, fmt.Sprintf("name=%s,price=%d,stock=%d", created.Name, created.PricePerDozenCents, created.StockPieces))
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if err := s.validateStruct(req); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.Invalid("name", "is required")
		}
		updated.Name = name
	}
	if req.PricePerDozenCents != nil {
		updated.PricePerDozenCents = *req.PricePerDozenCents
	}
	switch {
	case req.ClearCost:
		updated.CostPerDozenCents = nil
	case req.CostPerDozenCents != nil:
		cost := *req.CostPerDozenCents
		updated.CostPerDozenCents = &cost
	}
	if req.LowStockThreshold != nil {
		updated.LowStockThreshold = *req.LowStockThreshold
	}
	if req.PackSize != nil {
		updated.PackSize = *req.PackSize
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "product_update", "product", saved.ID, fmt.Sprintf("price=%d,threshold=%d,pack=%d", saved.PricePerDozenCents, saved.LowStockThreshold, saved.PackSize))
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateReports(ctx)
	s.logAudit(ctx, "product_delete", "product", id, "deleted")
	return nil
}

// RestockProduct records a purchase and adds its pieces to stock. The purchase cost becomes the product's cost.
func (s *Service) RestockProduct(ctx context.Context, id int64, req domain.RestockRequest) (domain.Purchase, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Purchase{}, err
	}
	req.Supplier = strings.TrimSpace(req.Supplier)
	if err := s.validateStruct(req); err != nil {
		return domain.Purchase{}, err
	}

	purchase, err := s.repo.RestockProduct(ctx, domain.Purchase{
		ProductID:         id,
		QuantityPieces:    req.QuantityPieces,
		CostPerDozenCents: req.CostPerDozenCents,
		Supplier:          req.Supplier,
		CreatedAt:         s.now().UTC(),
	})
	if err != nil {
		return domain.Purchase{}, err
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "product_restock", "product", id, fmt.Sprintf("pieces=%d,cost=%d,supplier=%s", purchase.QuantityPieces, purchase.CostPerDozenCents, purchase.Supplier))
	return *purchase, nil
}

func (s *Service) ListPurchases(ctx context.Context, productID *int64) ([]domain.Purchase, error) {
	return s.repo.ListPurchases(ctx, productID)
}

// CountStock overwrites the stock with a physical count and reports the variance.
func (s *Service) CountStock(ctx context.Context, id int64, req domain.StockCountRequest) (domain.StockCountResponse, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.StockCountResponse{}, err
	}
	req.Notes = strings.TrimSpace(req.Notes)
	if err := s.validateStruct(req); err != nil {
		return domain.StockCountResponse{}, err
	}

	before, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return domain.StockCountResponse{}, err
	}
	after, err := s.repo.SetStock(ctx, id, req.CountedPieces)
	if err != nil {
		return domain.StockCountResponse{}, err
	}

	variance := after.StockPieces - before.StockPieces
	s.invalidateReports(ctx)
	s.logAudit(ctx, "stock_count", "product", id, fmt.Sprintf("previous=%d,counted=%d,notes=%s", before.StockPieces, after.StockPieces, req.Notes))
	return domain.StockCountResponse{
		Product:        *after,
		PreviousPieces: before.StockPieces,
		VariancePieces: variance,
	}, nil
}

// CreateSale commits a cart. Totals are always recomputed from current prices.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleView, error) {
	if len(req.Items) == 0 {
		return domain.SaleView{}, store.ErrEmptyCart
	}
	if err := s.validateStruct(req); err != nil {
		return domain.SaleView{}, err
	}

	sale, err := s.repo.CreateSale(ctx, domain.SaleDraft{
		CustomerName: pricing.NormalizeCustomer(req.CustomerName),
		IsCredit:     req.IsCredit,
		PaidCents:    req.PaidCents,
		Lines:        req.Items,
		CreatedAt:    s.now().UTC(),
	})
	if err != nil {
		return domain.SaleView{}, err
	}

	if req.TotalCents != nil && *req.TotalCents != sale.TotalCents {
		s.log.WithFields(logrus.Fields{
			"sale_id":        sale.ID,
			"client_total":   *req.TotalCents,
			"computed_total": sale.TotalCents,
		}).Warn("client total differs from computed total")
	}

	s.invalidateReports(ctx)
	s.logAudit(ctx, "sale_create", "sale", sale.ID, fmt.Sprintf("total=%d,paid=%d,credit=%t,lines=%d", sale.TotalCents, sale.PaidCents, sale.IsCredit, len(sale.Items)))
	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, id int64) (domain.SaleView, error) {
	sale, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return domain.SaleView{}, err
	}
	return *sale, nil
}

// DeleteSale removes a sale and puts every piece it sold back on the shelf.
func (s *Service) DeleteSale(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteSaleAndRevertStock(ctx, id); err != nil {
		return err
	}
	s.invalidateReports(ctx)
	s.logAudit(ctx, "sale_delete", "sale", id, "stock reverted")
	return nil
}

func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.SaleView, error) {
	if err := pricing.ValidateSaleFilter(filter); err != nil {
		return nil, err
	}
	return s.repo.ListSalesWithDetails(ctx, filter)
}

func (s *Service) ListCreditSales(ctx context.Context) ([]domain.SaleView, error) {
	return s.repo.ListSalesWithDetails(ctx, domain.SaleFilter{CreditOnly: true})
}

// MarkPaid settles a credit sale in full. Settling a sale twice is harmless.
func (s *Service) MarkPaid(ctx context.Context, id int64) (domain.SaleView, error) {
	sale, err := s.repo.MarkSalePaid(ctx, id)
	if err != nil {
		return domain.SaleView{}, err
	}
	s.invalidateReports(ctx)
	s.logAudit(ctx, "sale_mark_paid", "sale", sale.ID, fmt.Sprintf("paid=%d", sale.PaidCents))
	return *sale, nil
}

func (s *Service) Summary(ctx context.Context, rawPeriod string, customer string) (domain.ReportSummary, error) {
	period, err := report.ParsePeriod(rawPeriod)
	if err != nil {
		return domain.ReportSummary{}, err
	}
	customer = strings.TrimSpace(customer)
	rng := report.RangeFor(period, s.now().In(s.loc))

	key := fmt.Sprintf("summary:%s:%d:%s", period, rng.From.Unix(), strings.ToLower(customer))
	var cached domain.ReportSummary
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	sales, err := s.repo.ListSalesWithDetails(ctx, rng.SaleFilter(customer))
	if err != nil {
		return domain.ReportSummary{}, err
	}
	summary := domain.ReportSummary{
		Period:   string(period),
		From:     rng.From,
		To:       rng.To,
		Customer: customer,
		Metrics:  report.Summarize(sales),
		Sales:    sales,
	}
	s.cacheSet(ctx, key, summary)
	return summary, nil
}

func (s *Service) Dashboard(ctx context.Context) (domain.Dashboard, error) {
	now := s.now().In(s.loc)
	today := report.RangeFor(report.Day, now)

	key := "dashboard:" + strconv.FormatInt(today.From.Unix(), 10)
	var cached domain.Dashboard
	if s.cacheGet(ctx, key, &cached) {
		return cached, nil
	}

	sales, err := s.repo.ListSalesWithDetails(ctx, domain.SaleFilter{})
	if err != nil {
		return domain.Dashboard{}, err
	}
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return domain.Dashboard{}, err
	}

	dashboard := domain.Dashboard{
		GeneratedAt: now,
		Today:       report.Summarize(report.FilterSales(sales, today.SaleFilter(""))),
		Overall:     report.Summarize(sales),
		RecentSales: report.Recent(sales, recentSalesLimit),
		Alerts:      report.StockAlerts(products, report.Headers(sales)),
	}
	s.cacheSet(ctx, key, dashboard)
	return dashboard, nil
}

func (s *Service) Alerts(ctx context.Context) ([]domain.Alert, error) {
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return nil, err
	}
	credit, err := s.ListCreditSales(ctx)
	if err != nil {
		return nil, err
	}
	return report.StockAlerts(products, report.Headers(credit)), nil
}

func (s *Service) FinanceSummary(ctx context.Context) (domain.FinanceSummary, error) {
	credit, err := s.ListCreditSales(ctx)
	if err != nil {
		return domain.FinanceSummary{}, err
	}
	loans, err := s.repo.ListLoans(ctx, "")
	if err != nil {
		return domain.FinanceSummary{}, err
	}
	return report.Finance(credit, loans), nil
}

func (s *Service) ReorderSuggestions(ctx context.Context) (domain.ReorderSuggestionResponse, error) {
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return domain.ReorderSuggestionResponse{}, err
	}
	return domain.ReorderSuggestionResponse{
		GeneratedAt: s.now().UTC().Format(time.RFC3339),
		Suggestions: report.ReorderSuggestions(products),
	}, nil
}

func (s *Service) CreateLoan(ctx context.Context, req domain.LoanCreateRequest) (domain.Loan, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Loan{}, err
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	if err := s.validateStruct(req); err != nil {
		return domain.Loan{}, err
	}

	loan, err := s.repo.CreateLoan(ctx, domain.Loan{
		Kind:        req.Kind,
		Name:        req.Name,
		Phone:       req.Phone,
		AmountCents: req.AmountCents,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return domain.Loan{}, err
	}
	s.logAudit(ctx, "loan_create", "loan", loan.ID, fmt.Sprintf("kind=%s,amount=%d", loan.Kind, loan.AmountCents))
	return *loan, nil
}

func (s *Service) ListLoans(ctx context.Context, kind string) ([]domain.Loan, error) {
	k := domain.LoanKind(strings.ToLower(strings.TrimSpace(kind)))
	switch k {
	case "", domain.LoanLent, domain.LoanBorrowed:
	default:
		return nil, store.Invalid("kind", "must be one of: lent borrowed")
	}
	return s.repo.ListLoans(ctx, k)
}

func (s *Service) MarkLoanPaid(ctx context.Context, id int64) (domain.Loan, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Loan{}, err
	}
	loan, err := s.repo.MarkLoanPaid(ctx, id, s.now().UTC())
	if err != nil {
		return domain.Loan{}, err
	}
	s.logAudit(ctx, "loan_mark_paid", "loan", loan.ID, fmt.Sprintf("amount=%d", loan.AmountCents))
	return *loan, nil
}

func (s *Service) DeleteLoan(ctx context.Context, id int64) error {
	if _, err := requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.repo.DeleteLoan(ctx, id); err != nil {
		return err
	}
	s.logAudit(ctx, "loan_delete", "loan", id, "deleted")
	return nil
}

func (s *Service) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

func (s *Service) cacheGet(ctx context.Context, key string, dest any) bool {
	found, err := s.reports.Get(ctx, key, dest)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("report cache read failed")
		return false
	}
	return found
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if err := s.reports.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("report cache write failed")
	}
}

func (s *Service) invalidateReports(ctx context.Context) {
	if err := s.reports.Invalidate(ctx); err != nil {
		s.log.WithError(err).Warn("report cache invalidation failed")
	}
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID int64, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{Username: "system", Role: "system"}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:            xid.New("audit"),
		ActorUsername: actor.Username,
		ActorRole:     actor.Role,
		Action:        action,
		EntityType:    entityType,
		EntityID:      strconv.FormatInt(entityID, 10),
		Detail:        detail,
		CreatedAt:     s.now().UTC(),
	}); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"action": action,
			"entity": entityType + "/" + strconv.FormatInt(entityID, 10),
		}).Warn("failed to write audit log")
	}
}

// Location is the time zone report periods are computed in.
func (s *Service) Location() *time.Location {
	return s.loc
}
