package memory

import (
	"context"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/pricing"
	"github.com/SamiSolomon/mobile/internal/store"
)

type Store struct {
	mu              sync.RWMutex
	products        map[int64]domain.Product
	sales           map[int64]domain.Sale
	saleItems       map[int64][]domain.SaleItem
	purchases       []domain.Purchase
	loans           map[int64]domain.Loan
	auditLogs       []domain.AuditLog
	usersByUsername map[string]domain.UserAccount

	nextProductID  int64
	nextSaleID     int64
	nextItemID     int64
	nextPurchaseID int64
	nextLoanID     int64
}

func New() *Store {
	return &Store{
		products:        make(map[int64]domain.Product),
		sales:           make(map[int64]domain.Sale),
		saleItems:       make(map[int64][]domain.SaleItem),
		loans:           make(map[int64]domain.Loan),
		usersByUsername: make(map[string]domain.UserAccount),
	}
}

// seedUsers builds the demo accounts. Passwords come from SEED_ADMIN_PASSWORD and
// SEED_CASHIER_PASSWORD, falling back to dev defaults.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		logrus.WithField("store", "memory").Warn("using default dev credentials; set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, domain.RoleAdmin},
		{"cashier", cashierPwd, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			logrus.WithField("store", "memory").WithError(err).Fatalf("hash seed password for %s", u.username)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// NewSeeded returns a store with demo users and a small egg-and-bread catalogue.
func NewSeeded() *Store {
	s := New()
	s.usersByUsername = seedUsers()

	cost := func(v int64) *int64 { return &v }
	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{Name: "Eggs", PricePerDozenCents: 4500, CostPerDozenCents: cost(3600), StockPieces: 120},
		{Name: "Bread Rolls", PricePerDozenCents: 6000, CostPerDozenCents: cost(4200), StockPieces: 48},
		{Name: "Injera", PricePerDozenCents: 18000, CostPerDozenCents: cost(14400), StockPieces: 10, LowStockThreshold: 24},
		{Name: "Sambusa", PricePerDozenCents: 9000, StockPieces: 0},
	} {
		if p.LowStockThreshold == 0 {
			p.LowStockThreshold = domain.DefaultLowStockThreshold
		}
		p.PackSize = domain.DefaultPackSize
		p.CreatedAt = now
		s.nextProductID++
		p.ID = s.nextProductID
		p.UpdatedAt = now
		s.products[p.ID] = p
	}
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if err := pricing.ValidateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTakenLocked(product.Name, 0) {
		return nil, store.Conflict("product %q already exists", product.Name)
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = product.CreatedAt
	s.nextProductID++
	product.ID = s.nextProductID
	product.CostPerDozenCents = cloneInt(product.CostPerDozenCents)
	s.products[product.ID] = product

	created := cloneProduct(product)
	return &created, nil
}

func (s *Store) nameTakenLocked(name string, exceptID int64) bool {
	for id, p := range s.products {
		if id != exceptID && domain.FoldKey(p.Name) == domain.FoldKey(name) {
			return true
		}
	}
	return false
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.NotFound("product", id)
	}
	copied := cloneProduct(p)
	return &copied, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	product.Name = strings.TrimSpace(product.Name)
	if err := pricing.ValidateProduct(product); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.NotFound("product", product.ID)
	}
	if s.nameTakenLocked(product.Name, product.ID) {
		return nil, store.Conflict("product %q already exists", product.Name)
	}
	existing.Name = product.Name
	existing.PricePerDozenCents = product.PricePerDozenCents
	existing.CostPerDozenCents = cloneInt(product.CostPerDozenCents)
	existing.LowStockThreshold = product.LowStockThreshold
	existing.PackSize = product.PackSize
	existing.UpdatedAt = time.Now().UTC()
	s.products[existing.ID] = existing

	updated := cloneProduct(existing)
	return &updated, nil
}

func (s *Store) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	stockFilter, err := pricing.ValidateStockFilter(filter.Stock)
	if err != nil {
		return nil, err
	}
	query := strings.TrimSpace(filter.Query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if pricing.MatchesProduct(p, query, stockFilter) {
			result = append(result, cloneProduct(p))
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int { return cmpDesc(a.ID, b.ID) })
	return result, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.NotFound("product", id)
	}
	refs := 0
	for _, items := range s.saleItems {
		for _, item := range items {
			if item.ProductID == id {
				refs++
			}
		}
	}
	if refs > 0 {
		return store.Conflict("product %d is referenced by %d sale lines", id, refs)
	}

	delete(s.products, id)
	s.purchases = slices.DeleteFunc(s.purchases, func(p domain.Purchase) bool { return p.ProductID == id })
	return nil
}

func (s *Store) RestockProduct(_ context.Context, purchase domain.Purchase) (*domain.Purchase, error) {
	if purchase.QuantityPieces <= 0 {
		return nil, store.Invalid("quantity_pieces", "restock quantity must be greater than zero")
	}
	if purchase.CostPerDozenCents < 0 {
		return nil, store.Invalid("cost_per_dozen_cents", "cost cannot be negative")
	}
	if purchase.CreatedAt.IsZero() {
		purchase.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[purchase.ProductID]
	if !ok {
		return nil, store.NotFound("product", purchase.ProductID)
	}
	product.StockPieces += purchase.QuantityPieces
	cost := purchase.CostPerDozenCents
	product.CostPerDozenCents = &cost
	product.UpdatedAt = purchase.CreatedAt
	s.products[product.ID] = product

	s.nextPurchaseID++
	purchase.ID = s.nextPurchaseID
	s.purchases = append(s.purchases, purchase)
	return &purchase, nil
}

func (s *Store) ListPurchases(_ context.Context, productID *int64) ([]domain.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		if productID != nil && p.ProductID != *productID {
			continue
		}
		result = append(result, p)
	}
	slices.SortFunc(result, func(a, b domain.Purchase) int { return cmpDesc(a.ID, b.ID) })
	return result, nil
}

func (s *Store) SetStock(_ context.Context, id int64, pieces int64) (*domain.Product, error) {
	if pieces < 0 {
		return nil, store.Invalid("stock_pieces", "stock cannot be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.NotFound("product", id)
	}
	product.StockPieces = pieces
	product.UpdatedAt = time.Now().UTC()
	s.products[id] = product

	updated := cloneProduct(product)
	return &updated, nil
}

// CreateSale checks every line before touching any state, so a rejected cart leaves nothing behind.
func (s *Store) CreateSale(_ context.Context, draft domain.SaleDraft) (*domain.SaleView, error) {
	lines, err := pricing.NormalizeLines(draft.Lines)
	if err != nil {
		return nil, err
	}
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	products := make(map[int64]domain.Product, len(lines))
	for _, id := range pricing.ProductIDs(lines) {
		p, ok := s.products[id]
		if !ok {
			return nil, store.NotFound("product", id)
		}
		products[id] = p
	}

	plan, err := pricing.Build(draft, lines, products)
	if err != nil {
		return nil, err
	}

	s.nextSaleID++
	sale := domain.Sale{
		ID:           s.nextSaleID,
		CustomerName: pricing.NormalizeCustomer(draft.CustomerName),
		TotalCents:   plan.TotalCents,
		PaidCents:    plan.PaidCents,
		IsCredit:     plan.IsCredit,
		CreatedAt:    draft.CreatedAt,
	}
	items := make([]domain.SaleItem, 0, len(plan.Items))
	for _, item := range plan.Items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.SaleID = sale.ID
		items = append(items, item)
	}
	s.sales[sale.ID] = sale
	s.saleItems[sale.ID] = items

	for productID, pieces := range plan.Pieces {
		p := s.products[productID]
		p.StockPieces -= pieces
		p.UpdatedAt = draft.CreatedAt
		s.products[productID] = p
	}

	view := s.viewLocked(sale)
	return &view, nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.SaleView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.NotFound("sale", id)
	}
	view := s.viewLocked(sale)
	return &view, nil
}

func (s *Store) DeleteSaleAndRevertStock(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sales[id]; !ok {
		return store.NotFound("sale", id)
	}
	now := time.Now().UTC()
	for _, item := range s.saleItems[id] {
		p, ok := s.products[item.ProductID]
		if !ok {
			continue
		}
		p.StockPieces += item.Pieces
		p.UpdatedAt = now
		s.products[item.ProductID] = p
	}
	delete(s.saleItems, id)
	delete(s.sales, id)
	return nil
}

func (s *Store) ListSalesWithDetails(_ context.Context, filter domain.SaleFilter) ([]domain.SaleView, error) {
	if err := pricing.ValidateSaleFilter(filter); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]domain.SaleView, 0, len(s.sales))
	for _, sale := range s.sales {
		if pricing.MatchesSale(sale, filter) {
			views = append(views, s.viewLocked(sale))
		}
	}
	slices.SortFunc(views, func(a, b domain.SaleView) int { return cmpDesc(a.ID, b.ID) })
	return views, nil
}

func (s *Store) MarkSalePaid(_ context.Context, id int64) (*domain.SaleView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, store.NotFound("sale", id)
	}
	sale.PaidCents = sale.TotalCents
	s.sales[id] = sale

	view := s.viewLocked(sale)
	return &view, nil
}

func (s *Store) viewLocked(sale domain.Sale) domain.SaleView {
	items := s.saleItems[sale.ID]
	view := domain.SaleView{Sale: cloneSale(sale), Items: make([]domain.SaleItemView, 0, len(items))}
	for _, item := range items {
		line := domain.SaleItemView{SaleItem: item}
		if p, ok := s.products[item.ProductID]; ok {
			copied := cloneProduct(p)
			line.Product = &copied
		}
		view.Items = append(view.Items, line)
	}
	return view
}

func (s *Store) CreateLoan(_ context.Context, loan domain.Loan) (*domain.Loan, error) {
	loan.Name = strings.TrimSpace(loan.Name)
	loan.Phone = strings.TrimSpace(loan.Phone)
	if loan.Kind != domain.LoanLent && loan.Kind != domain.LoanBorrowed {
		return nil, store.Invalid("kind", "loan kind must be lent or borrowed")
	}
	if loan.Name == "" {
		return nil, store.Invalid("name", "name is required")
	}
	if loan.AmountCents <= 0 {
		return nil, store.Invalid("amount_cents", "amount must be greater than zero")
	}
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = time.Now().UTC()
	}
	loan.Status = domain.LoanStatusUnpaid
	loan.PaidAt = nil

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextLoanID++
	loan.ID = s.nextLoanID
	s.loans[loan.ID] = loan
	return &loan, nil
}

func (s *Store) ListLoans(_ context.Context, kind domain.LoanKind) ([]domain.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Loan, 0, len(s.loans))
	for _, loan := range s.loans {
		if kind != "" && loan.Kind != kind {
			continue
		}
		result = append(result, cloneLoan(loan))
	}
	slices.SortFunc(result, func(a, b domain.Loan) int { return cmpDesc(a.ID, b.ID) })
	return result, nil
}

func (s *Store) MarkLoanPaid(_ context.Context, id int64, at time.Time) (*domain.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loan, ok := s.loans[id]
	if !ok {
		return nil, store.NotFound("loan", id)
	}
	if loan.Status == domain.LoanStatusPaid {
		return nil, store.Conflict("loan %d is already settled", id)
	}
	paidAt := at.UTC()
	loan.Status = domain.LoanStatusPaid
	loan.PaidAt = &paidAt
	s.loans[id] = loan

	copied := cloneLoan(loan)
	return &copied, nil
}

func (s *Store) DeleteLoan(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loans[id]; !ok {
		return store.NotFound("loan", id)
	}
	delete(s.loans, id)
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = 100
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, min(limit, len(s.auditLogs)))
	for i := len(s.auditLogs) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.auditLogs[i])
	}
	return result, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || strings.TrimSpace(user.Password) == "" {
		return store.Invalid("username", "username and password are required")
	}
	if user.Role == "" {
		user.Role = domain.RoleCashier
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByUsername[user.Username]; exists {
		return store.Conflict("user %q already exists", user.Username)
	}
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int { return strings.Compare(a.Username, b.Username) })
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.Invalid("username", "username and password are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpDesc(a int64, b int64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	copied := *v
	return &copied
}

func cloneProduct(p domain.Product) domain.Product {
	p.CostPerDozenCents = cloneInt(p.CostPerDozenCents)
	return p
}

func cloneSale(s domain.Sale) domain.Sale {
	if s.CustomerName != nil {
		name := *s.CustomerName
		s.CustomerName = &name
	}
	return s
}

func cloneLoan(l domain.Loan) domain.Loan {
	if l.PaidAt != nil {
		at := *l.PaidAt
		l.PaidAt = &at
	}
	return l
}
