// Package storetest is the behaviour every store.Repository must share.
// Each backend runs it from its own tests with a factory for an empty store.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/store"
)

// Factory returns an empty repository. It is called once per test.
type Factory func(t *testing.T) store.Repository

type RepositorySuite struct {
	suite.Suite
	NewRepository Factory

	ctx  context.Context
	repo store.Repository
}

func Run(t *testing.T, factory Factory) {
	suite.Run(t, &RepositorySuite{NewRepository: factory})
}

func (s *RepositorySuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = s.NewRepository(s.T())
}

func (s *RepositorySuite) TearDownTest() {
	s.Require().NoError(s.repo.Close())
}

func int64p(v int64) *int64 { return &v }

func dozens(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func (s *RepositorySuite) addProduct(name string, price int64, cost *int64, pieces int64) domain.Product {
	s.T().Helper()
	p, err := s.repo.CreateProduct(s.ctx, domain.Product{
		Name:               name,
		PricePerDozenCents: price,
		CostPerDozenCents:  cost,
		StockPieces:        pieces,
		LowStockThreshold:  domain.DefaultLowStockThreshold,
		PackSize:           domain.DefaultPackSize,
	})
	s.Require().NoError(err)
	return *p
}

func (s *RepositorySuite) stock(id int64) int64 {
	s.T().Helper()
	p, err := s.repo.GetProduct(s.ctx, id)
	s.Require().NoError(err)
	return p.StockPieces
}

func (s *RepositorySuite) sell(at time.Time, customer *string, credit bool, lines ...domain.SaleLine) *domain.SaleView {
	s.T().Helper()
	sale, err := s.repo.CreateSale(s.ctx, domain.SaleDraft{CustomerName: customer, IsCredit: credit, Lines: lines, CreatedAt: at})
	s.Require().NoError(err)
	return sale
}

func (s *RepositorySuite) TestProductRoundTrip() {
	eggs := s.addProduct("Eggs", 4500, int64p(3600), 120)
	s.Positive(eggs.ID)
	s.False(eggs.CreatedAt.IsZero())

	got, err := s.repo.GetProduct(s.ctx, eggs.ID)
	s.Require().NoError(err)
	s.Equal("Eggs", got.Name)
	s.Equal(int64(4500), got.PricePerDozenCents)
	s.Require().NotNil(got.CostPerDozenCents)
	s.Equal(int64(3600), *got.CostPerDozenCents)
	s.Equal(int64(120), got.StockPieces)

	got.Name = "Brown Eggs"
	got.CostPerDozenCents = nil
	updated, err := s.repo.UpdateProduct(s.ctx, *got)
	s.Require().NoError(err)
	s.Equal("Brown Eggs", updated.Name)
	s.Nil(updated.CostPerDozenCents)

	_, err = s.repo.GetProduct(s.ctx, eggs.ID+1000)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *RepositorySuite) TestProductNamesAreUniqueIgnoringCase() {
	s.addProduct("Injera", 18000, nil, 10)
	_, err := s.repo.CreateProduct(s.ctx, domain.Product{Name: "INJERA", PricePerDozenCents: 100, PackSize: 12})
	s.ErrorIs(err, store.ErrConflict)

	elan := s.addProduct("Élan Bread", 2400, nil, 24)
	_, err = s.repo.CreateProduct(s.ctx, domain.Product{Name: "élan bread", PricePerDozenCents: 100, PackSize: 12})
	s.ErrorIs(err, store.ErrConflict, "non-ASCII letters fold too")

	other := s.addProduct("Dabo", 1200, nil, 24)
	other.Name = "ÉLAN BREAD"
	_, err = s.repo.UpdateProduct(s.ctx, other)
	s.ErrorIs(err, store.ErrConflict)

	found, err := s.repo.ListProducts(s.ctx, domain.ProductFilter{Query: "éLAN"})
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(elan.ID, found[0].ID)
}

func (s *RepositorySuite) TestListProductsFilters() {
	s.addProduct("Eggs", 4500, nil, 120)
	s.addProduct("Injera", 18000, nil, 10)
	s.addProduct("Sambusa", 9000, nil, 0)

	all, err := s.repo.ListProducts(s.ctx, domain.ProductFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal("Sambusa", all[0].Name, "newest first")

	low, err := s.repo.ListProducts(s.ctx, domain.ProductFilter{Stock: domain.StockFilterLow})
	s.Require().NoError(err)
	s.Require().Len(low, 1)
	s.Equal("Injera", low[0].Name)

	out, err := s.repo.ListProducts(s.ctx, domain.ProductFilter{Stock: domain.StockFilterOut})
	s.Require().NoError(err)
	s.Require().Len(out, 1)
	s.Equal("Sambusa", out[0].Name)

	found, err := s.repo.ListProducts(s.ctx, domain.ProductFilter{Query: "jer"})
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal("Injera", found[0].Name)

	_, err = s.repo.ListProducts(s.ctx, domain.ProductFilter{Stock: "plenty"})
	s.ErrorIs(err, store.ErrValidation)
}

func (s *RepositorySuite) TestCreateSaleDecrementsStock() {
	eggs := s.addProduct("Eggs", 4500, int64p(3600), 120)
	bread := s.addProduct("Bread Rolls", 6000, nil, 48)
	at := time.Date(2026, 3, 18, 9, 0, 0, 0, time.UTC)

	sale := s.sell(at, nil, false,
		domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("2.5")},
		domain.SaleLine{ProductID: bread.ID, Dozens: dozens("1")},
	)
	s.Equal(int64(2.5*4500+6000), sale.TotalCents)
	s.Equal(sale.TotalCents, sale.PaidCents)
	s.False(sale.IsCredit)
	s.True(sale.CreatedAt.Equal(at))
	s.Require().Len(sale.Items, 2)
	s.Equal(int64(30), sale.Items[0].Pieces)
	s.True(sale.Items[0].Dozens.Equal(dozens("2.5")))
	s.Require().NotNil(sale.Items[0].Product)
	s.Equal("Eggs", sale.Items[0].Product.Name)

	s.Equal(int64(90), s.stock(eggs.ID))
	s.Equal(int64(36), s.stock(bread.ID))
}

func (s *RepositorySuite) TestOversellRollsBackWholeCart() {
	eggs := s.addProduct("Eggs", 4500, nil, 120)
	injera := s.addProduct("Injera", 18000, nil, 10)

	_, err := s.repo.CreateSale(s.ctx, domain.SaleDraft{Lines: []domain.SaleLine{
		{ProductID: eggs.ID, Dozens: dozens("1")},
		{ProductID: injera.ID, Dozens: dozens("1")},
	}})
	s.Require().ErrorIs(err, store.ErrInsufficientStock)
	var stockErr *store.InsufficientStockError
	s.Require().True(errors.As(err, &stockErr))
	s.Equal(injera.ID, stockErr.ProductID)
	s.Equal(int64(12), stockErr.Requested)
	s.Equal(int64(10), stockErr.Available)

	s.Equal(int64(120), s.stock(eggs.ID))
	s.Equal(int64(10), s.stock(injera.ID))
	sales, err := s.repo.ListSalesWithDetails(s.ctx, domain.SaleFilter{})
	s.Require().NoError(err)
	s.Empty(sales)
}

func (s *RepositorySuite) TestCreateSaleRejectsBadCarts() {
	eggs := s.addProduct("Eggs", 4500, nil, 120)

	_, err := s.repo.CreateSale(s.ctx, domain.SaleDraft{})
	s.ErrorIs(err, store.ErrEmptyCart)

	_, err = s.repo.CreateSale(s.ctx, domain.SaleDraft{Lines: []domain.SaleLine{{ProductID: eggs.ID + 99, Dozens: dozens("1")}}})
	s.ErrorIs(err, store.ErrNotFound)

	_, err = s.repo.CreateSale(s.ctx, domain.SaleDraft{Lines: []domain.SaleLine{{ProductID: eggs.ID, Dozens: dozens("0")}}})
	s.ErrorIs(err, store.ErrValidation)

	_, err = s.repo.CreateSale(s.ctx, domain.SaleDraft{Lines: []domain.SaleLine{{ProductID: eggs.ID, Dozens: dozens("0.05")}}})
	s.ErrorIs(err, store.ErrValidation)

	// 768614336404564651 dozens is more pieces than an int64 holds
	_, err = s.repo.CreateSale(s.ctx, domain.SaleDraft{Lines: []domain.SaleLine{{ProductID: eggs.ID, Dozens: dozens("768614336404564651")}}})
	s.ErrorIs(err, store.ErrValidation)

	s.Equal(int64(120), s.stock(eggs.ID))
}

func (s *RepositorySuite) TestDeleteSaleRevertsStock() {
	eggs := s.addProduct("Eggs", 4500, nil, 120)
	sale := s.sell(time.Now().UTC(), nil, false, domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("3")})
	s.Equal(int64(84), s.stock(eggs.ID))

	s.Require().NoError(s.repo.DeleteSaleAndRevertStock(s.ctx, sale.ID))
	s.Equal(int64(120), s.stock(eggs.ID))

	_, err := s.repo.GetSale(s.ctx, sale.ID)
	s.ErrorIs(err, store.ErrNotFound)
	s.ErrorIs(s.repo.DeleteSaleAndRevertStock(s.ctx, sale.ID), store.ErrNotFound)
}

func (s *RepositorySuite) TestMultiProductSaleReadsAreStableAndDeleteRestoresAll() {
	eggs := s.addProduct("Eggs", 4500, int64p(3600), 120)
	injera := s.addProduct("Injera", 18000, nil, 60)
	milk := s.addProduct("Milk", 6000, int64p(5000), 36)
	untouched := s.addProduct("Salt", 900, nil, 48)
	before := map[int64]int64{eggs.ID: 120, injera.ID: 60, milk.ID: 36, untouched.ID: 48}

	abebe := "Abebe"
	sale := s.sell(time.Now().UTC(), &abebe, true,
		domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("2")},
		domain.SaleLine{ProductID: injera.ID, Dozens: dozens("0.5")},
		domain.SaleLine{ProductID: milk.ID, Dozens: dozens("1.25")},
		domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("1")},
	)
	s.Require().Len(sale.Items, 3, "repeated product lines merge")
	s.Equal(int64(84), s.stock(eggs.ID))
	s.Equal(int64(54), s.stock(injera.ID))
	s.Equal(int64(21), s.stock(milk.ID))
	s.Equal(int64(48), s.stock(untouched.ID))
	// 3*4500 + 0.5*18000 + 1.25*6000
	s.Equal(int64(30000), sale.TotalCents)

	first, err := s.repo.ListSalesWithDetails(s.ctx, domain.SaleFilter{})
	s.Require().NoError(err)
	second, err := s.repo.ListSalesWithDetails(s.ctx, domain.SaleFilter{})
	s.Require().NoError(err)
	s.Equal(first, second)
	s.Require().Len(first, 1)
	s.Require().Len(first[0].Items, 3)

	s.Require().NoError(s.repo.DeleteSaleAndRevertStock(s.ctx, sale.ID))
	for id, want := range before {
		s.Equal(want, s.stock(id), "product %d", id)
	}
}

func (s *RepositorySuite) TestCustomerSearchFoldsNonASCII() {
	eggs := s.addProduct("Eggs", 4500, nil, 120)
	omer := "Ömer"
	sale := s.sell(time.Now().UTC(), &omer, true, domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("1")})
	s.sell(time.Now().UTC(), nil, false, domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("1")})

	hits, err := s.repo.ListSalesWithDetails(s.ctx, domain.SaleFilter{Customer: "ömer"})
	s.Require().NoError(err)
	s.Require().Len(hits, 1)
	s.Equal(sale.ID, hits[0].ID)

	cash, err := s.repo.ListSalesWithDetails(s.ctx, domain.SaleFilter{Customer: "CASH"})
	s.Require().NoError(err)
	s.Len(cash, 1)

	literal, err := s.repo.ListSalesWithDetails(s.ctx, domain.SaleFilter{Customer: "%"})
	s.Require().NoError(err)
	s.Empty(literal, "wildcards are matched literally")
}

func (s *RepositorySuite) TestDeleteReferencedProductConflicts() {
	eggs := s.addProduct("Eggs", 4500, nil, 120)
	spare := s.addProduct("Spare", 100, nil, 0)
	s.sell(time.Now().UTC(), nil, false, domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("1")})

	s.ErrorIs(s.repo.DeleteProduct(s.ctx, eggs.ID), store.ErrConflict)
	s.Require().NoError(s.repo.DeleteProduct(s.ctx, spare.ID))
	s.ErrorIs(s.repo.DeleteProduct(s.ctx, spare.ID), store.ErrNotFound)
}

func (s *RepositorySuite) TestListSalesWithDetailsFilters() {
	eggs := s.addProduct("Eggs", 4500, nil, 1200)
	hana := "Hana"
	day := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	first := s.sell(day, &hana, true, domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("1")})
	second := s.sell(day.Add(24*time.Hour), nil, false, domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("2")})
	third := s.sell(day.Add(48*time.Hour), &hana, false, domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("3")})

	all, err := s.repo.ListSalesWithDetails(s.ctx, domain.SaleFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal([]int64{third.ID, second.ID, first.ID}, []int64{all[0].ID, all[1].ID, all[2].ID})
	for _, sale := range all {
		s.Require().Len(sale.Items, 1)
		s.Require().NotNil(sale.Items[0].Product)
	}

	from := day.Add(12 * time.Hour)
	to := day.Add(36 * time.Hour)
	ranged, err := s.repo.ListSalesWithDetails(s.ctx, domain.SaleFilter{From: &from, To: &to})
	s.Require().NoError(err)
	s.Require().Len(ranged, 1)
	s.Equal(second.ID, ranged[0].ID)

	credit, err := s.repo.ListSalesWithDetails(s.ctx, domain.SaleFilter{CreditOnly: true})
	s.Require().NoError(err)
	s.Require().Len(credit, 1)
	s.Equal(first.ID, credit[0].ID)

	byName, err := s.repo.ListSalesWithDetails(s.ctx, domain.SaleFilter{Customer: "HAN"})
	s.Require().NoError(err)
	s.Len(byName, 2)
}

func (s *RepositorySuite) TestMarkSalePaidIsIdempotent() {
	eggs := s.addProduct("Eggs", 4500, nil, 120)
	sale := s.sell(time.Now().UTC(), nil, true, domain.SaleLine{ProductID: eggs.ID, Dozens: dozens("1")})
	s.Equal(int64(0), sale.PaidCents)
	s.True(sale.IsCredit)

	for range 2 {
		paid, err := s.repo.MarkSalePaid(s.ctx, sale.ID)
		s.Require().NoError(err)
		s.Equal(int64(4500), paid.PaidCents)
		s.True(paid.IsCredit)
		s.Zero(paid.OutstandingCents())
	}

	_, err := s.repo.MarkSalePaid(s.ctx, sale.ID+100)
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *RepositorySuite) TestPartialPaymentBecomesCredit() {
	eggs := s.addProduct("Eggs", 4500, nil, 120)
	sale, err := s.repo.CreateSale(s.ctx, domain.SaleDraft{
		PaidCents: int64p(2000),
		Lines:     []domain.SaleLine{{ProductID: eggs.ID, Dozens: dozens("1")}},
	})
	s.Require().NoError(err)
	s.True(sale.IsCredit)
	s.Equal(int64(2500), sale.OutstandingCents())
}

func (s *RepositorySuite) TestConcurrentSalesNeverOversell() {
	injera := s.addProduct("Injera", 18000, nil, 60)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.repo.CreateSale(s.ctx, domain.SaleDraft{Lines: []domain.SaleLine{{ProductID: injera.ID, Dozens: dozens("1")}}})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.LessOrEqual(succeeded, 5)
	s.Equal(int64(60-12*succeeded), s.stock(injera.ID))
}

func (s *RepositorySuite) TestRestockAndSetStock() {
	eggs := s.addProduct("Eggs", 4500, int64p(3600), 12)

	purchase, err := s.repo.RestockProduct(s.ctx, domain.Purchase{ProductID: eggs.ID, QuantityPieces: 36, CostPerDozenCents: 3400, Supplier: "Farm"})
	s.Require().NoError(err)
	s.Positive(purchase.ID)
	s.Equal(int64(48), s.stock(eggs.ID))

	got, err := s.repo.GetProduct(s.ctx, eggs.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.CostPerDozenCents)
	s.Equal(int64(3400), *got.CostPerDozenCents)

	purchases, err := s.repo.ListPurchases(s.ctx, &eggs.ID)
	s.Require().NoError(err)
	s.Require().Len(purchases, 1)
	s.Equal("Farm", purchases[0].Supplier)

	_, err = s.repo.RestockProduct(s.ctx, domain.Purchase{ProductID: eggs.ID, QuantityPieces: 0})
	s.ErrorIs(err, store.ErrValidation)

	counted, err := s.repo.SetStock(s.ctx, eggs.ID, 40)
	s.Require().NoError(err)
	s.Equal(int64(40), counted.StockPieces)

	_, err = s.repo.SetStock(s.ctx, eggs.ID, -1)
	s.ErrorIs(err, store.ErrValidation)
}

func (s *RepositorySuite) TestLoans() {
	lent, err := s.repo.CreateLoan(s.ctx, domain.Loan{Kind: domain.LoanLent, Name: "Abebe", AmountCents: 50000})
	s.Require().NoError(err)
	s.Equal(domain.LoanStatusUnpaid, lent.Status)
	_, err = s.repo.CreateLoan(s.ctx, domain.Loan{Kind: domain.LoanBorrowed, Name: "Wholesaler", AmountCents: 300000})
	s.Require().NoError(err)

	borrowed, err := s.repo.ListLoans(s.ctx, domain.LoanBorrowed)
	s.Require().NoError(err)
	s.Require().Len(borrowed, 1)
	s.Equal("Wholesaler", borrowed[0].Name)

	at := time.Date(2026, 3, 18, 10, 0, 0, 0, time.UTC)
	paid, err := s.repo.MarkLoanPaid(s.ctx, lent.ID, at)
	s.Require().NoError(err)
	s.Equal(domain.LoanStatusPaid, paid.Status)
	s.Require().NotNil(paid.PaidAt)
	s.True(paid.PaidAt.Equal(at))

	_, err = s.repo.MarkLoanPaid(s.ctx, lent.ID, at)
	s.ErrorIs(err, store.ErrConflict)

	s.Require().NoError(s.repo.DeleteLoan(s.ctx, lent.ID))
	s.ErrorIs(s.repo.DeleteLoan(s.ctx, lent.ID), store.ErrNotFound)

	_, err = s.repo.CreateLoan(s.ctx, domain.Loan{Kind: "gift", Name: "x", AmountCents: 1})
	s.ErrorIs(err, store.ErrValidation)
}

func (s *RepositorySuite) TestAuditLogsNewestFirst() {
	base := time.Date(2026, 3, 18, 8, 0, 0, 0, time.UTC)
	for i, action := range []string{"product.create", "sale.create", "sale.delete"} {
		s.Require().NoError(s.repo.CreateAuditLog(s.ctx, domain.AuditLog{
			ID:            action,
			ActorUsername: "admin",
			ActorRole:     domain.RoleAdmin,
			Action:        action,
			EntityType:    "sale",
			EntityID:      "1",
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}))
	}
	logs, err := s.repo.ListAuditLogs(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(logs, 2)
	s.Equal("sale.delete", logs[0].Action)
	s.Equal("sale.create", logs[1].Action)
}

func (s *RepositorySuite) TestUsers() {
	user := domain.UserAccount{Username: "selam", Password: "$2a$10$hash", Role: domain.RoleCashier, Active: true, CreatedAt: time.Now().UTC()}
	s.Require().NoError(s.repo.CreateUser(s.ctx, user))
	s.ErrorIs(s.repo.CreateUser(s.ctx, user), store.ErrConflict)

	s.Require().NoError(s.repo.UpdateUserPassword(s.ctx, "selam", "$2a$10$other"))
	users, err := s.repo.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 1)
	s.Equal("$2a$10$other", users[0].Password)
	s.Equal(domain.RoleCashier, users[0].Role)
}
