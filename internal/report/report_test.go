package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/store"
)

func int64p(v int64) *int64 { return &v }

// 2026-03-18 is a Wednesday.
var wednesday = time.Date(2026, 3, 18, 10, 30, 0, 0, time.UTC)

func TestParsePeriod(t *testing.T) {
	for raw, want := range map[string]Period{"": Day, "today": Day, "Week": Week, " month ": Month, "YEAR": Year} {
		got, err := ParsePeriod(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParsePeriod("fortnight")
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestRangeFor(t *testing.T) {
	cases := []struct {
		period   Period
		now      time.Time
		wantFrom time.Time
		wantNext time.Time
	}{
		{Day, wednesday, time.Date(2026, 3, 18, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 19, 0, 0, 0, 0, time.UTC)},
		{Week, wednesday, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)},
		{Week, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 22, 0, 0, 0, 0, time.UTC)},
		{Month, time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC), time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Year, wednesday, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		r := RangeFor(tc.period, tc.now)
		assert.True(t, r.From.Equal(tc.wantFrom), "%s from %s", tc.period, r.From)
		assert.True(t, r.To.Equal(tc.wantNext.Add(-time.Nanosecond)), "%s to %s", tc.period, r.To)
		assert.True(t, r.Contains(tc.now))
		assert.False(t, r.Contains(tc.wantNext))
	}
}

func TestRangeForUsesLocation(t *testing.T) {
	addis := time.FixedZone("EAT", 3*60*60)
	// 22:30 UTC on the 17th is already the 18th in Addis Ababa.
	now := time.Date(2026, 3, 17, 22, 30, 0, 0, time.UTC).In(addis)
	r := RangeFor(Day, now)
	assert.Equal(t, 18, r.From.Day())
	assert.True(t, r.From.Equal(time.Date(2026, 3, 17, 21, 0, 0, 0, time.UTC)))
}

func sampleSales() []domain.SaleView {
	hana := "Hana"
	eggs := &domain.Product{ID: 1, Name: "Eggs", CostPerDozenCents: int64p(3600)}
	bread := &domain.Product{ID: 2, Name: "Bread Rolls", CostPerDozenCents: int64p(4200)}
	return []domain.SaleView{
		{
			Sale: domain.Sale{ID: 1, TotalCents: 4500, PaidCents: 4500, CreatedAt: wednesday},
			Items: []domain.SaleItemView{{
				SaleItem: domain.SaleItem{ProductID: 1, Dozens: decimal.NewFromInt(1), Pieces: 12, LineTotalCents: 4500},
				Product:  eggs,
			}},
		},
		{
			Sale: domain.Sale{ID: 2, CustomerName: &hana, TotalCents: 12000, PaidCents: 2000, IsCredit: true, CreatedAt: wednesday.Add(time.Hour)},
			Items: []domain.SaleItemView{{
				SaleItem: domain.SaleItem{ProductID: 2, Dozens: decimal.NewFromInt(2), Pieces: 24, LineTotalCents: 12000},
				Product:  bread,
			}},
		},
	}
}

func TestSummarize(t *testing.T) {
	m := Summarize(sampleSales())
	assert.Equal(t, 2, m.SaleCount)
	assert.Equal(t, int64(16500), m.TotalSalesCents)
	assert.Equal(t, int64(4500), m.ProfitCents)
	assert.Equal(t, int64(10000), m.ReceivablesCents)
	assert.Equal(t, int64(8250), m.AverageSaleCents)
	assert.Equal(t, 2, m.CustomerCount)
	assert.Equal(t, "27.27", m.MarginPercent.StringFixed(2))
}

func TestSummarizeEmptyPeriod(t *testing.T) {
	m := Summarize(nil)
	assert.Zero(t, m.SaleCount)
	assert.Zero(t, m.AverageSaleCents)
	assert.True(t, m.MarginPercent.IsZero())
}

func TestFilterSales(t *testing.T) {
	r := RangeFor(Day, wednesday)
	assert.Len(t, FilterSales(sampleSales(), r.SaleFilter("")), 2)
	assert.Len(t, FilterSales(sampleSales(), r.SaleFilter("hana")), 1)
	assert.Len(t, FilterSales(sampleSales(), r.SaleFilter("cash")), 1)
	assert.Empty(t, FilterSales(sampleSales(), RangeFor(Day, wednesday.AddDate(0, 0, 1)).SaleFilter("")))
}

func TestStockAlerts(t *testing.T) {
	products := []domain.Product{
		{ID: 1, Name: "Eggs", StockPieces: 120, LowStockThreshold: 12},
		{ID: 3, Name: "Injera", StockPieces: 10, LowStockThreshold: 24},
		{ID: 4, Name: "Sambusa", StockPieces: 0, LowStockThreshold: 12},
	}

	alerts := StockAlerts(products, nil)
	require.Len(t, alerts, 2)
	assert.Equal(t, domain.Alert{Kind: AlertLowStock, ProductID: 3, Message: "Injera running low (10 pieces left)"}, alerts[0])
	assert.Equal(t, domain.Alert{Kind: AlertOutOfStock, ProductID: 4, Message: "Sambusa out of stock"}, alerts[1])

	alerts = StockAlerts(products, Headers(sampleSales()))
	require.Len(t, alerts, 3)
	assert.Equal(t, AlertOverdue, alerts[2].Kind)
	assert.Equal(t, "1 overdue payments due today", alerts[2].Message)
}

func TestRecent(t *testing.T) {
	recent := Recent(sampleSales(), 1)
	require.Len(t, recent, 1)
	assert.Equal(t, int64(2), recent[0].ID)
	assert.Len(t, Recent(sampleSales(), 5), 2)
}

func TestFinance(t *testing.T) {
	loans := []domain.Loan{
		{Kind: domain.LoanLent, AmountCents: 5000, Status: domain.LoanStatusUnpaid},
		{Kind: domain.LoanLent, AmountCents: 7000, Status: domain.LoanStatusPaid},
		{Kind: domain.LoanBorrowed, AmountCents: 300000, Status: domain.LoanStatusUnpaid},
	}
	f := Finance(sampleSales(), loans)
	assert.Equal(t, domain.FinanceSummary{
		CreditOutstandingCents:   10000,
		CreditPendingCount:       1,
		LentOutstandingCents:     5000,
		LentUnpaidCount:          1,
		BorrowedOutstandingCents: 300000,
		BorrowedUnpaidCount:      1,
	}, f)
}

func TestReorderSuggestions(t *testing.T) {
	products := []domain.Product{
		{ID: 1, Name: "Eggs", StockPieces: 120, LowStockThreshold: 12, PackSize: 12},
		{ID: 3, Name: "Injera", StockPieces: 10, LowStockThreshold: 24, PackSize: 12, CostPerDozenCents: int64p(14400)},
		{ID: 4, Name: "Sambusa", StockPieces: 0, LowStockThreshold: 12, PackSize: 12},
	}
	got := ReorderSuggestions(products)
	require.Len(t, got, 2)
	assert.Equal(t, "Sambusa", got[0].Name)
	assert.Equal(t, int64(24), got[0].RecommendedPieces)
	assert.Zero(t, got[0].EstimatedPurchaseCents)
	assert.Equal(t, "Injera", got[1].Name)
	assert.Equal(t, int64(48), got[1].RecommendedPieces)
	assert.Equal(t, int64(57600), got[1].EstimatedPurchaseCents)
}

func TestWriteCSV(t *testing.T) {
	r := RangeFor(Day, wednesday)
	summary := domain.ReportSummary{
		Period:  string(r.Period),
		From:    r.From,
		To:      r.To,
		Metrics: Summarize(sampleSales()),
		Sales:   sampleSales(),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, summary))

	reader := csv.NewReader(&buf)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	require.NoError(t, err)
	assert.Contains(t, rows, []string{"summary", "total_sales_cents", "16500"})
	assert.Contains(t, rows, []string{"summary", "average_sale_cents", "8250"})
	assert.Contains(t, rows, []string{"2", "2026-03-18T11:30:00Z", "Hana", "true", "Bread Rolls", "2", "12000"})
}

func TestFormatCents(t *testing.T) {
	assert.Equal(t, "45.00 ETB", FormatCents(4500))
	assert.Equal(t, "0.05 ETB", FormatCents(5))
	assert.Equal(t, "-12.50 ETB", FormatCents(-1250))
}
