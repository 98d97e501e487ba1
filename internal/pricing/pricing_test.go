package pricing

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/store"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func int64p(v int64) *int64 { return &v }

func TestPieces(t *testing.T) {
	cases := []struct {
		dozens  string
		pack    int64
		want    int64
		wantErr bool
	}{
		{dozens: "1", pack: 12, want: 12},
		{dozens: "2.5", pack: 12, want: 30},
		{dozens: "0.25", pack: 0, want: 3},
		{dozens: "0.5", pack: 30, want: 15},
		{dozens: "0.1", pack: 12, wantErr: true},
		{dozens: "0", pack: 12, wantErr: true},
		{dozens: "-1", pack: 12, wantErr: true},
	}
	for _, tc := range cases {
		got, err := Pieces(d(tc.dozens), tc.pack)
		if tc.wantErr {
			assert.ErrorIs(t, err, store.ErrValidation, tc.dozens)
			continue
		}
		require.NoError(t, err, tc.dozens)
		assert.Equal(t, tc.want, got, tc.dozens)
	}
}

func TestLineTotalRoundsHalfAwayFromZero(t *testing.T) {
	for _, tc := range []struct {
		dozens string
		price  int64
		want   int64
	}{
		{"3", 4500, 13500},
		{"0.25", 4501, 1125}, // 1125.25
		{"0.5", 4501, 2251},  // 2250.5
	} {
		got, err := LineTotal(d(tc.dozens), tc.price)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, tc.dozens)
	}
}

func TestQuantitiesBeyondInt64AreRejected(t *testing.T) {
	// 768614336404564651 * 12 wraps to a negative int64
	_, err := Pieces(d("768614336404564651"), 12)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = LineTotal(d("768614336404564651"), 4500)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = LineTotal(d("2"), math.MaxInt64)
	assert.ErrorIs(t, err, store.ErrValidation)

	got, err := Pieces(d("768614336404564650"), 12)
	require.NoError(t, err)
	assert.Equal(t, int64(9223372036854775800), got)
}

func TestBuildRejectsOverflowingQuantities(t *testing.T) {
	products := map[int64]domain.Product{
		1: {ID: 1, Name: "Eggs", PricePerDozenCents: 4500, StockPieces: 120, PackSize: 12},
		2: {ID: 2, Name: "Bulk", PricePerDozenCents: math.MaxInt64 / 2, StockPieces: math.MaxInt64, PackSize: 1},
	}

	_, err := Build(domain.SaleDraft{}, []domain.SaleLine{{ProductID: 1, Dozens: d("768614336404564651")}}, products)
	assert.ErrorIs(t, err, store.ErrValidation)

	// each line fits on its own but the sum does not
	_, err = Build(domain.SaleDraft{}, []domain.SaleLine{
		{ProductID: 2, Dozens: d("1")},
		{ProductID: 1, Dozens: d("10")},
		{ProductID: 2, Dozens: d("1")},
	}, products)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = Build(domain.SaleDraft{}, []domain.SaleLine{{ProductID: 2, Dozens: d("3")}}, products)
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestNormalizeLinesMergesRepeatedProducts(t *testing.T) {
	lines, err := NormalizeLines([]domain.SaleLine{
		{ProductID: 2, Dozens: d("1")},
		{ProductID: 1, Dozens: d("0.5")},
		{ProductID: 2, Dozens: d("0.25")},
	})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, int64(2), lines[0].ProductID)
	assert.True(t, lines[0].Dozens.Equal(d("1.25")))
	assert.Equal(t, int64(1), lines[1].ProductID)

	_, err = NormalizeLines(nil)
	assert.ErrorIs(t, err, store.ErrEmptyCart)

	_, err = NormalizeLines([]domain.SaleLine{{ProductID: 0, Dozens: d("1")}})
	assert.ErrorIs(t, err, store.ErrValidation)
}

func TestBuildPricesFromProductRows(t *testing.T) {
	products := map[int64]domain.Product{
		1: {ID: 1, Name: "Eggs", PricePerDozenCents: 4500, StockPieces: 120, PackSize: 12},
		2: {ID: 2, Name: "Injera", PricePerDozenCents: 18000, StockPieces: 10, PackSize: 12},
	}
	lines := []domain.SaleLine{{ProductID: 1, Dozens: d("2")}}

	plan, err := Build(domain.SaleDraft{}, lines, products)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), plan.TotalCents)
	assert.Equal(t, int64(9000), plan.PaidCents)
	assert.False(t, plan.IsCredit)
	assert.Equal(t, map[int64]int64{1: 24}, plan.Pieces)

	plan, err = Build(domain.SaleDraft{IsCredit: true}, lines, products)
	require.NoError(t, err)
	assert.Zero(t, plan.PaidCents)
	assert.True(t, plan.IsCredit)

	plan, err = Build(domain.SaleDraft{PaidCents: int64p(50000)}, lines, products)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), plan.PaidCents, "overpayment is capped at the total")

	_, err = Build(domain.SaleDraft{PaidCents: int64p(-1)}, lines, products)
	assert.ErrorIs(t, err, store.ErrValidation)

	_, err = Build(domain.SaleDraft{}, []domain.SaleLine{{ProductID: 2, Dozens: d("1")}}, products)
	var stockErr *store.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, int64(12), stockErr.Requested)
	assert.Equal(t, int64(10), stockErr.Available)

	_, err = Build(domain.SaleDraft{}, []domain.SaleLine{{ProductID: 9, Dozens: d("1")}}, products)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestItemProfitAndMargin(t *testing.T) {
	item := domain.SaleItem{Dozens: d("2"), LineTotalCents: 9000}
	eggs := &domain.Product{CostPerDozenCents: int64p(3600)}

	assert.Equal(t, int64(1800), ItemProfit(item, eggs))
	assert.Equal(t, int64(9000), ItemProfit(item, &domain.Product{}), "missing cost counts as zero")
	assert.Equal(t, int64(9000), ItemProfit(item, nil))

	assert.Equal(t, "20", MarginPercent(1800, 9000).String())
	assert.True(t, MarginPercent(100, 0).IsZero())
}

func TestNormalizeCustomer(t *testing.T) {
	blank := "   "
	assert.Nil(t, NormalizeCustomer(nil))
	assert.Nil(t, NormalizeCustomer(&blank))

	name := "  Hana "
	got := NormalizeCustomer(&name)
	require.NotNil(t, got)
	assert.Equal(t, "Hana", *got)
}

func TestValidateStockFilter(t *testing.T) {
	got, err := ValidateStockFilter(" LOW ")
	require.NoError(t, err)
	assert.Equal(t, domain.StockFilterLow, got)

	_, err = ValidateStockFilter("plenty")
	assert.ErrorIs(t, err, store.ErrValidation)
}
