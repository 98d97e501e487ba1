package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/store"
	"github.com/SamiSolomon/mobile/internal/store/storetest"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "pos.db"), nil)
	require.NoError(t, err)
	return s
}

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository { return openTemp(t) })
}

func TestDataSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pos.db")

	s, err := Open(ctx, path, nil)
	require.NoError(t, err)
	_, err = s.CreateProduct(ctx, domain.Product{Name: "Eggs", PricePerDozenCents: 4500, StockPieces: 120, LowStockThreshold: 12, PackSize: 12})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()
	products, err := s.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Eggs", products[0].Name)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestDSNEnablesForeignKeys(t *testing.T) {
	assert.Contains(t, dsn("/tmp/pos.db"), "foreign_keys%281%29")
}
