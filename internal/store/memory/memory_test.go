package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SamiSolomon/mobile/internal/domain"
	"github.com/SamiSolomon/mobile/internal/store"
	"github.com/SamiSolomon/mobile/internal/store/storetest"
)

func TestRepository(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository { return New() })
}

func TestNewSeededCatalog(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, products, 4)

	out, err := s.ListProducts(ctx, domain.ProductFilter{Stock: domain.StockFilterOut})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Sambusa", out[0].Name)
	assert.Nil(t, out[0].CostPerDozenCents)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	roles := map[string]string{}
	for _, u := range users {
		roles[u.Username] = u.Role
	}
	assert.Equal(t, map[string]string{"admin": domain.RoleAdmin, "cashier": domain.RoleCashier}, roles)
}

func TestReturnedProductsAreCopies(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	p, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, p.CostPerDozenCents)
	*p.CostPerDozenCents = 1
	p.StockPieces = 0

	again, err := s.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3600), *again.CostPerDozenCents)
	assert.Equal(t, int64(120), again.StockPieces)
}
