//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/SamiSolomon/mobile/internal/store"
	"github.com/SamiSolomon/mobile/internal/store/storetest"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:alpine",
		tcpostgres.WithDatabase("pos"),
		tcpostgres.WithUsername("pos"),
		tcpostgres.WithPassword("pos"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	return connStr
}

func TestRepository(t *testing.T) {
	connStr := startPostgres(t)

	storetest.Run(t, func(t *testing.T) store.Repository {
		ctx := context.Background()
		s, err := New(ctx, connStr, nil)
		if err != nil {
			t.Fatalf("open store: %v", err)
		}
		if _, err := s.DB().ExecContext(ctx, `
			TRUNCATE sale_items, sales, purchases, products, loans, audit_logs, app_users RESTART IDENTITY CASCADE
		`); err != nil {
			t.Fatalf("reset tables: %v", err)
		}
		return s
	})
}
