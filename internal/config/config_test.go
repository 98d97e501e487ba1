package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadSelectsStoreDriver(t *testing.T) {
	cases := []struct {
		name        string
		explicit    string
		databaseURL string
		want        string
	}{
		{name: "default is sqlite", want: DriverSQLite},
		{name: "database url implies postgres", databaseURL: "postgres://localhost/pos", want: DriverPostgres},
		{name: "explicit memory wins", explicit: "memory", databaseURL: "postgres://localhost/pos", want: DriverMemory},
		{name: "unknown explicit falls back", explicit: "oracle", want: DriverSQLite},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("STORE_DRIVER", tc.explicit)
			t.Setenv("DATABASE_URL", tc.databaseURL)
			assert.Equal(t, tc.want, Load().StoreDriver)
		})
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("REPORT_CACHE_TTL_SECONDS", "-4")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "soon")

	cfg := Load()
	assert.Equal(t, 30*time.Second, cfg.ReportCacheTTL())
	assert.Equal(t, 480*time.Minute, cfg.AccessTokenTTL())
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := Config{Timezone: "Nowhere/Atlantis"}
	assert.Equal(t, time.UTC, cfg.Location())
}
