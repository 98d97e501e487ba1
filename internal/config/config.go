package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	StoreDriver           string
	SQLitePath            string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
	AdminUsername         string
	AdminPassword         string
	LogLevel              string
	LogFormat             string
	Timezone              string
}

// Load reads a .env file when one exists, then the process environment.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	ttl, err := strconv.Atoi(getEnv("REPORT_CACHE_TTL_SECONDS", "30"))
	if err != nil || ttl < 1 {
		ttl = 30
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		SQLitePath:            getEnv("SQLITE_PATH", "pos.db"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		ReportCacheTTLSeconds: ttl,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		AdminUsername:         strings.ToLower(strings.TrimSpace(getEnv("ADMIN_USERNAME", "admin"))),
		AdminPassword:         os.Getenv("ADMIN_PASSWORD"),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogFormat:             getEnv("LOG_FORMAT", "text"),
		Timezone:              getEnv("TIMEZONE", "Africa/Addis_Ababa"),
	}
	cfg.StoreDriver = resolveDriver(os.Getenv("STORE_DRIVER"), cfg.DatabaseURL)

	return cfg
}

// resolveDriver prefers an explicit STORE_DRIVER; otherwise DATABASE_URL selects postgres.
func resolveDriver(explicit string, databaseURL string) string {
	switch strings.ToLower(strings.TrimSpace(explicit)) {
	case DriverSQLite:
		return DriverSQLite
	case DriverPostgres:
		return DriverPostgres
	case DriverMemory:
		return DriverMemory
	}
	if databaseURL != "" {
		return DriverPostgres
	}
	return DriverSQLite
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// Location resolves the shop's timezone for day/week/month boundaries; UTC when unknown.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
