package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode"

	"github.com/SamiSolomon/mobile/internal/app"
	"github.com/SamiSolomon/mobile/internal/config"
	"github.com/SamiSolomon/mobile/internal/httpapi"
	"github.com/SamiSolomon/mobile/internal/logging"
	"github.com/SamiSolomon/mobile/internal/service"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.WithError(err).Fatal("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, err := app.OpenRepository(ctx, cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("refusing to start without the configured repository")
	}
	closers = append(closers, repo.Close)

	reports, closeCache := app.OpenReportCache(ctx, cfg, logger)
	closers = append(closers, closeCache)

	svc := service.New(repo,
		service.WithReportCache(reports, cfg.ReportCacheTTL()),
		service.WithLogger(logger.WithField("component", "service")),
		service.WithLocation(cfg.Location()),
	)
	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL(), repo)
	created, err := auth.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
	switch {
	case err != nil:
		logger.WithError(err).Fatal("could not create admin account")
	case created:
		logger.WithField("username", cfg.AdminUsername).Info("admin account created")
	}
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger.WithField("component", "http"))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Address()).Info("POS backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.WithError(err).Warn("close error")
		}
	}

	logger.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AdminPassword == "" {
		return nil
	}
	if err := validatePasswordStrength(cfg.AdminUsername, cfg.AdminPassword); err != nil {
		return fmt.Errorf("ADMIN_PASSWORD is too weak: %w", err)
	}
	return nil
}

// validatePasswordStrength wants ten characters mixing letters and digits,
// and rejects passwords built from the username or a known-weak list.
func validatePasswordStrength(username string, password string) error {
	if len(password) < 10 {
		return fmt.Errorf("at least 10 characters required")
	}
	known := map[string]bool{
		"password123": true, "admin12345": true, "1234567890": true,
		"qwertyuiop": true, "letmein123": true, "changeme123": true,
	}
	lower := strings.ToLower(password)
	if known[lower] {
		return fmt.Errorf("common password not allowed")
	}
	if username != "" && strings.Contains(lower, strings.ToLower(username)) {
		return fmt.Errorf("password must not contain the username")
	}

	var letters, digits bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			letters = true
		case unicode.IsDigit(r):
			digits = true
		}
	}
	if !letters || !digits {
		return fmt.Errorf("mix letters and digits")
	}
	return nil
}
