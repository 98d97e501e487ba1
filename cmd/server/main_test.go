package main

import (
	"testing"

	"github.com/SamiSolomon/mobile/internal/config"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	if err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, AdminUsername: "admin", AdminPassword: "kolo7Buna42"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestValidateSecurityConfigAllowsMissingAdminPassword(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret}); err != nil {
		t.Fatalf("expected config without admin password to pass, got %v", err)
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{name: "too short", password: "ab12", wantErr: true},
		{name: "common", password: "Password123", wantErr: true},
		{name: "contains username", password: "admin2026xyz", wantErr: true},
		{name: "letters only", password: "injerabuna", wantErr: true},
		{name: "digits only", password: "4839201756", wantErr: true},
		{name: "ok", password: "kolo7Buna42", wantErr: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validatePasswordStrength("admin", tc.password)
			if (err != nil) != tc.wantErr {
				t.Fatalf("validatePasswordStrength(%q) error = %v, wantErr %v", tc.password, err, tc.wantErr)
			}
		})
	}
}
