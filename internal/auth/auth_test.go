// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fleetglass/fleetglass/internal/config"
)

func testSecurityConfig() *config.SecurityConfig {
	return &config.SecurityConfig{
		JWTSecret:      strings.Repeat("s", 32),
		SessionTimeout: time.Hour,
		AdminUsername:  "admin",
		AdminPassword:  "fleet-pass",
	}
}

func TestJWTRoundTrip(t *testing.T) {
	m, err := NewJWTManager(testSecurityConfig())
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}

	token, err := m.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "admin" || claims.Role != "admin" {
		t.Errorf("claims = %+v", claims)
	}
}

func TestJWTRejectsWrongSecret(t *testing.T) {
	m1, _ := NewJWTManager(testSecurityConfig())
	other := testSecurityConfig()
	other.JWTSecret = strings.Repeat("x", 32)
	m2, _ := NewJWTManager(other)

	token, err := m1.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m2.ValidateToken(token); err == nil {
		t.Fatal("token signed with different secret accepted")
	}
}

func TestJWTRejectsExpired(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.SessionTimeout = -time.Minute
	m, _ := NewJWTManager(cfg)

	token, err := m.GenerateToken("admin", "admin")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestNewJWTManagerRequiresSecret(t *testing.T) {
	cfg := testSecurityConfig()
	cfg.JWTSecret = ""
	if _, err := NewJWTManager(cfg); err == nil {
		t.Fatal("empty secret accepted")
	}

	cfg.JWTSecret = "short"
	if _, err := NewJWTManager(cfg); err == nil {
		t.Fatal("short secret accepted")
	}
}

func TestCredentialChecker(t *testing.T) {
	c, err := NewCredentialChecker(testSecurityConfig())
	if err != nil {
		t.Fatalf("NewCredentialChecker: %v", err)
	}

	if err := c.Check("admin", "fleet-pass"); err != nil {
		t.Errorf("valid credentials rejected: %v", err)
	}
	if err := c.Check("admin", "wrong"); err == nil {
		t.Error("wrong password accepted")
	}
	if err := c.Check("other", "fleet-pass"); err == nil {
		t.Error("wrong username accepted")
	}
}

func TestCredentialCheckerBcrypt(t *testing.T) {
	hash, err := HashPassword("fleet-pass")
	if err != nil {
		t.Fatal(err)
	}
	cfg := testSecurityConfig()
	cfg.AdminPassword = hash

	c, err := NewCredentialChecker(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Check("admin", "fleet-pass"); err != nil {
		t.Errorf("valid bcrypt credentials rejected: %v", err)
	}
	if err := c.Check("admin", "wrong"); err == nil {
		t.Error("wrong password accepted against bcrypt hash")
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	m, _ := NewJWTManager(testSecurityConfig())
	mw := NewMiddleware(m)

	var gotClaims *Claims
	handler := mw.Authenticate(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	token, _ := m.GenerateToken("admin", "admin")

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer " + token, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/vehicles", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}

	if gotClaims == nil || gotClaims.Username != "admin" {
		t.Errorf("claims from context = %+v", gotClaims)
	}
}
