// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package auth

import (
	"crypto/subtle"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/fleetglass/fleetglass/internal/config"
)

// CredentialChecker verifies the configured admin credential. The password
// may be stored as a bcrypt hash (recommended) or as plaintext for local
// development; hashes are recognized by their $2 prefix.
type CredentialChecker struct {
	username     string
	passwordHash []byte
	plaintext    string
}

// NewCredentialChecker builds a checker from the security configuration.
func NewCredentialChecker(cfg *config.SecurityConfig) (*CredentialChecker, error) {
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return nil, fmt.Errorf("admin credentials are not configured")
	}

	c := &CredentialChecker{username: cfg.AdminUsername}
	if strings.HasPrefix(cfg.AdminPassword, "$2") {
		c.passwordHash = []byte(cfg.AdminPassword)
	} else {
		c.plaintext = cfg.AdminPassword
	}
	return c, nil
}

// Check returns nil when the supplied username and password match the
// configured credential. Comparisons are constant time.
func (c *CredentialChecker) Check(username, password string) error {
	userMatch := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1

	var passMatch bool
	if c.passwordHash != nil {
		passMatch = bcrypt.CompareHashAndPassword(c.passwordHash, []byte(password)) == nil
	} else {
		passMatch = subtle.ConstantTimeCompare([]byte(password), []byte(c.plaintext)) == 1
	}

	if !userMatch || !passMatch {
		return fmt.Errorf("invalid credentials")
	}
	return nil
}

// HashPassword produces a bcrypt hash suitable for the ADMIN_PASSWORD
// setting.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}
