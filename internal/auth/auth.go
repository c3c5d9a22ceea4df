// Package auth hashes and verifies Administrator credentials with bcrypt,
// the same library the teacher uses for NNTP users in
// internal/database/db_nntp_users.go.
package auth

import (
	"fmt"
	"net"

	"golang.org/x/crypto/bcrypt"

	"github.com/go-while/nntpd-core/internal/models"
)

// HashPassword returns a bcrypt hash of password at the default cost.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify compares password against a's stored bcrypt hash.
func Verify(a *models.Administrator, password string) bool {
	if a == nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.PasswordHash), []byte(password)) == nil
}

// LocalAuthorityAllowed reports whether a may authenticate from remoteAddr,
// enforcing LocalAuthenticationOnly (spec §4.2: "if the matched principal
// is LocalAuthenticationOnly and the peer address is not a loopback
// address, respond 481").
func LocalAuthorityAllowed(a *models.Administrator, remoteAddr net.Addr) bool {
	if a == nil {
		return false
	}
	if !a.LocalAuthenticationOnly {
		return true
	}
	host, _, err := net.SplitHostPort(remoteAddr.String())
	if err != nil {
		host = remoteAddr.String()
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
