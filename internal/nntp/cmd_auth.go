package nntp

import (
	"context"
	"errors"
	"strings"

	"github.com/go-while/nntpd-core/internal/auth"
	"github.com/go-while/nntpd-core/internal/store"
)

// handleAuthInfo implements AUTHINFO USER/PASS (spec §4.2).
func (s *Session) handleAuthInfo(args []string) error {
	if len(args) < 2 {
		return s.sendResponse(501, "AUTHINFO requires a sub-command and argument")
	}
	sub := strings.ToUpper(args[0])
	// RFC 4643: a password containing whitespace is rejoined with single
	// spaces (preserved from the teacher's normalization, see spec §9 open
	// question on AUTHINFO whitespace handling).
	value := strings.Join(args[1:], " ")

	switch sub {
	case "USER":
		if s.identity != nil {
			return s.sendResponse(502, "Command unavailable, already authenticated")
		}
		s.pendingUsername = value
		return s.sendResponse(381, "Password required")
	case "PASS":
		if s.identity != nil {
			return s.sendResponse(502, "Command unavailable, already authenticated")
		}
		if s.pendingUsername == "" {
			return s.sendResponse(482, "Authentication commands issued out of sequence")
		}
		return s.authenticate(s.pendingUsername, value)
	default:
		return s.sendResponse(501, "Unknown AUTHINFO sub-command")
	}
}

func (s *Session) authenticate(username, password string) error {
	admin, err := s.core.Store.GetAdministratorByUsername(context.Background(), username)
	if err != nil {
		s.pendingUsername = ""
		if errors.Is(err, store.ErrNotFound) {
			s.core.Stats.AuthFailure()
			return s.sendResponse(481, "Authentication failed")
		}
		return s.sendResponse(403, "Archive server temporarily offline")
	}

	if !auth.Verify(admin, password) || !auth.LocalAuthorityAllowed(admin, s.remoteAddr) {
		s.pendingUsername = ""
		s.core.Stats.AuthFailure()
		return s.sendResponse(481, "Authentication failed")
	}

	s.identity = admin
	s.pendingUsername = ""
	s.core.Stats.AuthSuccess()
	return s.sendResponse(281, "Authentication accepted")
}
