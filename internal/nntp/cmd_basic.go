package nntp

import (
	"strings"
	"time"
)

// handleCapabilities emits the fixed capability list (spec §4.5).
func (s *Session) handleCapabilities([]string) error {
	return s.sendMultiline(101, "Capability list:", Capabilities)
}

func (s *Session) handleDate([]string) error {
	return s.sendResponse(111, time.Now().UTC().Format("20060102150405"))
}

func (s *Session) handleMode(args []string) error {
	if len(args) == 1 && strings.EqualFold(args[0], "READER") {
		if s.core.PostingEnabled {
			return s.sendResponse(200, "Posting allowed")
		}
		return s.sendResponse(201, "Posting prohibited")
	}
	return s.sendResponse(501, "Unknown MODE variant")
}

func (s *Session) handleQuit([]string) error {
	s.close()
	return s.sendResponse(205, "Closing connection")
}

// handleStartTLS upgrades an explicit-TLS port's connection in place
// (spec §4.5/§4.7).
func (s *Session) handleStartTLS([]string) error {
	if s.tlsConfig == nil || s.tlsActive {
		return s.sendResponse(502, "STARTTLS not available")
	}
	if err := s.sendResponse(382, "Begin TLS negotiation now"); err != nil {
		return err
	}
	return s.upgradeTLS()
}

// handleXFeature implements "XFEATURE COMPRESS GZIP TERMINATOR" (spec
// §4.1/§4.5); any other XFEATURE variant is unsupported.
func (s *Session) handleXFeature(args []string) error {
	if len(args) == 3 &&
		strings.EqualFold(args[0], "COMPRESS") &&
		strings.EqualFold(args[1], "GZIP") &&
		strings.EqualFold(args[2], "TERMINATOR") {
		s.compression = true
		return s.sendResponse(290, "Compression enabled")
	}
	return s.sendResponse(501, "Unsupported XFEATURE")
}
