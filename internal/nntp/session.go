package nntp

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/textproto"
	"strings"
	"time"

	"github.com/go-while/nntpd-core/internal/models"
	"github.com/go-while/nntpd-core/internal/store"
)

// sessionState tracks the dispatcher state machine (spec §4.2):
// Greeting -> Ready -> {InPost} -> Ready -> Closed. Greeting is handled
// inline by Handle before the read loop starts; InPost is entered and
// exited synchronously inside handlePost, since the POST body read
// monopolizes the connection exactly like the teacher's readArticleData.
type sessionState int

const (
	stateReady sessionState = iota
	stateClosed
)

// Session is one client connection's mutable state (spec §3 "Session
// state"). It plays the role of the teacher's ClientConnection, generalized
// to the Administrator/visibility model instead of a flat NNTPUser.
type Session struct {
	core *Core

	conn       net.Conn
	tc         *textproto.Conn
	remoteAddr net.Addr

	tlsActive     bool
	tlsConfig     *tls.Config // non-nil on explicit-TLS ports, to serve STARTTLS
	tlsAdvertised bool

	state sessionState

	currentGroupReal      string
	currentGroupRequested string
	currentVis            store.Visibility
	currentLow            int64
	currentHigh           int64
	currentArticle        int64
	hasCurrentArticle     bool

	identity        *models.Administrator
	pendingUsername string

	compression bool

	created time.Time
}

// NewSession wraps conn in a Session bound to core. tlsConfig is non-nil
// only for explicit-TLS ports where STARTTLS should be advertised and
// honored.
func NewSession(conn net.Conn, core *Core, tlsActive bool, tlsConfig *tls.Config) *Session {
	return &Session{
		core:          core,
		conn:          conn,
		tc:            textproto.NewConn(conn),
		remoteAddr:    conn.RemoteAddr(),
		tlsActive:     tlsActive,
		tlsConfig:     tlsConfig,
		tlsAdvertised: tlsConfig != nil && !tlsActive,
		state:         stateReady,
		created:       time.Now(),
	}
}

// Handle runs the session to completion: greeting, then the Ready-state
// command loop, until the peer disconnects or QUIT closes the session.
func (s *Session) Handle() error {
	defer s.tc.Close()

	if err := s.greet(); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}

	for {
		s.conn.SetDeadline(time.Now().Add(sessionIdleTimeout))
		line, err := s.tc.ReadLine()
		if err != nil {
			return nil // peer gone; nothing more to do
		}

		if err := s.dispatch(line); err != nil {
			log.Printf("[nntp] session error from %s: %v", s.remoteAddr, err)
		}
		if s.state == stateClosed {
			return nil
		}
	}
}

func (s *Session) greet() error {
	if s.core.PostingEnabled {
		return s.sendResponse(200, fmt.Sprintf("%s NNTP server ready, posting allowed", s.core.Hostname))
	}
	return s.sendResponse(201, fmt.Sprintf("%s NNTP server ready, posting prohibited", s.core.Hostname))
}

func (s *Session) dispatch(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return s.sendResponse(500, "Command not recognized")
	}
	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	s.core.Stats.CommandExecuted(verb)

	handler, ok := commandTable[verb]
	if !ok {
		return s.sendResponse(500, fmt.Sprintf("Command not recognized: %s", verb))
	}
	return handler(s, args)
}

// sendResponse writes a single-line status response.
func (s *Session) sendResponse(code int, message string) error {
	return s.tc.PrintfLine("%d %s", code, message)
}

// sendMultiline writes a status line followed by a dot-terminated body,
// transparently GZIP-framing it when compression has been negotiated
// (spec §4.1).
func (s *Session) sendMultiline(code int, statusMsg string, lines []string) error {
	if err := s.sendResponse(code, statusMsg); err != nil {
		return err
	}
	if !s.compression {
		dw := s.tc.DotWriter()
		for _, line := range lines {
			if _, err := dw.Write([]byte(line + "\r\n")); err != nil {
				dw.Close()
				return err
			}
		}
		return dw.Close()
	}

	frame, err := gzipFrame(lines)
	if err != nil {
		return fmt.Errorf("gzip-frame multiline body: %w", err)
	}
	_, err = s.conn.Write(frame)
	return err
}

// upgradeTLS performs an in-place STARTTLS handshake (spec §4.7: explicit
// TLS ports). It replaces the session's conn/tc with TLS-wrapped versions.
func (s *Session) upgradeTLS() error {
	if s.tlsConfig == nil || s.tlsActive {
		return fmt.Errorf("STARTTLS not available on this session")
	}
	tlsConn := tls.Server(s.conn, s.tlsConfig)
	if err := tlsConn.Handshake(); err != nil {
		return fmt.Errorf("TLS handshake: %w", err)
	}
	s.conn = tlsConn
	s.tc = textproto.NewConn(tlsConn)
	s.tlsActive = true
	s.tlsAdvertised = false
	return nil
}

func (s *Session) close() {
	s.state = stateClosed
}
