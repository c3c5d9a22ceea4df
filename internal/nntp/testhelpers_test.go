package nntp

import (
	"io"
	"net"
	"testing"

	"github.com/go-while/nntpd-core/internal/models"
)

// newDiscardSession returns a Session wired to a real (but discarded) pipe
// connection, so handlers that write responses via s.tc don't operate on a
// nil textproto.Conn. Useful for unit tests that drive a handler directly
// without a full client/server round-trip.
func newDiscardSession(t *testing.T, core *Core, identity *models.Administrator) *Session {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	go io.Copy(io.Discard, clientConn)
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	s := NewSession(serverConn, core, false, nil)
	s.identity = identity
	return s
}
