// Package listener implements the accept/dispatch layer (spec §4.7): one or
// more net.Listeners feeding a bounded worker pool of nntp.Session
// goroutines, gated by a semaphore sized from config.
//
// Grounded on the teacher's NNTPServer.Start/serve/handleConnection shape
// (internal/nntp/nntp-server.go): a shutdown channel plus a shared
// WaitGroup, one accept goroutine per listener, one handler goroutine per
// connection. The teacher rejects over a stats-counter poll inside the
// accept loop; this instead blocks the accept loop on a buffered-channel
// semaphore, which backpressures instead of busy-polling once full.
package listener

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"sync"

	"github.com/go-while/nntpd-core/internal/nntp"
)

// Listener runs the bounded accept loop for one or more ports against a
// shared nntp.Core.
type Listener struct {
	core *nntp.Core

	sem chan struct{}

	mu        sync.Mutex
	listeners []net.Listener
	shutdown  chan struct{}
	wg        sync.WaitGroup
	running   bool
}

// New returns a Listener with an accept semaphore of capacity maxConns
// (spec §4.7's bounded accept-loop semaphore, default 1000).
func New(core *nntp.Core, maxConns int) *Listener {
	if maxConns <= 0 {
		maxConns = 1000
	}
	return &Listener{
		core:     core,
		sem:      make(chan struct{}, maxConns),
		shutdown: make(chan struct{}),
	}
}

// ServeClear starts a cleartext, STARTTLS-capable listener on addr.
// tlsConfig, if non-nil, is offered to sessions for in-place STARTTLS
// upgrade but is not applied at accept time.
func (l *Listener) ServeClear(addr string, tlsConfig *tls.Config) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	l.addListener(ln)
	log.Printf("[listener] cleartext NNTP on %s", addr)
	l.wg.Add(1)
	go l.accept(ln, false, tlsConfig)
	return nil
}

// ServeImplicitTLS starts a TLS-from-connect listener on addr (the
// teacher's second, always-encrypted NNTP port).
func (l *Listener) ServeImplicitTLS(addr string, tlsConfig *tls.Config) error {
	if tlsConfig == nil {
		return fmt.Errorf("listener: implicit TLS requires a tls.Config")
	}
	ln, err := tls.Listen("tcp", addr, tlsConfig)
	if err != nil {
		return fmt.Errorf("listen-tls %s: %w", addr, err)
	}
	l.addListener(ln)
	log.Printf("[listener] implicit-TLS NNTP on %s", addr)
	l.wg.Add(1)
	go l.accept(ln, true, nil)
	return nil
}

func (l *Listener) addListener(ln net.Listener) {
	l.mu.Lock()
	l.listeners = append(l.listeners, ln)
	l.running = true
	l.mu.Unlock()
}

// accept runs the bounded accept loop for one listener: it blocks on the
// semaphore before calling Accept, so a connection is never accepted only
// to be immediately rejected (spec §4.7 "accept loop is bounded by a
// semaphore; Accept itself blocks while the semaphore is full").
func (l *Listener) accept(ln net.Listener, tlsActive bool, tlsConfig *tls.Config) {
	defer l.wg.Done()
	for {
		select {
		case l.sem <- struct{}{}:
		case <-l.shutdown:
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			<-l.sem
			select {
			case <-l.shutdown:
				return
			default:
				l.core.Stats.ConnectionRejected()
				log.Printf("[listener] accept error on %s: %v", ln.Addr(), err)
				continue
			}
		}

		l.core.Stats.ConnectionStarted()
		l.wg.Add(1)
		go l.handle(conn, tlsActive, tlsConfig)
	}
}

func (l *Listener) handle(conn net.Conn, tlsActive bool, tlsConfig *tls.Config) {
	defer l.wg.Done()
	defer func() { <-l.sem }()
	defer l.core.Stats.ConnectionEnded()
	defer conn.Close()

	sess := nntp.NewSession(conn, l.core, tlsActive, tlsConfig)
	if err := sess.Handle(); err != nil {
		log.Printf("[listener] session %s ended with error: %v", conn.RemoteAddr(), err)
	}
}

// Shutdown stops accepting new connections and waits for in-flight
// sessions to finish.
func (l *Listener) Shutdown() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	lns := l.listeners
	l.mu.Unlock()

	close(l.shutdown)
	for _, ln := range lns {
		ln.Close()
	}
	l.wg.Wait()
}
