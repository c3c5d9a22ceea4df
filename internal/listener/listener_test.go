package listener

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-while/nntpd-core/internal/cache"
	"github.com/go-while/nntpd-core/internal/nntp"
	"github.com/go-while/nntpd-core/internal/retriever"
	"github.com/go-while/nntpd-core/internal/store"
)

func newTestCore(t *testing.T) *nntp.Core {
	t.Helper()
	dir := t.TempDir()
	st, err := store.OpenSQLiteStore(dir + "/test.sq3")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	blobs, err := store.NewBlobStore(dir + "/blobs")
	if err != nil {
		t.Fatalf("open blob store: %v", err)
	}
	c := cache.New(1<<20, time.Minute)
	t.Cleanup(c.Close)
	return nntp.NewCore("test.example", st, blobs, retriever.New(st, c))
}

func TestServeClearAcceptsConnectionAndShutsDown(t *testing.T) {
	core := newTestCore(t)
	l := New(core, 4)

	if err := l.ServeClear("127.0.0.1:0", nil); err != nil {
		t.Fatalf("ServeClear: %v", err)
	}

	l.mu.Lock()
	addr := l.listeners[0].Addr().String()
	l.mu.Unlock()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if !strings.HasPrefix(line, "200 ") {
		t.Fatalf("expected 200 greeting, got %q", line)
	}
	conn.Close()

	done := make(chan struct{})
	go func() {
		l.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Shutdown did not return in time")
	}
}

func TestSemaphoreCapacityBoundsConcurrentSessions(t *testing.T) {
	core := newTestCore(t)
	l := New(core, 1)
	defer l.Shutdown()

	if err := l.ServeClear("127.0.0.1:0", nil); err != nil {
		t.Fatalf("ServeClear: %v", err)
	}
	l.mu.Lock()
	addr := l.listeners[0].Addr().String()
	l.mu.Unlock()

	conn1, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial 1: %v", err)
	}
	defer conn1.Close()
	conn1.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := bufio.NewReader(conn1).ReadString('\n'); err != nil {
		t.Fatalf("read greeting 1: %v", err)
	}

	conn2, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial 2: %v", err)
	}
	defer conn2.Close()
	conn2.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 16)
	if _, err := conn2.Read(buf); err == nil {
		t.Fatalf("expected second connection to stall behind the capacity-1 semaphore, but got a greeting")
	}
}
