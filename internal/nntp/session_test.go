package nntp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/go-while/nntpd-core/internal/cache"
	"github.com/go-while/nntpd-core/internal/models"
	"github.com/go-while/nntpd-core/internal/retriever"
	"github.com/go-while/nntpd-core/internal/store"
)

// testServer wires a real SQLite-backed store, a blob store under t.TempDir,
// and a cache into a Core, then drives a Session over a net.Pipe so command
// handlers are exercised exactly as they run over a real connection.
type testServer struct {
	t      *testing.T
	core   *Core
	client net.Conn
	r      *bufio.Reader
}

func newTestServer(t *testing.T) *testServer {
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

	r := retriever.New(st, c)
	core := NewCore("test.example", st, blobs, r)

	clientConn, serverConn := net.Pipe()
	sess := NewSession(serverConn, core, false, nil)

	go sess.Handle()

	return &testServer{t: t, core: core, client: clientConn, r: bufio.NewReader(clientConn)}
}

func (ts *testServer) readLine() string {
	ts.t.Helper()
	ts.client.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := ts.r.ReadString('\n')
	if err != nil {
		ts.t.Fatalf("read line: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func (ts *testServer) readDotBody() []string {
	ts.t.Helper()
	var lines []string
	for {
		line := ts.readLine()
		if line == "." {
			return lines
		}
		lines = append(lines, line)
	}
}

func (ts *testServer) send(cmd string) {
	ts.t.Helper()
	ts.client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := ts.client.Write([]byte(cmd + "\r\n")); err != nil {
		ts.t.Fatalf("write: %v", err)
	}
}

func TestGreetingAndCapabilities(t *testing.T) {
	ts := newTestServer(t)
	defer ts.client.Close()

	greeting := ts.readLine()
	if !strings.HasPrefix(greeting, "200 ") {
		t.Fatalf("expected 200 greeting, got %q", greeting)
	}

	ts.send("CAPABILITIES")
	status := ts.readLine()
	if !strings.HasPrefix(status, "101 ") {
		t.Fatalf("expected 101, got %q", status)
	}
	lines := ts.readDotBody()
	found := false
	for _, l := range lines {
		if l == "READER" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected READER capability in %v", lines)
	}
}

func TestGroupAndPostAndArticle(t *testing.T) {
	ts := newTestServer(t)
	defer ts.client.Close()
	ts.readLine() // greeting

	ts.send("MODE READER")
	if status := ts.readLine(); !strings.HasPrefix(status, "200 ") {
		t.Fatalf("MODE READER: %q", status)
	}

	if err := ts.core.Store.CreateNewsgroup(context.Background(), &models.Newsgroup{Name: "misc.test"}); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}

	ts.send("GROUP misc.test")
	if status := ts.readLine(); !strings.HasPrefix(status, "211 ") {
		t.Fatalf("GROUP: %q", status)
	}

	ts.send("POST")
	if status := ts.readLine(); !strings.HasPrefix(status, "340 ") {
		t.Fatalf("POST: %q", status)
	}
	article := "From: poster@example.com\r\n" +
		"Subject: hello\r\n" +
		"Newsgroups: misc.test\r\n" +
		"Message-ID: <1@example.com>\r\n" +
		"Date: Mon, 02 Jan 2006 15:04:05 +0000\r\n" +
		"Path: not-for-mail\r\n" +
		"\r\n" +
		"body line one\r\n" +
		".\r\n"
	ts.client.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := ts.client.Write([]byte(article)); err != nil {
		t.Fatalf("write article: %v", err)
	}
	if status := ts.readLine(); !strings.HasPrefix(status, "240 ") {
		t.Fatalf("expected 240 after POST, got %q", status)
	}

	ts.send("ARTICLE 1")
	status := ts.readLine()
	if !strings.HasPrefix(status, "220 ") {
		t.Fatalf("ARTICLE 1: %q", status)
	}
	lines := ts.readDotBody()
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, "Subject: hello") || !strings.Contains(joined, "body line one") {
		t.Fatalf("unexpected ARTICLE body: %v", lines)
	}
}

func TestAuthInfoRejectsUnknownUser(t *testing.T) {
	ts := newTestServer(t)
	defer ts.client.Close()
	ts.readLine() // greeting

	ts.send("AUTHINFO USER nobody")
	if status := ts.readLine(); !strings.HasPrefix(status, "381 ") {
		t.Fatalf("AUTHINFO USER: %q", status)
	}
	ts.send("AUTHINFO PASS whatever")
	if status := ts.readLine(); !strings.HasPrefix(status, "481 ") {
		t.Fatalf("expected 481 for unknown user, got %q", status)
	}
}

func TestQuitClosesSession(t *testing.T) {
	ts := newTestServer(t)
	defer ts.client.Close()
	ts.readLine() // greeting

	ts.send("QUIT")
	if status := ts.readLine(); !strings.HasPrefix(status, "205 ") {
		t.Fatalf("QUIT: %q", status)
	}
}
