// Command nntpd runs the NNTP archive core server: store, cache,
// retriever, and listener wired together. Grounded on the teacher's
// cmd/nntp-server (flag overrides on top of config.NewDefaultConfig,
// signal-driven graceful shutdown).
package main

import (
	"crypto/tls"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-while/nntpd-core/internal/cache"
	"github.com/go-while/nntpd-core/internal/config"
	"github.com/go-while/nntpd-core/internal/listener"
	"github.com/go-while/nntpd-core/internal/nntp"
	"github.com/go-while/nntpd-core/internal/retriever"
	"github.com/go-while/nntpd-core/internal/store"
)

var appVersion = "-unset-"

func main() {
	config.AppVersion = appVersion
	cfg := config.NewDefaultConfig()

	var (
		hostname    = flag.String("hostname", cfg.Server.Hostname, "server hostname for greetings and Path headers")
		clearPort   = flag.Int("clear-port", cfg.Server.ClearPort, "cleartext/explicit-TLS NNTP port (0 disables)")
		implicitTLS = flag.Int("implicit-tls-port", cfg.Server.ImplicitTLS, "implicit-TLS NNTP port (0 disables)")
		tlsCert     = flag.String("tls-cert", cfg.Security.TLSCert, "TLS certificate path")
		tlsKey      = flag.String("tls-key", cfg.Security.TLSKey, "TLS key path")
		maxConns    = flag.Int("max-connections", cfg.Server.MaxConns, "accept-loop semaphore capacity")
		sqlitePath  = flag.String("db", cfg.Storage.SQLitePath, "path to the SQLite metadata database")
		blobDir     = flag.String("blob-dir", cfg.Storage.BlobDir, "directory for article body blobs")
		postingOff  = flag.Bool("no-posting", !cfg.Server.PostingEnabled, "disable POST (read-only server)")
	)
	flag.Parse()

	cfg.Server.Hostname = *hostname
	cfg.Server.ClearPort = *clearPort
	cfg.Server.ImplicitTLS = *implicitTLS
	cfg.Security.TLSCert = *tlsCert
	cfg.Security.TLSKey = *tlsKey
	cfg.Server.MaxConns = *maxConns
	cfg.Storage.SQLitePath = *sqlitePath
	cfg.Storage.BlobDir = *blobDir
	cfg.Server.PostingEnabled = !*postingOff

	if cfg.Server.Hostname == "" {
		log.Fatalf("[nntpd] hostname must be set")
	}

	st, err := store.OpenSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("[nntpd] open store: %v", err)
	}
	defer st.Close()

	blobs, err := store.NewBlobStore(cfg.Storage.BlobDir)
	if err != nil {
		log.Fatalf("[nntpd] open blob store: %v", err)
	}

	c := cache.New(cfg.Cache.BudgetBytes, cfg.Cache.TTL)
	defer c.Close()

	r := retriever.New(st, c)

	core := nntp.NewCore(cfg.Server.Hostname, st, blobs, r)
	core.PostingEnabled = cfg.Server.PostingEnabled
	core.MaxArticleLines = cfg.Server.MaxArticleLines
	core.MaxHeaderLines = cfg.Server.MaxHeaderLines

	l := listener.New(core, cfg.Server.MaxConns)

	var tlsConfig *tls.Config
	if cfg.Security.TLSCert != "" && cfg.Security.TLSKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Security.TLSCert, cfg.Security.TLSKey)
		if err != nil {
			log.Printf("[nntpd] TLS certificate unavailable, STARTTLS/implicit-TLS disabled: %v", err)
		} else {
			tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
		}
	}

	if cfg.Server.ClearPort > 0 {
		addr := portAddr(cfg.Server.ClearPort)
		if err := l.ServeClear(addr, tlsConfig); err != nil {
			log.Fatalf("[nntpd] %v", err)
		}
	}
	if cfg.Server.ImplicitTLS > 0 {
		if tlsConfig == nil {
			log.Fatalf("[nntpd] implicit-TLS port configured but no TLS certificate available")
		}
		addr := portAddr(cfg.Server.ImplicitTLS)
		if err := l.ServeImplicitTLS(addr, tlsConfig); err != nil {
			log.Fatalf("[nntpd] %v", err)
		}
	}

	log.Printf("[nntpd] serving %s (posting-enabled=%v)", cfg.Server.Hostname, cfg.Server.PostingEnabled)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("[nntpd] shutting down")
	l.Shutdown()
}

func portAddr(port int) string {
	return ":" + strconv.Itoa(port)
}
