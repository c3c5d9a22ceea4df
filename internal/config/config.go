// Package config provides configuration management for the NNTP archive
// core. Adapted from go-pugleaf's internal/config for the single-process
// server/cache/store shape this module builds instead of the multi-provider
// feed-puller the teacher configures.
package config

import (
	"log"
	"sync"
	"time"
)

var AppVersion = "-unset-" // set at build time via -ldflags

const (
	// Defaults for the accept-loop semaphore (spec §4.7/§5).
	DefaultMaxConns = 1000

	// Defaults for the cache (spec §4.4).
	DefaultCacheBudgetBytes = 256 * 1024 * 1024
	DefaultCacheTTL         = 15 * time.Minute
	DefaultCacheSweep       = 5 * time.Minute

	// Default idle timeout per session (spec §4.2).
	DefaultSessionIdleTimeout = 5 * time.Minute
)

// MainConfig holds the full configuration for one server instance.
type MainConfig struct {
	AppVersion string `json:"app_version"`

	mux sync.Mutex `json:"-"`

	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Cache    CacheConfig    `json:"cache"`
	Security SecurityConfig `json:"security"`
}

// ServerConfig holds listener and protocol-level settings (spec §4.7).
type ServerConfig struct {
	Hostname string `json:"hostname"` // used in greetings and Path headers

	ClearPort    int `json:"clear_port"`     // cleartext port, STARTTLS-capable
	ImplicitTLS  int `json:"implicit_tls_port"` // TLS-from-connect port, 0 disables
	MaxConns     int `json:"max_connections"`   // accept-loop semaphore capacity

	PostingEnabled  bool `json:"posting_enabled"`
	MaxArticleLines int  `json:"max_article_lines"`
	MaxHeaderLines  int  `json:"max_header_lines"`
}

// StorageConfig points at the SQLite metadata database and the blob-store
// root directory (spec §6).
type StorageConfig struct {
	SQLitePath string `json:"sqlite_path"`
	BlobDir    string `json:"blob_dir"`
}

// CacheConfig tunes the in-process article/newsgroup cache (spec §4.4).
type CacheConfig struct {
	BudgetBytes int64         `json:"budget_bytes"`
	TTL         time.Duration `json:"ttl"`
	SweepEvery  time.Duration `json:"sweep_every"`
}

// SecurityConfig holds TLS material for the implicit-TLS and STARTTLS
// listeners.
type SecurityConfig struct {
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`
}

// NewDefaultConfig returns a configuration with sensible defaults for a
// single-host deployment.
func NewDefaultConfig() *MainConfig {
	if AppVersion == "-unset-" {
		log.Printf("[config] AppVersion is unset")
	}
	cfg := &MainConfig{
		AppVersion: AppVersion,
		Server: ServerConfig{
			Hostname:        "localhost",
			ClearPort:       1119,
			ImplicitTLS:     1563,
			MaxConns:        DefaultMaxConns,
			PostingEnabled:  true,
			MaxArticleLines: 16384,
			MaxHeaderLines:  1024,
		},
		Storage: StorageConfig{
			SQLitePath: "data/nntpd.sq3",
			BlobDir:    "data/articles",
		},
		Cache: CacheConfig{
			BudgetBytes: DefaultCacheBudgetBytes,
			TTL:         DefaultCacheTTL,
			SweepEvery:  DefaultCacheSweep,
		},
		Security: SecurityConfig{
			TLSCert: "ssl/cert.pem",
			TLSKey:  "ssl/privkey.pem",
		},
	}

	cfg.mux.Lock()
	log.Printf("[config] MainConfig initialized: clear=%d implicit-tls=%d max-conns=%d",
		cfg.Server.ClearPort, cfg.Server.ImplicitTLS, cfg.Server.MaxConns)
	cfg.mux.Unlock()
	return cfg
}
