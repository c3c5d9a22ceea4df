// Package nntp implements the NNTP protocol engine: the per-connection
// state machine, command handlers, and poster/control-message executor
// (spec §4.1-§4.6). It is grounded on the teacher's internal/nntp package
// (ClientConnection/NNTPServer shape, AuthManager, ServerStats) but speaks
// a different domain model (models.Article/Newsgroup/Administrator with
// cancel/pending visibility instead of the teacher's flat NNTPUser model).
package nntp

import (
	"time"

	"github.com/go-while/nntpd-core/internal/retriever"
	"github.com/go-while/nntpd-core/internal/store"
)

// Capabilities is the fixed capability list advertised by CAPABILITIES
// (spec §4.5). Built once at startup and immutable thereafter, like the
// teacher's static command table (spec §9 "Static command table").
var Capabilities = []string{
	"VERSION 2",
	"READER",
	"AUTHINFO USER",
	"LIST ACTIVE NEWSGROUPS ACTIVE.TIMES OVERVIEW.FMT",
	"HDR",
	"OVER",
	"XFEATURE COMPRESS GZIP TERMINATOR",
	"STARTTLS",
}

// Core holds the dependencies shared by every session on a server
// instance: the store, the cache-backed retriever, and server-wide
// tunables. One Core is constructed at startup and handed to every
// accepted connection (mirrors the teacher's NNTPServer, which bundles DB,
// AuthManager, and Stats for the same purpose).
type Core struct {
	Hostname  string
	Store     store.Store
	Blobs     BlobStore
	Retriever *retriever.Retriever
	Stats     *ServerStats

	PostingEnabled  bool
	MaxArticleLines int
	MaxHeaderLines  int
}

// BlobStore is the subset of internal/store.BlobStore that Core carries; the
// poster writes each accepted article through it (ARTICLE/BODY read the
// body from the stored link instead). Declared here so internal/nntp doesn't
// import internal/store's concrete blob type where an interface suffices.
type BlobStore interface {
	Put(msgID string, data []byte) error
	Get(msgID string) ([]byte, error)
	Delete(msgID string) error
}

// NewCore returns a Core with sane defaults for the size limits the
// teacher hardcodes in readArticleData (maxLines/maxHead).
func NewCore(hostname string, st store.Store, blobs BlobStore, r *retriever.Retriever) *Core {
	return &Core{
		Hostname:        hostname,
		Store:           st,
		Blobs:           blobs,
		Retriever:       r,
		Stats:           NewServerStats(),
		PostingEnabled:  true,
		MaxArticleLines: 16384,
		MaxHeaderLines:  1024,
	}
}

const sessionIdleTimeout = 5 * time.Minute
