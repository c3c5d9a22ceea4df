// Package store implements the persistent-storage contract consumed by the
// NNTP core (spec §6). The contract is storage-agnostic; SQLiteStore is one
// concrete implementation grounded on the teacher's database/sql +
// mattn/go-sqlite3 usage.
package store

import (
	"context"
	"errors"

	"github.com/go-while/nntpd-core/internal/models"
)

// Sentinel errors handlers switch on to pick the right NNTP response code
// (spec §7).
var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Visibility selects which ArticleNewsgroup rows a query returns, per the
// metagroup suffix rules in spec §4.3.
type Visibility struct {
	Cancelled bool
	Pending   bool
}

// DefaultVisibility returns only rows that are neither cancelled nor
// pending (the ordinary, non-suffixed group view).
func DefaultVisibility() Visibility { return Visibility{} }

// VisibilityFromSuffix parses a requested group name into its real name and
// the filter to apply, per spec §4.3 / §9 "Metagroup suffixes".
//
//	"comp.test.deleted" -> ("comp.test", {Cancelled: true})
//	"comp.test.pending" -> ("comp.test", {Pending: true})
//	"comp.test"         -> ("comp.test", {})
func VisibilityFromSuffix(requested string) (realName string, vis Visibility) {
	const deletedSuffix = ".deleted"
	const pendingSuffix = ".pending"
	if len(requested) > len(deletedSuffix) && hasSuffix(requested, deletedSuffix) {
		return requested[:len(requested)-len(deletedSuffix)], Visibility{Cancelled: true}
	}
	if len(requested) > len(pendingSuffix) && hasSuffix(requested, pendingSuffix) {
		return requested[:len(requested)-len(pendingSuffix)], Visibility{Pending: true}
	}
	return requested, Visibility{}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// ListFilter narrows ListNewsgroups.
type ListFilter struct {
	NameWildmat  string    // empty = no filter
	CreatedSince *int64    // unix seconds; nil = no filter
}

// Store is the persistence contract the NNTP core consumes (spec §6). All
// methods take a context so callers (the dispatcher) can bound query time;
// implementations that can't cancel mid-query should still honor ctx at the
// boundary.
type Store interface {
	GetNewsgroupByName(ctx context.Context, name string) (*models.Newsgroup, error)
	GetArticleByMessageID(ctx context.Context, msgID string) (*models.ArticleNewsgroup, error)
	GetArticleByNumber(ctx context.Context, groupName string, number int64, vis Visibility) (*models.ArticleNewsgroup, error)
	ListArticlesInRange(ctx context.Context, groupName string, lo, hi int64, max int, vis Visibility) ([]*models.ArticleNewsgroup, error)
	ListNewsgroups(ctx context.Context, filter ListFilter) ([]*models.Newsgroup, error)

	// InsertArticle persists an article and its per-group links atomically.
	// Number assignment ("max(Number in group)+1") happens under per-group
	// serialization inside the implementation (spec §4.6/§5/§9).
	InsertArticle(ctx context.Context, article *models.Article, links []*models.ArticleNewsgroup) error

	// UpdateArticleNewsgroup persists mutations to an existing link (used
	// for cancel/approve, spec §4.6).
	UpdateArticleNewsgroup(ctx context.Context, link *models.ArticleNewsgroup) error

	// CreateNewsgroup/DeleteNewsgroup back the `newgroup`/`rmgroup` control
	// messages (spec §4.6 step 7).
	CreateNewsgroup(ctx context.Context, group *models.Newsgroup) error
	DeleteNewsgroup(ctx context.Context, name string) error

	ListAdministrators(ctx context.Context) ([]*models.Administrator, error)
	GetAdministratorByUsername(ctx context.Context, username string) (*models.Administrator, error)

	Close() error
}
