// Package retriever is the only read path command handlers use to resolve
// articles and newsgroups (spec §4.3). It is cache-first, falls back to the
// store on miss, and applies the metagroup-suffix visibility rules before
// ever touching cache or store.
package retriever

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-while/nntpd-core/internal/cache"
	"github.com/go-while/nntpd-core/internal/models"
	"github.com/go-while/nntpd-core/internal/store"
	"github.com/go-while/nntpd-core/internal/wildmat"
)

// Retriever resolves articles and newsgroups through the cache, falling
// back to the store and repopulating the cache on miss.
type Retriever struct {
	store store.Store
	cache *cache.Cache
}

// New returns a Retriever backed by st and c.
func New(st store.Store, c *cache.Cache) *Retriever {
	return &Retriever{store: st, cache: c}
}

// ErrBadRange is returned by ParseRange for a malformed range expression.
var ErrBadRange = fmt.Errorf("retriever: bad range")

// GetNewsgroup resolves a (possibly suffixed) group name to its real
// Newsgroup record and the Visibility the suffix implies.
func (r *Retriever) GetNewsgroup(ctx context.Context, requested string) (*models.Newsgroup, store.Visibility, error) {
	realName, vis := store.VisibilityFromSuffix(requested)

	if g, ok := r.cache.TryGetNewsgroup(realName); ok {
		return g, vis, nil
	}
	g, err := r.store.GetNewsgroupByName(ctx, realName)
	if err != nil {
		return nil, vis, err
	}
	r.cache.CacheNewsgroup(g)
	return g, vis, nil
}

// GetArticleByMessageID resolves an article by its message-id, ignoring
// group context. Visibility is not filtered here: a direct message-id
// lookup always returns whatever exists, per spec §4.5's selection
// precedence note ("an explicit <msg-id> parameter bypasses
// CurrentNewsgroup"); callers needing .deleted/.pending gating for
// non-privileged sessions must check the returned link's Cancelled/Pending
// flags themselves.
func (r *Retriever) GetArticleByMessageID(ctx context.Context, msgID string) (*models.ArticleNewsgroup, error) {
	if link, ok := r.cache.TryGetArticleByMessageID(msgID); ok {
		return link, nil
	}
	link, err := r.store.GetArticleByMessageID(ctx, msgID)
	if err != nil {
		return nil, err
	}
	if link.Newsgroup != nil {
		r.cache.CacheArticle(link.Newsgroup.Name, link)
	}
	return link, nil
}

// GetArticleByNumber resolves an article at a specific (groupName, number)
// position, applying the Visibility the group's metagroup suffix implies.
func (r *Retriever) GetArticleByNumber(ctx context.Context, requestedGroup string, number int64) (*models.ArticleNewsgroup, error) {
	realName, vis := store.VisibilityFromSuffix(requestedGroup)

	if vis == store.DefaultVisibility() {
		if link, ok := r.cache.TryGetArticleByNumber(realName, number); ok {
			return link, nil
		}
	}

	link, err := r.store.GetArticleByNumber(ctx, realName, number, vis)
	if err != nil {
		return nil, err
	}
	if vis == store.DefaultVisibility() {
		r.cache.CacheArticle(realName, link)
	}
	return link, nil
}

// ListArticlesInRange performs a bulk scan bypassing the cache for both
// lookup and population (spec §4.3: "for large scans (LISTGROUP, OVER)").
func (r *Retriever) ListArticlesInRange(ctx context.Context, requestedGroup string, lo, hi int64, max int) ([]*models.ArticleNewsgroup, error) {
	realName, vis := store.VisibilityFromSuffix(requestedGroup)
	return r.store.ListArticlesInRange(ctx, realName, lo, hi, max, vis)
}

// ListNewsgroups lists groups matching filter, applying wildmat narrowing
// here (the store only narrows by the indexable CreatedSince predicate).
func (r *Retriever) ListNewsgroups(ctx context.Context, filter store.ListFilter) ([]*models.Newsgroup, error) {
	groups, err := r.store.ListNewsgroups(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter.NameWildmat == "" {
		return groups, nil
	}
	out := make([]*models.Newsgroup, 0, len(groups))
	for _, g := range groups {
		if wildmat.Match(filter.NameWildmat, g.Name) {
			out = append(out, g)
		}
	}
	return out, nil
}

// InvalidateArticle drops the cached entries for an article that was just
// cancelled, posted over, or approved (spec §4.4).
func (r *Retriever) InvalidateArticle(msgID string, groupNumbers map[string]int64) {
	r.cache.InvalidateArticle(msgID)
	for group, number := range groupNumbers {
		r.cache.InvalidateArticleNumber(group, number)
	}
}

// InvalidateNewsgroup drops the cached Newsgroup entry after a watermark
// change or control-message mutation (spec §4.4/§4.6).
func (r *Retriever) InvalidateNewsgroup(name string) {
	r.cache.InvalidateNewsgroup(name)
}

// ParseRange parses the NNTP range grammar `N`, `N-`, `N-M` (spec §4.3).
// highWatermark resolves the open-ended `N-` form.
func ParseRange(s string, highWatermark int64) (lo, hi int64, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, ErrBadRange
	}
	if !strings.Contains(s, "-") {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, 0, ErrBadRange
		}
		return n, n, nil
	}
	parts := strings.SplitN(s, "-", 2)
	lo, err = strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, ErrBadRange
	}
	if parts[1] == "" {
		return lo, highWatermark, nil
	}
	hi, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, ErrBadRange
	}
	return lo, hi, nil
}
