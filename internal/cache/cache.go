// Package cache implements the concurrent article/newsgroup cache that sits
// in front of the store (spec §4.4). It is the same hand-rolled
// map+mutex+atomic-counter idiom the teacher uses for its Local430 cache
// (internal/nntp/nntp-cache-local.go), generalized to three indexes with
// size accounting, TTL expiry and LRU-ish eviction.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-while/nntpd-core/internal/models"
)

const (
	// DefaultTTL is the default per-entry time-to-live (spec §4.4).
	DefaultTTL = 15 * time.Minute
	// SweepInterval is how often the expiry sweep runs (spec §4.4).
	SweepInterval = 5 * time.Minute
	// EvictFraction is the share of entries evicted once the size budget is
	// exceeded (spec §4.4: "evict ~10% of entries").
	EvictFraction = 0.10

	articleOverheadBytes = 1024 // fixed per-entry overhead for articles
	groupOverheadBytes   = 512  // fixed per-entry overhead for groups
)

type articleEntry struct {
	link       *models.ArticleNewsgroup
	size       int64
	insertedAt time.Time
	lastAccess atomic.Int64 // unix nanoseconds
}

func newArticleEntry(link *models.ArticleNewsgroup, size int64) *articleEntry {
	e := &articleEntry{link: link, size: size, insertedAt: time.Now()}
	e.lastAccess.Store(time.Now().UnixNano())
	return e
}

func (e *articleEntry) touch() { e.lastAccess.Store(time.Now().UnixNano()) }

func (e *articleEntry) expired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) >= ttl
}

type groupEntry struct {
	group      *models.Newsgroup
	size       int64
	insertedAt time.Time
	lastAccess atomic.Int64
}

func newGroupEntry(g *models.Newsgroup, size int64) *groupEntry {
	e := &groupEntry{group: g, size: size, insertedAt: time.Now()}
	e.lastAccess.Store(time.Now().UnixNano())
	return e
}

func (e *groupEntry) touch() { e.lastAccess.Store(time.Now().UnixNano()) }

func (e *groupEntry) expired(ttl time.Duration) bool {
	return time.Since(e.insertedAt) >= ttl
}

// groupNumberKey is the (group, number) index key.
type groupNumberKey struct {
	group  string
	number int64
}

// Cache holds three maps: by message-id, by (group, number), and by
// newsgroup name, per spec §4.4. It is safe for concurrent use by many
// readers and writers; no operation blocks retrieval longer than one entry
// lookup.
type Cache struct {
	maxBytes int64
	ttl      time.Duration

	totalBytes atomic.Int64

	byMsgID   sync.Map // string -> *articleEntry
	byGroupNo sync.Map // groupNumberKey -> *articleEntry
	byGroup   sync.Map // string -> *groupEntry

	stop chan struct{}
}

// New creates a Cache with the given byte budget and TTL. ttl<=0 means
// DefaultTTL.
func New(maxBytes int64, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		maxBytes: maxBytes,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Close stops the background expiry sweep.
func (c *Cache) Close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

func (c *Cache) sweepLoop() {
	t := time.NewTicker(SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-t.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) sweepExpired() {
	var freed int64
	c.byMsgID.Range(func(key, value any) bool {
		e := value.(*articleEntry)
		if e.expired(c.ttl) {
			if _, ok := c.byMsgID.LoadAndDelete(key); ok {
				freed += e.size
			}
		}
		return true
	})
	c.byGroupNo.Range(func(key, value any) bool {
		e := value.(*articleEntry)
		if e.expired(c.ttl) {
			if _, ok := c.byGroupNo.LoadAndDelete(key); ok {
				freed += e.size
			}
		}
		return true
	})
	c.byGroup.Range(func(key, value any) bool {
		e := value.(*groupEntry)
		if e.expired(c.ttl) {
			if _, ok := c.byGroup.LoadAndDelete(key); ok {
				freed += e.size
			}
		}
		return true
	})
	if freed > 0 {
		c.totalBytes.Add(-freed)
	}
}

func estimateArticleSize(an *models.ArticleNewsgroup) int64 {
	size := int64(articleOverheadBytes)
	if an != nil && an.Article != nil {
		size += int64(len(an.Article.Body))
		for _, vals := range an.Article.Headers {
			for _, v := range vals {
				size += int64(len(v))
			}
		}
	}
	return size
}

func estimateGroupSize(g *models.Newsgroup) int64 {
	size := int64(groupOverheadBytes)
	if g != nil {
		size += int64(len(g.Name) + len(g.Description))
	}
	return size
}

// maybeEvict evicts ~EvictFraction of entries (oldest last-access first)
// across all three indexes if the total exceeds the configured budget. It
// runs before every insertion per spec §4.4.
func (c *Cache) maybeEvict() {
	if c.maxBytes <= 0 || c.totalBytes.Load() <= c.maxBytes {
		return
	}

	type candidate struct {
		kind   int // 0 = msgid, 1 = groupNo, 2 = group
		key    any
		access int64
		size   int64
	}
	var candidates []candidate

	c.byMsgID.Range(func(key, value any) bool {
		e := value.(*articleEntry)
		candidates = append(candidates, candidate{0, key, e.lastAccess.Load(), e.size})
		return true
	})
	c.byGroupNo.Range(func(key, value any) bool {
		e := value.(*articleEntry)
		candidates = append(candidates, candidate{1, key, e.lastAccess.Load(), e.size})
		return true
	})
	c.byGroup.Range(func(key, value any) bool {
		e := value.(*groupEntry)
		candidates = append(candidates, candidate{2, key, e.lastAccess.Load(), e.size})
		return true
	})
	if len(candidates) == 0 {
		return
	}

	// oldest last-access first
	for i := 1; i < len(candidates); i++ {
		j := i
		for j > 0 && candidates[j-1].access > candidates[j].access {
			candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
			j--
		}
	}

	toEvict := int(float64(len(candidates)) * EvictFraction)
	if toEvict < 1 {
		toEvict = 1
	}
	var freed int64
	for i := 0; i < toEvict && i < len(candidates); i++ {
		cand := candidates[i]
		switch cand.kind {
		case 0:
			if _, ok := c.byMsgID.LoadAndDelete(cand.key); ok {
				freed += cand.size
			}
		case 1:
			if _, ok := c.byGroupNo.LoadAndDelete(cand.key); ok {
				freed += cand.size
			}
		case 2:
			if _, ok := c.byGroup.LoadAndDelete(cand.key); ok {
				freed += cand.size
			}
		}
	}
	if freed > 0 {
		c.totalBytes.Add(-freed)
	}
}

// TryGetArticleByMessageID returns the cached link for a message-id, or
// (nil, false) on a miss or expired entry.
func (c *Cache) TryGetArticleByMessageID(msgID string) (*models.ArticleNewsgroup, bool) {
	v, ok := c.byMsgID.Load(msgID)
	if !ok {
		return nil, false
	}
	e := v.(*articleEntry)
	if e.expired(c.ttl) {
		return nil, false
	}
	e.touch()
	return e.link, true
}

// TryGetArticleByNumber returns the cached link for (group, number), or
// (nil, false) on a miss or expired entry.
func (c *Cache) TryGetArticleByNumber(group string, number int64) (*models.ArticleNewsgroup, bool) {
	v, ok := c.byGroupNo.Load(groupNumberKey{group, number})
	if !ok {
		return nil, false
	}
	e := v.(*articleEntry)
	if e.expired(c.ttl) {
		return nil, false
	}
	e.touch()
	return e.link, true
}

// TryGetNewsgroup returns the cached newsgroup, or (nil, false) on a miss or
// expired entry.
func (c *Cache) TryGetNewsgroup(name string) (*models.Newsgroup, bool) {
	v, ok := c.byGroup.Load(name)
	if !ok {
		return nil, false
	}
	e := v.(*groupEntry)
	if e.expired(c.ttl) {
		return nil, false
	}
	e.touch()
	return e.group, true
}

// CacheArticle inserts/refreshes both the message-id and (group, number)
// indexes for a resolved link. group is the real (suffix-stripped)
// newsgroup name the link belongs to.
func (c *Cache) CacheArticle(group string, link *models.ArticleNewsgroup) {
	if link == nil || link.Article == nil {
		return
	}
	c.maybeEvict()
	size := estimateArticleSize(link)

	if old, loaded := c.byMsgID.Swap(link.Article.MessageID, newArticleEntry(link, size)); loaded {
		c.totalBytes.Add(size - old.(*articleEntry).size)
	} else {
		c.totalBytes.Add(size)
	}
	if old, loaded := c.byGroupNo.Swap(groupNumberKey{group, link.Number}, newArticleEntry(link, size)); loaded {
		c.totalBytes.Add(size - old.(*articleEntry).size)
	} else {
		c.totalBytes.Add(size)
	}
}

// CacheNewsgroup inserts/refreshes the group-name index.
func (c *Cache) CacheNewsgroup(g *models.Newsgroup) {
	if g == nil {
		return
	}
	c.maybeEvict()
	size := estimateGroupSize(g)
	if old, loaded := c.byGroup.Swap(g.Name, newGroupEntry(g, size)); loaded {
		c.totalBytes.Add(size - old.(*groupEntry).size)
	} else {
		c.totalBytes.Add(size)
	}
}

// InvalidateArticle removes the message-id entry and any (group, number)
// entries for the given groups (spec §4.4: on cancel/post/approve).
func (c *Cache) InvalidateArticle(msgID string, groups ...string) {
	if v, ok := c.byMsgID.LoadAndDelete(msgID); ok {
		c.totalBytes.Add(-v.(*articleEntry).size)
	}
	if len(groups) == 0 {
		return
	}
	// The number is not known here, so scan the (group, number) index for
	// this message-id's entries in the named groups. Callers that know the
	// number can use InvalidateArticleNumber instead.
	c.byGroupNo.Range(func(key, value any) bool {
		e := value.(*articleEntry)
		if e.link.Article.MessageID != msgID {
			return true
		}
		for _, g := range groups {
			if key.(groupNumberKey).group == g {
				if _, ok := c.byGroupNo.LoadAndDelete(key); ok {
					c.totalBytes.Add(-e.size)
				}
				break
			}
		}
		return true
	})
}

// InvalidateArticleNumber removes a specific (group, number) entry.
func (c *Cache) InvalidateArticleNumber(group string, number int64) {
	if v, ok := c.byGroupNo.LoadAndDelete(groupNumberKey{group, number}); ok {
		c.totalBytes.Add(-v.(*articleEntry).size)
	}
}

// InvalidateNewsgroup removes the group-name entry (spec §4.4: watermark
// changes invalidate the group-name entry).
func (c *Cache) InvalidateNewsgroup(name string) {
	if v, ok := c.byGroup.LoadAndDelete(name); ok {
		c.totalBytes.Add(-v.(*groupEntry).size)
	}
}

// TotalBytes returns the current estimated total cached size (for tests and
// metrics).
func (c *Cache) TotalBytes() int64 {
	return c.totalBytes.Load()
}
