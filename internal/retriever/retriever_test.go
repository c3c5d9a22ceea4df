package retriever

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-while/nntpd-core/internal/cache"
	"github.com/go-while/nntpd-core/internal/models"
	"github.com/go-while/nntpd-core/internal/store"
)

func newTestRetriever(t *testing.T) (*Retriever, *store.SQLiteStore) {
	t.Helper()
	st, err := store.OpenSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	c := cache.New(1<<20, time.Minute)
	t.Cleanup(c.Close)
	return New(st, c), st
}

func TestParseRange(t *testing.T) {
	cases := []struct {
		in      string
		wantLo  int64
		wantHi  int64
		wantErr bool
	}{
		{"42", 42, 42, false},
		{"10-", 10, 100, false},
		{"10-20", 10, 20, false},
		{"", 0, 0, true},
		{"abc", 0, 0, true},
		{"10-abc", 0, 0, true},
	}
	for _, c := range cases {
		lo, hi, err := ParseRange(c.in, 100)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseRange(%q) expected error", c.in)
			}
			continue
		}
		if err != nil || lo != c.wantLo || hi != c.wantHi {
			t.Errorf("ParseRange(%q) = (%d, %d, %v), want (%d, %d, nil)", c.in, lo, hi, err, c.wantLo, c.wantHi)
		}
	}
}

func TestGetNewsgroupResolvesMetagroupSuffix(t *testing.T) {
	r, st := newTestRetriever(t)
	ctx := context.Background()

	g := &models.Newsgroup{Name: "comp.test"}
	if err := st.CreateNewsgroup(ctx, g); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}

	got, vis, err := r.GetNewsgroup(ctx, "comp.test.deleted")
	if err != nil {
		t.Fatalf("get newsgroup: %v", err)
	}
	if got.Name != "comp.test" || !vis.Cancelled {
		t.Fatalf("got %+v vis=%+v, want real name comp.test with Cancelled visibility", got, vis)
	}
}

func TestGetArticleByNumberRepeatLookupResolvesSameArticle(t *testing.T) {
	r, st := newTestRetriever(t)
	ctx := context.Background()

	g := &models.Newsgroup{Name: "comp.test"}
	if err := st.CreateNewsgroup(ctx, g); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}
	a := &models.Article{MessageID: "<a@x>"}
	link := &models.ArticleNewsgroup{NewsgroupID: g.ID, Newsgroup: g}
	if err := st.InsertArticle(ctx, a, []*models.ArticleNewsgroup{link}); err != nil {
		t.Fatalf("insert article: %v", err)
	}

	got, err := r.GetArticleByNumber(ctx, "comp.test", 1)
	if err != nil {
		t.Fatalf("get article by number: %v", err)
	}
	if got.Article.MessageID != "<a@x>" {
		t.Fatalf("unexpected article: %+v", got)
	}

	// Second call should be servable from cache without touching the store;
	// we can't observe that directly, but a cache hit must still resolve to
	// the same article.
	got2, err := r.GetArticleByNumber(ctx, "comp.test", 1)
	if err != nil || got2.Article.MessageID != "<a@x>" {
		t.Fatalf("expected cache-backed second lookup to succeed, got %+v err=%v", got2, err)
	}
}

func TestListNewsgroupsWildmatFilter(t *testing.T) {
	r, st := newTestRetriever(t)
	ctx := context.Background()

	for _, name := range []string{"comp.lang.go", "comp.lang.c", "alt.test"} {
		if err := st.CreateNewsgroup(ctx, &models.Newsgroup{Name: name}); err != nil {
			t.Fatalf("create newsgroup %q: %v", name, err)
		}
	}

	groups, err := r.ListNewsgroups(ctx, store.ListFilter{NameWildmat: "comp.*"})
	if err != nil {
		t.Fatalf("list newsgroups: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 comp.* groups, got %d", len(groups))
	}
}
