package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-while/nntpd-core/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := OpenSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVisibilityFromSuffix(t *testing.T) {
	cases := []struct {
		in       string
		wantName string
		wantVis  Visibility
	}{
		{"comp.test", "comp.test", Visibility{}},
		{"comp.test.deleted", "comp.test", Visibility{Cancelled: true}},
		{"comp.test.pending", "comp.test", Visibility{Pending: true}},
	}
	for _, c := range cases {
		name, vis := VisibilityFromSuffix(c.in)
		if name != c.wantName || vis != c.wantVis {
			t.Errorf("VisibilityFromSuffix(%q) = (%q, %+v), want (%q, %+v)", c.in, name, vis, c.wantName, c.wantVis)
		}
	}
}

func TestCreateNewsgroupAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &models.Newsgroup{Name: "comp.test", Description: "testing"}
	if err := s.CreateNewsgroup(ctx, g); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}
	if g.ID == 0 {
		t.Fatalf("expected ID to be assigned")
	}

	got, err := s.GetNewsgroupByName(ctx, "comp.test")
	if err != nil {
		t.Fatalf("get newsgroup: %v", err)
	}
	if got.Name != "comp.test" || got.Description != "testing" {
		t.Fatalf("unexpected newsgroup: %+v", got)
	}

	if _, err := s.GetNewsgroupByName(ctx, "nope"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertArticleAssignsSequentialNumbers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &models.Newsgroup{Name: "comp.test"}
	if err := s.CreateNewsgroup(ctx, g); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}

	for i := 0; i < 3; i++ {
		a := &models.Article{MessageID: msgIDFor(i), Subject: "hi"}
		link := &models.ArticleNewsgroup{NewsgroupID: g.ID, Newsgroup: g}
		if err := s.InsertArticle(ctx, a, []*models.ArticleNewsgroup{link}); err != nil {
			t.Fatalf("insert article %d: %v", i, err)
		}
		if link.Number != int64(i+1) {
			t.Fatalf("article %d got number %d, want %d", i, link.Number, i+1)
		}
	}

	got, err := s.GetArticleByNumber(ctx, "comp.test", 2, DefaultVisibility())
	if err != nil {
		t.Fatalf("get article by number: %v", err)
	}
	if got.Article.MessageID != msgIDFor(1) {
		t.Fatalf("got message-id %q, want %q", got.Article.MessageID, msgIDFor(1))
	}
}

func TestGetArticleByMessageID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &models.Newsgroup{Name: "comp.test"}
	if err := s.CreateNewsgroup(ctx, g); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}
	a := &models.Article{MessageID: "<x@y>", Body: "body"}
	link := &models.ArticleNewsgroup{NewsgroupID: g.ID, Newsgroup: g}
	if err := s.InsertArticle(ctx, a, []*models.ArticleNewsgroup{link}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetArticleByMessageID(ctx, "<x@y>")
	if err != nil {
		t.Fatalf("get by message-id: %v", err)
	}
	if got.Article.Body != "body" || got.Newsgroup.Name != "comp.test" {
		t.Fatalf("unexpected result: %+v", got)
	}

	if _, err := s.GetArticleByMessageID(ctx, "<missing@y>"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListArticlesInRangeRespectsVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	g := &models.Newsgroup{Name: "comp.test"}
	if err := s.CreateNewsgroup(ctx, g); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}
	var links []*models.ArticleNewsgroup
	for i := 0; i < 5; i++ {
		a := &models.Article{MessageID: msgIDFor(i)}
		link := &models.ArticleNewsgroup{NewsgroupID: g.ID, Newsgroup: g}
		if err := s.InsertArticle(ctx, a, []*models.ArticleNewsgroup{link}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		links = append(links, link)
	}

	links[2].Cancelled = true
	if err := s.UpdateArticleNewsgroup(ctx, links[2]); err != nil {
		t.Fatalf("update: %v", err)
	}

	visible, err := s.ListArticlesInRange(ctx, "comp.test", 1, 5, 0, DefaultVisibility())
	if err != nil {
		t.Fatalf("list visible: %v", err)
	}
	if len(visible) != 4 {
		t.Fatalf("expected 4 visible articles, got %d", len(visible))
	}

	cancelled, err := s.ListArticlesInRange(ctx, "comp.test", 1, 5, 0, Visibility{Cancelled: true})
	if err != nil {
		t.Fatalf("list cancelled: %v", err)
	}
	if len(cancelled) != 1 {
		t.Fatalf("expected 1 cancelled article, got %d", len(cancelled))
	}
}

func TestAdministratorRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &models.Administrator{
		Username:     "root",
		PasswordHash: "bcryptedhash",
		CanInject:    true,
		Moderates:    []string{"comp.test", "comp.lang.go"},
	}
	if err := s.InsertAdministrator(ctx, a); err != nil {
		t.Fatalf("insert administrator: %v", err)
	}

	got, err := s.GetAdministratorByUsername(ctx, "root")
	if err != nil {
		t.Fatalf("get administrator: %v", err)
	}
	if !got.CanInject || !got.ModeratesGroup("comp.lang.go") {
		t.Fatalf("unexpected administrator: %+v", got)
	}
	if !got.CanApproveGroup("comp.test") {
		t.Fatalf("expected CanApproveGroup true via CanInject")
	}
}

func TestBlobStorePutGetDelete(t *testing.T) {
	dir := t.TempDir()
	bs, err := NewBlobStore(dir)
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}

	msgID := "<hello@example.com>"
	if err := bs.Put(msgID, []byte("From: a\r\n\r\nbody\r\n")); err != nil {
		t.Fatalf("put: %v", err)
	}

	data, err := bs.Get(msgID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(data) != "From: a\r\n\r\nbody\r\n" {
		t.Fatalf("unexpected blob contents: %q", data)
	}

	if err := bs.Delete(msgID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := bs.Get(msgID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	// Deleting again must be idempotent.
	if err := bs.Delete(msgID); err != nil {
		t.Fatalf("second delete should be a no-op: %v", err)
	}
}

func TestBlobStoreShardsByLocalPart(t *testing.T) {
	dir := t.TempDir()
	bs, err := NewBlobStore(dir)
	if err != nil {
		t.Fatalf("new blob store: %v", err)
	}
	if err := bs.Put("<AbCd1234@example.com>", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "a", "b")); err != nil {
		t.Fatalf("expected shard dir a/b to exist: %v", err)
	}
}

func msgIDFor(i int) string {
	return "<msg" + string(rune('a'+i)) + "@test>"
}
