package nntp

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-while/nntpd-core/internal/cache"
	"github.com/go-while/nntpd-core/internal/models"
	"github.com/go-while/nntpd-core/internal/retriever"
	"github.com/go-while/nntpd-core/internal/store"
)

func newPosterTestCore(t *testing.T) *Core {
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
	return NewCore("test.example", st, blobs, retriever.New(st, c))
}

func sampleArticle(newsgroups, msgID string) *models.Article {
	a := &models.Article{
		Headers:     map[string][]string{},
		HeaderOrder: nil,
	}
	set := func(name, value string) {
		a.Headers[strings.ToLower(name)] = []string{value}
		a.HeaderOrder = append(a.HeaderOrder, name)
	}
	set("From", "poster@example.com")
	set("Subject", "test")
	set("Newsgroups", newsgroups)
	set("Message-ID", msgID)
	set("Date", "Mon, 02 Jan 2006 15:04:05 +0000")
	set("Path", "not-for-mail")
	a.From = "poster@example.com"
	a.Subject = "test"
	a.Newsgroups = newsgroups
	a.MessageID = msgID
	a.Date = "Mon, 02 Jan 2006 15:04:05 +0000"
	a.Path = "not-for-mail"
	a.Body = "hello\r\n"
	return a
}

func TestAcceptPostToModeratedGroupIsPending(t *testing.T) {
	core := newPosterTestCore(t)
	ctx := context.Background()
	if err := core.Store.CreateNewsgroup(ctx, &models.Newsgroup{Name: "moderated.test", Moderated: true}); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}

	s := newDiscardSession(t, core, nil)
	article := sampleArticle("moderated.test", "<pending1@example.com>")
	if err := s.acceptPost(article); err != nil {
		t.Fatalf("acceptPost: %v", err)
	}

	link, err := core.Retriever.GetArticleByMessageID(ctx, "<pending1@example.com>")
	if err != nil {
		t.Fatalf("GetArticleByMessageID: %v", err)
	}
	if !link.Pending {
		t.Fatal("expected article posted to a moderated group by a non-approver to be Pending")
	}

	g, err := core.Store.GetNewsgroupByName(ctx, "moderated.test")
	if err != nil {
		t.Fatalf("GetNewsgroupByName: %v", err)
	}
	if g.HighWatermark != 0 {
		t.Fatalf("pending posts must not advance watermarks, got HighWatermark=%d", g.HighWatermark)
	}
}

func TestHeaderHygieneStripsApprovedForNonApprover(t *testing.T) {
	core := newPosterTestCore(t)
	ctx := context.Background()
	if err := core.Store.CreateNewsgroup(ctx, &models.Newsgroup{Name: "misc.test"}); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}

	s := newDiscardSession(t, core, nil)
	article := sampleArticle("misc.test", "<hygiene1@example.com>")
	article.Headers["approved"] = []string{"mod@example.com"}
	article.HeaderOrder = append(article.HeaderOrder, "Approved")
	article.Approved = "mod@example.com"

	if err := s.acceptPost(article); err != nil {
		t.Fatalf("acceptPost: %v", err)
	}
	if _, ok := article.Headers["approved"]; ok {
		t.Fatal("expected Approved header to be stripped for a non-approving identity")
	}
}

func TestCancelControlMessageMarksArticleCancelled(t *testing.T) {
	core := newPosterTestCore(t)
	ctx := context.Background()
	if err := core.Store.CreateNewsgroup(ctx, &models.Newsgroup{Name: "misc.test"}); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}

	s := newDiscardSession(t, core, nil)
	original := sampleArticle("misc.test", "<orig1@example.com>")
	if err := s.acceptPost(original); err != nil {
		t.Fatalf("post original: %v", err)
	}

	admin := &models.Administrator{Username: "mod", CanCancel: true}
	s2 := newDiscardSession(t, core, admin)
	cancel := sampleArticle("misc.test", "<cancel1@example.com>")
	cancel.Control = "cancel <orig1@example.com>"
	cancel.Headers["control"] = []string{cancel.Control}
	cancel.HeaderOrder = append(cancel.HeaderOrder, "Control")

	if err := s2.acceptPost(cancel); err != nil {
		t.Fatalf("post cancel: %v", err)
	}

	link, err := core.Retriever.GetArticleByMessageID(ctx, "<orig1@example.com>")
	if err != nil {
		t.Fatalf("GetArticleByMessageID original: %v", err)
	}
	if !link.Cancelled {
		t.Fatal("expected original article to be marked Cancelled")
	}

	cancelLink, err := core.Retriever.GetArticleByMessageID(ctx, "<cancel1@example.com>")
	if err != nil {
		t.Fatalf("GetArticleByMessageID cancel: %v", err)
	}
	if !cancelLink.Cancelled {
		t.Fatal("expected the cancel control article's own link to be marked Cancelled too")
	}
}

func TestControlMessageWithoutCapabilityIsRejected(t *testing.T) {
	core := newPosterTestCore(t)
	ctx := context.Background()
	if err := core.Store.CreateNewsgroup(ctx, &models.Newsgroup{Name: "misc.test"}); err != nil {
		t.Fatalf("create newsgroup: %v", err)
	}

	s := newDiscardSession(t, core, nil) // anonymous, no capabilities
	cancel := sampleArticle("misc.test", "<cancel2@example.com>")
	cancel.Control = "cancel <nonexistent@example.com>"
	cancel.Headers["control"] = []string{cancel.Control}
	cancel.HeaderOrder = append(cancel.HeaderOrder, "Control")

	code := s.checkControlPermission(cancel.Control)
	if code != 480 {
		t.Fatalf("expected 480 for anonymous control message, got %d", code)
	}
}
