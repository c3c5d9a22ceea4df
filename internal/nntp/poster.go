package nntp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/go-while/nntpd-core/internal/models"
	"github.com/go-while/nntpd-core/internal/utils"
)

// requiredHeaders are validated before an article is accepted (spec §4.6
// step 2).
var requiredHeaders = []string{"date", "from", "subject", "newsgroups", "message-id", "path"}

// handlePost drives the POST state: send 340, accumulate the article body
// via net/textproto's DotReader (which already performs the dot-unstuffing
// and cross-chunk terminator handling spec §4.6 step 1 describes), parse
// it, and route it through acceptPost.
func (s *Session) handlePost([]string) error {
	if !s.core.PostingEnabled {
		return s.sendResponse(440, "Posting not permitted on this server")
	}
	if err := s.sendResponse(340, "Send article to be posted. End with <CR-LF>.<CR-LF>"); err != nil {
		return err
	}

	raw, err := io.ReadAll(s.tc.DotReader())
	if err != nil {
		return s.sendResponse(441, "Posting failed")
	}

	article, err := parseArticle(raw)
	if err != nil {
		return s.sendResponse(441, "Posting failed")
	}

	return s.acceptPost(article)
}

// parseArticle splits raw POST bytes into header and body, folds
// continuation lines, and derives the structured fields models.Article
// keeps alongside the raw header block (spec §4.6 step 2).
func parseArticle(raw []byte) (*models.Article, error) {
	normalized := normalizeLineEndings(raw)
	parts := bytes.SplitN(normalized, []byte("\r\n\r\n"), 2)
	headerBlock := parts[0]
	var body []byte
	if len(parts) == 2 {
		body = parts[1]
	}

	article := &models.Article{Headers: make(map[string][]string)}

	var currentName string
	for _, line := range strings.Split(string(headerBlock), "\r\n") {
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && currentName != "" {
			key := headerFold.String(currentName)
			if vals := article.Headers[key]; len(vals) > 0 {
				vals[len(vals)-1] = vals[len(vals)-1] + " " + strings.TrimSpace(line)
			}
			continue
		}
		colon := strings.Index(line, ":")
		if colon < 0 {
			continue
		}
		name := strings.TrimSpace(line[:colon])
		value := strings.TrimSpace(line[colon+1:])
		if name == "" {
			continue
		}
		key := headerFold.String(name)
		article.Headers[key] = append(article.Headers[key], value)
		article.HeaderOrder = append(article.HeaderOrder, name)
		currentName = name
	}

	article.Body = string(body)
	article.Bytes = len(raw)
	article.Lines = len(bodyLines(article.Body))

	article.MessageID = article.HeaderFirst("message-id")
	article.Subject = article.HeaderFirst("subject")
	article.From = article.HeaderFirst("from")
	article.Date = article.HeaderFirst("date")
	article.Newsgroups = article.HeaderFirst("newsgroups")
	article.Path = article.HeaderFirst("path")
	article.References = article.HeaderFirst("references")
	article.Control = article.HeaderFirst("control")
	article.Supersedes = article.HeaderFirst("supersedes")
	article.Approved = article.HeaderFirst("approved")
	article.InjectionDate = article.HeaderFirst("injection-date")
	article.InjectionInfo = article.HeaderFirst("injection-info")

	for _, name := range requiredHeaders {
		if article.HeaderFirst(name) == "" {
			return nil, fmt.Errorf("missing required header %q", name)
		}
	}
	return article, nil
}

func normalizeLineEndings(raw []byte) []byte {
	raw = bytes.ReplaceAll(raw, []byte("\r\n"), []byte("\n"))
	raw = bytes.ReplaceAll(raw, []byte("\n"), []byte("\r\n"))
	return raw
}

// acceptPost implements spec §4.6 steps 3-8: permission gating, header
// hygiene, per-group Number assignment or moderation approve-by-reply, and
// control-message execution.
func (s *Session) acceptPost(article *models.Article) error {
	ctx := context.Background()

	if article.Control != "" {
		if code := s.checkControlPermission(article.Control); code != 0 {
			return s.sendResponse(code, "Permission denied")
		}
	}

	targets := strings.FieldsFunc(article.Newsgroups, func(r rune) bool { return r == ',' || r == ' ' })
	if len(targets) == 0 {
		return s.sendResponse(441, "Posting failed (no Newsgroups)")
	}

	canApproveAny := false
	for _, t := range targets {
		if s.identity.CanApproveGroup(t) {
			canApproveAny = true
			break
		}
	}
	s.applyHeaderHygiene(article, canApproveAny)

	isApproveReply := strings.HasPrefix(article.Body, "APPROVE\r\n") || strings.HasPrefix(article.Body, "APPROVED\r\n")

	var links []*models.ArticleNewsgroup
	approvedExisting := false

	for _, groupName := range targets {
		g, _, err := s.core.Retriever.GetNewsgroup(ctx, groupName)
		if err != nil {
			// Unknown group: skip it, do not fail the whole post (step 6).
			continue
		}
		canApprove := s.identity.CanApproveGroup(groupName)

		if isApproveReply && article.References != "" && canApprove {
			if err := s.approveReferencedArticle(ctx, g, article); err == nil {
				approvedExisting = true
				continue
			}
		}

		links = append(links, &models.ArticleNewsgroup{
			NewsgroupID: g.ID,
			Newsgroup:   g,
			Pending:     g.Moderated && !canApprove,
		})
	}

	if len(links) == 0 {
		if approvedExisting {
			return s.sendResponse(240, "Article received OK")
		}
		return s.sendResponse(441, "Posting failed (no valid target newsgroups)")
	}

	if err := s.core.Store.InsertArticle(ctx, article, links); err != nil {
		log.Printf("[nntp] insert article %s failed: %v", article.MessageID, err)
		return s.sendResponse(441, "Posting failed")
	}

	if s.core.Blobs != nil {
		if err := s.core.Blobs.Put(article.MessageID, []byte(rawArticleBytes(article))); err != nil {
			log.Printf("[nntp] blob store write failed for %s: %v", article.MessageID, err)
		}
	}

	for _, link := range links {
		s.core.Retriever.InvalidateNewsgroup(link.Newsgroup.Name)
	}

	if article.Control != "" {
		s.executeControlMessage(ctx, article, links)
	}

	return s.sendResponse(240, "Article received OK")
}

// applyHeaderHygiene implements spec §4.6 step 4's server-side stripping
// and normalization rules.
func (s *Session) applyHeaderHygiene(article *models.Article, canApprove bool) {
	identity := s.identity

	if !canApprove {
		article.Approved = ""
		delete(article.Headers, "approved")
	}
	if identity == nil || !identity.CanCancel {
		article.Supersedes = ""
		delete(article.Headers, "supersedes")
	}
	if identity == nil || !identity.CanInject {
		now := time.Now().UTC().Format(time.RFC1123Z)
		article.InjectionDate = now
		article.Headers["injection-date"] = []string{now}
		article.InjectionInfo = ""
		delete(article.Headers, "injection-info")
		delete(article.Headers, "xref")
		if vals, ok := article.Headers["followup-to"]; ok && len(vals) > 0 && vals[0] == article.Newsgroups {
			delete(article.Headers, "followup-to")
		}
	}
}

// checkControlPermission maps a Control header's action to the capability
// that must be present (spec §4.6 step 5); returns 0 when permitted.
func (s *Session) checkControlPermission(control string) int {
	fields := strings.Fields(control)
	if len(fields) == 0 {
		return 441
	}
	if s.identity == nil {
		return 480
	}
	switch strings.ToLower(fields[0]) {
	case "cancel":
		if !s.identity.CanCancel {
			return 480
		}
	case "newgroup":
		if !s.identity.CanCreateGroup {
			return 480
		}
	case "rmgroup":
		if !s.identity.CanDeleteGroup {
			return 480
		}
	case "checkgroups":
		if !s.identity.CanCheckGroups {
			return 480
		}
	default:
		return 480
	}
	return 0
}

// approveReferencedArticle implements the moderation approve-by-reply path
// (spec §4.6 step 6): locate the pending article named by References in g,
// mark it approved, and clear Pending without creating a new article.
func (s *Session) approveReferencedArticle(ctx context.Context, g *models.Newsgroup, article *models.Article) error {
	refs := utils.ParseReferences(article.References)
	if len(refs) == 0 {
		return fmt.Errorf("poster: no References on approve-reply")
	}
	target := refs[len(refs)-1]

	link, err := s.core.Retriever.GetArticleByMessageID(ctx, target)
	if err != nil {
		return err
	}
	if !link.Pending || link.Newsgroup == nil || link.Newsgroup.Name != g.Name {
		return fmt.Errorf("poster: %s is not a pending post in %s", target, g.Name)
	}

	link.Article.Approved = moderatorMailbox(s.identity, article)
	link.Pending = false
	if err := s.core.Store.UpdateArticleNewsgroup(ctx, link); err != nil {
		return err
	}
	s.core.Retriever.InvalidateArticle(target, map[string]int64{g.Name: link.Number})
	s.core.Retriever.InvalidateNewsgroup(g.Name)
	return nil
}

func moderatorMailbox(a *models.Administrator, article *models.Article) string {
	if a == nil {
		return ""
	}
	if host := pathHost(article.Path); host != "" {
		return a.Username + "@" + host
	}
	return a.Username
}

func pathHost(path string) string {
	parts := strings.Split(path, "!")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}

// executeControlMessage runs the side effect of a Control header after the
// triggering article has been persisted (spec §4.6 step 7). ownLinks are
// the just-inserted control article's own links, which must themselves be
// marked Cancelled when the action is "cancel".
func (s *Session) executeControlMessage(ctx context.Context, article *models.Article, ownLinks []*models.ArticleNewsgroup) {
	fields := strings.Fields(article.Control)
	if len(fields) == 0 {
		return
	}
	switch strings.ToLower(fields[0]) {
	case "cancel":
		if len(fields) < 2 {
			return
		}
		s.cancelArticle(ctx, fields[1])
		for _, own := range ownLinks {
			own.Cancelled = true
			if err := s.core.Store.UpdateArticleNewsgroup(ctx, own); err != nil {
				log.Printf("[nntp] mark cancel-article %s cancelled in %s failed: %v", article.MessageID, own.Newsgroup.Name, err)
				continue
			}
			s.core.Retriever.InvalidateArticle(article.MessageID, map[string]int64{own.Newsgroup.Name: own.Number})
		}
	case "newgroup":
		if len(fields) < 2 {
			return
		}
		s.controlNewgroup(ctx, fields[1])
	case "rmgroup":
		if len(fields) < 2 {
			return
		}
		s.controlRmgroup(ctx, fields[1])
	case "checkgroups":
		// Bulk newsgroup-hierarchy reconciliation is domain-level; the
		// contract here is receipt and permission-gating only (spec §4.6
		// step 7 parenthetical).
		log.Printf("[nntp] checkgroups received from %s (contract-only, no-op)", s.remoteAddr)
	}
}

func (s *Session) cancelArticle(ctx context.Context, target string) {
	link, err := s.core.Retriever.GetArticleByMessageID(ctx, target)
	if err != nil {
		return
	}
	if link.Newsgroup == nil {
		return
	}
	link.Cancelled = true
	if err := s.core.Store.UpdateArticleNewsgroup(ctx, link); err != nil {
		log.Printf("[nntp] cancel %s failed: %v", target, err)
		return
	}
	s.core.Retriever.InvalidateArticle(target, map[string]int64{link.Newsgroup.Name: link.Number})
}

func (s *Session) controlNewgroup(ctx context.Context, name string) {
	g := &models.Newsgroup{Name: name, Creator: adminUsername(s.identity), CreateDate: time.Now().UTC()}
	if err := s.core.Store.CreateNewsgroup(ctx, g); err != nil {
		log.Printf("[nntp] newgroup %s failed: %v", name, err)
		return
	}
	s.core.Retriever.InvalidateNewsgroup(name)
}

func (s *Session) controlRmgroup(ctx context.Context, name string) {
	if err := s.core.Store.DeleteNewsgroup(ctx, name); err != nil {
		log.Printf("[nntp] rmgroup %s failed: %v", name, err)
		return
	}
	s.core.Retriever.InvalidateNewsgroup(name)
}

func adminUsername(a *models.Administrator) string {
	if a == nil {
		return ""
	}
	return a.Username
}

// rawArticleBytes reconstructs the wire form of article for the blob store.
func rawArticleBytes(article *models.Article) string {
	var sb strings.Builder
	for _, line := range headerLines(article) {
		sb.WriteString(line)
		sb.WriteString("\r\n")
	}
	sb.WriteString("\r\n")
	sb.WriteString(article.Body)
	return sb.String()
}
