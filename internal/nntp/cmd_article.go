package nntp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-while/nntpd-core/internal/models"
	"github.com/go-while/nntpd-core/internal/store"
)

// headerLines reconstructs the raw header block in wire order from the
// parsed Article (HeaderOrder holds header names in arrival order; Headers
// holds folded values per lower-cased name, models.go).
func headerLines(a *models.Article) []string {
	counts := make(map[string]int, len(a.HeaderOrder))
	lines := make([]string, 0, len(a.HeaderOrder))
	for _, name := range a.HeaderOrder {
		key := strings.ToLower(name)
		vals := a.Headers[key]
		idx := counts[key]
		if idx < len(vals) {
			lines = append(lines, name+": "+vals[idx])
		}
		counts[key]++
	}
	return lines
}

// bodyLines splits a CRLF-delimited body into individual lines.
func bodyLines(body string) []string {
	body = strings.TrimSuffix(body, "\r\n")
	if body == "" {
		return nil
	}
	return strings.Split(body, "\r\n")
}

// articleSelector resolves the optional ARTICLE/HEAD/BODY/STAT argument
// into a link, honoring the precedence in spec §4.5: an explicit <msg-id>
// bypasses CurrentNewsgroup; a bare number requires CurrentNewsgroup; no
// argument requires CurrentArticleNumber.
func (s *Session) articleSelector(arg string) (*models.ArticleNewsgroup, int64, int, error) {
	ctx := context.Background()

	if strings.HasPrefix(arg, "<") {
		link, err := s.core.Retriever.GetArticleByMessageID(ctx, arg)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, 0, 430, nil
			}
			return nil, 0, 403, err
		}
		if !link.Visible() {
			return nil, 0, 430, nil
		}
		num := int64(0)
		if s.currentGroupReal != "" && link.Newsgroup != nil && link.Newsgroup.Name == s.currentGroupReal {
			num = link.Number
		}
		return link, num, 0, nil
	}

	if arg != "" {
		num, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, 0, 501, nil
		}
		if s.currentGroupReal == "" {
			return nil, 0, 412, nil
		}
		link, err := s.core.Retriever.GetArticleByNumber(ctx, s.currentGroupRequested, num)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, 0, 423, nil
			}
			return nil, 0, 403, err
		}
		return link, num, 0, nil
	}

	if s.currentGroupReal == "" {
		return nil, 0, 412, nil
	}
	if !s.hasCurrentArticle {
		return nil, 0, 420, nil
	}
	link, err := s.core.Retriever.GetArticleByNumber(ctx, s.currentGroupRequested, s.currentArticle)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, 420, nil
		}
		return nil, 0, 403, err
	}
	return link, s.currentArticle, 0, nil
}

func (s *Session) selectArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func (s *Session) handleArticle(args []string) error {
	if len(args) > 1 {
		return s.sendResponse(501, "ARTICLE takes at most one argument")
	}
	link, num, code, err := s.articleSelector(s.selectArg(args))
	if code != 0 {
		return s.sendResponse(code, articleErrorText(code))
	}
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	s.currentArticle = num
	s.hasCurrentArticle = true

	lines := append(headerLines(link.Article), "")
	lines = append(lines, bodyLines(link.Article.Body)...)
	return s.sendMultiline(220, fmt.Sprintf("%d %s Article follows", num, link.Article.MessageID), lines)
}

func (s *Session) handleHead(args []string) error {
	if len(args) > 1 {
		return s.sendResponse(501, "HEAD takes at most one argument")
	}
	link, num, code, err := s.articleSelector(s.selectArg(args))
	if code != 0 {
		return s.sendResponse(code, articleErrorText(code))
	}
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	s.currentArticle = num
	s.hasCurrentArticle = true
	return s.sendMultiline(221, fmt.Sprintf("%d %s Headers follow", num, link.Article.MessageID), headerLines(link.Article))
}

func (s *Session) handleBody(args []string) error {
	if len(args) > 1 {
		return s.sendResponse(501, "BODY takes at most one argument")
	}
	link, num, code, err := s.articleSelector(s.selectArg(args))
	if code != 0 {
		return s.sendResponse(code, articleErrorText(code))
	}
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	s.currentArticle = num
	s.hasCurrentArticle = true
	return s.sendMultiline(222, fmt.Sprintf("%d %s Body follows", num, link.Article.MessageID), bodyLines(link.Article.Body))
}

func (s *Session) handleStat(args []string) error {
	if len(args) > 1 {
		return s.sendResponse(501, "STAT takes at most one argument")
	}
	link, num, code, err := s.articleSelector(s.selectArg(args))
	if code != 0 {
		return s.sendResponse(code, articleErrorText(code))
	}
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	s.currentArticle = num
	s.hasCurrentArticle = true
	return s.sendResponse(223, fmt.Sprintf("%d %s Article exists", num, link.Article.MessageID))
}

// handleLast/handleNext move CurrentArticleNumber to the numerically
// previous/next visible article in CurrentNewsgroup (spec §4.5).
func (s *Session) handleLast([]string) error {
	return s.step(-1, 422)
}

func (s *Session) handleNext([]string) error {
	return s.step(1, 421)
}

func (s *Session) step(direction int64, noMoreCode int) error {
	if s.currentGroupReal == "" {
		return s.sendResponse(412, "No newsgroup selected")
	}
	if !s.hasCurrentArticle {
		return s.sendResponse(420, "No current article selected")
	}

	ctx := context.Background()
	var lo, hi int64
	var max int
	if direction > 0 {
		// Ascending scan from current+1; the first hit is the nearest next.
		lo, hi, max = s.currentArticle+1, s.currentHigh, 1
	} else {
		// Need the highest number below current, so the whole sub-range
		// must be scanned; there is no cheap "last of range" store query.
		lo, hi, max = s.currentLow, s.currentArticle-1, 0
	}
	if lo > hi {
		return s.sendResponse(noMoreCode, "No such article")
	}

	links, err := s.core.Retriever.ListArticlesInRange(ctx, s.currentGroupRequested, lo, hi, max)
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	var link *models.ArticleNewsgroup
	if len(links) > 0 {
		if direction > 0 {
			link = links[0]
		} else {
			link = links[len(links)-1]
		}
	}
	if link == nil {
		return s.sendResponse(noMoreCode, "No such article")
	}

	s.currentArticle = link.Number
	s.hasCurrentArticle = true
	return s.sendResponse(223, fmt.Sprintf("%d %s Article exists", link.Number, link.Article.MessageID))
}

func articleErrorText(code int) string {
	switch code {
	case 430:
		return "No article with that message-id"
	case 423:
		return "No such article number in this group"
	case 420:
		return "No current article selected"
	case 412:
		return "No newsgroup selected"
	case 501:
		return "Syntax error in argument"
	default:
		return "Error"
	}
}
