package nntp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"github.com/go-while/nntpd-core/internal/models"
	"github.com/go-while/nntpd-core/internal/retriever"
	"github.com/go-while/nntpd-core/internal/store"
)

// headerFold is the Unicode-aware case fold used to normalize header names
// for case-insensitive comparison (RFC 5322 field names are ASCII in
// practice, but folding the proper way avoids surprises on any article
// carrying non-ASCII header content).
var headerFold = cases.Fold()

// linkWithNumber pairs a resolved article with the Number it should be
// reported under (the group-relative number for HDR/XHDR/OVER/XOVER rows).
type linkWithNumber struct {
	link   *models.ArticleNewsgroup
	number int64
}

// handleHdr implements HDR/XHDR (spec §4.5): for each selected article,
// emit "number header-value". HDR responds 225, XHDR (the older verb)
// responds 221; both share everything else.
func (s *Session) handleHdr(args []string) error {
	return s.hdrImpl(args, 225)
}

func (s *Session) hdrImpl(args []string, okCode int) error {
	if len(args) < 1 || len(args) > 2 {
		return s.sendResponse(501, "HDR requires a header name and optional range/message-id")
	}
	header := headerFold.String(args[0])
	selector := ""
	if len(args) == 2 {
		selector = args[1]
	}

	links, code, err := s.selectForHdrOver(selector)
	if code != 0 {
		return s.sendResponse(code, articleErrorText(code))
	}
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}

	lines := make([]string, 0, len(links))
	for _, lwn := range links {
		value := lwn.link.Article.HeaderFirst(header)
		lines = append(lines, fmt.Sprintf("%d %s", lwn.number, value))
	}
	return s.sendMultiline(okCode, "Headers follow", lines)
}

// selectForHdrOver resolves the shared HDR/XHDR/OVER/XOVER selector
// grammar: a message-id, a range, or (if empty) the current article alone.
func (s *Session) selectForHdrOver(selector string) ([]linkWithNumber, int, error) {
	ctx := context.Background()

	if strings.HasPrefix(selector, "<") {
		link, err := s.core.Retriever.GetArticleByMessageID(ctx, selector)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, 430, nil
			}
			return nil, 403, err
		}
		if !link.Visible() {
			return nil, 430, nil
		}
		return []linkWithNumber{{link, link.Number}}, 0, nil
	}

	if s.currentGroupReal == "" {
		return nil, 412, nil
	}

	if selector == "" {
		if !s.hasCurrentArticle {
			return nil, 420, nil
		}
		link, err := s.core.Retriever.GetArticleByNumber(ctx, s.currentGroupRequested, s.currentArticle)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, 423, nil
			}
			return nil, 403, err
		}
		return []linkWithNumber{{link, s.currentArticle}}, 0, nil
	}

	lo, hi, err := retriever.ParseRange(selector, s.currentHigh)
	if err != nil {
		return nil, 501, nil
	}
	links, err := s.core.Retriever.ListArticlesInRange(ctx, s.currentGroupRequested, lo, hi, 0)
	if err != nil {
		return nil, 403, err
	}
	out := make([]linkWithNumber, 0, len(links))
	for _, l := range links {
		out = append(out, linkWithNumber{l, l.Number})
	}
	return out, 0, nil
}
