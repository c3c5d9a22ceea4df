package nntp

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-while/nntpd-core/internal/retriever"
	"github.com/go-while/nntpd-core/internal/store"
)

// canSelectVisibility reports whether the session's identity may select the
// given metagroup visibility for realName (spec §4.3: "a metagroup is
// synthesized only if the principal's capabilities allow it; for ordinary
// readers, .deleted and .pending views must not be listed nor selectable").
// Default visibility (no suffix) is always selectable.
func (s *Session) canSelectVisibility(realName string, vis store.Visibility) bool {
	if vis == store.DefaultVisibility() {
		return true
	}
	if s.identity == nil {
		return false
	}
	switch {
	case vis.Cancelled:
		return s.identity.CanCancel
	case vis.Pending:
		return s.identity.CanApproveGroup(realName)
	default:
		return false
	}
}

// selectGroup resolves requested (possibly suffixed) and updates session
// group-selection state, per spec §4.5 "GROUP".
func (s *Session) selectGroup(requested string) error {
	g, vis, err := s.core.Retriever.GetNewsgroup(context.Background(), requested)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.sendResponse(411, "No such newsgroup")
		}
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	if !s.canSelectVisibility(g.Name, vis) {
		return s.sendResponse(411, "No such newsgroup")
	}

	s.currentGroupRequested = requested
	s.currentGroupReal = g.Name
	s.currentVis = vis
	s.currentLow = g.LowWatermark
	s.currentHigh = g.HighWatermark
	// GROUP sets CurrentArticleNumber to LowWatermark even if that article
	// has been cancelled; a following ARTICLE with no argument may then
	// legitimately return 420 (spec §9 open question: leave as-is).
	s.currentArticle = g.LowWatermark
	s.hasCurrentArticle = true

	return s.sendResponse(211, fmt.Sprintf("%d %d %d %s", g.PostCount, g.LowWatermark, g.HighWatermark, requested))
}

func (s *Session) handleGroup(args []string) error {
	if len(args) != 1 {
		return s.sendResponse(501, "GROUP requires exactly one argument")
	}
	return s.selectGroup(args[0])
}

// handleListGroup implements LISTGROUP [group [range]] (spec §4.5).
func (s *Session) handleListGroup(args []string) error {
	groupName := s.currentGroupRequested
	var rangeArg string
	switch len(args) {
	case 0:
	case 1:
		groupName = args[0]
	case 2:
		groupName = args[0]
		rangeArg = args[1]
	default:
		return s.sendResponse(501, "LISTGROUP takes at most two arguments")
	}
	if groupName == "" {
		return s.sendResponse(412, "No newsgroup selected")
	}

	g, vis, err := s.core.Retriever.GetNewsgroup(context.Background(), groupName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.sendResponse(411, "No such newsgroup")
		}
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	if !s.canSelectVisibility(g.Name, vis) {
		return s.sendResponse(411, "No such newsgroup")
	}

	lo, hi := g.LowWatermark, g.HighWatermark
	if rangeArg != "" {
		lo, hi, err = retriever.ParseRange(rangeArg, g.HighWatermark)
		if err != nil {
			return s.sendResponse(501, "Bad range syntax")
		}
	}

	links, err := s.core.Retriever.ListArticlesInRange(context.Background(), groupName, lo, hi, 0)
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}

	s.currentGroupRequested = groupName
	s.currentGroupReal = g.Name
	s.currentVis = vis
	s.currentLow = g.LowWatermark
	s.currentHigh = g.HighWatermark
	s.currentArticle = g.LowWatermark
	s.hasCurrentArticle = true

	lines := make([]string, 0, len(links))
	for _, link := range links {
		lines = append(lines, strconv.FormatInt(link.Number, 10))
	}
	return s.sendMultiline(211, fmt.Sprintf("%d %d %d %s Article numbers follow", g.PostCount, g.LowWatermark, g.HighWatermark, groupName), lines)
}
