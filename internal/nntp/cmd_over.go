package nntp

import (
	"fmt"
	"strings"
)

// handleOver implements OVER/XOVER (spec §4.5): for each selected article
// emit a tab-separated overview row. Internal CR/LF/TAB in any field are
// unfolded to single spaces so the row stays one physical line.
func (s *Session) handleOver(args []string) error {
	if len(args) > 1 {
		return s.sendResponse(501, "OVER takes at most one argument")
	}
	selector := s.selectArg(args)

	links, code, err := s.selectForHdrOver(selector)
	if code != 0 {
		return s.sendResponse(code, articleErrorText(code))
	}
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}

	lines := make([]string, 0, len(links))
	for _, lwn := range links {
		lines = append(lines, overviewLine(lwn))
	}
	return s.sendMultiline(224, "Overview information follows", lines)
}

// overviewLine formats one OVER/XOVER row. :bytes is reported as twice the
// body length in octets, not an actual octet count — a preserved quirk
// (spec §9 open question: "likely a bug but must be preserved for wire
// compatibility").
func overviewLine(lwn linkWithNumber) string {
	a := lwn.link.Article
	bytesField := len(a.Body) * 2
	linesField := len(bodyLines(a.Body))

	fields := []string{
		fmt.Sprintf("%d", lwn.number),
		unfold(a.Subject),
		unfold(a.From),
		unfold(a.Date),
		unfold(a.MessageID),
		unfold(a.References),
		fmt.Sprintf(":bytes=%d", bytesField),
		fmt.Sprintf(":lines=%d", linesField),
	}
	return strings.Join(fields, "\t")
}

// unfold collapses any embedded CR, LF, or TAB into a single space, per the
// OVER/XOVER unfolding rule (spec §4.5).
func unfold(s string) string {
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	return replacer.Replace(s)
}
