package nntp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-while/nntpd-core/internal/store"
)

var overviewFormatFields = []string{
	"Subject:", "From:", "Date:", "Message-ID:", "References:", "Bytes:", "Lines:",
}

// handleList dispatches the LIST variants named in spec §4.5.
func (s *Session) handleList(args []string) error {
	variant := "ACTIVE"
	var wildmatArg string
	if len(args) > 0 {
		variant = strings.ToUpper(args[0])
		if len(args) > 1 {
			wildmatArg = args[1]
		}
	}

	switch variant {
	case "ACTIVE":
		return s.listActive(wildmatArg)
	case "NEWSGROUPS":
		return s.listNewsgroupsDescriptions(wildmatArg)
	case "ACTIVE.TIMES":
		return s.listActiveTimes(wildmatArg)
	case "OVERVIEW.FMT":
		return s.sendMultiline(215, "Order of fields in overview database.", overviewFormatFields)
	default:
		return s.sendResponse(501, "Unknown LIST variant")
	}
}

func (s *Session) listActive(wildmat string) error {
	groups, err := s.core.Retriever.ListNewsgroups(context.Background(), store.ListFilter{NameWildmat: wildmat})
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		flag := "n"
		switch {
		case g.Moderated:
			flag = "m"
		case !g.DenyLocalPosting:
			flag = "y"
		}
		lines = append(lines, fmt.Sprintf("%s %d %d %s", g.Name, g.HighWatermark, g.LowWatermark, flag))
	}
	return s.sendMultiline(215, "list of newsgroups follows", lines)
}

func (s *Session) listNewsgroupsDescriptions(wildmat string) error {
	groups, err := s.core.Retriever.ListNewsgroups(context.Background(), store.ListFilter{NameWildmat: wildmat})
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		lines = append(lines, fmt.Sprintf("%s\t%s", g.Name, g.Description))
	}
	return s.sendMultiline(215, "list of newsgroups follows", lines)
}

func (s *Session) listActiveTimes(wildmat string) error {
	groups, err := s.core.Retriever.ListNewsgroups(context.Background(), store.ListFilter{NameWildmat: wildmat})
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		lines = append(lines, fmt.Sprintf("%s %d %s", g.Name, g.CreateDate.Unix(), g.Creator))
	}
	return s.sendMultiline(215, "list of newsgroups follows", lines)
}

// handleNewgroups implements NEWGROUPS YYMMDD|YYYYMMDD HHMMSS [GMT]
// (spec §4.5).
func (s *Session) handleNewgroups(args []string) error {
	if len(args) < 2 {
		return s.sendResponse(501, "NEWGROUPS requires a date and time")
	}
	since, err := parseNewgroupsInstant(args[0], args[1])
	if err != nil {
		return s.sendResponse(501, "Bad date/time syntax")
	}
	unix := since.Unix()
	groups, err := s.core.Retriever.ListNewsgroups(context.Background(), store.ListFilter{CreatedSince: &unix})
	if err != nil {
		return s.sendResponse(403, "Archive server temporarily offline")
	}
	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		lines = append(lines, fmt.Sprintf("%s %d %d %s", g.Name, g.HighWatermark, g.LowWatermark, g.Creator))
	}
	return s.sendMultiline(231, "list of new newsgroups follows", lines)
}

func parseNewgroupsInstant(dateArg, timeArg string) (time.Time, error) {
	dateArg = strings.TrimSpace(dateArg)
	timeArg = strings.TrimSpace(strings.TrimSuffix(strings.ToUpper(timeArg), "GMT"))
	timeArg = strings.TrimSpace(timeArg)

	layout := "060102150405"
	if len(dateArg) == 8 {
		layout = "20060102150405"
	}
	if _, err := strconv.Atoi(dateArg); err != nil {
		return time.Time{}, fmt.Errorf("bad date: %q", dateArg)
	}
	if _, err := strconv.Atoi(timeArg); err != nil {
		return time.Time{}, fmt.Errorf("bad time: %q", timeArg)
	}
	return time.Parse(layout, dateArg+timeArg)
}
