package nntp

// commandTable is the static verb -> handler mapping (spec §9 "Static
// command table ... built once at startup; immutable for the lifetime of
// the process"). Multi-word commands (AUTHINFO USER/PASS, LIST ACTIVE,
// MODE READER) are dispatched to one handler per verb that switches on
// args[0], the same split the teacher uses between handleAuthInfo and its
// USER/PASS branches.
var commandTable = map[string]func(*Session, []string) error{
	"CAPABILITIES": (*Session).handleCapabilities,
	"DATE":         (*Session).handleDate,
	"MODE":         (*Session).handleMode,
	"QUIT":         (*Session).handleQuit,
	"STARTTLS":     (*Session).handleStartTLS,
	"XFEATURE":     (*Session).handleXFeature,

	"AUTHINFO": (*Session).handleAuthInfo,

	"GROUP":     (*Session).handleGroup,
	"LISTGROUP": (*Session).handleListGroup,

	"LIST":      (*Session).handleList,
	"NEWGROUPS": (*Session).handleNewgroups,

	"ARTICLE": (*Session).handleArticle,
	"HEAD":    (*Session).handleHead,
	"BODY":    (*Session).handleBody,
	"STAT":    (*Session).handleStat,
	"LAST":    (*Session).handleLast,
	"NEXT":    (*Session).handleNext,

	"HDR":   (*Session).handleHdr,
	"XHDR":  func(s *Session, args []string) error { return s.hdrImpl(args, 221) },
	"OVER":  (*Session).handleOver,
	"XOVER": (*Session).handleOver,

	"POST": (*Session).handlePost,
}
