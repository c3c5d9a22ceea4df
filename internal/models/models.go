// Package models defines the core data structures for the NNTP archive core.
package models

import "time"

// Article is an immutable posted message once accepted.
//
// HeaderOrder/Headers retain the raw header block verbatim (for ARTICLE/HEAD
// output); the named fields below are parsed copies kept for fast access and
// OVER/XOVER formatting.
type Article struct {
	ID         int64  `json:"id" db:"id"`
	MessageID  string `json:"message_id" db:"message_id"` // angle-bracket delimited, globally unique
	Subject    string `json:"subject" db:"subject"`
	From       string `json:"from" db:"from"`
	Date       string `json:"date" db:"date"` // RFC 5322 date string as received
	Newsgroups string `json:"newsgroups" db:"newsgroups"`
	Path       string `json:"path" db:"path"`
	References string `json:"references" db:"references"`
	Control    string `json:"control" db:"control"`
	Supersedes string `json:"supersedes" db:"supersedes"`
	Approved   string `json:"approved" db:"approved"`

	// HeaderOrder preserves the order headers appeared on the wire. Headers
	// holds folded values per lower-cased header name (continuation lines are
	// already joined into one value). Both are required to reproduce
	// ARTICLE/HEAD output.
	HeaderOrder []string            `json:"-" db:"-"`
	Headers     map[string][]string `json:"headers" db:"headers_json"`

	Body  string `json:"body" db:"body"` // CRLF-delimited, not dot-stuffed
	Bytes int    `json:"bytes" db:"bytes"`
	Lines int    `json:"lines" db:"lines"`

	InjectionDate string `json:"injection_date" db:"injection_date"`
	InjectionInfo string `json:"injection_info" db:"injection_info"`

	ImportedAt time.Time `json:"imported_at" db:"imported_at"`
}

// HeaderFirst returns the first folded value for a header name (lower-cased
// key), or "" if absent.
func (a *Article) HeaderFirst(name string) string {
	if a == nil {
		return ""
	}
	if vals, ok := a.Headers[name]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

// Newsgroup is a named feed.
type Newsgroup struct {
	ID               int64     `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"` // case-sensitive, hierarchy-dot-separated
	Description      string    `json:"description" db:"description"`
	Creator          string    `json:"creator" db:"creator"`
	CreateDate       time.Time `json:"create_date" db:"create_date"`
	Moderated        bool      `json:"moderated" db:"moderated"`
	DenyLocalPosting bool      `json:"deny_local_posting" db:"deny_local_posting"`
	DenyPeerPosting  bool      `json:"deny_peer_posting" db:"deny_peer_posting"`

	// Aggregate counters, reconciled on mutation.
	PostCount     int64 `json:"post_count" db:"post_count"`
	LowWatermark  int64 `json:"low_watermark" db:"low_watermark"`
	HighWatermark int64 `json:"high_watermark" db:"high_watermark"`
}

// ArticleNewsgroup is the crosspost record linking an article into one group.
//
// Number is assigned at post time as max(Number in group)+1 and is never
// reused, even when the entry is later Cancelled. Exactly one of
// {visible, Cancelled, Pending} holds at any time: visible means
// !Cancelled && !Pending.
type ArticleNewsgroup struct {
	ID          int64 `json:"id" db:"id"`
	ArticleID   int64 `json:"article_id" db:"article_id"`
	NewsgroupID int64 `json:"newsgroup_id" db:"newsgroup_id"`
	Number      int64 `json:"number" db:"number"`
	Cancelled   bool  `json:"cancelled" db:"cancelled"`
	Pending     bool  `json:"pending" db:"pending"`

	// Populated by eager-loading store queries; not persisted directly.
	Article   *Article   `json:"article,omitempty" db:"-"`
	Newsgroup *Newsgroup `json:"newsgroup,omitempty" db:"-"`
}

// Visible reports whether this link is neither cancelled nor pending.
func (an *ArticleNewsgroup) Visible() bool {
	return an != nil && !an.Cancelled && !an.Pending
}

// Administrator is an authenticated principal.
type Administrator struct {
	ID                      int64     `json:"id" db:"id"`
	Username                string    `json:"username" db:"username"`
	PasswordHash            string    `json:"-" db:"password_hash"` // bcrypt
	CanApproveAny           bool      `json:"can_approve_any" db:"can_approve_any"`
	CanCancel               bool      `json:"can_cancel" db:"can_cancel"`
	CanInject               bool      `json:"can_inject" db:"can_inject"`
	CanCreateGroup          bool      `json:"can_create_group" db:"can_create_group"`
	CanDeleteGroup          bool      `json:"can_delete_group" db:"can_delete_group"`
	CanCheckGroups          bool      `json:"can_check_groups" db:"can_check_groups"`
	LocalAuthenticationOnly bool      `json:"local_authentication_only" db:"local_authentication_only"`
	Moderates               []string  `json:"moderates" db:"-"` // newsgroup names this principal can approve for
	CreatedAt               time.Time `json:"created_at" db:"created_at"`
}

// ModeratesGroup reports whether a is a moderator of the named group.
func (a *Administrator) ModeratesGroup(name string) bool {
	if a == nil {
		return false
	}
	for _, g := range a.Moderates {
		if g == name {
			return true
		}
	}
	return false
}

// CanApproveGroup reports whether a can approve pending posts in group name
// (spec §4.6 step 3: CanApproveAny, or CanInject, or moderates the group).
func (a *Administrator) CanApproveGroup(name string) bool {
	if a == nil {
		return false
	}
	return a.CanApproveAny || a.CanInject || a.ModeratesGroup(name)
}
