package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver

	"github.com/go-while/nntpd-core/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS newsgroups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	creator TEXT NOT NULL DEFAULT '',
	create_date DATETIME NOT NULL,
	moderated BOOLEAN NOT NULL DEFAULT 0,
	deny_local_posting BOOLEAN NOT NULL DEFAULT 0,
	deny_peer_posting BOOLEAN NOT NULL DEFAULT 0,
	post_count INTEGER NOT NULL DEFAULT 0,
	low_watermark INTEGER NOT NULL DEFAULT 0,
	high_watermark INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id TEXT UNIQUE NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	from_header TEXT NOT NULL DEFAULT '',
	date_string TEXT NOT NULL DEFAULT '',
	newsgroups TEXT NOT NULL DEFAULT '',
	path TEXT NOT NULL DEFAULT '',
	refs TEXT NOT NULL DEFAULT '',
	control TEXT NOT NULL DEFAULT '',
	supersedes TEXT NOT NULL DEFAULT '',
	approved TEXT NOT NULL DEFAULT '',
	header_order_json TEXT NOT NULL DEFAULT '[]',
	headers_json TEXT NOT NULL DEFAULT '{}',
	body TEXT NOT NULL DEFAULT '',
	bytes INTEGER NOT NULL DEFAULT 0,
	lines INTEGER NOT NULL DEFAULT 0,
	injection_date TEXT NOT NULL DEFAULT '',
	injection_info TEXT NOT NULL DEFAULT '',
	imported_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS article_newsgroups (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	article_id INTEGER NOT NULL REFERENCES articles(id),
	newsgroup_id INTEGER NOT NULL REFERENCES newsgroups(id),
	number INTEGER NOT NULL,
	cancelled BOOLEAN NOT NULL DEFAULT 0,
	pending BOOLEAN NOT NULL DEFAULT 0,
	UNIQUE(newsgroup_id, number)
);
CREATE INDEX IF NOT EXISTS idx_an_group_vis_num ON article_newsgroups(newsgroup_id, cancelled, pending, number);

CREATE TABLE IF NOT EXISTS administrators (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	can_approve_any BOOLEAN NOT NULL DEFAULT 0,
	can_cancel BOOLEAN NOT NULL DEFAULT 0,
	can_inject BOOLEAN NOT NULL DEFAULT 0,
	can_create_group BOOLEAN NOT NULL DEFAULT 0,
	can_delete_group BOOLEAN NOT NULL DEFAULT 0,
	can_check_groups BOOLEAN NOT NULL DEFAULT 0,
	local_authentication_only BOOLEAN NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS administrator_moderates (
	administrator_id INTEGER NOT NULL REFERENCES administrators(id),
	newsgroup_name TEXT NOT NULL,
	PRIMARY KEY(administrator_id, newsgroup_name)
);
`

// SQLiteStore implements Store on top of database/sql + mattn/go-sqlite3,
// following the teacher's internal/database package conventions (a single
// *sql.DB, retryable wrappers around busy/locked errors, a per-group
// in-process mutex for the Number-assignment hotspot per spec §5/§9).
type SQLiteStore struct {
	db *sql.DB

	groupLocksMu sync.Mutex
	groupLocks   map[string]*sync.Mutex
}

// OpenSQLiteStore opens (creating if necessary) a SQLite-backed Store at
// path and applies the schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single-writer; reads are fast enough serialized
	s := &SQLiteStore{db: db, groupLocks: make(map[string]*sync.Mutex)}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) groupLock(name string) *sync.Mutex {
	s.groupLocksMu.Lock()
	defer s.groupLocksMu.Unlock()
	m, ok := s.groupLocks[name]
	if !ok {
		m = &sync.Mutex{}
		s.groupLocks[name] = m
	}
	return m
}

func scanNewsgroup(row interface{ Scan(...interface{}) error }) (*models.Newsgroup, error) {
	var g models.Newsgroup
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Creator, &g.CreateDate,
		&g.Moderated, &g.DenyLocalPosting, &g.DenyPeerPosting,
		&g.PostCount, &g.LowWatermark, &g.HighWatermark); err != nil {
		return nil, err
	}
	return &g, nil
}

const newsgroupCols = `id, name, description, creator, create_date, moderated, deny_local_posting, deny_peer_posting, post_count, low_watermark, high_watermark`

func (s *SQLiteStore) GetNewsgroupByName(ctx context.Context, name string) (*models.Newsgroup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+newsgroupCols+` FROM newsgroups WHERE name = ?`, name)
	g, err := scanNewsgroup(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get newsgroup %q: %w", name, err)
	}
	return g, nil
}

const articleCols = `id, message_id, subject, from_header, date_string, newsgroups, path, refs, control, supersedes, approved, header_order_json, headers_json, body, bytes, lines, injection_date, injection_info, imported_at`

func scanArticle(row interface{ Scan(...interface{}) error }) (*models.Article, error) {
	var a models.Article
	var headerOrderJSON, headersJSON string
	if err := row.Scan(&a.ID, &a.MessageID, &a.Subject, &a.From, &a.Date, &a.Newsgroups, &a.Path,
		&a.References, &a.Control, &a.Supersedes, &a.Approved, &headerOrderJSON, &headersJSON,
		&a.Body, &a.Bytes, &a.Lines, &a.InjectionDate, &a.InjectionInfo, &a.ImportedAt); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(headerOrderJSON), &a.HeaderOrder)
	_ = json.Unmarshal([]byte(headersJSON), &a.Headers)
	return &a, nil
}

func scanArticleNewsgroup(row interface{ Scan(...interface{}) error }) (*models.ArticleNewsgroup, *models.Article, int64, error) {
	var an models.ArticleNewsgroup
	var headerOrderJSON, headersJSON string
	var a models.Article
	var newsgroupID int64
	if err := row.Scan(&an.ID, &an.ArticleID, &an.NewsgroupID, &an.Number, &an.Cancelled, &an.Pending,
		&a.ID, &a.MessageID, &a.Subject, &a.From, &a.Date, &a.Newsgroups, &a.Path,
		&a.References, &a.Control, &a.Supersedes, &a.Approved, &headerOrderJSON, &headersJSON,
		&a.Body, &a.Bytes, &a.Lines, &a.InjectionDate, &a.InjectionInfo, &a.ImportedAt,
		&newsgroupID); err != nil {
		return nil, nil, 0, err
	}
	_ = json.Unmarshal([]byte(headerOrderJSON), &a.HeaderOrder)
	_ = json.Unmarshal([]byte(headersJSON), &a.Headers)
	an.Article = &a
	return &an, &a, newsgroupID, nil
}

const articleNewsgroupJoinCols = `an.id, an.article_id, an.newsgroup_id, an.number, an.cancelled, an.pending,
	a.id, a.message_id, a.subject, a.from_header, a.date_string, a.newsgroups, a.path,
	a.refs, a.control, a.supersedes, a.approved, a.header_order_json, a.headers_json,
	a.body, a.bytes, a.lines, a.injection_date, a.injection_info, a.imported_at, an.newsgroup_id`

// GetArticleByMessageID eager-loads the Article and Newsgroup (spec §6).
func (s *SQLiteStore) GetArticleByMessageID(ctx context.Context, msgID string) (*models.ArticleNewsgroup, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+articleNewsgroupJoinCols+`
		FROM article_newsgroups an JOIN articles a ON a.id = an.article_id
		WHERE a.message_id = ?
		ORDER BY an.id ASC LIMIT 1`, msgID)
	an, _, newsgroupID, err := scanArticleNewsgroup(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article by message-id %q: %w", msgID, err)
	}
	g, err := s.getNewsgroupByID(ctx, newsgroupID)
	if err != nil {
		return nil, err
	}
	an.Newsgroup = g
	return an, nil
}

func (s *SQLiteStore) getNewsgroupByID(ctx context.Context, id int64) (*models.Newsgroup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+newsgroupCols+` FROM newsgroups WHERE id = ?`, id)
	g, err := scanNewsgroup(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get newsgroup by id %d: %w", id, err)
	}
	return g, nil
}

func visibilityWhere(vis Visibility) string {
	if vis.Cancelled {
		return "an.cancelled = 1"
	}
	if vis.Pending {
		return "an.pending = 1"
	}
	return "an.cancelled = 0 AND an.pending = 0"
}

func (s *SQLiteStore) GetArticleByNumber(ctx context.Context, groupName string, number int64, vis Visibility) (*models.ArticleNewsgroup, error) {
	g, err := s.GetNewsgroupByName(ctx, groupName)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+articleNewsgroupJoinCols+`
		FROM article_newsgroups an JOIN articles a ON a.id = an.article_id
		WHERE an.newsgroup_id = ? AND an.number = ? AND `+visibilityWhere(vis), g.ID, number)
	an, _, _, err := scanArticleNewsgroup(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get article by number %s:%d: %w", groupName, number, err)
	}
	an.Newsgroup = g
	return an, nil
}

// ListArticlesInRange bypasses the cache (it is a caller concern); it
// returns rows ordered by Number ascending, capped at max (spec §4.3).
func (s *SQLiteStore) ListArticlesInRange(ctx context.Context, groupName string, lo, hi int64, max int, vis Visibility) ([]*models.ArticleNewsgroup, error) {
	g, err := s.GetNewsgroupByName(ctx, groupName)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 10000
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+articleNewsgroupJoinCols+`
		FROM article_newsgroups an JOIN articles a ON a.id = an.article_id
		WHERE an.newsgroup_id = ? AND an.number >= ? AND an.number <= ? AND `+visibilityWhere(vis)+`
		ORDER BY an.number ASC LIMIT ?`, g.ID, lo, hi, max)
	if err != nil {
		return nil, fmt.Errorf("list articles in range %s %d-%d: %w", groupName, lo, hi, err)
	}
	defer rows.Close()

	var out []*models.ArticleNewsgroup
	for rows.Next() {
		an, _, _, err := scanArticleNewsgroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article range row: %w", err)
		}
		an.Newsgroup = g
		out = append(out, an)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ListNewsgroups(ctx context.Context, filter ListFilter) ([]*models.Newsgroup, error) {
	query := `SELECT ` + newsgroupCols + ` FROM newsgroups WHERE 1=1`
	var args []interface{}
	if filter.CreatedSince != nil {
		query += ` AND create_date >= ?`
		args = append(args, time.Unix(*filter.CreatedSince, 0).UTC())
	}
	query += ` ORDER BY name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list newsgroups: %w", err)
	}
	defer rows.Close()

	var out []*models.Newsgroup
	for rows.Next() {
		g, err := scanNewsgroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan newsgroup row: %w", err)
		}
		// NameWildmat filtering happens in the caller (internal/retriever),
		// which already has internal/wildmat wired; the store only narrows
		// by the cheap, indexable CreatedSince predicate.
		out = append(out, g)
	}
	return out, rows.Err()
}

// InsertArticle persists the article once and a link per target group,
// assigning Number = max(Number in group)+1 under a per-group in-process
// lock (spec §4.6/§5/§9: the only write-contention hotspot).
func (s *SQLiteStore) InsertArticle(ctx context.Context, article *models.Article, links []*models.ArticleNewsgroup) error {
	if len(links) == 0 {
		return fmt.Errorf("insert article %s: no target groups", article.MessageID)
	}

	headerOrderJSON, _ := json.Marshal(article.HeaderOrder)
	headersJSON, _ := json.Marshal(article.Headers)
	if article.ImportedAt.IsZero() {
		article.ImportedAt = time.Now().UTC()
	}

	return s.withRetryTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO articles (message_id, subject, from_header, date_string, newsgroups, path,
				refs, control, supersedes, approved, header_order_json, headers_json, body, bytes, lines,
				injection_date, injection_info, imported_at)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			article.MessageID, article.Subject, article.From, article.Date, article.Newsgroups, article.Path,
			article.References, article.Control, article.Supersedes, article.Approved,
			string(headerOrderJSON), string(headersJSON), article.Body, article.Bytes, article.Lines,
			article.InjectionDate, article.InjectionInfo, article.ImportedAt)
		if err != nil {
			return fmt.Errorf("insert article: %w", err)
		}
		articleID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		article.ID = articleID

		for _, link := range links {
			lock := s.groupLock(link.Newsgroup.Name)
			lock.Lock()
			err := func() error {
				var maxNum sql.NullInt64
				if err := tx.QueryRowContext(ctx, `SELECT MAX(number) FROM article_newsgroups WHERE newsgroup_id = ?`, link.NewsgroupID).Scan(&maxNum); err != nil {
					return fmt.Errorf("max(number) for group %d: %w", link.NewsgroupID, err)
				}
				next := int64(1)
				if maxNum.Valid {
					next = maxNum.Int64 + 1
				}
				link.Number = next
				link.ArticleID = articleID

				res, err := tx.ExecContext(ctx, `
					INSERT INTO article_newsgroups (article_id, newsgroup_id, number, cancelled, pending)
					VALUES (?,?,?,?,?)`, articleID, link.NewsgroupID, next, link.Cancelled, link.Pending)
				if err != nil {
					return fmt.Errorf("insert article_newsgroup: %w", err)
				}
				id, err := res.LastInsertId()
				if err != nil {
					return err
				}
				link.ID = id

				if !link.Pending {
					_, err = tx.ExecContext(ctx, `
						UPDATE newsgroups SET post_count = post_count + 1,
							high_watermark = ?,
							low_watermark = CASE WHEN low_watermark = 0 THEN ? ELSE low_watermark END
						WHERE id = ?`, next, next, link.NewsgroupID)
					if err != nil {
						return fmt.Errorf("update newsgroup watermarks: %w", err)
					}
				}
				return nil
			}()
			lock.Unlock()
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLiteStore) UpdateArticleNewsgroup(ctx context.Context, link *models.ArticleNewsgroup) error {
	_, err := retryableExec(s.db, `UPDATE article_newsgroups SET cancelled = ?, pending = ? WHERE id = ?`,
		link.Cancelled, link.Pending, link.ID)
	if err != nil {
		return fmt.Errorf("update article_newsgroup %d: %w", link.ID, err)
	}
	if link.Article != nil {
		_, err = retryableExec(s.db, `UPDATE articles SET approved = ? WHERE id = ?`, link.Article.Approved, link.Article.ID)
		if err != nil {
			return fmt.Errorf("update article approved %d: %w", link.Article.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateNewsgroup(ctx context.Context, g *models.Newsgroup) error {
	if g.CreateDate.IsZero() {
		g.CreateDate = time.Now().UTC()
	}
	res, err := retryableExec(s.db, `
		INSERT INTO newsgroups (name, description, creator, create_date, moderated, deny_local_posting, deny_peer_posting)
		VALUES (?,?,?,?,?,?,?)`,
		g.Name, g.Description, g.Creator, g.CreateDate, g.Moderated, g.DenyLocalPosting, g.DenyPeerPosting)
	if err != nil {
		return fmt.Errorf("create newsgroup %q: %w", g.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	g.ID = id
	return nil
}

func (s *SQLiteStore) DeleteNewsgroup(ctx context.Context, name string) error {
	res, err := retryableExec(s.db, `DELETE FROM newsgroups WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete newsgroup %q: %w", name, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListAdministrators(ctx context.Context) ([]*models.Administrator, error) {
	rows, err := retryableQuery(s.db, `SELECT id, username, password_hash, can_approve_any, can_cancel, can_inject,
		can_create_group, can_delete_group, can_check_groups, local_authentication_only, created_at FROM administrators`)
	if err != nil {
		return nil, fmt.Errorf("list administrators: %w", err)
	}
	defer rows.Close()

	var out []*models.Administrator
	for rows.Next() {
		var a models.Administrator
		if err := rows.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.CanApproveAny, &a.CanCancel, &a.CanInject,
			&a.CanCreateGroup, &a.CanDeleteGroup, &a.CanCheckGroups, &a.LocalAuthenticationOnly, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan administrator row: %w", err)
		}
		moderates, err := s.moderatesFor(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		a.Moderates = moderates
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetAdministratorByUsername(ctx context.Context, username string) (*models.Administrator, error) {
	var a models.Administrator
	err := retryableQueryRowScan(s.db, `SELECT id, username, password_hash, can_approve_any, can_cancel, can_inject,
		can_create_group, can_delete_group, can_check_groups, local_authentication_only, created_at
		FROM administrators WHERE username = ?`, []interface{}{username},
		&a.ID, &a.Username, &a.PasswordHash, &a.CanApproveAny, &a.CanCancel, &a.CanInject,
		&a.CanCreateGroup, &a.CanDeleteGroup, &a.CanCheckGroups, &a.LocalAuthenticationOnly, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get administrator %q: %w", username, err)
	}
	moderates, err := s.moderatesFor(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Moderates = moderates
	return &a, nil
}

func (s *SQLiteStore) moderatesFor(ctx context.Context, adminID int64) ([]string, error) {
	rows, err := retryableQuery(s.db, `SELECT newsgroup_name FROM administrator_moderates WHERE administrator_id = ?`, adminID)
	if err != nil {
		return nil, fmt.Errorf("list moderates for admin %d: %w", adminID, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// InsertAdministrator creates an administrator row (password must already be
// bcrypt-hashed by the caller; see internal/auth).
func (s *SQLiteStore) InsertAdministrator(ctx context.Context, a *models.Administrator) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := retryableExec(s.db, `
		INSERT INTO administrators (username, password_hash, can_approve_any, can_cancel, can_inject,
			can_create_group, can_delete_group, can_check_groups, local_authentication_only, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		a.Username, a.PasswordHash, a.CanApproveAny, a.CanCancel, a.CanInject,
		a.CanCreateGroup, a.CanDeleteGroup, a.CanCheckGroups, a.LocalAuthenticationOnly, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert administrator %q: %w", a.Username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	for _, g := range a.Moderates {
		if _, err := retryableExec(s.db, `INSERT INTO administrator_moderates (administrator_id, newsgroup_name) VALUES (?,?)`, a.ID, g); err != nil {
			return fmt.Errorf("insert moderates row for %q: %w", g, err)
		}
	}
	return nil
}

func (s *SQLiteStore) withRetryTx(ctx context.Context, f func(tx *sql.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		var tx *sql.Tx
		tx, err = s.db.BeginTx(ctx, nil)
		if err != nil {
			if !isRetryableError(err) {
				return err
			}
			time.Sleep(backoff(attempt))
			continue
		}
		if err = f(tx); err != nil {
			tx.Rollback()
			if !isRetryableError(err) {
				return err
			}
			time.Sleep(backoff(attempt))
			continue
		}
		if err = tx.Commit(); err != nil {
			if !isRetryableError(err) {
				return err
			}
			time.Sleep(backoff(attempt))
			continue
		}
		return nil
	}
	return err
}
