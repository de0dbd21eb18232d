package storage

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/umputun/akismet-check/app/storage/engine"
	"github.com/umputun/akismet-check/lib/akismet"
	"github.com/umputun/akismet-check/lib/spamcheck"
)

// Checks is a storage of performed checks and submitted reports
type Checks struct {
	*engine.SQL
	engine.RWLocker
}

// CheckInfo is a single request to the service with its outcome
type CheckInfo struct {
	ID        int64     `db:"id" json:"id"`
	GID       string    `db:"gid" json:"gid"`
	Timestamp time.Time `db:"ts" json:"ts"`
	Op        string    `db:"op" json:"op"`                   // comment-check, submit-spam or submit-ham
	Website   string    `db:"website" json:"website"`         // blog the comment belongs to
	UserIP    string    `db:"user_ip" json:"user_ip"`         // commenter's ip
	UserAgent string    `db:"user_agent" json:"user_agent"`   // commenter's user agent
	Author    string    `db:"comment_author" json:"author"`   // comment author
	Content   string    `db:"comment_content" json:"content"` // comment text
	Spam      bool      `db:"spam" json:"spam"`               // classified as spam, for comment-check
	Accepted  bool      `db:"accepted" json:"accepted"`       // acknowledged by the service, for submit-*
	Details   string    `db:"details" json:"details"`         // error or other details
}

// NewCheckInfo makes CheckInfo from the request sent and its result. Error, if any, goes to Details.
func NewCheckInfo(req spamcheck.Request, resp spamcheck.Response) CheckInfo {
	res := CheckInfo{
		Op:        req.Op,
		Website:   req.Website,
		UserIP:    req.Fields[akismet.FieldUserIP],
		UserAgent: req.Fields[akismet.FieldUserAgent],
		Author:    req.Fields[akismet.FieldCommentAuthor],
		Content:   req.Fields[akismet.FieldCommentContent],
		Spam:      resp.Spam,
		Accepted:  resp.Accepted,
		Details:   resp.Details,
	}
	if resp.Error != nil {
		res.Details = resp.Error.Error()
	}
	return res
}

var checksQueries = engine.NewQueryMap().
	Add(CmdCreateChecksTable, engine.Query{
		Sqlite: `CREATE TABLE IF NOT EXISTS akismet_checks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			gid TEXT NOT NULL DEFAULT '',
			ts DATETIME DEFAULT CURRENT_TIMESTAMP,
			op TEXT NOT NULL,
			website TEXT,
			user_ip TEXT,
			user_agent TEXT,
			comment_author TEXT,
			comment_content TEXT,
			spam BOOLEAN DEFAULT FALSE,
			accepted BOOLEAN DEFAULT FALSE,
			details TEXT
		)`,
		Postgres: `CREATE TABLE IF NOT EXISTS akismet_checks (
			id SERIAL PRIMARY KEY,
			gid TEXT NOT NULL DEFAULT '',
			ts TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			op TEXT NOT NULL,
			website TEXT,
			user_ip TEXT,
			user_agent TEXT,
			comment_author TEXT,
			comment_content TEXT,
			spam BOOLEAN DEFAULT FALSE,
			accepted BOOLEAN DEFAULT FALSE,
			details TEXT
		)`,
	}).
	AddSame(CmdCreateChecksIndexes, `CREATE INDEX IF NOT EXISTS idx_akismet_checks_gid_ts ON akismet_checks(gid, ts)`).
	AddSame(CmdAddCheck, `INSERT INTO akismet_checks (gid, ts, op, website, user_ip, user_agent, comment_author,
		comment_content, spam, accepted, details) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`).
	AddSame(CmdReadChecks, `SELECT id, gid, ts, op, website, user_ip, user_agent, comment_author, comment_content,
		spam, accepted, details FROM akismet_checks WHERE gid = ? ORDER BY ts DESC, id DESC LIMIT ?`)

// NewChecks creates Checks storage and makes the table if needed
func NewChecks(ctx context.Context, db *engine.SQL) (*Checks, error) {
	if db == nil {
		return nil, fmt.Errorf("db connection is nil")
	}
	res := &Checks{SQL: db, RWLocker: db.MakeLock()}
	cfg := engine.TableConfig{
		Name:          "akismet_checks",
		CreateTable:   CmdCreateChecksTable,
		CreateIndexes: CmdCreateChecksIndexes,
		QueriesMap:    checksQueries,
	}
	if err := engine.InitTable(ctx, db, cfg); err != nil {
		return nil, fmt.Errorf("failed to init checks storage: %w", err)
	}
	return res, nil
}

// Write adds a new check entry, timestamp set to now if not defined
func (c *Checks) Write(ctx context.Context, entry CheckInfo) error {
	c.Lock()
	defer c.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	query, err := c.PickQuery(checksQueries, CmdAddCheck)
	if err != nil {
		return fmt.Errorf("failed to get insert query: %w", err)
	}
	_, err = c.ExecContext(ctx, query, c.GID(), entry.Timestamp.UTC(), entry.Op, entry.Website, entry.UserIP,
		entry.UserAgent, entry.Author, entry.Content, entry.Spam, entry.Accepted, entry.Details)
	if err != nil {
		return fmt.Errorf("failed to insert check entry: %w", err)
	}
	log.Printf("[DEBUG] check entry added, op:%s, ip:%s, author:%q", entry.Op, entry.UserIP, entry.Author)
	return nil
}

// Read returns up to limit entries, newest first
func (c *Checks) Read(ctx context.Context, limit int) ([]CheckInfo, error) {
	c.RLock()
	defer c.RUnlock()

	query, err := c.PickQuery(checksQueries, CmdReadChecks)
	if err != nil {
		return nil, fmt.Errorf("failed to get read query: %w", err)
	}
	var entries []CheckInfo
	if err := c.SelectContext(ctx, &entries, query, c.GID(), limit); err != nil {
		return nil, fmt.Errorf("failed to get check entries: %w", err)
	}
	for i := range entries {
		entries[i].Timestamp = entries[i].Timestamp.Local()
	}
	return entries, nil
}
