// Package index mirrors memory files into SQLite for search and keeps a
// journal of every mutation. The files stay the source of truth; the index
// can be deleted and rebuilt at any time.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	memerrors "github.com/cadre-oss/agentmem/internal/errors"
	"github.com/cadre-oss/agentmem/internal/memory"
)

// Index is a SQLite-backed mirror of memory entries.
type Index struct {
	db *sql.DB

	mu     sync.Mutex
	synced map[memory.Ref]uint64 // newest snapshot seq synced per file
}

// Op is one journaled operation.
type Op struct {
	ID        string     `json:"id"`
	OpID      string     `json:"op_id,omitempty"`
	Ref       memory.Ref `json:"ref"`
	Op        string     `json:"op"`
	Count     int        `json:"count"`
	Size      int        `json:"size"`
	Status    string     `json:"status,omitempty"`
	Detail    string     `json:"detail,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Hit is one search result.
type Hit struct {
	Ref      memory.Ref `json:"ref"`
	Position int        `json:"position"`
	Entry    string     `json:"entry"`
}

// Filter narrows a search.
type Filter struct {
	Scope   memory.Scope
	AgentID string
	Limit   int
}

// Open opens (or creates) the index database at path.
func Open(path string) (*Index, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, memerrors.Wrap(memerrors.CodeIO, "create index directory", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, memerrors.Wrap(memerrors.CodeIO, "open index database", err)
	}

	idx := &Index{db: db, synced: make(map[memory.Ref]uint64)}
	if err := idx.migrate(); err != nil {
		db.Close()
		return nil, memerrors.Wrap(memerrors.CodeIO, "migrate index database", err)
	}
	return idx, nil
}

func (x *Index) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		scope TEXT NOT NULL,
		agent TEXT NOT NULL,
		position INTEGER NOT NULL,
		content TEXT NOT NULL,
		folded TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (scope, agent, position)
	);

	CREATE TABLE IF NOT EXISTS journal (
		id TEXT PRIMARY KEY,
		op_id TEXT,
		scope TEXT NOT NULL,
		agent TEXT NOT NULL,
		op TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		status TEXT,
		detail TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_ref ON journal(scope, agent, created_at);
	`
	if _, err := x.db.Exec(schema); err != nil {
		return err
	}
	return x.addFoldedColumn()
}

// addFoldedColumn upgrades indexes created before entries carried a
// lowercased copy for search.
func (x *Index) addFoldedColumn() error {
	var n int
	if err := x.db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('entries') WHERE name = 'folded'`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := x.db.Exec(`ALTER TABLE entries ADD COLUMN folded TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}

	rows, err := x.db.Query(`SELECT rowid, content FROM entries`)
	if err != nil {
		return err
	}
	folded := map[int64]string{}
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return err
		}
		folded[id] = strings.ToLower(content)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for id, f := range folded {
		if _, err := x.db.Exec(`UPDATE entries SET folded = ? WHERE rowid = ?`, f, id); err != nil {
			return err
		}
	}
	return nil
}

// Sync replaces the indexed entries of ref.
func (x *Index) Sync(ctx context.Context, ref memory.Ref, entries []string) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE scope = ? AND agent = ?`,
		string(ref.Scope), ref.AgentID); err != nil {
		return fmt.Errorf("clear %s: %w", ref, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entries (scope, agent, position, content, folded) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, e := range entries {
		if _, err := stmt.ExecContext(ctx, string(ref.Scope), ref.AgentID, i, e, strings.ToLower(e)); err != nil {
			return fmt.Errorf("index %s entry %d: %w", ref, i, err)
		}
	}
	return tx.Commit()
}

// Journal records op under a fresh uuid. OpID links the record to the
// request that caused it; a zero time gets now.
func (x *Index) Journal(ctx context.Context, op Op) error {
	op.ID = uuid.NewString()
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now()
	}
	_, err := x.db.ExecContext(ctx, `
		INSERT INTO journal (id, op_id, scope, agent, op, count, size, status, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, op.ID, op.OpID, string(op.Ref.Scope), op.Ref.AgentID, op.Op, op.Count, op.Size, op.Status, op.Detail, op.CreatedAt.UTC())
	return err
}

// Search returns entries containing query, ignoring case (Unicode-aware,
// matching memory.Contains), in scope precedence then file order.
func (x *Index) Search(ctx context.Context, query string, f Filter) ([]Hit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, memerrors.New(memerrors.CodeValidation, "search query is empty")
	}
	q := `
		SELECT scope, agent, position, content FROM entries
		WHERE folded LIKE ? ESCAPE '\'`
	args := []interface{}{"%" + escapeLike(strings.ToLower(query)) + "%"}
	if f.Scope != "" {
		q += ` AND scope = ?`
		args = append(args, string(f.Scope))
	}
	if f.AgentID != "" {
		q += ` AND agent = ?`
		args = append(args, f.AgentID)
	}
	q += `
		ORDER BY CASE scope WHEN 'project' THEN 0 WHEN 'agent' THEN 1 ELSE 2 END, agent, position`
	if f.Limit > 0 {
		q += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		var scope string
		if err := rows.Scan(&scope, &h.Ref.AgentID, &h.Position, &h.Entry); err != nil {
			return nil, err
		}
		h.Ref.Scope = memory.Scope(scope)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// History returns the newest operations recorded for ref, newest first.
func (x *Index) History(ctx context.Context, ref memory.Ref, limit int) ([]Op, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := x.db.QueryContext(ctx, `
		SELECT id, op_id, scope, agent, op, count, size, status, detail, created_at
		FROM journal
		WHERE scope = ? AND agent = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, string(ref.Scope), ref.AgentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ops := []Op{}
	for rows.Next() {
		var op Op
		var scope string
		var opID, status, detail sql.NullString
		if err := rows.Scan(&op.ID, &opID, &scope, &op.Ref.AgentID, &op.Op, &op.Count, &op.Size, &status, &detail, &op.CreatedAt); err != nil {
			return nil, err
		}
		op.Ref.Scope = memory.Scope(scope)
		op.OpID = opID.String
		op.Status = status.String
		op.Detail = detail.String
		ops = append(ops, op)
	}
	return ops, rows.Err()
}

// Rebuild re-syncs every memory file from store and drops rows for files
// that no longer exist. It returns the number of files indexed.
func (x *Index) Rebuild(ctx context.Context, store *memory.Store) (int, error) {
	refs, err := store.Refs(ctx)
	if err != nil {
		return 0, err
	}
	if _, err := x.db.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return 0, err
	}
	for _, ref := range refs {
		l, err := store.List(ctx, ref)
		if err != nil {
			return 0, fmt.Errorf("reindex %s: %w", ref, err)
		}
		if err := x.Sync(ctx, ref, l.Entries); err != nil {
			return 0, err
		}
		if err := x.Journal(ctx, Op{Ref: ref, Op: "reindex", Count: len(l.Entries), Size: l.Size}); err != nil {
			return 0, err
		}
	}
	return len(refs), nil
}

// Close closes the database connection.
func (x *Index) Close() error {
	return x.db.Close()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
