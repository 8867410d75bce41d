package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteIndex stores records in SQLite with an FTS5 table for search. Renames
// update the row in place, so its rowid and search entry carry over.
type SQLiteIndex struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenSQLiteIndex opens or creates dir/index.db.
func OpenSQLiteIndex(dir string, logger *zap.Logger) (*SQLiteIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, unavailable("open", "", fmt.Errorf("create index dir: %w", err))
	}

	dbPath := filepath.Join(dir, "index.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, unavailable("open", "", fmt.Errorf("open database: %w", err))
	}
	// One connection keeps the pragmas below in effect for every statement.
	db.SetMaxOpenConns(1)

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, unavailable("open", "", fmt.Errorf("pragma %q: %w", p, err))
		}
	}

	s := &SQLiteIndex{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, unavailable("open", "", fmt.Errorf("migration: %w", err))
	}
	logger.Debug("sqlite index opened", zap.String("path", dbPath))
	return s, nil
}

func (s *SQLiteIndex) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS records (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			path           TEXT    NOT NULL UNIQUE,
			content        TEXT    NOT NULL,
			content_hash   TEXT    NOT NULL,
			last_synced_at INTEGER NOT NULL,
			updated_at     TEXT    NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			path,
			content,
			content='records',
			content_rowid='id'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'trigger' AND name = 'records_fts_insert'`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	triggers := `
		CREATE TRIGGER records_fts_insert AFTER INSERT ON records BEGIN
			INSERT INTO records_fts(rowid, path, content)
			VALUES (new.id, new.path, new.content);
		END;

		CREATE TRIGGER records_fts_delete AFTER DELETE ON records BEGIN
			INSERT INTO records_fts(records_fts, rowid, path, content)
			VALUES ('delete', old.id, old.path, old.content);
		END;

		CREATE TRIGGER records_fts_update AFTER UPDATE ON records BEGIN
			INSERT INTO records_fts(records_fts, rowid, path, content)
			VALUES ('delete', old.id, old.path, old.content);
			INSERT INTO records_fts(rowid, path, content)
			VALUES (new.id, new.path, new.content);
		END;
	`
	_, err := s.db.Exec(triggers)
	return err
}

const nextClock = `(SELECT COALESCE(MAX(last_synced_at), 0) + 1 FROM records)`

func (s *SQLiteIndex) Upsert(ctx context.Context, path, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (path, content, content_hash, last_synced_at, updated_at)
		VALUES (?, ?, ?, `+nextClock+`, ?)
		ON CONFLICT(path) DO UPDATE SET
			content        = excluded.content,
			content_hash   = excluded.content_hash,
			last_synced_at = excluded.last_synced_at,
			updated_at     = excluded.updated_at`,
		path, content, HashContent(content), s.timestamp())
	if err != nil {
		return unavailable("upsert", path, err)
	}
	return nil
}

func (s *SQLiteIndex) Delete(ctx context.Context, path string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE path = ?`, path); err != nil {
		return unavailable("delete", path, err)
	}
	return nil
}

func (s *SQLiteIndex) Rename(ctx context.Context, from, to string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("rename", from, err)
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM records WHERE path = ?`, from).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return recordNotFound(from)
	}
	if err != nil {
		return unavailable("rename", from, err)
	}
	if from == to {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE path = ?`, to); err != nil {
		return unavailable("rename", to, err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET path = ?, last_synced_at = `+nextClock+`, updated_at = ? WHERE id = ?`,
		to, s.timestamp(), id); err != nil {
		return unavailable("rename", from, err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("rename", from, err)
	}
	return nil
}

func (s *SQLiteIndex) Get(ctx context.Context, path string) (*Record, bool, error) {
	var rec Record
	var updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT path, content, content_hash, last_synced_at, updated_at FROM records WHERE path = ?`, path).
		Scan(&rec.Path, &rec.Content, &rec.ContentHash, &rec.LastSyncedAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("get", path, err)
	}
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &rec, true, nil
}

func (s *SQLiteIndex) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path FROM records
		WHERE ? = '' OR substr(path, 1, length(?)) = ?
		ORDER BY path`, prefix, prefix, prefix)
	if err != nil {
		return nil, unavailable("list", prefix, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, unavailable("list", prefix, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list", prefix, err)
	}
	return out, nil
}

// Search runs an FTS5 query. Each whitespace-separated term is quoted, so
// FTS operators in the query are matched literally.
func (s *SQLiteIndex) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	ftsQuery := sanitizeFTS(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.path, bm25(records_fts), snippet(records_fts, 1, '[', ']', '...', 12)
		FROM records_fts
		JOIN records r ON r.id = records_fts.rowid
		WHERE records_fts MATCH ?
		ORDER BY bm25(records_fts)
		LIMIT ?`, ftsQuery, k)
	if err != nil {
		return nil, unavailable("search", "", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var rank float64
		if err := rows.Scan(&h.Path, &rank, &h.Snippet); err != nil {
			return nil, unavailable("search", "", err)
		}
		// bm25 is lower-is-better; flip so higher scores rank first.
		h.Score = -rank
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("search", "", err)
	}
	return hits, nil
}

// Close closes the underlying database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

func (s *SQLiteIndex) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	for i, w := range words {
		w = strings.ReplaceAll(w, `"`, `""`)
		words[i] = `"` + w + `"`
	}
	return strings.Join(words, " ")
}
