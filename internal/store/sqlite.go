package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/keyword-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Tables are stored
// as JSON documents on the session row.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	stage      TEXT NOT NULL DEFAULT 'created',
	settings   TEXT NOT NULL,
	mappings   TEXT,
	batch_id   TEXT NOT NULL DEFAULT '',
	pending    TEXT,
	universe   TEXT,
	master     TEXT,
	keywords   INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sessions_stage ON sessions(stage);
CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON sessions(updated_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSession inserts or replaces the full snapshot.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *model.Session) error {
	stamp(sess)

	meta, err := encodeMeta(sess)
	if err != nil {
		return err
	}
	universe, err := encodeTable(sess.Universe)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal universe")
	}
	master, err := encodeTable(sess.Master)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal master")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, name, stage, settings, mappings, batch_id, pending, universe, master, keywords, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, stage = excluded.stage, settings = excluded.settings,
			mappings = excluded.mappings, batch_id = excluded.batch_id, pending = excluded.pending,
			universe = excluded.universe, master = excluded.master, keywords = excluded.keywords,
			updated_at = excluded.updated_at`,
		sess.ID, sess.Name, string(sess.Stage), string(meta.Settings), nullText(meta.Mappings),
		sess.BatchID, nullText(meta.Pending), nullText(universe), nullText(master),
		keywordCount(sess), sess.CreatedAt, sess.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save session %s", sess.ID)
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, stage, settings, mappings, batch_id, pending, universe, master, created_at, updated_at
		 FROM sessions WHERE id = ?`, id)

	var sess model.Session
	var settings string
	var mappings, pending, universe, master sql.NullString
	err := row.Scan(&sess.ID, &sess.Name, &sess.Stage, &settings, &mappings, &sess.BatchID,
		&pending, &universe, &master, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: get session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", id)
	}

	if err := decodeMeta(&sess, sessionMeta{
		Settings: []byte(settings),
		Mappings: []byte(mappings.String),
		Pending:  []byte(pending.String),
	}); err != nil {
		return nil, err
	}
	if sess.Universe, err = decodeTable(universe); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal universe")
	}
	if sess.Master, err = decodeTable(master); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal master")
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionSummary, error) {
	query := `SELECT id, name, stage, keywords, updated_at FROM sessions WHERE 1=1`
	var args []any

	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sessions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.Stage, &sum.Keywords, &sum.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan session")
		}
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list sessions iterate")
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete session %s", id)
	}
	return checkRowsAffected(res, id)
}

// helpers

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

func encodeTable(t *model.Table) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func decodeTable(v sql.NullString) (*model.Table, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var t model.Table
	if err := json.Unmarshal([]byte(v.String), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func nullText(b []byte) sql.NullString {
	if b == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
