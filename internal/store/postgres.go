package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-cli/internal/db"
	"github.com/sells-group/keyword-cli/internal/model"
)

// PostgresStore implements Store using pgxpool. Session metadata lives in
// keyword_sessions; table rows are bulk-loaded into session_keywords.
type PostgresStore struct {
	pool    db.Pool
	schema  string
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`
	Schema   string `yaml:"schema" mapstructure:"schema"`
}

const (
	tableUniverse = "universe"
	tableMaster   = "master"
)

var keywordColumns = []string{"session_id", "tbl", "ord", "keyword", "data"}

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_session":          `SELECT id, name, stage, settings, mappings, batch_id, pending, universe_schema, master_schema, created_at, updated_at FROM keyword_sessions WHERE id = $1`,
	"get_session_keywords": `SELECT tbl, data FROM session_keywords WHERE session_id = $1 ORDER BY tbl, ord`,
	"delete_session":       `DELETE FROM keyword_sessions WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	var schema string
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
		schema = poolCfg.Schema
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute
	if schema != "" {
		pgxCfg.ConnConfig.RuntimeParams["search_path"] = schema
	}

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				// Tables may not exist before the first migrate.
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
					continue
				}
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, schema: schema, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS keyword_sessions (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	stage           TEXT NOT NULL DEFAULT 'created',
	settings        JSONB NOT NULL,
	mappings        JSONB,
	batch_id        TEXT NOT NULL DEFAULT '',
	pending         JSONB,
	universe_schema JSONB,
	master_schema   JSONB,
	keywords        INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS session_keywords (
	session_id TEXT NOT NULL REFERENCES keyword_sessions(id) ON DELETE CASCADE,
	tbl        TEXT NOT NULL,
	ord        INTEGER NOT NULL,
	keyword    TEXT NOT NULL,
	data       JSONB NOT NULL,
	PRIMARY KEY (session_id, tbl, ord)
);

CREATE INDEX IF NOT EXISTS idx_keyword_sessions_stage ON keyword_sessions(stage);
CREATE INDEX IF NOT EXISTS idx_keyword_sessions_updated_at ON keyword_sessions(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_session_keywords_keyword ON session_keywords(keyword);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if s.schema != "" {
		if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{s.schema}.Sanitize()); err != nil {
			return eris.Wrapf(err, "postgres: create schema %s", s.schema)
		}
	}
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveSession upserts the session row and replaces its keyword rows in one
// transaction.
func (s *PostgresStore) SaveSession(ctx context.Context, sess *model.Session) error {
	stamp(sess)

	meta, err := encodeMeta(sess)
	if err != nil {
		return err
	}
	universeSchema, err := encodeSchema(sess.Universe)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal universe schema")
	}
	masterSchema, err := encodeSchema(sess.Master)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal master schema")
	}
	rows, err := keywordRows(sess)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO keyword_sessions (id, name, stage, settings, mappings, batch_id, pending, universe_schema, master_schema, keywords, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, stage = EXCLUDED.stage, settings = EXCLUDED.settings,
			mappings = EXCLUDED.mappings, batch_id = EXCLUDED.batch_id, pending = EXCLUDED.pending,
			universe_schema = EXCLUDED.universe_schema, master_schema = EXCLUDED.master_schema,
			keywords = EXCLUDED.keywords, updated_at = EXCLUDED.updated_at`,
		sess.ID, sess.Name, string(sess.Stage), meta.Settings, meta.Mappings, sess.BatchID,
		meta.Pending, universeSchema, masterSchema, keywordCount(sess), sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		_ = tx.Rollback(ctx)
		return eris.Wrapf(err, "postgres: upsert session %s", sess.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM session_keywords WHERE session_id = $1`, sess.ID); err != nil {
		_ = tx.Rollback(ctx)
		return eris.Wrapf(err, "postgres: clear keywords %s", sess.ID)
	}

	if _, err := db.CopyFromSchema(ctx, tx, s.schema, "session_keywords", keywordColumns, rows); err != nil {
		_ = tx.Rollback(ctx)
		return eris.Wrapf(err, "postgres: copy keywords %s", sess.ID)
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit save")
}

func (s *PostgresStore) GetSession(ctx context.Context, id string) (*model.Session, error) {
	var sess model.Session
	var meta sessionMeta
	var stage string
	var universeSchema, masterSchema []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, stage, settings, mappings, batch_id, pending, universe_schema, master_schema, created_at, updated_at
		 FROM keyword_sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Name, &stage, &meta.Settings, &meta.Mappings, &sess.BatchID,
		&meta.Pending, &universeSchema, &masterSchema, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get session %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", id)
	}
	sess.Stage = model.Stage(stage)
	if err := decodeMeta(&sess, meta); err != nil {
		return nil, err
	}
	if sess.Universe, err = decodeSchema(universeSchema); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal universe schema")
	}
	if sess.Master, err = decodeSchema(masterSchema); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal master schema")
	}
	if sess.Universe == nil && sess.Master == nil {
		return &sess, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT tbl, data FROM session_keywords WHERE session_id = $1 ORDER BY tbl, ord`, id)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query keywords %s", id)
	}
	defer rows.Close()

	for rows.Next() {
		var tbl string
		var data []byte
		if err := rows.Scan(&tbl, &data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan keyword")
		}
		target := sess.Universe
		if tbl == tableMaster {
			target = sess.Master
		}
		if target == nil {
			continue
		}
		var kw model.KeywordRow
		if err := json.Unmarshal(data, &kw); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal keyword")
		}
		target.Rows = append(target.Rows, &kw)
	}
	return &sess, eris.Wrap(rows.Err(), "postgres: iterate keywords")
}

func (s *PostgresStore) ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionSummary, error) {
	query := `SELECT id, name, stage, keywords, updated_at FROM keyword_sessions WHERE 1=1`
	var args []any
	argN := 1

	if filter.Stage != "" {
		query += fmt.Sprintf(` AND stage = $%d`, argN)
		args = append(args, string(filter.Stage))
		argN++
	}
	query += ` ORDER BY updated_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argN)
	args = append(args, limit)
	argN++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argN)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sessions")
	}
	defer rows.Close()

	var out []model.SessionSummary
	for rows.Next() {
		var sum model.SessionSummary
		var stage string
		if err := rows.Scan(&sum.ID, &sum.Name, &stage, &sum.Keywords, &sum.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan session")
		}
		sum.Stage = model.Stage(stage)
		out = append(out, sum)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list sessions iterate")
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM keyword_sessions WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete session %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "session %s", id)
	}
	return nil
}

// encodeSchema stores a table's columns and sources without its rows.
func encodeSchema(t *model.Table) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(&model.Table{Columns: t.Columns, Extras: t.Extras, Sources: t.Sources})
}

func decodeSchema(data []byte) (*model.Table, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var t model.Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	t.Rows = nil
	return &t, nil
}

func keywordRows(sess *model.Session) ([][]any, error) {
	var rows [][]any
	for _, part := range []struct {
		name string
		t    *model.Table
	}{{tableUniverse, sess.Universe}, {tableMaster, sess.Master}} {
		if part.t == nil {
			continue
		}
		for i, r := range part.t.Rows {
			data, err := json.Marshal(r)
			if err != nil {
				return nil, eris.Wrapf(err, "postgres: marshal keyword %q", r.Keyword)
			}
			rows = append(rows, []any{sess.ID, part.name, i, r.Keyword, data})
		}
	}
	return rows, nil
}
