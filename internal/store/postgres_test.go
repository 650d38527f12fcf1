package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/keyword-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_SaveSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	sess := testSession()
	sess.ID = "sess-1"

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO keyword_sessions`).
		WithArgs("sess-1", "acme q3", "classifying", pgxmock.AnyArg(), pgxmock.AnyArg(), "msgbatch_123",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), 2, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM session_keywords WHERE session_id = \$1`).
		WithArgs("sess-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"session_keywords"}, keywordColumns).WillReturnResult(2)
	mock.ExpectCommit()

	require.NoError(t, s.SaveSession(context.Background(), sess))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveSession_CopyFails(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	s.schema = "keywords"
	sess := testSession()
	sess.ID = "sess-1"

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO keyword_sessions`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM session_keywords`).WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"keywords", "session_keywords"}, keywordColumns).
		WillReturnError(fmt.Errorf("disk full"))
	mock.ExpectRollback()

	err := s.SaveSession(context.Background(), sess)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "copy keywords sess-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	settings, err := json.Marshal(model.Settings{BrandName: "Acme"})
	require.NoError(t, err)
	schema, err := encodeSchema(&model.Table{Columns: []string{model.ColKeyword, model.ColSearchVolume}})
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT id, name, stage, settings, mappings, batch_id, pending, universe_schema, master_schema, created_at, updated_at\s+FROM keyword_sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "stage", "settings", "mappings", "batch_id", "pending",
			"universe_schema", "master_schema", "created_at", "updated_at",
		}).AddRow("sess-1", "acme", "built", settings, []byte(nil), "", []byte(`[{"id":"kw-1","keyword":"b"}]`),
			schema, []byte(nil), now, now))
	mock.ExpectQuery(`SELECT tbl, data FROM session_keywords WHERE session_id = \$1 ORDER BY tbl, ord`).
		WithArgs("sess-1").
		WillReturnRows(pgxmock.NewRows([]string{"tbl", "data"}).
			AddRow("universe", []byte(`{"keyword":"a","search_volume":10}`)).
			AddRow("universe", []byte(`{"keyword":"b"}`)).
			AddRow("master", []byte(`{"keyword":"ignored"}`)))

	got, err := s.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, model.StageBuilt, got.Stage)
	assert.Equal(t, "Acme", got.Settings.BrandName)
	assert.Equal(t, []model.PendingRequest{{ID: "kw-1", Keyword: "b"}}, got.Pending)
	assert.Nil(t, got.Master)
	require.NotNil(t, got.Universe)
	require.Equal(t, 2, got.Universe.Len())
	assert.Equal(t, 10.0, *got.Universe.Rows[0].SearchVolume)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSession_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM keyword_sessions WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSession(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSessions(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, name, stage, keywords, updated_at FROM keyword_sessions WHERE 1=1 AND stage = \$1 ORDER BY updated_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("finalized", 5, 10).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "stage", "keywords", "updated_at"}).
			AddRow("sess-1", "acme", "finalized", 42, now))

	got, err := s.ListSessions(context.Background(), SessionFilter{Stage: model.StageFinalized, Limit: 5, Offset: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 42, got[0].Keywords)
	assert.Equal(t, model.StageFinalized, got[0].Stage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteSession(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM keyword_sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec(`DELETE FROM keyword_sessions WHERE id = \$1`).
		WithArgs("sess-2").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, s.DeleteSession(context.Background(), "sess-1"))
	err := s.DeleteSession(context.Background(), "sess-2")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	s.schema = "keywords"

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "keywords"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS keyword_sessions`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
