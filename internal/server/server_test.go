package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/keyword-cli/internal/metrics"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/pipeline"
	"github.com/sells-group/keyword-cli/internal/scoring"
	"github.com/sells-group/keyword-cli/internal/store"
	"github.com/sells-group/keyword-cli/internal/subset"
)

type fakeStore struct {
	sessions map[string]*model.Session
	pingErr  error
	gets     atomic.Int32
	filter   store.SessionFilter
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*model.Session, error) {
	f.gets.Add(1)
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) ListSessions(_ context.Context, filter store.SessionFilter) ([]model.SessionSummary, error) {
	f.filter = filter
	var out []model.SessionSummary
	for _, s := range f.sessions {
		if filter.Stage != "" && s.Stage != filter.Stage {
			continue
		}
		out = append(out, model.SessionSummary{ID: s.ID, Stage: s.Stage})
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

// countingViews counts regenerations so cache hits are observable.
type countingViews struct {
	p     *pipeline.Pipeline
	calls atomic.Int32
}

func (c *countingViews) Views(sess *model.Session) ([]model.View, error) {
	c.calls.Add(1)
	return c.p.Views(sess)
}

func ptr[T any](v T) *T { return &v }

func newTestServer(t *testing.T) (*Server, *fakeStore, *countingViews) {
	t.Helper()

	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	p := pipeline.New(nil, scoring.DefaultConfig(), subset.DefaultOptions(),
		pipeline.WithClock(func() time.Time { return now }))

	main := model.NewTable(model.ColSearchVolume, model.ColCPC, model.ColDifficulty)
	main.Rows = []*model.KeywordRow{
		{Keyword: "car insurance", SearchVolume: ptr(1000.0), CPC: ptr(2.0), Difficulty: ptr(20.0)},
		{Keyword: "home insurance", SearchVolume: ptr(700.0), CPC: ptr(1.0), Difficulty: ptr(5.0)},
	}
	rankings := model.NewTable(model.ColPosition)
	rankings.Rows = []*model.KeywordRow{{Keyword: "home insurance", Position: ptr(6)}}

	finalized := &model.Session{ID: "final", Name: "Acme NZ", UpdatedAt: now}
	p.Build(finalized, main, model.SourceTable{Name: "Acme", Role: model.RoleRankings, Table: rankings})
	_, err := p.Finalize(finalized, nil)
	require.NoError(t, err)

	built := &model.Session{ID: "built", UpdatedAt: now}
	p.Build(built, main)

	st := &fakeStore{sessions: map[string]*model.Session{"final": finalized, "built": built}}
	views := &countingViews{p: p}
	return New(st, views, metrics.New(), Config{AllowedOrigins: []string{"https://app.test"}}), st, views
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Parallel()

	srv, st, _ := newTestServer(t)
	rec := get(t, srv, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	st.pingErr = errors.New("db down")
	rec = get(t, srv, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListSessions(t *testing.T) {
	t.Parallel()

	srv, st, _ := newTestServer(t)
	rec := get(t, srv, "/sessions?stage=finalized&limit=5&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []model.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "final", got[0].ID)
	assert.Equal(t, store.SessionFilter{Stage: model.StageFinalized, Limit: 5, Offset: 1}, st.filter)

	rec = get(t, srv, "/sessions?limit=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, srv, "/sessions?stage=classifying")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := get(t, srv, "/sessions/final")
	require.Equal(t, http.StatusOK, rec.Code)

	var got sessionDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "Acme NZ", got.Name)
	assert.Equal(t, model.StageFinalized, got.Stage)
	assert.Equal(t, 2, got.Keywords)
	assert.Equal(t, 2, got.Pending)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "acme", got.Sources[0].Slug)
	assert.Contains(t, got.Views, "universe")
	assert.Contains(t, got.Views, subset.TopOpportunities)

	rec = get(t, srv, "/sessions/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUniverseCSV(t *testing.T) {
	t.Parallel()

	srv, st, _ := newTestServer(t)
	rec := get(t, srv, "/sessions/built/universe.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentCSV, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "built_universe.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "keyword"))

	st.sessions["empty"] = &model.Session{ID: "empty"}
	rec = get(t, srv, "/sessions/empty/universe.csv")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSubsetCSV(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := get(t, srv, "/sessions/final/subsets/"+subset.LowHangingFruit+".csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "home insurance")
	assert.NotContains(t, rec.Body.String(), "car insurance")

	rec = get(t, srv, "/sessions/final/subsets/nope.csv")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, srv, "/sessions/built/subsets/"+subset.TopOpportunities+".csv")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestBundleZip_Cached(t *testing.T) {
	t.Parallel()

	srv, _, views := newTestServer(t)
	first := get(t, srv, "/sessions/final/bundle.zip")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, contentZip, first.Header().Get("Content-Type"))

	zr, err := zip.NewReader(bytes.NewReader(first.Body.Bytes()), int64(first.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "universe.csv")

	calls := views.calls.Load()
	second := get(t, srv, "/sessions/final/bundle.zip")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	// views are still resolved for the 409 check, but the zip is not rebuilt
	assert.Equal(t, calls+1, views.calls.Load())

	srv.Flush()
	third := get(t, srv, "/sessions/final/bundle.zip")
	assert.Equal(t, http.StatusOK, third.Code)
}

func TestWorkbook(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	rec := get(t, srv, "/sessions/final/workbook.xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentXLSX, rec.Header().Get("Content-Type"))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("PK")))
}

func TestCORS(t *testing.T) {
	t.Parallel()

	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	req.Header.Set("Origin", "https://app.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, "https://app.test", rec.Header().Get("Access-Control-Allow-Origin"))
}
