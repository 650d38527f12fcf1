package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/keyword-cli/internal/export"
	"github.com/sells-group/keyword-cli/internal/model"
	"github.com/sells-group/keyword-cli/internal/store"
	"github.com/sells-group/keyword-cli/internal/universe"
)

const (
	contentCSV  = "text/csv; charset=utf-8"
	contentZip  = "application/zip"
	contentXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// sessionDetail is the JSON view of one session; tables are downloaded
// separately.
type sessionDetail struct {
	model.SessionSummary
	Settings model.Settings  `json:"settings"`
	BatchID  string          `json:"batch_id,omitempty"`
	Pending  int             `json:"pending"`
	Sources  []model.Source  `json:"sources,omitempty"`
	Stats    *universe.Stats `json:"stats,omitempty"`
	Views    []string        `json:"views,omitempty"`
}

// rendered is a cached download.
type rendered struct {
	contentType string
	filename    string
	body        []byte
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		zap.L().Warn("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SessionFilter{Stage: model.Stage(q.Get("stage"))}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	sessions, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		s.internalError(w, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []model.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	d := sessionDetail{
		SessionSummary: model.SessionSummary{
			ID:        sess.ID,
			Name:      sess.Name,
			Stage:     sess.Stage,
			UpdatedAt: sess.UpdatedAt,
		},
		Settings: sess.Settings,
		BatchID:  sess.BatchID,
		Pending:  len(sess.Pending),
	}
	if t := table(sess); t != nil {
		d.Keywords = t.Len()
		d.Sources = t.Sources
		stats := universe.Summarize(t)
		d.Stats = &stats
	}
	if views, err := s.views.Views(sess); err == nil {
		for _, v := range views {
			d.Views = append(d.Views, v.Name)
		}
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) universeCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	t := table(sess)
	if t == nil {
		writeError(w, http.StatusConflict, "session has no universe")
		return
	}
	s.serveCached(w, sess, "universe.csv", func() (rendered, error) {
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, export.TableSheet(t)); err != nil {
			return rendered{}, err
		}
		return rendered{contentType: contentCSV, filename: "universe.csv", body: buf.Bytes()}, nil
	})
}

func (s *Server) subsetCSV(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	views, ok := s.finalViews(w, sess)
	if !ok {
		return
	}
	var view *model.View
	for i := range views {
		if views[i].Name == name {
			view = &views[i]
			break
		}
	}
	if view == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("subset %q not found", name))
		return
	}
	s.serveCached(w, sess, "subset/"+name, func() (rendered, error) {
		var buf bytes.Buffer
		if err := export.WriteCSV(&buf, export.ViewSheet(*view)); err != nil {
			return rendered{}, err
		}
		return rendered{contentType: contentCSV, filename: export.FileName(name), body: buf.Bytes()}, nil
	})
}

func (s *Server) bundleZip(w http.ResponseWriter, r *http.Request) {
	s.serveViews(w, r, "bundle.zip", contentZip, func(out io.Writer, sess *model.Session, views []model.View) error {
		return export.WriteZip(out, views, sess.UpdatedAt)
	})
}

func (s *Server) workbook(w http.ResponseWriter, r *http.Request) {
	s.serveViews(w, r, "workbook.xlsx", contentXLSX, func(out io.Writer, _ *model.Session, views []model.View) error {
		return export.WriteWorkbook(out, views)
	})
}

func (s *Server) serveViews(w http.ResponseWriter, r *http.Request, filename, contentType string, write func(io.Writer, *model.Session, []model.View) error) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	views, ok := s.finalViews(w, sess)
	if !ok {
		return
	}
	s.serveCached(w, sess, filename, func() (rendered, error) {
		var buf bytes.Buffer
		if err := write(&buf, sess, views); err != nil {
			return rendered{}, err
		}
		return rendered{contentType: contentType, filename: filename, body: buf.Bytes()}, nil
	})
}

// serveCached writes a rendered download, rendering it on a cache miss.
// Keys include the session's update time so a re-saved session never
// serves a stale render.
func (s *Server) serveCached(w http.ResponseWriter, sess *model.Session, resource string, render func() (rendered, error)) {
	key := fmt.Sprintf("%s@%d/%s", sess.ID, sess.UpdatedAt.UnixNano(), resource)
	var out rendered
	if v, found := s.cache.Get(key); found {
		out = v.(rendered)
	} else {
		var err error
		if out, err = render(); err != nil {
			s.internalError(w, "render "+resource, err)
			return
		}
		s.cache.SetDefault(key, out)
	}

	w.Header().Set("Content-Type", out.contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sess.ID+"_"+out.filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.body)
}

func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return nil, false
		}
		s.internalError(w, "get session", err)
		return nil, false
	}
	return sess, true
}

func (s *Server) finalViews(w http.ResponseWriter, sess *model.Session) ([]model.View, bool) {
	views, err := s.views.Views(sess)
	if err != nil {
		writeError(w, http.StatusConflict, "session is not finalized")
		return nil, false
	}
	return views, true
}

func (s *Server) internalError(w http.ResponseWriter, action string, err error) {
	zap.L().Error("server: "+action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

// table is the master table once finalized, the universe before that.
func table(sess *model.Session) *model.Table {
	if sess.Master != nil {
		return sess.Master
	}
	return sess.Universe
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
