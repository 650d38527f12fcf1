// Package store persists pipeline sessions: full snapshots of the universe,
// master table, settings and pending classification state.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/keyword-cli/internal/model"
)

// ErrNotFound is returned (wrapped) when a session id does not exist.
var ErrNotFound = eris.New("session not found")

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	Stage  model.Stage `json:"stage,omitempty"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// Store defines the persistence interface for pipeline sessions.
type Store interface {
	SaveSession(ctx context.Context, s *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, filter SessionFilter) ([]model.SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// stamp assigns an id and timestamps before a save.
func stamp(s *model.Session) {
	now := time.Now().UTC()
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.Stage == "" {
		s.Stage = model.StageCreated
	}
	s.UpdatedAt = now
}

// keywordCount is the size shown in listings: the master table once it
// exists, the universe before that.
func keywordCount(s *model.Session) int {
	switch {
	case s.Master != nil:
		return s.Master.Len()
	case s.Universe != nil:
		return s.Universe.Len()
	}
	return 0
}

// sessionMeta is the JSON-encoded part of a session shared by both stores.
type sessionMeta struct {
	Settings []byte
	Mappings []byte
	Pending  []byte
}

func encodeMeta(s *model.Session) (sessionMeta, error) {
	var m sessionMeta
	var err error
	if m.Settings, err = json.Marshal(s.Settings); err != nil {
		return m, eris.Wrap(err, "store: marshal settings")
	}
	if m.Mappings, err = encodeOptional(s.Mappings, len(s.Mappings) == 0); err != nil {
		return m, eris.Wrap(err, "store: marshal mappings")
	}
	if m.Pending, err = encodeOptional(s.Pending, len(s.Pending) == 0); err != nil {
		return m, eris.Wrap(err, "store: marshal pending")
	}
	return m, nil
}

func decodeMeta(s *model.Session, m sessionMeta) error {
	if err := json.Unmarshal(m.Settings, &s.Settings); err != nil {
		return eris.Wrap(err, "store: unmarshal settings")
	}
	if len(m.Mappings) > 0 {
		if err := json.Unmarshal(m.Mappings, &s.Mappings); err != nil {
			return eris.Wrap(err, "store: unmarshal mappings")
		}
	}
	if len(m.Pending) > 0 {
		if err := json.Unmarshal(m.Pending, &s.Pending); err != nil {
			return eris.Wrap(err, "store: unmarshal pending")
		}
	}
	return nil
}

// encodeOptional returns nil for empty values so they are stored as NULL.
func encodeOptional(v any, empty bool) ([]byte, error) {
	if empty {
		return nil, nil
	}
	return json.Marshal(v)
}
