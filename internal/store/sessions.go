package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
	"github.com/MikeSquared-Agency/shiftbook/internal/session"
)

// SessionStore keeps each import session as a JSONB document guarded by a
// version column.
type SessionStore struct {
	pool *pgxpool.Pool
}

func (s *SessionStore) Create(ctx context.Context, sess *session.Session) error {
	sess.Version = 1
	state, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO import_sessions (id, owner_id, agent_id, status, version, state, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8)`,
		sess.ID, sess.OwnerID, sess.AgentID, string(sess.Status), sess.Version, state, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.NotFound(fmt.Sprintf("session %s not found", id))
	}

	var (
		state   []byte
		version int64
		status  string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT state, version, status FROM import_sessions WHERE id = $1`, id,
	).Scan(&state, &version, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("session %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var sess session.Session
	if err := json.Unmarshal(state, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	// The status column is what list queries filter on; it wins over the document.
	st, err := session.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	sess.Status = st
	sess.Version = version
	return &sess, nil
}

// Save writes sess only if the stored version still equals expectedVersion.
func (s *SessionStore) Save(ctx context.Context, sess *session.Session, expectedVersion int64) error {
	next := *sess
	next.Version = expectedVersion + 1
	state, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE import_sessions
		SET state = $3, status = $4, agent_id = NULLIF($5, ''), version = version + 1, updated_at = $6
		WHERE id = $1 AND version = $2`,
		sess.ID, expectedVersion, state, string(sess.Status), sess.AgentID, sess.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var current int64
		err := s.pool.QueryRow(ctx, `SELECT version FROM import_sessions WHERE id = $1`, sess.ID).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(fmt.Sprintf("session %s not found", sess.ID))
		}
		if err != nil {
			return fmt.Errorf("read session version: %w", err)
		}
		return apperr.ConflictState(fmt.Sprintf("session %s was modified concurrently (expected version %d, found %d)", sess.ID, expectedVersion, current))
	}
	sess.Version = next.Version
	return nil
}
