package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
	"github.com/MikeSquared-Agency/shiftbook/internal/resolver"
)

// ListAgents returns a snapshot of the agent directory. Writes to the
// directory belong to the agent administration service.
func (s *Store) ListAgents(ctx context.Context) ([]resolver.Agent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, family_name, given_name
		FROM agents
		ORDER BY family_name, given_name`)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var out []resolver.Agent
	for rows.Next() {
		var a resolver.Agent
		if err := rows.Scan(&a.ID, &a.FamilyName, &a.GivenName); err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAgent(ctx context.Context, id string) (*resolver.Agent, error) {
	var a resolver.Agent
	err := s.pool.QueryRow(ctx, `
		SELECT id, family_name, given_name FROM agents WHERE id = $1`, id,
	).Scan(&a.ID, &a.FamilyName, &a.GivenName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.AgentNotFound(fmt.Sprintf("agent %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return &a, nil
}
