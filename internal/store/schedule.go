package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
)

// Upsert writes one calendar day. A nil metadata keeps the stored metadata.
func (s *Store) Upsert(ctx context.Context, e schedule.Entry) error {
	var meta []byte
	if e.Metadata != nil {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = b
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO schedule_entries (agent_id, date, service_code, poste_code, metadata, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (agent_id, date)
		DO UPDATE SET
			service_code = EXCLUDED.service_code,
			poste_code = EXCLUDED.poste_code,
			metadata = COALESCE(EXCLUDED.metadata, schedule_entries.metadata),
			updated_at = now()`,
		e.AgentID, e.Date.Time(), e.ServiceCode, e.PosteCode, meta,
	)
	if err != nil {
		return fmt.Errorf("upsert schedule entry: %w", err)
	}
	return nil
}

// Query returns the agent's entries in r ordered by date.
func (s *Store) Query(ctx context.Context, agentID string, r schedule.Range, f schedule.Filter) ([]schedule.Entry, error) {
	var codes []string
	if len(f.ServiceCodes) > 0 {
		codes = f.ServiceCodes
	}

	rows, err := s.pool.Query(ctx, `
		SELECT agent_id, date, service_code, poste_code, metadata
		FROM schedule_entries
		WHERE agent_id = $1 AND date BETWEEN $2 AND $3
			AND ($4::text[] IS NULL OR service_code = ANY($4))
		ORDER BY date`,
		agentID, r.From.Time(), r.To.Time(), codes,
	)
	if err != nil {
		return nil, fmt.Errorf("query schedule entries: %w", err)
	}
	defer rows.Close()

	var out []schedule.Entry
	for rows.Next() {
		var (
			e    schedule.Entry
			day  time.Time
			meta []byte
		)
		if err := rows.Scan(&e.AgentID, &day, &e.ServiceCode, &e.PosteCode, &meta); err != nil {
			return nil, fmt.Errorf("scan schedule entry: %w", err)
		}
		e.Date = schedule.DateOf(day)
		if len(meta) > 0 {
			var m schedule.Metadata
			if err := json.Unmarshal(meta, &m); err != nil {
				return nil, fmt.Errorf("unmarshal metadata for %s: %w", e.Date, err)
			}
			e.Metadata = &m
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
