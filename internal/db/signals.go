package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk/internal/agents"
)

// SignalRow is a persisted trading signal
type SignalRow struct {
	ID         string
	AgentID    string
	AgentType  string
	Symbol     string
	Direction  string // "long", "short", "flat"
	Strength   float64
	Confidence float64
	Rationale  string
	CreatedAt  time.Time
}

// RowFromSignal maps a published agent signal onto a row
func RowFromSignal(s *agents.Signal) *SignalRow {
	return &SignalRow{
		ID:         s.ID,
		AgentID:    s.AgentID,
		AgentType:  s.AgentType,
		Symbol:     s.Symbol,
		Direction:  s.Direction,
		Strength:   s.Strength,
		Confidence: s.Confidence,
		Rationale:  s.Rationale,
		CreatedAt:  s.CreatedAt,
	}
}

// SignalRepository stores and loads trading signals
type SignalRepository struct {
	q Querier
}

// NewSignalRepository creates a repository backed by the given querier
func NewSignalRepository(q Querier) *SignalRepository {
	return &SignalRepository{q: q}
}

// Insert stores a signal row
func (r *SignalRepository) Insert(ctx context.Context, s *SignalRow) error {
	if s.ID == "" {
		return fmt.Errorf("signal ID is required")
	}
	if s.Symbol == "" {
		return fmt.Errorf("signal symbol is required")
	}

	query := `
		INSERT INTO signals (id, agent_id, agent_type, symbol, direction, strength, confidence, rationale, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	if _, err := r.q.Exec(ctx, query,
		s.ID, s.AgentID, s.AgentType, s.Symbol,
		s.Direction, s.Strength, s.Confidence, s.Rationale, s.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	log.Debug().
		Str("signal_id", s.ID).
		Str("symbol", s.Symbol).
		Str("direction", s.Direction).
		Msg("Signal stored")

	return nil
}

// Recent loads the most recent signals for a symbol, newest first.
// An empty symbol loads signals across all symbols.
func (r *SignalRepository) Recent(ctx context.Context, symbol string, limit int) ([]SignalRow, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1, got %d", limit)
	}

	query := `
		SELECT id, agent_id, agent_type, symbol, direction, strength, confidence, rationale, created_at
		FROM signals
	`
	args := []interface{}{}
	if symbol != "" {
		query += " WHERE symbol = $1 ORDER BY created_at DESC LIMIT $2"
		args = append(args, symbol, limit)
	} else {
		query += " ORDER BY created_at DESC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var s SignalRow
		if err := rows.Scan(&s.ID, &s.AgentID, &s.AgentType, &s.Symbol,
			&s.Direction, &s.Strength, &s.Confidence, &s.Rationale, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan signal row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating signal rows: %w", err)
	}

	return out, nil
}
