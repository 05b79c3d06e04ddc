package db

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantdesk/quantdesk/internal/agents"
)

func TestRowFromSignal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSignalRepository(mock)

	sig := &agents.Signal{
		ID:         uuid.New().String(),
		AgentID:    "technical-1",
		AgentType:  "technical",
		Symbol:     "ETH/USD",
		Direction:  agents.DirectionShort,
		Strength:   0.55,
		Confidence: 0.72,
		Rationale:  "macd bearish crossover",
		CreatedAt:  time.Now().UTC(),
	}

	row := RowFromSignal(sig)
	assert.Equal(t, sig.ID, row.ID)
	assert.Equal(t, sig.Direction, row.Direction)
	assert.Equal(t, sig.Confidence, row.Confidence)

	mock.ExpectExec("INSERT INTO signals").
		WithArgs(sig.ID, sig.AgentID, sig.AgentType, sig.Symbol,
			sig.Direction, sig.Strength, sig.Confidence, sig.Rationale, sig.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Insert(context.Background(), row))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSignal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSignalRepository(mock)

	sig := &SignalRow{
		ID:         uuid.New().String(),
		AgentID:    "technical-1",
		AgentType:  "technical",
		Symbol:     "BTC/USD",
		Direction:  "long",
		Strength:   0.7,
		Confidence: 0.8,
		Rationale:  "rsi oversold, macd bullish crossover",
		CreatedAt:  time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO signals").
		WithArgs(sig.ID, sig.AgentID, sig.AgentType, sig.Symbol,
			sig.Direction, sig.Strength, sig.Confidence, sig.Rationale, sig.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Insert(context.Background(), sig))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSignalValidation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSignalRepository(mock)

	assert.Error(t, repo.Insert(context.Background(), &SignalRow{Symbol: "BTC/USD"}))
	assert.Error(t, repo.Insert(context.Background(), &SignalRow{ID: "x"}))
}

func TestRecentSignalsBySymbol(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSignalRepository(mock)

	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "agent_id", "agent_type", "symbol", "direction", "strength", "confidence", "rationale", "created_at",
	}).
		AddRow("id-2", "technical-1", "technical", "BTC/USD", "short", 0.4, 0.6, "overbought", now).
		AddRow("id-1", "technical-1", "technical", "BTC/USD", "long", 0.7, 0.8, "oversold", now.Add(-time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM signals WHERE symbol").
		WithArgs("BTC/USD", 10).
		WillReturnRows(rows)

	signals, err := repo.Recent(context.Background(), "BTC/USD", 10)
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, "id-2", signals[0].ID)
	assert.Equal(t, "short", signals[0].Direction)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentSignalsAllSymbols(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSignalRepository(mock)

	rows := pgxmock.NewRows([]string{
		"id", "agent_id", "agent_type", "symbol", "direction", "strength", "confidence", "rationale", "created_at",
	}).
		AddRow("id-1", "risk-1", "risk", "ETH/USD", "flat", 0.0, 0.9, "high var", time.Now().UTC())

	mock.ExpectQuery("SELECT (.+) FROM signals ORDER BY").
		WithArgs(5).
		WillReturnRows(rows)

	signals, err := repo.Recent(context.Background(), "", 5)
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, "ETH/USD", signals[0].Symbol)

	require.NoError(t, mock.ExpectationsWereMet())
}
