package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk/internal/models"
)

// ModelRunRow records one training run of a model
type ModelRunRow struct {
	RunID     string
	Name      string
	Version   string
	Kind      string
	Symbol    string
	Samples   int
	TrainedAt time.Time
	MSE       float64
	R2        float64
	Accuracy  float64
}

// RunRowFromRecord maps a registry record and its sample count onto a
// row. Accuracy falls back to directional accuracy for regression models.
func RunRowFromRecord(rec *models.Record, samples int) *ModelRunRow {
	row := &ModelRunRow{
		RunID:     rec.ID,
		Name:      rec.Name,
		Version:   rec.Version,
		Kind:      rec.Kind,
		Symbol:    rec.Symbol,
		Samples:   samples,
		TrainedAt: rec.TrainedAt,
	}
	if rec.Metrics != nil {
		row.MSE = rec.Metrics["mse"]
		row.R2 = rec.Metrics["r2"]
		if acc, ok := rec.Metrics["accuracy"]; ok {
			row.Accuracy = acc
		} else {
			row.Accuracy = rec.Metrics["directional_accuracy"]
		}
	}
	return row
}

// ModelRunRepository stores and loads model training runs
type ModelRunRepository struct {
	q Querier
}

// NewModelRunRepository creates a repository backed by the given querier
func NewModelRunRepository(q Querier) *ModelRunRepository {
	return &ModelRunRepository{q: q}
}

// Insert stores a training run
func (r *ModelRunRepository) Insert(ctx context.Context, run *ModelRunRow) error {
	if run.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	if run.Name == "" {
		return fmt.Errorf("model name is required")
	}

	query := `
		INSERT INTO model_runs (run_id, name, version, kind, symbol, samples, trained_at, mse, r2, accuracy)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	if _, err := r.q.Exec(ctx, query,
		run.RunID, run.Name, run.Version, run.Kind, run.Symbol,
		run.Samples, run.TrainedAt, run.MSE, run.R2, run.Accuracy,
	); err != nil {
		return fmt.Errorf("failed to insert model run: %w", err)
	}

	log.Debug().
		Str("run_id", run.RunID).
		Str("name", run.Name).
		Str("version", run.Version).
		Msg("Model run stored")

	return nil
}

// History loads the training runs of a model, newest first
func (r *ModelRunRepository) History(ctx context.Context, name string, limit int) ([]ModelRunRow, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1, got %d", limit)
	}

	query := `
		SELECT run_id, name, version, kind, symbol, samples, trained_at, mse, r2, accuracy
		FROM model_runs
		WHERE name = $1
		ORDER BY trained_at DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query model runs: %w", err)
	}
	defer rows.Close()

	var out []ModelRunRow
	for rows.Next() {
		var run ModelRunRow
		if err := rows.Scan(&run.RunID, &run.Name, &run.Version, &run.Kind, &run.Symbol,
			&run.Samples, &run.TrainedAt, &run.MSE, &run.R2, &run.Accuracy); err != nil {
			return nil, fmt.Errorf("failed to scan model run row: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model run rows: %w", err)
	}

	return out, nil
}
