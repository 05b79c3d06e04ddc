package db

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/quantdesk/quantdesk/internal/market"
)

// CandleRepository stores and loads OHLCV candles
type CandleRepository struct {
	q Querier
}

// NewCandleRepository creates a repository backed by the given querier
func NewCandleRepository(q Querier) *CandleRepository {
	return &CandleRepository{q: q}
}

// InsertSeries stores every candle of a series. Conflicting rows
// (same symbol, interval, timestamp) are replaced.
func (r *CandleRepository) InsertSeries(ctx context.Context, series *market.Series) error {
	if err := series.Validate(); err != nil {
		return fmt.Errorf("invalid series: %w", err)
	}

	query := `
		INSERT INTO candles (symbol, interval, ts, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, interval, ts) DO UPDATE
		SET open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume
	`

	for _, c := range series.Candles {
		if _, err := r.q.Exec(ctx, query,
			series.Symbol, series.Interval, c.Timestamp,
			c.Open, c.High, c.Low, c.Close, c.Volume,
		); err != nil {
			return fmt.Errorf("failed to insert candle at %s: %w", c.Timestamp, err)
		}
	}

	log.Debug().
		Str("symbol", series.Symbol).
		Str("interval", series.Interval).
		Int("candles", series.Len()).
		Msg("Candle series stored")

	return nil
}

// LoadSeries loads the most recent candles for a symbol, oldest first.
func (r *CandleRepository) LoadSeries(ctx context.Context, symbol, interval string, limit int) (*market.Series, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be >= 1, got %d", limit)
	}

	query := `
		SELECT ts, open, high, low, close, volume
		FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = $1 AND interval = $2
			ORDER BY ts DESC
			LIMIT $3
		) recent
		ORDER BY ts ASC
	`

	rows, err := r.q.Query(ctx, query, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []market.Candle
	for rows.Next() {
		var c market.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle row: %w", err)
		}
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candle rows: %w", err)
	}

	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles found for %s %s", symbol, interval)
	}

	return &market.Series{
		Symbol:   symbol,
		Interval: interval,
		Candles:  candles,
	}, nil
}

// LatestClose returns the most recent close for a symbol
func (r *CandleRepository) LatestClose(ctx context.Context, symbol, interval string) (float64, error) {
	query := `
		SELECT close
		FROM candles
		WHERE symbol = $1 AND interval = $2
		ORDER BY ts DESC
		LIMIT 1
	`

	var price float64
	if err := r.q.QueryRow(ctx, query, symbol, interval).Scan(&price); err != nil {
		return 0, fmt.Errorf("failed to get latest close for %s: %w", symbol, err)
	}
	return price, nil
}
