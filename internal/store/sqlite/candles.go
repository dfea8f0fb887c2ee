package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fxanalyst/internal/model"
)

// UpsertCandles stores candles for one symbol/timeframe in a single
// transaction. Existing bars with the same timestamp are replaced.
func (d *DB) UpsertCandles(ctx context.Context, symbol string, tf model.Timeframe, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, ts, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, string(tf), c.TS.Unix(), c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert candle %s %s %d: %w", symbol, tf, c.TS.Unix(), err)
		}
	}
	return tx.Commit()
}

// LoadCandles returns the latest limit candles at or before until, oldest
// first. A zero until means no upper bound.
func (d *DB) LoadCandles(ctx context.Context, symbol string, tf model.Timeframe, limit int, until time.Time) (model.Series, error) {
	upper := int64(1 << 62)
	if !until.IsZero() {
		upper = until.Unix()
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume FROM (
			SELECT ts, open, high, low, close, volume
			FROM candles
			WHERE symbol = ? AND timeframe = ? AND ts <= ?
			ORDER BY ts DESC
			LIMIT ?
		) ORDER BY ts ASC
	`, symbol, string(tf), upper, limit)
	if err != nil {
		return model.Series{}, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	s := model.Series{Symbol: symbol, Timeframe: tf}
	for rows.Next() {
		var c model.Candle
		var ts int64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return model.Series{}, fmt.Errorf("sqlite scan candles: %w", err)
		}
		c.TS = time.Unix(ts, 0).UTC()
		s.Candles = append(s.Candles, c)
	}
	return s, rows.Err()
}

// LastCandleTime returns the newest stored bar time, or the zero time.
func (d *DB) LastCandleTime(ctx context.Context, symbol string, tf model.Timeframe) (time.Time, error) {
	var ts sql.NullInt64
	err := d.db.QueryRowContext(ctx,
		`SELECT MAX(ts) FROM candles WHERE symbol = ? AND timeframe = ?`,
		symbol, string(tf),
	).Scan(&ts)
	if err != nil || !ts.Valid {
		return time.Time{}, err
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}
