package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// JournalEntry is one persisted decision row. Payload holds the full JSON
// record.
type JournalEntry struct {
	ID       string    `json:"id"`
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	TS       time.Time `json:"ts"`
	Action   string    `json:"action"`
	Approved bool      `json:"approved"`
	Reasons  []string  `json:"reasons,omitempty"`
	Payload  []byte    `json:"-"`
}

// AppendDecision inserts an entry. A second entry for the same symbol and
// timestamp is ignored and reported as not inserted.
func (d *DB) AppendDecision(ctx context.Context, e JournalEntry) (bool, error) {
	res, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO decisions (id, symbol, interval, ts, action, approved, reasons, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Symbol, e.Interval, e.TS.Unix(), e.Action, e.Approved, strings.Join(e.Reasons, ","), string(e.Payload))
	if err != nil {
		return false, fmt.Errorf("sqlite insert decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecentDecisions returns up to limit entries for symbol, newest first. An
// empty symbol matches all symbols.
func (d *DB) RecentDecisions(ctx context.Context, symbol string, limit int) ([]JournalEntry, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, symbol, interval, ts, action, approved, reasons, payload
		FROM decisions
		WHERE (? = '' OR symbol = ?)
		ORDER BY ts DESC
		LIMIT ?
	`, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query decisions: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var ts int64
		var reasons, payload string
		if err := rows.Scan(&e.ID, &e.Symbol, &e.Interval, &ts, &e.Action, &e.Approved, &reasons, &payload); err != nil {
			return nil, fmt.Errorf("sqlite scan decisions: %w", err)
		}
		e.TS = time.Unix(ts, 0).UTC()
		if reasons != "" {
			e.Reasons = strings.Split(reasons, ",")
		}
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountApproved returns approved decisions for symbol with ts in [from, to).
func (d *DB) CountApproved(ctx context.Context, symbol string, from, to time.Time) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM decisions
		WHERE symbol = ? AND approved = 1 AND ts >= ? AND ts < ?
	`, symbol, from.Unix(), to.Unix()).Scan(&n)
	return n, err
}
