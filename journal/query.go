package journal

import (
	"database/sql"
	"fmt"
	"time"
)

// GetClose returns a single close record by ticket.
func (j *SQLite) GetClose(ticket string) (CloseRecord, error) {
	var rec CloseRecord

	row := j.db.QueryRow(`
		SELECT ticket, symbol, direction, lots, open_price, exit_price, open_time, close_time, profit, reason
		FROM closes
		WHERE ticket = ?`, ticket)

	err := row.Scan(
		&rec.Ticket,
		&rec.Symbol,
		&rec.Direction,
		&rec.Lots,
		&rec.OpenPrice,
		&rec.ExitPrice,
		&rec.OpenTime,
		&rec.CloseTime,
		&rec.Profit,
		&rec.Reason,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return CloseRecord{}, fmt.Errorf("close %q not found", ticket)
		}
		return CloseRecord{}, err
	}
	return rec, nil
}

// GetOrder returns a single order record by ticket.
func (j *SQLite) GetOrder(ticket string) (OrderRecord, error) {
	var rec OrderRecord

	row := j.db.QueryRow(`
		SELECT ticket, symbol, direction, lots, requested_price, fill_price, stop_loss, take_profit, reason, time
		FROM orders
		WHERE ticket = ?`, ticket)

	err := row.Scan(
		&rec.Ticket,
		&rec.Symbol,
		&rec.Direction,
		&rec.Lots,
		&rec.RequestedPrice,
		&rec.FillPrice,
		&rec.StopLoss,
		&rec.TakeProfit,
		&rec.Reason,
		&rec.Time,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return OrderRecord{}, fmt.Errorf("order %q not found", ticket)
		}
		return OrderRecord{}, err
	}
	return rec, nil
}

// ListClosesBetween returns closes whose close_time is within [start, end).
func (j *SQLite) ListClosesBetween(start, end time.Time) ([]CloseRecord, error) {
	rows, err := j.db.Query(`
		SELECT ticket, symbol, direction, lots, open_price, exit_price, open_time, close_time, profit, reason
		FROM closes
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CloseRecord
	for rows.Next() {
		var rec CloseRecord
		if err := rows.Scan(
			&rec.Ticket,
			&rec.Symbol,
			&rec.Direction,
			&rec.Lots,
			&rec.OpenPrice,
			&rec.ExitPrice,
			&rec.OpenTime,
			&rec.CloseTime,
			&rec.Profit,
			&rec.Reason,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListEquityBetween returns equity snapshots within [start, end).
func (j *SQLite) ListEquityBetween(start, end time.Time) ([]EquitySnapshot, error) {
	rows, err := j.db.Query(`
		SELECT time, balance, equity, margin_used, free_margin, margin_level
		FROM equity
		WHERE time >= ? AND time < ?
		ORDER BY time ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EquitySnapshot
	for rows.Next() {
		var rec EquitySnapshot
		if err := rows.Scan(
			&rec.Time,
			&rec.Balance,
			&rec.Equity,
			&rec.MarginUsed,
			&rec.FreeMargin,
			&rec.MarginLevel,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
