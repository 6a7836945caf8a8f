package journal

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordOrder(o OrderRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO orders
		(ticket, symbol, direction, lots, requested_price, fill_price, stop_loss, take_profit, reason, time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Ticket, o.Symbol, o.Direction, o.Lots, o.RequestedPrice,
		o.FillPrice, o.StopLoss, o.TakeProfit, o.Reason, o.Time,
	)
	return err
}

func (j *SQLite) RecordClose(c CloseRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO closes
		(ticket, symbol, direction, lots, open_price, exit_price, open_time, close_time, profit, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Ticket, c.Symbol, c.Direction, c.Lots, c.OpenPrice,
		c.ExitPrice, c.OpenTime, c.CloseTime, c.Profit, c.Reason,
	)
	return err
}

func (j *SQLite) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(time, balance, equity, margin_used, free_margin, margin_level)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.Time, e.Balance, e.Equity, e.MarginUsed, e.FreeMargin, e.MarginLevel,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
