package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	j, err := NewSQLite(path)
	assert.NoError(t, err)

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type='table' AND name IN ('orders','closes','equity')`)
	assert.NoError(t, err)
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		assert.NoError(t, rows.Scan(&name))
		found[name] = true
	}
	assert.NoError(t, rows.Err())

	assert.True(t, found["orders"])
	assert.True(t, found["closes"])
	assert.True(t, found["equity"])
}

func TestSQLiteRecordOrder(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := OrderRecord{
		Ticket:         "01HX001",
		Symbol:         "EURUSD",
		Direction:      "BUY",
		Lots:           0.24,
		RequestedPrice: 1.10000,
		FillPrice:      1.10002,
		StopLoss:       1.09590,
		TakeProfit:     1.10820,
		Reason:         "BUY",
		Time:           ts,
	}

	assert.NoError(t, j.RecordOrder(rec))
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		ticket    string
		symbol    string
		direction string
		lots      float64
		requested float64
		fill      float64
		stop      float64
		target    float64
		reason    string
		gotTime   time.Time
	)

	err = db.QueryRow(`
        SELECT ticket, symbol, direction, lots, requested_price, fill_price, stop_loss, take_profit, reason, time
        FROM orders LIMIT 1`).Scan(
		&ticket, &symbol, &direction, &lots, &requested, &fill, &stop, &target, &reason, &gotTime,
	)
	assert.NoError(t, err)

	assert.Equal(t, rec.Ticket, ticket)
	assert.Equal(t, rec.Symbol, symbol)
	assert.Equal(t, rec.Direction, direction)
	assert.InDelta(t, rec.Lots, lots, 1e-9)
	assert.InDelta(t, rec.RequestedPrice, requested, 1e-9)
	assert.InDelta(t, rec.FillPrice, fill, 1e-9)
	assert.InDelta(t, rec.StopLoss, stop, 1e-9)
	assert.InDelta(t, rec.TakeProfit, target, 1e-9)
	assert.Equal(t, rec.Reason, reason)
	assert.True(t, gotTime.Equal(rec.Time))
}

func TestSQLiteRecordClose(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	open := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	closeT := time.Date(2026, 1, 2, 4, 5, 6, 0, time.UTC)

	rec := CloseRecord{
		Ticket:    "01HX001",
		Symbol:    "EURUSD",
		Direction: "BUY",
		Lots:      0.24,
		OpenPrice: 1.10002,
		ExitPrice: 1.10450,
		OpenTime:  open,
		CloseTime: closeT,
		Profit:    107.52,
		Reason:    "TakeProfit",
	}

	assert.NoError(t, j.RecordClose(rec))
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		ticket    string
		profit    float64
		reason    string
		closeTime time.Time
	)

	err = db.QueryRow(`
        SELECT ticket, profit, reason, close_time
        FROM closes LIMIT 1`).Scan(&ticket, &profit, &reason, &closeTime)
	assert.NoError(t, err)

	assert.Equal(t, rec.Ticket, ticket)
	assert.InDelta(t, rec.Profit, profit, 1e-6)
	assert.Equal(t, rec.Reason, reason)
	assert.True(t, closeTime.Equal(rec.CloseTime))
}

func TestSQLiteRecordEquity(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)

	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	rec := EquitySnapshot{
		Time:        ts,
		Balance:     1000.1,
		Equity:      999.9,
		MarginUsed:  10.5,
		FreeMargin:  989.4,
		MarginLevel: 99.99,
	}

	assert.NoError(t, j.RecordEquity(rec))
	assert.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	assert.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var (
		gotTime     time.Time
		balance     float64
		equity      float64
		marginUsed  float64
		freeMargin  float64
		marginLevel float64
	)

	err = db.QueryRow(`
        SELECT time, balance, equity, margin_used, free_margin, margin_level
        FROM equity LIMIT 1`).Scan(
		&gotTime, &balance, &equity, &marginUsed, &freeMargin, &marginLevel,
	)
	assert.NoError(t, err)

	assert.True(t, gotTime.Equal(rec.Time))
	assert.InDelta(t, rec.Balance, balance, 1e-6)
	assert.InDelta(t, rec.Equity, equity, 1e-6)
	assert.InDelta(t, rec.MarginUsed, marginUsed, 1e-6)
	assert.InDelta(t, rec.FreeMargin, freeMargin, 1e-6)
	assert.InDelta(t, rec.MarginLevel, marginLevel, 1e-6)
}
