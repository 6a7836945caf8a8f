// journal/csv.go
package journal

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"
)

type CSVJournal struct {
	orders *csv.Writer
	closes *csv.Writer
	equity *csv.Writer
	of     *os.File
	cf     *os.File
	ef     *os.File
}

func NewCSV(ordersPath, closesPath, equityPath string) (*CSVJournal, error) {
	of, err := os.Create(ordersPath)
	if err != nil {
		return nil, err
	}
	cf, err := os.Create(closesPath)
	if err != nil {
		return nil, err
	}
	ef, err := os.Create(equityPath)
	if err != nil {
		return nil, err
	}

	ow := csv.NewWriter(of)
	cw := csv.NewWriter(cf)
	ew := csv.NewWriter(ef)

	if err := ow.Write([]string{"ticket", "symbol", "direction", "lots", "requested_price", "fill_price", "stop_loss", "take_profit", "reason", "time"}); err != nil {
		return nil, err
	}
	if err := cw.Write([]string{"ticket", "symbol", "direction", "lots", "open_price", "exit_price", "open_time", "close_time", "profit", "reason"}); err != nil {
		return nil, err
	}
	if err := ew.Write([]string{"time", "balance", "equity", "margin_used", "free_margin", "margin_level"}); err != nil {
		return nil, err
	}

	for _, w := range []*csv.Writer{ow, cw, ew} {
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
	}

	return &CSVJournal{orders: ow, closes: cw, equity: ew, of: of, cf: cf, ef: ef}, nil
}

func (j *CSVJournal) RecordOrder(o OrderRecord) error {
	err := j.orders.Write([]string{
		o.Ticket,
		o.Symbol,
		o.Direction,
		f(o.Lots),
		f(o.RequestedPrice),
		f(o.FillPrice),
		f(o.StopLoss),
		f(o.TakeProfit),
		o.Reason,
		o.Time.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	j.orders.Flush()
	return j.orders.Error()
}

func (j *CSVJournal) RecordClose(c CloseRecord) error {
	err := j.closes.Write([]string{
		c.Ticket,
		c.Symbol,
		c.Direction,
		f(c.Lots),
		f(c.OpenPrice),
		f(c.ExitPrice),
		c.OpenTime.Format(time.RFC3339),
		c.CloseTime.Format(time.RFC3339),
		f(c.Profit),
		c.Reason,
	})
	if err != nil {
		return err
	}
	j.closes.Flush()
	return j.closes.Error()
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	err := j.equity.Write([]string{
		e.Time.Format(time.RFC3339),
		f(e.Balance),
		f(e.Equity),
		f(e.MarginUsed),
		f(e.FreeMargin),
		f(e.MarginLevel),
	})
	if err != nil {
		return err
	}
	j.equity.Flush()
	return j.equity.Error()
}

func (j *CSVJournal) Close() error {
	for _, w := range []*csv.Writer{j.orders, j.closes, j.equity} {
		w.Flush()
		if err := w.Error(); err != nil {
			return err
		}
	}
	for _, file := range []*os.File{j.of, j.cf, j.ef} {
		if err := file.Close(); err != nil {
			return err
		}
	}
	return nil
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
