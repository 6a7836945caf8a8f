package market

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNoQuote = errors.New("no quote for symbol")

// Quote is a point-in-time bid/ask snapshot. It is never cached by the
// core across decision cycles; every cycle re-queries the Data provider.
type Quote struct {
	Symbol string
	Bid    float64
	Ask    float64
	Time   time.Time
}

func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Data is the market data provider collaborator. Implementations wrap a
// platform feed; the sim engine provides an in-process one.
type Data interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
	Symbol(ctx context.Context, symbol string) (Symbol, error)
}

// QuoteBook is a concurrency-safe quote store keyed by symbol.
type QuoteBook struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

func NewQuoteBook() *QuoteBook {
	return &QuoteBook{quotes: make(map[string]Quote)}
}

func (b *QuoteBook) Set(q Quote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[q.Symbol] = q
}

func (b *QuoteBook) Get(symbol string) (Quote, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[symbol]
	if !ok {
		return Quote{}, ErrNoQuote
	}
	return q, nil
}
